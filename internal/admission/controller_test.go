package admission

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/sgriggs/mevflow/internal/circuitbreaker"
	"github.com/sgriggs/mevflow/pkg/config"
	"github.com/sgriggs/mevflow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func etherWei(eth float64) *big.Int {
	wei, _ := new(big.Float).Mul(big.NewFloat(eth), big.NewFloat(1e18)).Int(nil)
	return wei
}

func gweiWei(gwei float64) *big.Int {
	wei, _ := new(big.Float).Mul(big.NewFloat(gwei), big.NewFloat(1e9)).Int(nil)
	return wei
}

type stubBalance struct {
	eth float64
	err error
}

func (s *stubBalance) AvailableBalance(context.Context) (float64, error) {
	return s.eth, s.err
}

func testConfig() *config.Config {
	return &config.Config{
		MaxCompositeScore:   7.0,
		GasPriceCeilingGwei: 300.0,
		MinProfitGasRatio:   2.0,
		MaxTokenRisk:        7.0,
		MaxVenueRisk:        7.0,
		MaxSlippage:         0.03,
		LiquidityMultiple:   10.0,
		DailyLossBudgetETH:  1.0,
		MinPositionETH:      0.01,
		MaxPositionETH:      10.0,
		KellyMinTrades:      20,
		KellyFraction:       0.25,
	}
}

func newTestController(t *testing.T, balance BalanceSource) (*Controller, *circuitbreaker.Breaker) {
	t.Helper()

	logger := zaptest.NewLogger(t)

	breaker, err := circuitbreaker.New(&circuitbreaker.Config{
		MaxConsecutiveFailures: 5,
		MaxHourlyFailures:      20,
		Cooldown:               5 * time.Minute,
		StrategyFailureLimit:   10,
		Logger:                 logger,
	})
	require.NoError(t, err)

	if balance == nil {
		balance = &stubBalance{eth: 100}
	}

	ctrl, err := NewController(&ControllerConfig{
		Config:  testConfig(),
		Breaker: breaker,
		Balance: balance,
		Logger:  logger,
	})
	require.NoError(t, err)

	return ctrl, breaker
}

// passingOpportunity is comfortably inside every default threshold.
func passingOpportunity() *types.Opportunity {
	opp := types.NewOpportunity("arb-v2", types.KindArbitrage, 30*time.Second)
	opp.ExpectedProfit = etherWei(0.05)
	opp.RequiredAmount = etherWei(1)
	opp.GasEstimate = 250_000
	opp.GasPrice = gweiWei(40)
	opp.Confidence = 0.8
	opp.TokenRiskScore = 2.0
	opp.VenueRiskScore = 1.5
	opp.EstimatedSlippage = 0.01
	opp.EstimatedLiquidity = etherWei(50)
	return opp
}

func TestNewController_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewController(nil)
	assert.ErrorContains(t, err, "config cannot be nil")

	_, err = NewController(&ControllerConfig{})
	assert.ErrorContains(t, err, "pipeline config cannot be nil")
}

func TestEvaluate_ApprovesCleanOpportunity(t *testing.T) {
	t.Parallel()

	ctrl, _ := newTestController(t, nil)

	assessment, err := ctrl.Evaluate(context.Background(), passingOpportunity())
	require.NoError(t, err)

	assert.True(t, assessment.Approved)
	assert.Empty(t, assessment.RejectReason)
	assert.Len(t, assessment.Checks, 8)
	assert.Less(t, assessment.CompositeScore, 7.0)
	assert.GreaterOrEqual(t, assessment.PositionETH, 0.01)
	assert.LessOrEqual(t, assessment.PositionETH, 10.0)
}

func TestEvaluate_RejectsExpired(t *testing.T) {
	t.Parallel()

	ctrl, _ := newTestController(t, nil)

	opp := passingOpportunity()
	opp.ExpiresAt = time.Now().Add(-time.Second)

	assessment, err := ctrl.Evaluate(context.Background(), opp)
	require.NoError(t, err)

	assert.False(t, assessment.Approved)
	assert.Equal(t, "expired", assessment.RejectReason)
	assert.Empty(t, assessment.Checks, "expired opportunities skip the check set")
}

func TestEvaluate_RejectsWhileCircuitOpen(t *testing.T) {
	t.Parallel()

	ctrl, breaker := newTestController(t, nil)

	for i := 0; i < 5; i++ {
		breaker.RecordFailure("arb-v2")
	}

	assessment, err := ctrl.Evaluate(context.Background(), passingOpportunity())
	require.NoError(t, err)

	assert.False(t, assessment.Approved)
	assert.Equal(t, "circuit-open", assessment.RejectReason)
}

func TestEvaluate_RejectsHighGasPrice(t *testing.T) {
	t.Parallel()

	ctrl, _ := newTestController(t, nil)

	opp := passingOpportunity()
	opp.GasPrice = gweiWei(500)
	// Keep profit/gas passing despite the expensive gas.
	opp.ExpectedProfit = etherWei(5)

	assessment, err := ctrl.Evaluate(context.Background(), opp)
	require.NoError(t, err)

	assert.False(t, assessment.Approved)
	assert.Equal(t, "Gas price too high", assessment.RejectReason)
}

func TestEvaluate_RejectsDisabledStrategy(t *testing.T) {
	t.Parallel()

	ctrl, breaker := newTestController(t, nil)

	for i := 0; i < 10; i++ {
		breaker.RecordFailure("arb-v2")
		breaker.RecordSuccess("arb-v2")
	}

	assessment, err := ctrl.Evaluate(context.Background(), passingOpportunity())
	require.NoError(t, err)

	assert.False(t, assessment.Approved)
	assert.Contains(t, assessment.RejectReason, "disabled")
}

func TestEvaluate_RejectsThinLiquidity(t *testing.T) {
	t.Parallel()

	ctrl, _ := newTestController(t, nil)

	opp := passingOpportunity()
	opp.EstimatedLiquidity = etherWei(5) // below 10x the 1 ETH size

	assessment, err := ctrl.Evaluate(context.Background(), opp)
	require.NoError(t, err)

	assert.False(t, assessment.Approved)
	assert.Equal(t, "Insufficient liquidity for trade size", assessment.RejectReason)
}

func TestEvaluate_BalanceErrorSurfaces(t *testing.T) {
	t.Parallel()

	ctrl, _ := newTestController(t, &stubBalance{err: assert.AnError})

	_, err := ctrl.Evaluate(context.Background(), passingOpportunity())
	assert.ErrorContains(t, err, "fetch available balance")
}

func TestCompositeScore_MonotonicInFailures(t *testing.T) {
	t.Parallel()

	base := []CheckResult{
		{Name: "a", Passed: true, Ratio: 0.2, Weight: 1},
		{Name: "b", Passed: true, Ratio: 0.4, Weight: 1},
		{Name: "c", Passed: true, Ratio: 0.1, Weight: 1},
	}

	prev := CompositeScore(base)
	for i := range base {
		base[i].Passed = false
		score := CompositeScore(base)
		assert.Greater(t, score, prev, "failing check %d must raise the score", i)
		prev = score
	}
}

func TestCompositeScore_Bounds(t *testing.T) {
	t.Parallel()

	allFailed := []CheckResult{
		{Passed: false, Weight: 2},
		{Passed: false, Weight: 1},
	}
	assert.Equal(t, 10.0, CompositeScore(allFailed))

	allClean := []CheckResult{
		{Passed: true, Ratio: 0, Weight: 2},
		{Passed: true, Ratio: 0, Weight: 1},
	}
	assert.Equal(t, 0.0, CompositeScore(allClean))

	assert.Equal(t, 0.0, CompositeScore(nil))
}

func TestRecordOutcome_ConsumesDailyBudget(t *testing.T) {
	t.Parallel()

	ctrl, _ := newTestController(t, nil)

	ctrl.RecordOutcome(-0.6)
	ctrl.RecordOutcome(-0.6)

	assessment, err := ctrl.Evaluate(context.Background(), passingOpportunity())
	require.NoError(t, err)

	assert.False(t, assessment.Approved)
	assert.Equal(t, "Daily loss budget exhausted", assessment.RejectReason)
}
