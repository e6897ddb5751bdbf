package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sgriggs/mevflow/internal/circuitbreaker"
	"github.com/sgriggs/mevflow/pkg/config"
	"github.com/sgriggs/mevflow/pkg/types"
	"go.uber.org/zap"
)

// Reasons for rejections that precede the check set.
const (
	ReasonExpired     = "expired"
	ReasonCircuitOpen = "circuit-open"
	ReasonComposite   = "Composite risk score above ceiling"
)

// BalanceSource provides the available trading balance in ETH.
type BalanceSource interface {
	AvailableBalance(ctx context.Context) (float64, error)
}

// Assessment is the full admission verdict for one opportunity.
type Assessment struct {
	OpportunityID  string        `json:"opportunity_id"`
	Approved       bool          `json:"approved"`
	RejectReason   string        `json:"reject_reason,omitempty"`
	CompositeScore float64       `json:"composite_score"`
	Checks         []CheckResult `json:"checks,omitempty"`
	PositionETH    float64       `json:"position_eth,omitempty"`
	EvaluatedAt    time.Time     `json:"evaluated_at"`
}

// Controller gates opportunities through expiry, breaker state, the weighted
// check set and the composite score ceiling, then sizes approved positions.
type Controller struct {
	cfg     *config.Config
	breaker *circuitbreaker.Breaker
	balance BalanceSource
	history *History
	logger  *zap.Logger
	now     func() time.Time
}

// ControllerConfig holds admission controller dependencies.
type ControllerConfig struct {
	Config  *config.Config
	Breaker *circuitbreaker.Breaker
	Balance BalanceSource
	Logger  *zap.Logger
}

// NewController creates an admission controller.
func NewController(cfg *ControllerConfig) (*Controller, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Config == nil {
		return nil, errors.New("pipeline config cannot be nil")
	}
	if cfg.Breaker == nil {
		return nil, errors.New("breaker cannot be nil")
	}
	if cfg.Balance == nil {
		return nil, errors.New("balance source cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &Controller{
		cfg:     cfg.Config,
		breaker: cfg.Breaker,
		balance: cfg.Balance,
		history: NewHistory(),
		logger:  cfg.Logger,
		now:     time.Now,
	}, nil
}

// Evaluate runs the full admission pipeline for one opportunity. It always
// returns an assessment; the error return is reserved for infrastructure
// failures such as an unreachable balance source.
func (c *Controller) Evaluate(ctx context.Context, opp *types.Opportunity) (*Assessment, error) {
	now := c.now()
	assessment := &Assessment{OpportunityID: opp.ID, EvaluatedAt: now}

	if opp.Expired(now) {
		return c.reject(assessment, opp, ReasonExpired), nil
	}

	if err := c.breaker.Allow(); err != nil {
		return c.reject(assessment, opp, ReasonCircuitOpen), nil
	}

	if err := c.breaker.AllowStrategy(opp.StrategyTag); err != nil {
		return c.reject(assessment, opp, err.Error()), nil
	}

	checks := c.runChecks(opp)
	assessment.Checks = checks
	assessment.CompositeScore = CompositeScore(checks)

	for _, check := range checks {
		if !check.Passed {
			CheckFailuresTotal.WithLabelValues(check.Name).Inc()
			return c.reject(assessment, opp, FailureReason(check.Name)), nil
		}
	}

	if assessment.CompositeScore >= c.cfg.MaxCompositeScore {
		return c.reject(assessment, opp,
			fmt.Sprintf("%s: %.2f >= %.2f", ReasonComposite, assessment.CompositeScore, c.cfg.MaxCompositeScore)), nil
	}

	balanceETH, err := c.balance.AvailableBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch available balance: %w", err)
	}

	assessment.Approved = true
	assessment.PositionETH = c.positionSize(opp, assessment.CompositeScore, balanceETH)

	DecisionsTotal.WithLabelValues("approved").Inc()
	CompositeScoreObserved.Observe(assessment.CompositeScore)

	c.logger.Info("opportunity-approved",
		zap.String("opportunity_id", opp.ID),
		zap.String("strategy", opp.StrategyTag),
		zap.Float64("composite_score", assessment.CompositeScore),
		zap.Float64("position_eth", assessment.PositionETH))

	return assessment, nil
}

// RecordOutcome feeds a realized trade result back into the sizing history.
func (c *Controller) RecordOutcome(profitETH float64) {
	c.history.RecordOutcome(profitETH)
}

// DailySnapshot exposes today's counters for the status endpoint.
func (c *Controller) DailySnapshot() (lossUsed float64, trades, wins int) {
	return c.history.DailySnapshot()
}

func (c *Controller) reject(a *Assessment, opp *types.Opportunity, reason string) *Assessment {
	a.Approved = false
	a.RejectReason = reason

	DecisionsTotal.WithLabelValues("rejected").Inc()

	c.logger.Debug("opportunity-rejected",
		zap.String("opportunity_id", opp.ID),
		zap.String("strategy", opp.StrategyTag),
		zap.String("reason", reason),
		zap.Float64("composite_score", a.CompositeScore))

	return a
}
