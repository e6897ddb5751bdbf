package admission

import (
	"testing"

	"github.com/sgriggs/mevflow/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestPositionSize_Bounds(t *testing.T) {
	t.Parallel()

	ctrl, _ := newTestController(t, nil)
	opp := passingOpportunity()

	// A near-empty wallet floors at the minimum position.
	size := ctrl.positionSize(opp, 0, 0.02)
	assert.Equal(t, 0.01, size)

	// A deep wallet caps at MaxPositionETH.
	opp.Confidence = 1.0
	size = ctrl.positionSize(opp, 0, 1000)
	assert.Equal(t, 10.0, size)

	// A shallower wallet caps at 90% of balance instead.
	size = ctrl.positionSize(opp, 0, 5)
	assert.LessOrEqual(t, size, 0.9*5)
}

func TestPositionSize_RiskDecay(t *testing.T) {
	t.Parallel()

	ctrl, _ := newTestController(t, nil)
	opp := passingOpportunity()

	low := ctrl.positionSize(opp, 1.0, 50)
	high := ctrl.positionSize(opp, 6.0, 50)

	assert.Greater(t, low, high, "higher composite score must shrink the position")
}

func TestPositionSize_StrategyMultipliers(t *testing.T) {
	t.Parallel()

	ctrl, _ := newTestController(t, nil)

	sizes := make(map[types.OpportunityKind]float64)
	for kind := range strategyMultipliers {
		opp := passingOpportunity()
		opp.Kind = kind
		sizes[kind] = ctrl.positionSize(opp, 0, 50)
	}

	arb := sizes[types.KindArbitrage]
	assert.InDelta(t, 1.2*arb, sizes[types.KindFlashLoan], 1e-9)
	assert.InDelta(t, 0.8*arb, sizes[types.KindLiquidation], 1e-9)
	assert.InDelta(t, 0.5*arb, sizes[types.KindSandwich], 1e-9)
}

func TestPositionSize_KellyAfterMinTrades(t *testing.T) {
	t.Parallel()

	ctrl, _ := newTestController(t, nil)
	opp := passingOpportunity()

	before := ctrl.positionSize(opp, 0, 50)

	// 12 wins of 0.1 and 8 losses of 0.05: win rate 0.6, b = 2,
	// f = (0.6*2 - 0.4) / 2 = 0.4, fractional Kelly 0.25*0.4 = 0.1.
	for i := 0; i < 12; i++ {
		ctrl.RecordOutcome(0.1)
	}
	for i := 0; i < 8; i++ {
		ctrl.RecordOutcome(-0.05)
	}

	after := ctrl.positionSize(opp, 0, 50)
	assert.InDelta(t, 0.1*before, after, 1e-9)
}

func TestPositionSize_KellyCollapsesOnNoEdge(t *testing.T) {
	t.Parallel()

	ctrl, _ := newTestController(t, nil)

	for i := 0; i < 20; i++ {
		ctrl.RecordOutcome(-0.04)
	}

	size := ctrl.positionSize(passingOpportunity(), 0, 50)
	assert.Equal(t, 0.01, size, "zero Kelly edge collapses to the minimum position")
}

func TestKellyCriterion_FlooredAtZero(t *testing.T) {
	t.Parallel()

	ctrl, _ := newTestController(t, nil)

	// Losing record: winRate 0.25, b = 1, f = (0.25 - 0.75) / 1 < 0.
	ctrl.RecordOutcome(0.05)
	for i := 0; i < 3; i++ {
		ctrl.RecordOutcome(-0.05)
	}

	assert.Equal(t, 0.0, ctrl.kellyCriterion())
}
