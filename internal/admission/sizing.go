package admission

import (
	"math"

	"github.com/sgriggs/mevflow/pkg/types"
)

const baseBalanceFraction = 0.05

var strategyMultipliers = map[types.OpportunityKind]float64{
	types.KindArbitrage:   1.0,
	types.KindFlashLoan:   1.2,
	types.KindLiquidation: 0.8,
	types.KindSandwich:    0.5,
}

// positionSize computes the approved position size in ETH for an opportunity
// that passed every check. The pipeline runs in a fixed order: 5% of balance,
// confidence scaling, profit-ratio adjustment, risk decay, strategy
// multiplier, fractional Kelly, then bounds.
func (c *Controller) positionSize(opp *types.Opportunity, score, balanceETH float64) float64 {
	size := balanceETH * baseBalanceFraction

	// Confidence in [0,1] maps to a x0.5..x2.0 multiplier.
	size *= 0.5 + 1.5*clamp(opp.Confidence, 0, 1)

	// Profit ratio nudges the size by at most 20% either way.
	profitRatio := 0.0
	if required := weiToEther(opp.RequiredAmount); required > 0 {
		profitRatio = weiToEther(opp.ExpectedProfit) / required
	}
	size *= clamp(1+profitRatio, 0.8, 1.2)

	// Composite risk decays the size exponentially.
	size *= math.Exp(-score / 5)

	if mult, ok := strategyMultipliers[opp.Kind]; ok {
		size *= mult
	}

	// Fractional Kelly once enough trades have accumulated. A non-positive
	// edge collapses the size to the minimum via the bounds below.
	if c.history.TradeCount() >= c.cfg.KellyMinTrades {
		size *= c.cfg.KellyFraction * c.kellyCriterion()
	}

	upper := math.Min(c.cfg.MaxPositionETH, 0.9*balanceETH)
	size = math.Max(size, c.cfg.MinPositionETH)
	size = math.Min(size, upper)

	return size
}

// kellyCriterion computes f = (p*b - q) / b from observed win rate and
// average win/loss, floored at zero.
func (c *Controller) kellyCriterion() float64 {
	winRate, avgWin, avgLoss := c.history.Stats()
	if avgLoss <= 0 || avgWin <= 0 {
		return 0
	}

	b := avgWin / avgLoss
	f := (winRate*b - (1 - winRate)) / b

	return math.Max(f, 0)
}
