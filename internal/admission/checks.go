package admission

import (
	"math"
	"math/big"

	"github.com/sgriggs/mevflow/pkg/types"
)

// Check names and their human-readable failure reasons.
const (
	CheckDailyLoss      = "daily-loss-budget"
	CheckPositionSize   = "position-size"
	CheckGasPrice       = "gas-price"
	CheckProfitGasRatio = "profit-gas-ratio"
	CheckTokenRisk      = "token-risk"
	CheckVenueRisk      = "venue-risk"
	CheckSlippage       = "slippage"
	CheckLiquidity      = "liquidity"
)

var failureReasons = map[string]string{
	CheckDailyLoss:      "Daily loss budget exhausted",
	CheckPositionSize:   "Position size exceeds cap",
	CheckGasPrice:       "Gas price too high",
	CheckProfitGasRatio: "Profit too small relative to gas cost",
	CheckTokenRisk:      "Token risk score too high",
	CheckVenueRisk:      "Venue risk score too high",
	CheckSlippage:       "Estimated slippage exceeds cap",
	CheckLiquidity:      "Insufficient liquidity for trade size",
}

// CheckResult is the outcome of one independent risk check.
// Ratio is the risk utilization in [0, 1+): how close the check came to its
// threshold, with 1.0 meaning exactly at the limit.
type CheckResult struct {
	Name      string  `json:"name"`
	Passed    bool    `json:"passed"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Weight    float64 `json:"weight"`
	Ratio     float64 `json:"ratio"`
}

// runChecks evaluates the full ordered check set for one opportunity.
func (c *Controller) runChecks(opp *types.Opportunity) []CheckResult {
	requiredETH := weiToEther(opp.RequiredAmount)
	profitETH := weiToEther(opp.ExpectedProfit)
	gasPriceGwei := weiToGwei(opp.GasPrice)
	gasCostETH := gasCostEther(opp.GasEstimate, opp.GasPrice)
	liquidityETH := weiToEther(opp.EstimatedLiquidity)

	profitGasRatio := 0.0
	if gasCostETH > 0 {
		profitGasRatio = profitETH / gasCostETH
	}

	lossUsed := c.history.DailyLossUsed()

	return []CheckResult{
		upperBoundCheck(CheckDailyLoss, lossUsed, c.cfg.DailyLossBudgetETH, 2.0),
		upperBoundCheck(CheckPositionSize, requiredETH, c.cfg.MaxPositionETH, 1.5),
		upperBoundCheck(CheckGasPrice, gasPriceGwei, c.cfg.GasPriceCeilingGwei, 1.5),
		lowerBoundCheck(CheckProfitGasRatio, profitGasRatio, c.cfg.MinProfitGasRatio, 2.0),
		upperBoundCheck(CheckTokenRisk, opp.TokenRiskScore, c.cfg.MaxTokenRisk, 1.0),
		upperBoundCheck(CheckVenueRisk, opp.VenueRiskScore, c.cfg.MaxVenueRisk, 1.0),
		upperBoundCheck(CheckSlippage, opp.EstimatedSlippage, c.cfg.MaxSlippage, 1.0),
		lowerBoundCheck(CheckLiquidity, liquidityETH, c.cfg.LiquidityMultiple*requiredETH, 1.5),
	}
}

// upperBoundCheck passes while value stays below its threshold.
func upperBoundCheck(name string, value, threshold, weight float64) CheckResult {
	ratio := 1.0
	if threshold > 0 {
		ratio = value / threshold
	}

	return CheckResult{
		Name:      name,
		Passed:    value <= threshold,
		Value:     value,
		Threshold: threshold,
		Weight:    weight,
		Ratio:     ratio,
	}
}

// lowerBoundCheck passes while value stays at or above its threshold.
func lowerBoundCheck(name string, value, threshold, weight float64) CheckResult {
	ratio := 1.0
	if value > 0 {
		ratio = threshold / value
	} else if threshold == 0 {
		ratio = 0
	}

	return CheckResult{
		Name:      name,
		Passed:    value >= threshold,
		Value:     value,
		Threshold: threshold,
		Weight:    weight,
		Ratio:     ratio,
	}
}

// CompositeScore aggregates check results into a [0, 10] risk score.
// A failed check contributes penalty 10; a passed check contributes its
// utilization scaled to at most 5.
func CompositeScore(checks []CheckResult) float64 {
	var weightSum, penaltySum float64

	for _, check := range checks {
		penalty := 10.0
		if check.Passed {
			penalty = clamp(check.Ratio, 0, 1) * 5
		}

		penaltySum += check.Weight * penalty
		weightSum += check.Weight
	}

	if weightSum == 0 {
		return 0
	}

	return clamp(penaltySum/weightSum, 0, 10)
}

// FailureReason maps a failed check to its rejection reason.
func FailureReason(name string) string {
	if reason, ok := failureReasons[name]; ok {
		return reason
	}
	return "Risk check failed: " + name
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

var weiPerEther = new(big.Float).SetFloat64(1e18)

func weiToEther(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}

	eth, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerEther).Float64()
	return eth
}

func weiToGwei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}

	gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e9)).Float64()
	return gwei
}

func gasCostEther(gasLimit uint64, gasPrice *big.Int) float64 {
	if gasPrice == nil {
		return 0
	}

	cost := new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), gasPrice)
	return weiToEther(cost)
}
