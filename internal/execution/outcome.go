package execution

import (
	"math/big"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sgriggs/mevflow/internal/strategy"
	"github.com/sgriggs/mevflow/pkg/types"
	"go.uber.org/zap"
)

// reconcileProfit determines realized profit for a confirmed execution.
// Preference order: the strategy's own calculator, the flash-loan completion
// event, then expected profit minus actual gas spend.
func (e *Executor) reconcileProfit(receipt *gethtypes.Receipt, opp *types.Opportunity) *big.Int {
	if e.strategies != nil {
		if strat, ok := e.strategies.Lookup(opp.StrategyTag); ok {
			if calc, ok := strat.(strategy.ProfitCalculator); ok && receipt != nil {
				profit, err := calc.CalculateProfit(receipt, opp)
				if err == nil && profit != nil {
					return profit
				}
				e.logger.Debug("strategy-profit-calculation-failed",
					zap.String("strategy", opp.StrategyTag),
					zap.Error(err))
			}
		}
	}

	if opp.Kind == types.KindFlashLoan && receipt != nil {
		if profit, ok := decodeFlashLoanProfit(receipt); ok {
			return profit
		}
	}

	return fallbackProfit(receipt, opp)
}

// fallbackProfit is expected profit less the actual gas spend from the
// receipt; with no receipt available it degrades to the expectation alone.
func fallbackProfit(receipt *gethtypes.Receipt, opp *types.Opportunity) *big.Int {
	expected := valueOrZero(opp.ExpectedProfit)
	if receipt == nil || receipt.EffectiveGasPrice == nil {
		return new(big.Int).Set(expected)
	}

	gasSpend := new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), receipt.EffectiveGasPrice)
	return new(big.Int).Sub(expected, gasSpend)
}

// decodeFlashLoanProfit extracts the profit field from the flash-loan
// contract's completion event, if present in the receipt.
func decodeFlashLoanProfit(receipt *gethtypes.Receipt) (*big.Int, bool) {
	event := flashLoanABI.Events["FlashLoanCompleted"]

	for _, log := range receipt.Logs {
		if len(log.Topics) == 0 || log.Topics[0] != event.ID {
			continue
		}

		values, err := event.Inputs.NonIndexed().Unpack(log.Data)
		if err != nil || len(values) < 2 {
			continue
		}

		profit, ok := values[1].(*big.Int)
		if !ok {
			continue
		}

		return profit, true
	}

	return nil, false
}

// completionEventPresent reports whether the flash-loan completion event was
// emitted at all, regardless of whether profit decoded cleanly.
func completionEventPresent(receipt *gethtypes.Receipt) bool {
	event := flashLoanABI.Events["FlashLoanCompleted"]

	for _, log := range receipt.Logs {
		if len(log.Topics) > 0 && log.Topics[0] == event.ID {
			return true
		}
	}

	return false
}
