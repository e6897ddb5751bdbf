package execution

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sgriggs/mevflow/pkg/providerpool"
	"github.com/sgriggs/mevflow/pkg/types"
	"go.uber.org/zap"
)

// SimResult is the verdict of pre-dispatch simulation.
type SimResult struct {
	GasUsed   uint64
	GasCost   *big.Int // wei across the whole plan
	NetProfit *big.Int // expected profit minus simulated gas cost, wei
}

// Simulator gates plans before any transaction is signed.
type Simulator interface {
	Simulate(ctx context.Context, plan *types.ExecutionPlan, opp *types.Opportunity) (*SimResult, error)
}

// CallSimulator simulates each planned transaction with eth_call against the
// latest state and estimates its gas. A revert anywhere fails the plan.
type CallSimulator struct {
	pool   *providerpool.Pool
	logger *zap.Logger
}

// NewCallSimulator creates an eth_call based simulator.
func NewCallSimulator(pool *providerpool.Pool, logger *zap.Logger) *CallSimulator {
	return &CallSimulator{pool: pool, logger: logger}
}

// Simulate runs every transaction in the plan and aggregates gas. The net
// profit is the opportunity's expected profit less the simulated gas cost;
// the executor compares it against the configured floor.
func (s *CallSimulator) Simulate(ctx context.Context, plan *types.ExecutionPlan, opp *types.Opportunity) (*SimResult, error) {
	totalGas := uint64(0)
	totalCost := new(big.Int)

	for i, planned := range plan.Txs {
		msg := callMsg(plan.Wallet, planned)

		err := s.pool.WithFallback(ctx, func(ctx context.Context, backend providerpool.Backend) error {
			_, callErr := backend.CallContract(ctx, msg, nil)
			return callErr
		})
		if err != nil {
			return nil, types.NewExecutionError(types.FailureSimulation,
				fmt.Errorf("tx %d reverted in simulation: %w", i, err))
		}

		gas := planned.GasLimit
		err = s.pool.WithFallback(ctx, func(ctx context.Context, backend providerpool.Backend) error {
			estimated, estErr := backend.EstimateGas(ctx, msg)
			if estErr != nil {
				return estErr
			}
			gas = estimated
			return nil
		})
		if err != nil {
			// Estimation failure after a clean call is treated as a revert
			// signal too; estimates run the same execution path.
			return nil, types.NewExecutionError(types.FailureSimulation,
				fmt.Errorf("tx %d gas estimation failed: %w", i, err))
		}

		totalGas += gas
		totalCost.Add(totalCost, new(big.Int).Mul(new(big.Int).SetUint64(gas), planned.GasPrice))
	}

	net := new(big.Int).Sub(valueOrZero(opp.ExpectedProfit), totalCost)

	s.logger.Debug("plan-simulated",
		zap.String("opportunity_id", plan.OpportunityID),
		zap.Uint64("gas_used", totalGas),
		zap.String("net_profit_wei", net.String()))

	return &SimResult{GasUsed: totalGas, GasCost: totalCost, NetProfit: net}, nil
}

func callMsg(from common.Address, planned types.PlannedTx) ethereum.CallMsg {
	return ethereum.CallMsg{
		From:     from,
		To:       planned.To,
		Gas:      planned.GasLimit,
		GasPrice: planned.GasPrice,
		Value:    planned.Value,
		Data:     planned.Data,
	}
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
