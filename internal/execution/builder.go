package execution

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/sgriggs/mevflow/pkg/types"
	"github.com/sgriggs/mevflow/pkg/wallet"
)

const flashLoanABIJSON = `[
	{"type":"function","name":"executeFlashLoan","inputs":[
		{"name":"provider","type":"address"},
		{"name":"asset","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"params","type":"bytes"}]},
	{"type":"event","name":"FlashLoanCompleted","inputs":[
		{"name":"asset","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"profit","type":"uint256","indexed":false}]}
]`

var flashLoanABI = mustParseABI(flashLoanABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// buildPlan derives an execution plan from an approved opportunity: wallet
// selection, dispatch mode, per-kind transaction construction and contiguous
// nonce reservation.
func (e *Executor) buildPlan(ctx context.Context, opp *types.Opportunity, score float64) (*types.ExecutionPlan, *wallet.Key, error) {
	key := e.selectWallet(opp, score)

	gasPrice := opp.GasPrice
	if gasPrice == nil || gasPrice.Sign() == 0 {
		suggested, err := e.suggestGasPrice(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("suggest gas price: %w", err)
		}
		gasPrice = suggested
	}

	txs, mode, err := planTxs(opp, gasPrice)
	if err != nil {
		return nil, nil, err
	}

	start, err := e.nonces.Reserve(ctx, key.Address, uint64(len(txs)))
	if err != nil {
		return nil, nil, err
	}
	for i := range txs {
		txs[i].Nonce = start + uint64(i)
	}

	plan := &types.ExecutionPlan{
		OpportunityID: opp.ID,
		StrategyTag:   opp.StrategyTag,
		Kind:          opp.Kind,
		Wallet:        key.Address,
		NonceStart:    start,
		Txs:           txs,
		Mode:          mode,
	}

	if mode == types.DispatchBundle {
		tip, err := e.latestBlock(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve target block: %w", err)
		}
		plan.TargetBlock = tip + 1
	}

	return plan, key, nil
}

// selectWallet picks a burner for adversarial or high-risk flow and the main
// wallet otherwise.
func (e *Executor) selectWallet(opp *types.Opportunity, score float64) *wallet.Key {
	if opp.Kind == types.KindSandwich || score >= e.cfg.BurnerRiskThreshold {
		return e.wallets.NextBurner()
	}
	return e.wallets.Main()
}

// planTxs builds the unsigned transaction list for each opportunity kind.
func planTxs(opp *types.Opportunity, gasPrice *big.Int) ([]types.PlannedTx, types.DispatchMode, error) {
	switch opp.Kind {
	case types.KindArbitrage:
		if opp.Arbitrage == nil {
			return nil, "", fmt.Errorf("opportunity %s missing arbitrage params", opp.ID)
		}
		router := opp.Arbitrage.Router
		return []types.PlannedTx{{
			To:       &router,
			Data:     opp.Arbitrage.CallData,
			Value:    big.NewInt(0),
			GasLimit: opp.GasEstimate,
			GasPrice: gasPrice,
		}}, types.DispatchStandard, nil

	case types.KindLiquidation:
		if opp.Liquidation == nil {
			return nil, "", fmt.Errorf("opportunity %s missing liquidation params", opp.ID)
		}
		protocol := opp.Liquidation.Protocol
		return []types.PlannedTx{{
			To:       &protocol,
			Data:     opp.Liquidation.CallData,
			Value:    big.NewInt(0),
			GasLimit: opp.GasEstimate,
			GasPrice: gasPrice,
		}}, types.DispatchStandard, nil

	case types.KindSandwich:
		if opp.Sandwich == nil {
			return nil, "", fmt.Errorf("opportunity %s missing sandwich params", opp.ID)
		}
		front, back := sandwichGasPrices(opp.Sandwich.TargetGasPrice, gasPrice)
		router := opp.Sandwich.Router
		gasEach := opp.GasEstimate / 2
		return []types.PlannedTx{
			{
				To:       &router,
				Data:     opp.Sandwich.FrontCall,
				Value:    big.NewInt(0),
				GasLimit: gasEach,
				GasPrice: front,
			},
			{
				To:       &router,
				Data:     opp.Sandwich.BackCall,
				Value:    big.NewInt(0),
				GasLimit: gasEach,
				GasPrice: back,
			},
		}, types.DispatchBundle, nil

	case types.KindFlashLoan:
		if opp.FlashLoan == nil {
			return nil, "", fmt.Errorf("opportunity %s missing flash loan params", opp.ID)
		}
		data, err := flashLoanABI.Pack("executeFlashLoan",
			opp.FlashLoan.Provider,
			opp.FlashLoan.Asset,
			opp.FlashLoan.Amount,
			opp.FlashLoan.Params)
		if err != nil {
			return nil, "", fmt.Errorf("pack flash loan call: %w", err)
		}
		provider := opp.FlashLoan.Provider
		return []types.PlannedTx{{
			To:       &provider,
			Data:     data,
			Value:    big.NewInt(0),
			GasLimit: opp.GasEstimate,
			GasPrice: gasPrice,
		}}, types.DispatchFlashLoan, nil

	default:
		return nil, "", fmt.Errorf("unknown opportunity kind %q", opp.Kind)
	}
}

// sandwichGasPrices prices the frontrun 10% above the victim transaction and
// the backrun 10% below it, falling back to the suggested price when the
// victim's price is unknown.
func sandwichGasPrices(target, fallback *big.Int) (front, back *big.Int) {
	base := target
	if base == nil || base.Sign() == 0 {
		base = fallback
	}

	front = new(big.Int).Div(new(big.Int).Mul(base, big.NewInt(110)), big.NewInt(100))
	back = new(big.Int).Div(new(big.Int).Mul(base, big.NewInt(90)), big.NewInt(100))
	return front, back
}
