package testutil

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sgriggs/mevflow/pkg/types"
)

// Test private keys from a throwaway mnemonic; never funded on any chain.
const (
	TestPrivateKey  = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	TestBurnerKeyA  = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	TestBurnerKeyB  = "5de4111afa1a4b94908f83103eb1f1706367c2e68ca870fc3fb9a804cdab365a"
	TestRelaySigner = "7c852118294e51e653712a81e05800f419141751be58f605c371e15141b007a6"
)

// CreateTestOpportunity builds an opportunity that passes the default risk
// checks: 1 ETH required, 0.05 ETH expected profit, modest risk inputs.
func CreateTestOpportunity(tag string, kind types.OpportunityKind) *types.Opportunity {
	opp := types.NewOpportunity(tag, kind, 30*time.Second)
	opp.ExpectedProfit = Ether(0.05)
	opp.RequiredAmount = Ether(1)
	opp.GasEstimate = 250_000
	opp.GasPrice = Gwei(40)
	opp.Confidence = 0.8
	opp.TokenRiskScore = 2.0
	opp.VenueRiskScore = 1.5
	opp.EstimatedSlippage = 0.01
	opp.EstimatedLiquidity = Ether(50)

	router := common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	switch kind {
	case types.KindArbitrage:
		opp.Arbitrage = &types.ArbitrageParams{
			Router:   router,
			Path:     []common.Address{common.HexToAddress("0x01"), common.HexToAddress("0x02")},
			CallData: []byte{0x38, 0xed, 0x17, 0x39},
			MinOut:   Ether(1.04),
		}
	case types.KindSandwich:
		opp.Sandwich = &types.SandwichParams{
			TargetTx:       common.HexToHash("0xbeef"),
			Router:         router,
			FrontCall:      []byte{0x01},
			BackCall:       []byte{0x02},
			TargetGasPrice: Gwei(35),
		}
	case types.KindLiquidation:
		opp.Liquidation = &types.LiquidationParams{
			Protocol: common.HexToAddress("0x7d2768dE32b0b80b7a3454c06BdAc94A69DDc7A9"),
			Borrower: common.HexToAddress("0x03"),
			CallData: []byte{0x00, 0xa7, 0x18, 0xa9},
		}
	case types.KindFlashLoan:
		opp.FlashLoan = &types.FlashLoanParams{
			Provider: common.HexToAddress("0x04"),
			Asset:    common.HexToAddress("0x05"),
			Amount:   Ether(10),
			Params:   []byte{0xaa},
		}
	}

	return opp
}

// CreateTestTransaction builds a signed-shape legacy transaction without a
// valid signature; good enough for classification and cache tests.
func CreateTestTransaction(to common.Address, value *big.Int, data []byte) *gethtypes.Transaction {
	return gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    1,
		GasPrice: Gwei(30),
		Gas:      21000,
		To:       &to,
		Value:    value,
		Data:     data,
	})
}

// CreateTestReceipt builds a receipt with the given status and gas figures.
func CreateTestReceipt(status uint64, gasUsed uint64, gasPrice *big.Int) *gethtypes.Receipt {
	return &gethtypes.Receipt{
		Status:            status,
		GasUsed:           gasUsed,
		EffectiveGasPrice: gasPrice,
	}
}

// Ether converts a float amount of ETH into wei.
func Ether(eth float64) *big.Int {
	wei, _ := new(big.Float).Mul(big.NewFloat(eth), big.NewFloat(1e18)).Int(nil)
	return wei
}

// Gwei converts a float amount of gwei into wei.
func Gwei(gwei float64) *big.Int {
	wei, _ := new(big.Float).Mul(big.NewFloat(gwei), big.NewFloat(1e9)).Int(nil)
	return wei
}
