package execution

import (
	"math/big"
	"testing"

	"github.com/sgriggs/mevflow/internal/testutil"
	"github.com/sgriggs/mevflow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanTxs_Arbitrage(t *testing.T) {
	t.Parallel()

	opp := testutil.CreateTestOpportunity("arb-v2", types.KindArbitrage)
	gasPrice := testutil.Gwei(40)

	txs, mode, err := planTxs(opp, gasPrice)
	require.NoError(t, err)

	assert.Equal(t, types.DispatchStandard, mode)
	require.Len(t, txs, 1)
	assert.Equal(t, opp.Arbitrage.Router, *txs[0].To)
	assert.Equal(t, opp.Arbitrage.CallData, txs[0].Data)
	assert.Equal(t, opp.GasEstimate, txs[0].GasLimit)
	assert.Zero(t, gasPrice.Cmp(txs[0].GasPrice))
}

func TestPlanTxs_Liquidation(t *testing.T) {
	t.Parallel()

	opp := testutil.CreateTestOpportunity("liq-aave", types.KindLiquidation)

	txs, mode, err := planTxs(opp, testutil.Gwei(40))
	require.NoError(t, err)

	assert.Equal(t, types.DispatchStandard, mode)
	require.Len(t, txs, 1)
	assert.Equal(t, opp.Liquidation.Protocol, *txs[0].To)
	assert.Equal(t, opp.Liquidation.CallData, txs[0].Data)
}

func TestPlanTxs_SandwichBundle(t *testing.T) {
	t.Parallel()

	opp := testutil.CreateTestOpportunity("sandwich-v2", types.KindSandwich)
	opp.Sandwich.TargetGasPrice = big.NewInt(100)
	opp.GasEstimate = 300_000

	txs, mode, err := planTxs(opp, testutil.Gwei(40))
	require.NoError(t, err)

	assert.Equal(t, types.DispatchBundle, mode)
	require.Len(t, txs, 2)

	// Frontrun outbids the victim by 10%, backrun undercuts by 10%.
	assert.Equal(t, int64(110), txs[0].GasPrice.Int64())
	assert.Equal(t, int64(90), txs[1].GasPrice.Int64())

	assert.Equal(t, opp.Sandwich.FrontCall, txs[0].Data)
	assert.Equal(t, opp.Sandwich.BackCall, txs[1].Data)
	assert.Equal(t, uint64(150_000), txs[0].GasLimit)
	assert.Equal(t, uint64(150_000), txs[1].GasLimit)
}

func TestPlanTxs_FlashLoanCallData(t *testing.T) {
	t.Parallel()

	opp := testutil.CreateTestOpportunity("flash-aave", types.KindFlashLoan)

	txs, mode, err := planTxs(opp, testutil.Gwei(40))
	require.NoError(t, err)

	assert.Equal(t, types.DispatchFlashLoan, mode)
	require.Len(t, txs, 1)
	assert.Equal(t, opp.FlashLoan.Provider, *txs[0].To)

	selector := flashLoanABI.Methods["executeFlashLoan"].ID
	require.GreaterOrEqual(t, len(txs[0].Data), 4)
	assert.Equal(t, selector, txs[0].Data[:4])
}

func TestPlanTxs_MissingParams(t *testing.T) {
	t.Parallel()

	for _, kind := range []types.OpportunityKind{
		types.KindArbitrage,
		types.KindSandwich,
		types.KindLiquidation,
		types.KindFlashLoan,
	} {
		opp := types.NewOpportunity("bare", kind, 0)

		_, _, err := planTxs(opp, testutil.Gwei(40))
		assert.ErrorContains(t, err, "missing", "kind %s", kind)
	}
}

func TestSandwichGasPrices_FallbackWhenVictimUnknown(t *testing.T) {
	t.Parallel()

	front, back := sandwichGasPrices(nil, big.NewInt(200))
	assert.Equal(t, int64(220), front.Int64())
	assert.Equal(t, int64(180), back.Int64())

	front, back = sandwichGasPrices(big.NewInt(0), big.NewInt(200))
	assert.Equal(t, int64(220), front.Int64())
	assert.Equal(t, int64(180), back.Int64())
}
