package monitor

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sgriggs/mevflow/internal/testutil"
	"github.com/sgriggs/mevflow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectorFromData(t *testing.T) {
	t.Parallel()

	sel, ok := SelectorFromData([]byte{0x38, 0xed, 0x17, 0x39, 0xff, 0xff})
	require.True(t, ok)
	assert.Equal(t, swapSelector, sel)

	_, ok = SelectorFromData([]byte{0x38, 0xed})
	assert.False(t, ok)

	_, ok = SelectorFromData(nil)
	assert.False(t, ok)
}

func TestRegistry_WildcardAndSpecificBindings(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()

	liqSelector := Selector{0x00, 0xa7, 0x18, 0xa9}
	aave := common.HexToAddress("0x7d2768dE32b0b80b7a3454c06BdAc94A69DDc7A9")

	// Wildcard swap binding plus a contract-specific liquidation binding.
	registry.Register(common.Address{}, swapSelector, types.EventSwap)
	registry.Register(aave, liqSelector, types.EventLiquidation)
	assert.Equal(t, 2, registry.Len())

	kind, ok := registry.Lookup(common.HexToAddress("0x0123"), swapSelector)
	require.True(t, ok)
	assert.Equal(t, types.EventSwap, kind, "wildcard matches any destination")

	kind, ok = registry.Lookup(aave, liqSelector)
	require.True(t, ok)
	assert.Equal(t, types.EventLiquidation, kind)

	_, ok = registry.Lookup(common.HexToAddress("0x0456"), liqSelector)
	assert.False(t, ok, "contract-bound selectors do not match other destinations")
}

func TestRegistry_SpecificWinsOverWildcard(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.Register(common.Address{}, swapSelector, types.EventSwap)
	registry.Register(routerAddr, swapSelector, types.EventHighValue)

	kind, ok := registry.Lookup(routerAddr, swapSelector)
	require.True(t, ok)
	assert.Equal(t, types.EventHighValue, kind)
}

func TestClassifications(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(t, monitorTestConfig(), &testutil.MockBackend{})

	tests := []struct {
		name string
		tx   txSpec
		want []types.EventKind
	}{
		{
			name: "registered swap selector",
			tx:   txSpec{to: routerAddr, data: []byte{0x38, 0xed, 0x17, 0x39, 0xaa}},
			want: []types.EventKind{types.EventTransaction, types.EventSwap},
		},
		{
			name: "high value transfer",
			tx:   txSpec{to: common.HexToAddress("0x02"), valueETH: 25},
			want: []types.EventKind{types.EventTransaction, types.EventHighValue},
		},
		{
			name: "unregistered calldata",
			tx:   txSpec{to: common.HexToAddress("0x03"), data: []byte{0xde, 0xad, 0xbe, 0xef}},
			want: []types.EventKind{types.EventTransaction},
		},
		{
			name: "exactly at the high value threshold",
			tx:   txSpec{to: common.HexToAddress("0x04"), valueETH: 10},
			want: []types.EventKind{types.EventTransaction, types.EventHighValue},
		},
		{
			name: "high value swap carries every applicable kind",
			tx:   txSpec{to: routerAddr, valueETH: 12, data: []byte{0x38, 0xed, 0x17, 0x39, 0xaa}},
			want: []types.EventKind{types.EventTransaction, types.EventSwap, types.EventHighValue},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tx := testutil.CreateTestTransaction(tt.tx.to, testutil.Ether(tt.tx.valueETH), tt.tx.data)
			assert.ElementsMatch(t, tt.want, m.classifications(tx))
		})
	}
}

type txSpec struct {
	to       common.Address
	valueETH float64
	data     []byte
}

func TestInteresting(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(t, monitorTestConfig(), &testutil.MockBackend{})

	highValue := testutil.CreateTestTransaction(common.HexToAddress("0x02"), testutil.Ether(25), nil)
	assert.True(t, m.interesting(highValue))

	monitored := testutil.CreateTestTransaction(monitoredPerps, testutil.Ether(0), nil)
	assert.True(t, m.interesting(monitored))

	withCalldata := testutil.CreateTestTransaction(common.HexToAddress("0x03"), testutil.Ether(0), []byte{0x01})
	assert.True(t, m.interesting(withCalldata))

	plain := testutil.CreateTestTransaction(common.HexToAddress("0x04"), testutil.Ether(1), nil)
	assert.False(t, m.interesting(plain))
}
