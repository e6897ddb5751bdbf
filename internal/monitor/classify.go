package monitor

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sgriggs/mevflow/pkg/types"
)

// Selector is the leading 4 bytes of a contract call's calldata.
type Selector [4]byte

// SelectorFromData extracts the call selector, ok=false on short calldata.
func SelectorFromData(data []byte) (Selector, bool) {
	if len(data) < 4 {
		return Selector{}, false
	}

	var sel Selector
	copy(sel[:], data[:4])
	return sel, true
}

type decoderKey struct {
	contract common.Address
	selector Selector
}

// Registry maps (contract, selector) pairs to event kinds. A zero contract
// address matches any destination with that selector.
type Registry struct {
	mu       sync.RWMutex
	decoders map[decoderKey]types.EventKind
}

// NewRegistry creates an empty decoder registry.
func NewRegistry() *Registry {
	return &Registry{decoders: make(map[decoderKey]types.EventKind)}
}

// Register binds a contract address and selector to an event kind.
func (r *Registry) Register(contract common.Address, selector Selector, kind types.EventKind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.decoders[decoderKey{contract: contract, selector: selector}] = kind
}

// Lookup resolves a destination and selector to a registered kind.
// Contract-specific bindings win over wildcard selector bindings.
func (r *Registry) Lookup(contract common.Address, selector Selector) (types.EventKind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if kind, ok := r.decoders[decoderKey{contract: contract, selector: selector}]; ok {
		return kind, true
	}

	kind, ok := r.decoders[decoderKey{selector: selector}]
	return kind, ok
}

// Len returns the number of registered decoders.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.decoders)
}

// classifications resolves every event kind a transaction maps to. All
// interesting transactions carry the generic transaction kind; a registry
// match and the native-value threshold each add their kind independently,
// so a high-value swap reaches swap, highValue and transaction subscribers.
func (m *Monitor) classifications(tx *gethtypes.Transaction) []types.EventKind {
	kinds := []types.EventKind{types.EventTransaction}

	registered := types.EventKind("")
	if to := tx.To(); to != nil {
		if sel, ok := SelectorFromData(tx.Data()); ok {
			if kind, found := m.registry.Lookup(*to, sel); found && kind != types.EventTransaction {
				kinds = append(kinds, kind)
				registered = kind
			}
		}
	}

	if registered != types.EventHighValue && m.highValue(tx.Value()) {
		kinds = append(kinds, types.EventHighValue)
	}

	return kinds
}

// interesting reports whether a pending transaction is worth fetching and
// publishing at all: high native value, a monitored destination, or any
// contract calldata.
func (m *Monitor) interesting(tx *gethtypes.Transaction) bool {
	if m.highValue(tx.Value()) {
		return true
	}

	if to := tx.To(); to != nil && m.monitored[*to] {
		return true
	}

	return len(tx.Data()) > 0
}

func (m *Monitor) highValue(value *big.Int) bool {
	if value == nil {
		return false
	}

	return value.Cmp(m.highValueWei) >= 0
}

func etherToWei(eth float64) *big.Int {
	wei, _ := new(big.Float).Mul(big.NewFloat(eth), big.NewFloat(1e18)).Int(nil)
	return wei
}
