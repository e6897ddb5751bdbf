package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sgriggs/mevflow/pkg/providerpool"
	"go.uber.org/zap"
)

// NonceManager hands out contiguous nonce ranges per wallet from a local
// monotonic counter. The counter is seeded from the chain's pending nonce on
// first use and re-seeded after Invalidate when staleness is suspected.
type NonceManager struct {
	pool   *providerpool.Pool
	logger *zap.Logger

	mu   sync.Mutex
	next map[common.Address]uint64
}

// NewNonceManager creates a nonce manager.
func NewNonceManager(pool *providerpool.Pool, logger *zap.Logger) (*NonceManager, error) {
	if pool == nil {
		return nil, errors.New("pool cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &NonceManager{
		pool:   pool,
		logger: logger,
		next:   make(map[common.Address]uint64),
	}, nil
}

// Reserve returns the first nonce of a contiguous range of count nonces
// reserved exclusively for the caller. The chain is only consulted when the
// wallet has no local counter yet.
func (n *NonceManager) Reserve(ctx context.Context, addr common.Address, count uint64) (uint64, error) {
	if count == 0 {
		return 0, errors.New("count must be positive")
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	start, seeded := n.next[addr]
	if !seeded {
		pending, err := n.pendingNonce(ctx, addr)
		if err != nil {
			return 0, fmt.Errorf("seed nonce for %s: %w", addr.Hex(), err)
		}
		start = pending

		n.logger.Debug("nonce-counter-seeded",
			zap.String("wallet", addr.Hex()),
			zap.Uint64("nonce", pending))
	}

	n.next[addr] = start + count
	NoncesReservedTotal.Add(float64(count))

	return start, nil
}

// Invalidate drops the wallet's local counter so the next Reserve re-queries
// the chain. Called when a dispatch error suggests the counter drifted.
func (n *NonceManager) Invalidate(addr common.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.next, addr)
	NonceInvalidationsTotal.Inc()

	n.logger.Info("nonce-counter-invalidated", zap.String("wallet", addr.Hex()))
}

func (n *NonceManager) pendingNonce(ctx context.Context, addr common.Address) (uint64, error) {
	var pending uint64
	err := n.pool.WithFallback(ctx, func(ctx context.Context, backend providerpool.Backend) error {
		var err error
		pending, err = backend.PendingNonceAt(ctx, addr)
		return err
	})
	return pending, err
}
