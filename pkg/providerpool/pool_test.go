package providerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sgriggs/mevflow/internal/testutil"
	"github.com/sgriggs/mevflow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTwoProviderPool(t *testing.T, primary, secondary Backend) *Pool {
	t.Helper()

	pool, err := New(&PoolConfig{
		HealthInterval: time.Minute,
		MaxBlockLag:    5,
		Logger:         zaptest.NewLogger(t),
	}, []*Provider{
		NewProvider("primary", 10, primary),
		NewProvider("secondary", 1, secondary),
	})
	require.NoError(t, err)

	return pool
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil)
	assert.ErrorContains(t, err, "config cannot be nil")

	_, err = New(&PoolConfig{Logger: zaptest.NewLogger(t)}, nil)
	assert.ErrorContains(t, err, "at least one provider")
}

func TestBest_PrefersHigherPriority(t *testing.T) {
	t.Parallel()

	pool := newTwoProviderPool(t, &testutil.MockBackend{}, &testutil.MockBackend{})

	best, err := pool.Best()
	require.NoError(t, err)
	assert.Equal(t, "primary", best.Name)
}

func TestWithFallback_RecoversFromPrimaryFailure(t *testing.T) {
	t.Parallel()

	primary := &testutil.MockBackend{
		BlockNumberFn: func(context.Context) (uint64, error) {
			return 0, errors.New("connection refused")
		},
	}
	secondary := &testutil.MockBackend{
		BlockNumberFn: func(context.Context) (uint64, error) {
			return 123, nil
		},
	}

	pool := newTwoProviderPool(t, primary, secondary)

	var height uint64
	err := pool.WithFallback(context.Background(), func(ctx context.Context, backend Backend) error {
		var opErr error
		height, opErr = backend.BlockNumber(ctx)
		return opErr
	})

	require.NoError(t, err)
	assert.Equal(t, uint64(123), height)
}

func TestWithFallback_AllProvidersFailed(t *testing.T) {
	t.Parallel()

	failing := func(context.Context) (uint64, error) {
		return 0, errors.New("connection refused")
	}
	pool := newTwoProviderPool(t,
		&testutil.MockBackend{BlockNumberFn: failing},
		&testutil.MockBackend{BlockNumberFn: failing})

	err := pool.WithFallback(context.Background(), func(ctx context.Context, backend Backend) error {
		_, opErr := backend.BlockNumber(ctx)
		return opErr
	})

	assert.ErrorIs(t, err, types.ErrAllProvidersFailed)
}

func TestWithFallback_ErrorRateDemotesProvider(t *testing.T) {
	t.Parallel()

	var primaryCalls atomic.Int32
	primary := &testutil.MockBackend{
		BlockNumberFn: func(context.Context) (uint64, error) {
			primaryCalls.Add(1)
			return 0, errors.New("rate limited")
		},
	}
	secondary := &testutil.MockBackend{}

	pool := newTwoProviderPool(t, primary, secondary)

	op := func(ctx context.Context, backend Backend) error {
		_, opErr := backend.BlockNumber(ctx)
		return opErr
	}

	// Enough failed attempts to push the primary's error rate over 50%
	// across the minimum sample size.
	for i := 0; i < 12; i++ {
		require.NoError(t, pool.WithFallback(context.Background(), op))
	}

	best, err := pool.Best()
	require.NoError(t, err)
	assert.Equal(t, "secondary", best.Name, "an unhealthy primary drops out of ranking")

	// Subsequent calls skip the demoted primary entirely.
	before := primaryCalls.Load()
	require.NoError(t, pool.WithFallback(context.Background(), op))
	assert.Equal(t, before, primaryCalls.Load())
}

func TestWithFallback_AllUnhealthyStillAttempts(t *testing.T) {
	t.Parallel()

	pool := newTwoProviderPool(t, &testutil.MockBackend{}, &testutil.MockBackend{})
	for _, prov := range pool.providers {
		prov.health.setUnhealthy(true)
	}

	err := pool.WithFallback(context.Background(), func(ctx context.Context, backend Backend) error {
		_, opErr := backend.BlockNumber(ctx)
		return opErr
	})
	assert.NoError(t, err, "a fully unhealthy pool still tries every provider")
}

func TestBroadcast_ReturnsOnFirstAcceptance(t *testing.T) {
	t.Parallel()

	var accepted atomic.Int32
	acceptAll := func(context.Context, *gethtypes.Transaction) error {
		accepted.Add(1)
		return nil
	}

	pool := newTwoProviderPool(t,
		&testutil.MockBackend{SendTransactionFn: acceptAll},
		&testutil.MockBackend{SendTransactionFn: acceptAll})

	tx := testutil.CreateTestTransaction(common.Address{}, nil, nil)

	hash, err := pool.Broadcast(context.Background(), tx, 2)
	require.NoError(t, err)
	assert.Equal(t, tx.Hash(), hash)
}

func TestBroadcast_AllRejected(t *testing.T) {
	t.Parallel()

	rejectAll := func(context.Context, *gethtypes.Transaction) error {
		return errors.New("nonce too low")
	}

	pool := newTwoProviderPool(t,
		&testutil.MockBackend{SendTransactionFn: rejectAll},
		&testutil.MockBackend{SendTransactionFn: rejectAll})

	tx := testutil.CreateTestTransaction(common.Address{}, nil, nil)

	_, err := pool.Broadcast(context.Background(), tx, 2)
	assert.ErrorIs(t, err, types.ErrAllProvidersFailed)
}

func TestSnapshot_ReflectsRecordedCalls(t *testing.T) {
	t.Parallel()

	pool := newTwoProviderPool(t, &testutil.MockBackend{}, &testutil.MockBackend{})

	err := pool.WithFallback(context.Background(), func(ctx context.Context, backend Backend) error {
		_, opErr := backend.BlockNumber(ctx)
		return opErr
	})
	require.NoError(t, err)

	snaps := pool.Snapshot()
	require.Len(t, snaps, 2)
	assert.Equal(t, uint64(1), snaps[0].Requests)
	assert.True(t, snaps[0].Healthy)
	assert.Zero(t, snaps[1].Requests)
}
