package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/sgriggs/mevflow/internal/monitor"
	"github.com/sgriggs/mevflow/internal/testutil"
	"github.com/sgriggs/mevflow/pkg/chainws"
	"github.com/sgriggs/mevflow/pkg/config"
	"github.com/sgriggs/mevflow/pkg/providerpool"
	"github.com/sgriggs/mevflow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestMonitor(t *testing.T) *monitor.Monitor {
	t.Helper()

	logger := zaptest.NewLogger(t)

	pool, err := providerpool.New(&providerpool.PoolConfig{Logger: logger},
		[]*providerpool.Provider{providerpool.NewProvider("mock", 1, &testutil.MockBackend{})})
	require.NoError(t, err)

	m, err := monitor.New(&monitor.Config{
		Config: &config.Config{
			HighValueThresholdETH: 10.0,
			PendingTxTTL:          time.Minute,
			PendingSweepInterval:  time.Second,
			MaxPendingCacheSize:   1000,
			DedupSetCeiling:       100,
			ReorgCheckInterval:    time.Second,
		},
		Pool:   pool,
		WS:     chainws.New(chainws.Config{URL: "ws://127.0.0.1:0", Logger: logger}),
		Logger: logger,
	})
	require.NoError(t, err)
	t.Cleanup(m.Stop)

	return m
}

func newTestRunner(t *testing.T, size int, strategies ...Strategy) *Runner {
	t.Helper()

	runner, err := NewRunner(&RunnerConfig{
		Monitor:         newTestMonitor(t),
		Strategies:      strategies,
		OpportunitySize: size,
		Logger:          zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	require.NoError(t, runner.Start(context.Background()))
	t.Cleanup(runner.Stop)

	return runner
}

func TestNewRunner_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewRunner(nil)
	assert.ErrorContains(t, err, "config cannot be nil")

	_, err = NewRunner(&RunnerConfig{Logger: zaptest.NewLogger(t)})
	assert.ErrorContains(t, err, "monitor cannot be nil")
}

func TestNewRunner_RejectsDuplicateNames(t *testing.T) {
	t.Parallel()

	_, err := NewRunner(&RunnerConfig{
		Monitor: newTestMonitor(t),
		Strategies: []Strategy{
			&testutil.StubStrategy{Tag: "arb-v2"},
			&testutil.StubStrategy{Tag: "arb-v2"},
		},
		Logger: zaptest.NewLogger(t),
	})
	assert.ErrorContains(t, err, "duplicate strategy name")
}

func TestRunner_Lookup(t *testing.T) {
	t.Parallel()

	arb := &testutil.StubStrategy{Tag: "arb-v2", EventKinds: []types.EventKind{types.EventSwap}}
	runner := newTestRunner(t, 8, arb)

	got, ok := runner.Lookup("arb-v2")
	require.True(t, ok)
	assert.Equal(t, arb, got)

	_, ok = runner.Lookup("unknown")
	assert.False(t, ok)
}

func TestDispatch_FansOpportunitiesIn(t *testing.T) {
	t.Parallel()

	emitted := []*types.Opportunity{
		testutil.CreateTestOpportunity("arb-v2", types.KindArbitrage),
		testutil.CreateTestOpportunity("arb-v2", types.KindArbitrage),
	}
	stub := &testutil.StubStrategy{
		Tag:        "arb-v2",
		EventKinds: []types.EventKind{types.EventSwap},
		Emit:       emitted,
	}

	runner := newTestRunner(t, 8, stub)

	event := &types.ChainEvent{Kind: types.EventSwap, ObservedAt: time.Now()}
	runner.dispatch(stub, event)

	assert.Equal(t, emitted[0], <-runner.Opportunities())
	assert.Equal(t, emitted[1], <-runner.Opportunities())

	require.Len(t, stub.SeenEvents(), 1)
	assert.Equal(t, event, stub.SeenEvents()[0])
}

func TestDispatch_DropsWhenChannelFull(t *testing.T) {
	t.Parallel()

	stub := &testutil.StubStrategy{
		Tag:        "arb-v2",
		EventKinds: []types.EventKind{types.EventSwap},
		Emit: []*types.Opportunity{
			testutil.CreateTestOpportunity("arb-v2", types.KindArbitrage),
			testutil.CreateTestOpportunity("arb-v2", types.KindArbitrage),
		},
	}

	// Channel capacity of one: the second opportunity is dropped, not blocked.
	runner := newTestRunner(t, 1, stub)

	done := make(chan struct{})
	go func() {
		runner.dispatch(stub, &types.ChainEvent{Kind: types.EventSwap, ObservedAt: time.Now()})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch blocked on a full opportunity channel")
	}

	assert.Len(t, runner.Opportunities(), 1)
}

func TestDispatch_SkipsNilOpportunities(t *testing.T) {
	t.Parallel()

	stub := &testutil.StubStrategy{
		Tag:        "arb-v2",
		EventKinds: []types.EventKind{types.EventSwap},
		Emit:       []*types.Opportunity{nil, testutil.CreateTestOpportunity("arb-v2", types.KindArbitrage)},
	}

	runner := newTestRunner(t, 8, stub)
	runner.dispatch(stub, &types.ChainEvent{Kind: types.EventSwap, ObservedAt: time.Now()})

	assert.Len(t, runner.Opportunities(), 1)
}
