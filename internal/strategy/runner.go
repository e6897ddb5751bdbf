package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sgriggs/mevflow/internal/monitor"
	"github.com/sgriggs/mevflow/pkg/types"
	"go.uber.org/zap"
)

const eventBufferSize = 256

// Runner wires strategies to the monitor's typed event feeds and fans their
// opportunities into a single channel consumed by the execution engine.
type Runner struct {
	monitor    *monitor.Monitor
	strategies map[string]Strategy
	opps       chan *types.Opportunity
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RunnerConfig holds strategy runner dependencies.
type RunnerConfig struct {
	Monitor         *monitor.Monitor
	Strategies      []Strategy
	OpportunitySize int
	Logger          *zap.Logger
}

// NewRunner creates a strategy runner. Strategy names must be unique.
func NewRunner(cfg *RunnerConfig) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Monitor == nil {
		return nil, errors.New("monitor cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	size := cfg.OpportunitySize
	if size <= 0 {
		size = 128
	}

	strategies := make(map[string]Strategy, len(cfg.Strategies))
	for _, s := range cfg.Strategies {
		if _, dup := strategies[s.Name()]; dup {
			return nil, fmt.Errorf("duplicate strategy name %q", s.Name())
		}
		strategies[s.Name()] = s
	}

	return &Runner{
		monitor:    cfg.Monitor,
		strategies: strategies,
		opps:       make(chan *types.Opportunity, size),
		logger:     cfg.Logger,
	}, nil
}

// Opportunities returns the fan-in channel of emitted opportunities.
func (r *Runner) Opportunities() <-chan *types.Opportunity {
	return r.opps
}

// Lookup resolves a strategy by its tag.
func (r *Runner) Lookup(tag string) (Strategy, bool) {
	s, ok := r.strategies[tag]
	return s, ok
}

// Start subscribes every strategy to its event kinds and begins routing.
func (r *Runner) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	for _, s := range r.strategies {
		for _, kind := range s.Kinds() {
			events := r.monitor.Subscribe(kind, eventBufferSize)

			r.wg.Add(1)
			go r.routeLoop(s, kind, events)
		}

		r.logger.Info("strategy-registered",
			zap.String("strategy", s.Name()),
			zap.Int("event_kinds", len(s.Kinds())))
	}

	return nil
}

// Stop halts routing. The opportunity channel stays open; the executor
// drains it and stops on context cancellation.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Runner) routeLoop(s Strategy, kind types.EventKind, events <-chan *types.ChainEvent) {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			r.dispatch(s, event)
		}
	}
}

func (r *Runner) dispatch(s Strategy, event *types.ChainEvent) {
	for _, opp := range s.OnEvent(r.ctx, event) {
		if opp == nil {
			continue
		}

		select {
		case r.opps <- opp:
			OpportunitiesEmittedTotal.WithLabelValues(s.Name(), string(opp.Kind)).Inc()
		default:
			OpportunitiesDroppedTotal.WithLabelValues(s.Name()).Inc()
			r.logger.Warn("opportunity-dropped",
				zap.String("strategy", s.Name()),
				zap.String("opportunity_id", opp.ID))
		}
	}
}
