package providerpool

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sgriggs/mevflow/pkg/config"
	"github.com/sgriggs/mevflow/pkg/types"
	"go.uber.org/zap"
)

// Backend is the subset of chain RPC operations the pipeline needs.
// *ethclient.Client satisfies it; tests supply mocks.
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*gethtypes.Block, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*gethtypes.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Provider is one scored RPC connection in the pool.
type Provider struct {
	Name     string
	Priority int
	Backend  Backend
	health   *Health
}

// Health returns the provider's health record snapshot.
func (p *Provider) Health() HealthSnapshot {
	return p.health.snapshot(p.Name)
}

// Pool holds redundant chain RPC connections scored by latency and error
// rate. A single provider failure is recovered by fallback; total exhaustion
// surfaces types.ErrAllProvidersFailed to the caller.
type Pool struct {
	providers []*Provider
	logger    *zap.Logger

	healthInterval time.Duration
	maxBlockLag    uint64

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// PoolConfig holds provider pool configuration.
type PoolConfig struct {
	HealthInterval time.Duration
	MaxBlockLag    uint64
	Logger         *zap.Logger
}

// New creates a pool over pre-built providers.
func New(cfg *PoolConfig, providers []*Provider) (*Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}

	for _, p := range providers {
		if p.health == nil {
			p.health = newHealth()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		providers:      providers,
		logger:         cfg.Logger,
		healthInterval: cfg.HealthInterval,
		maxBlockLag:    cfg.MaxBlockLag,
		ctx:            ctx,
		cancel:         cancel,
	}, nil
}

// NewProvider wraps a backend for pool membership.
func NewProvider(name string, priority int, backend Backend) *Provider {
	return &Provider{
		Name:     name,
		Priority: priority,
		Backend:  backend,
		health:   newHealth(),
	}
}

// Dial connects every configured endpoint and builds a pool.
func Dial(ctx context.Context, cfg *PoolConfig, endpoints []config.RPCEndpoint) (*Pool, error) {
	providers := make([]*Provider, 0, len(endpoints))

	for _, ep := range endpoints {
		client, err := ethclient.DialContext(ctx, ep.URL)
		if err != nil {
			cfg.Logger.Warn("provider-dial-failed",
				zap.String("provider", ep.Name),
				zap.Error(err))
			continue
		}

		providers = append(providers, NewProvider(ep.Name, ep.Priority, client))
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("no providers reachable")
	}

	return New(cfg, providers)
}

// Start launches the periodic health check loop.
func (p *Pool) Start() {
	p.logger.Info("provider-pool-started",
		zap.Int("providers", len(p.providers)),
		zap.Duration("health_interval", p.healthInterval))

	p.wg.Add(1)
	go p.healthLoop()
}

// Close stops background loops.
func (p *Pool) Close() error {
	p.cancel()
	p.wg.Wait()
	p.logger.Info("provider-pool-closed")
	return nil
}

// Best returns the healthy provider with the lowest score.
func (p *Pool) Best() (*Provider, error) {
	ranked := p.ranked()
	if len(ranked) == 0 {
		return nil, types.ErrAllProvidersFailed
	}
	return ranked[0], nil
}

// ranked returns healthy providers sorted best-first. When every provider is
// unhealthy it falls back to all providers so callers can still attempt.
func (p *Pool) ranked() []*Provider {
	healthy := make([]*Provider, 0, len(p.providers))
	for _, prov := range p.providers {
		if prov.health.healthy() {
			healthy = append(healthy, prov)
		}
	}

	if len(healthy) == 0 {
		healthy = append(healthy, p.providers...)
	}

	sort.SliceStable(healthy, func(i, j int) bool {
		return healthy[i].health.score(healthy[i].Priority) <
			healthy[j].health.score(healthy[j].Priority)
	})

	return healthy
}

// Op is one RPC operation executed against a backend.
type Op func(ctx context.Context, backend Backend) error

// WithFallback runs op against providers in health order until one succeeds.
// Every attempt updates the provider's health record. When all providers
// fail, the last error is returned wrapped in types.ErrAllProvidersFailed.
func (p *Pool) WithFallback(ctx context.Context, op Op) error {
	var lastErr error

	for _, prov := range p.ranked() {
		start := time.Now()
		err := op(ctx, prov.Backend)
		latency := time.Since(start)

		prov.health.record(latency, err != nil)
		RequestsTotal.WithLabelValues(prov.Name, outcomeLabel(err)).Inc()
		RequestLatencySeconds.WithLabelValues(prov.Name).Observe(latency.Seconds())

		if err == nil {
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = err
		p.logger.Debug("provider-call-failed",
			zap.String("provider", prov.Name),
			zap.Error(err))
	}

	FallbackExhaustedTotal.Inc()

	return fmt.Errorf("%w: %w", types.ErrAllProvidersFailed, lastErr)
}

// Broadcast sends a signed transaction to the top-K providers in parallel
// and returns as soon as one accepts it.
func (p *Pool) Broadcast(ctx context.Context, tx *gethtypes.Transaction, topK int) (common.Hash, error) {
	ranked := p.ranked()
	if topK > len(ranked) {
		topK = len(ranked)
	}
	if topK <= 0 {
		topK = 1
	}

	targets := ranked[:topK]
	errChan := make(chan error, len(targets))
	okChan := make(chan struct{}, len(targets))

	for _, prov := range targets {
		go func(prov *Provider) {
			start := time.Now()
			err := prov.Backend.SendTransaction(ctx, tx)
			prov.health.record(time.Since(start), err != nil)
			RequestsTotal.WithLabelValues(prov.Name, outcomeLabel(err)).Inc()

			if err != nil {
				errChan <- fmt.Errorf("%s: %w", prov.Name, err)
				return
			}
			okChan <- struct{}{}
		}(prov)
	}

	var lastErr error
	for range targets {
		select {
		case <-okChan:
			BroadcastsTotal.WithLabelValues("success").Inc()
			return tx.Hash(), nil
		case err := <-errChan:
			lastErr = err
		case <-ctx.Done():
			return common.Hash{}, ctx.Err()
		}
	}

	BroadcastsTotal.WithLabelValues("failure").Inc()

	return common.Hash{}, fmt.Errorf("%w: %w", types.ErrAllProvidersFailed, lastErr)
}

// Snapshot returns health snapshots for all providers, for status reporting.
func (p *Pool) Snapshot() []HealthSnapshot {
	snaps := make([]HealthSnapshot, 0, len(p.providers))
	for _, prov := range p.providers {
		snaps = append(snaps, prov.health.snapshot(prov.Name))
	}
	return snaps
}

// healthLoop compares each provider's block height against the current
// primary's and marks laggards unhealthy.
func (p *Pool) healthLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.checkHealth()
		}
	}
}

func (p *Pool) checkHealth() {
	ctx, cancel := context.WithTimeout(p.ctx, 10*time.Second)
	defer cancel()

	var primaryHeight uint64

	for i, prov := range p.providers {
		start := time.Now()
		height, err := prov.Backend.BlockNumber(ctx)
		prov.health.record(time.Since(start), err != nil)

		if err != nil {
			prov.health.setUnhealthy(true)
			p.logger.Warn("provider-health-check-failed",
				zap.String("provider", prov.Name),
				zap.Error(err))
			continue
		}

		prov.health.setBlock(height)

		if i == 0 || height > primaryHeight {
			primaryHeight = height
		}
	}

	healthyCount := 0
	for _, prov := range p.providers {
		snap := prov.health.snapshot(prov.Name)
		lagging := snap.LastBlock+p.maxBlockLag < primaryHeight

		if lagging {
			prov.health.setUnhealthy(true)
			p.logger.Warn("provider-lagging",
				zap.String("provider", prov.Name),
				zap.Uint64("provider_block", snap.LastBlock),
				zap.Uint64("primary_block", primaryHeight))
		} else if snap.ErrorRate <= 0.5 {
			// Recovered: caught up on height and error rate acceptable.
			prov.health.setUnhealthy(false)
		}

		if prov.health.healthy() {
			healthyCount++
		}
	}

	HealthyProviders.Set(float64(healthyCount))
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
