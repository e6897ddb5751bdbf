package monitor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sgriggs/mevflow/pkg/cache"
	"github.com/sgriggs/mevflow/pkg/chainws"
	"github.com/sgriggs/mevflow/pkg/config"
	"github.com/sgriggs/mevflow/pkg/providerpool"
	"github.com/sgriggs/mevflow/pkg/types"
	"go.uber.org/zap"
)

const blockTimeWindow = 20

// Monitor ingests pending transactions and new blocks, deduplicates and
// classifies them, and fans typed events out to subscribers. Reorgs are
// detected by comparing the stored tip against the chain on an interval;
// a detected reorg invalidates every cache wholesale.
type Monitor struct {
	cfg      *config.Config
	pool     *providerpool.Pool
	ws       *chainws.Manager
	registry *Registry
	logger   *zap.Logger

	pendingCache cache.Cache
	gas          *GasTracker

	highValueWei *big.Int
	monitored    map[common.Address]bool

	dedupMu sync.Mutex
	dedup   map[common.Hash]struct{}

	subMu       sync.RWMutex
	subscribers map[types.EventKind][]chan *types.ChainEvent

	tipMu      sync.RWMutex
	tip        *types.BlockSummary
	blockTimes []time.Duration
	lastBlock  time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds chain event monitor dependencies.
type Config struct {
	Config   *config.Config
	Pool     *providerpool.Pool
	WS       *chainws.Manager
	Registry *Registry
	Logger   *zap.Logger
}

// Status is a point-in-time view of the monitor for the status endpoint.
type Status struct {
	TipNumber      uint64        `json:"tip_number"`
	TipHash        string        `json:"tip_hash"`
	AvgBlockTime   time.Duration `json:"avg_block_time"`
	DedupSetSize   int           `json:"dedup_set_size"`
	StreamingLive  bool          `json:"streaming_live"`
	DecoderEntries int           `json:"decoder_entries"`
}

// New creates a chain event monitor.
func New(cfg *Config) (*Monitor, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Config == nil {
		return nil, errors.New("pipeline config cannot be nil")
	}
	if cfg.Pool == nil {
		return nil, errors.New("provider pool cannot be nil")
	}
	if cfg.WS == nil {
		return nil, errors.New("websocket manager cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	pendingCache, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: cfg.Config.MaxPendingCacheSize * 10,
		MaxCost:     cfg.Config.MaxPendingCacheSize,
		BufferItems: 64,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create pending cache: %w", err)
	}

	monitored := make(map[common.Address]bool, len(cfg.Config.MonitoredContracts))
	for _, addr := range cfg.Config.MonitoredContracts {
		monitored[common.HexToAddress(addr)] = true
	}

	return &Monitor{
		cfg:          cfg.Config,
		pool:         cfg.Pool,
		ws:           cfg.WS,
		registry:     registry,
		logger:       cfg.Logger,
		pendingCache: pendingCache,
		gas:          NewGasTracker(),
		highValueWei: etherToWei(cfg.Config.HighValueThresholdETH),
		monitored:    monitored,
		dedup:        make(map[common.Hash]struct{}),
		subscribers:  make(map[types.EventKind][]chan *types.ChainEvent),
	}, nil
}

// Subscribe returns a channel receiving events of the given kind. Slow
// subscribers drop events rather than stalling ingestion.
func (m *Monitor) Subscribe(kind types.EventKind, buffer int) <-chan *types.ChainEvent {
	ch := make(chan *types.ChainEvent, buffer)

	m.subMu.Lock()
	m.subscribers[kind] = append(m.subscribers[kind], ch)
	m.subMu.Unlock()

	return ch
}

// Start launches the ingestion loops. Blocks only until the loops are
// spawned; Stop tears them down.
func (m *Monitor) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(4)
	go m.pendingLoop()
	go m.headLoop()
	go m.reorgLoop()
	go m.sweepLoop()

	m.logger.Info("monitor-started",
		zap.Float64("high_value_threshold_eth", m.cfg.HighValueThresholdETH),
		zap.Int("monitored_contracts", len(m.monitored)),
		zap.Int("decoders", m.registry.Len()))

	return nil
}

// Stop shuts the loops down and releases the caches.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.pendingCache.Close()

	m.logger.Info("monitor-stopped")
}

// Status returns a snapshot for the status endpoint.
func (m *Monitor) Status() Status {
	m.tipMu.RLock()
	defer m.tipMu.RUnlock()

	m.dedupMu.Lock()
	dedupSize := len(m.dedup)
	m.dedupMu.Unlock()

	status := Status{
		AvgBlockTime:   m.avgBlockTimeLocked(),
		DedupSetSize:   dedupSize,
		StreamingLive:  m.ws.Connected(),
		DecoderEntries: m.registry.Len(),
	}
	if m.tip != nil {
		status.TipNumber = m.tip.Number
		status.TipHash = m.tip.Hash.Hex()
	}

	return status
}

func (m *Monitor) pendingLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case hash, ok := <-m.ws.PendingTxs():
			if !ok {
				return
			}
			m.handlePendingHash(hash)
		}
	}
}

func (m *Monitor) handlePendingHash(hash common.Hash) {
	if !m.markSeen(hash) {
		DuplicatesDroppedTotal.Inc()
		return
	}

	var tx *gethtypes.Transaction
	err := m.pool.WithFallback(m.ctx, func(ctx context.Context, backend providerpool.Backend) error {
		var fetchErr error
		tx, _, fetchErr = backend.TransactionByHash(ctx, hash)
		return fetchErr
	})
	if err != nil {
		// Pending hashes routinely vanish before every provider has them.
		if errors.Is(err, ethereum.NotFound) {
			return
		}
		m.logger.Debug("pending-tx-fetch-failed", zap.String("hash", hash.Hex()), zap.Error(err))
		return
	}

	if tx == nil || !m.interesting(tx) {
		return
	}

	m.pendingCache.Set(hash.Hex(), tx, m.cfg.PendingTxTTL)

	m.emitTx(tx, types.SourceMempool)
}

// emitTx publishes one event per applicable classification of an
// interesting transaction.
func (m *Monitor) emitTx(tx *gethtypes.Transaction, source types.EventSource) {
	observed := time.Now()

	for _, kind := range m.classifications(tx) {
		m.publish(&types.ChainEvent{
			Kind:       kind,
			Source:     source,
			Hash:       tx.Hash(),
			Tx:         tx,
			ObservedAt: observed,
		})
	}
}

func (m *Monitor) headLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case head, ok := <-m.ws.Heads():
			if !ok {
				return
			}
			m.handleHead(head)
		}
	}
}

func (m *Monitor) handleHead(head *chainws.Head) {
	var block *gethtypes.Block
	err := m.pool.WithFallback(m.ctx, func(ctx context.Context, backend providerpool.Backend) error {
		var fetchErr error
		block, fetchErr = backend.BlockByNumber(ctx, new(big.Int).SetUint64(head.Number))
		return fetchErr
	})
	if err != nil {
		m.logger.Warn("block-fetch-failed", zap.Uint64("number", head.Number), zap.Error(err))
		return
	}

	blockTime := time.Unix(int64(block.Time()), 0)

	m.tipMu.Lock()
	if !m.lastBlock.IsZero() {
		m.blockTimes = append(m.blockTimes, blockTime.Sub(m.lastBlock))
		if len(m.blockTimes) > blockTimeWindow {
			m.blockTimes = m.blockTimes[len(m.blockTimes)-blockTimeWindow:]
		}
	}
	m.lastBlock = blockTime

	summary := &types.BlockSummary{
		Number:       block.NumberU64(),
		Hash:         block.Hash(),
		ParentHash:   block.ParentHash(),
		Timestamp:    blockTime,
		TxCount:      len(block.Transactions()),
		BaseFee:      block.BaseFee(),
		AvgBlockTime: m.avgBlockTimeLocked(),
	}
	m.tip = summary
	m.tipMu.Unlock()

	BlocksProcessedTotal.Inc()

	// Mined transactions leave the pending cache and flow through the same
	// dedup and classify path as mempool observations. Transactions already
	// seen pending are not re-published.
	for _, tx := range block.Transactions() {
		m.pendingCache.Delete(tx.Hash().Hex())

		if !m.markSeen(tx.Hash()) {
			DuplicatesDroppedTotal.Inc()
			continue
		}
		if !m.interesting(tx) {
			continue
		}

		m.emitTx(tx, types.SourceBlock)
	}

	m.publish(&types.ChainEvent{
		Kind:       types.EventBlock,
		Source:     types.SourceBlock,
		Hash:       summary.Hash,
		Block:      summary,
		ObservedAt: time.Now(),
	})

	if avg := m.gas.Observe(block.BaseFee()); avg != nil {
		m.publish(&types.ChainEvent{
			Kind:       types.EventGasUpdate,
			Source:     types.SourceBlock,
			Hash:       summary.Hash,
			GasPrice:   avg,
			ObservedAt: time.Now(),
		})
	}
}

func (m *Monitor) reorgLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.ReorgCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.checkReorg()
		}
	}
}

// checkReorg re-reads the header at the stored tip height. A different hash
// there means the tip was orphaned; every derived cache is invalid.
func (m *Monitor) checkReorg() {
	m.tipMu.RLock()
	tip := m.tip
	m.tipMu.RUnlock()

	if tip == nil {
		return
	}

	var header *gethtypes.Header
	err := m.pool.WithFallback(m.ctx, func(ctx context.Context, backend providerpool.Backend) error {
		var fetchErr error
		header, fetchErr = backend.HeaderByNumber(ctx, new(big.Int).SetUint64(tip.Number))
		return fetchErr
	})
	if err != nil || header == nil {
		return
	}

	if header.Hash() == tip.Hash {
		return
	}

	m.logger.Warn("reorg-detected",
		zap.Uint64("number", tip.Number),
		zap.String("stored_hash", tip.Hash.Hex()),
		zap.String("canonical_hash", header.Hash().Hex()))

	ReorgsDetectedTotal.Inc()

	m.invalidateCaches()

	m.publish(&types.ChainEvent{
		Kind:   types.EventReorg,
		Source: types.SourceBlock,
		Hash:   header.Hash(),
		Block: &types.BlockSummary{
			Number:     header.Number.Uint64(),
			Hash:       header.Hash(),
			ParentHash: header.ParentHash,
			Timestamp:  time.Unix(int64(header.Time), 0),
		},
		ObservedAt: time.Now(),
	})
}

func (m *Monitor) invalidateCaches() {
	m.pendingCache.Clear()

	m.dedupMu.Lock()
	m.dedup = make(map[common.Hash]struct{})
	m.dedupMu.Unlock()

	m.tipMu.Lock()
	m.tip = nil
	m.tipMu.Unlock()
}

func (m *Monitor) sweepLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.PendingSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.dedupMu.Lock()
			DedupSetSize.Set(float64(len(m.dedup)))
			m.dedupMu.Unlock()
		}
	}
}

// markSeen records a hash in the dedup set, reporting false for repeats.
// Past the ceiling the whole set is cleared rather than evicted piecemeal.
func (m *Monitor) markSeen(hash common.Hash) bool {
	m.dedupMu.Lock()
	defer m.dedupMu.Unlock()

	if _, seen := m.dedup[hash]; seen {
		return false
	}

	if len(m.dedup) >= m.cfg.DedupSetCeiling {
		m.dedup = make(map[common.Hash]struct{})
		m.logger.Info("dedup-set-cleared", zap.Int("ceiling", m.cfg.DedupSetCeiling))
	}

	m.dedup[hash] = struct{}{}
	return true
}

func (m *Monitor) publish(event *types.ChainEvent) {
	EventsPublishedTotal.WithLabelValues(string(event.Kind)).Inc()

	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for _, ch := range m.subscribers[event.Kind] {
		select {
		case ch <- event:
		default:
			EventsDroppedTotal.WithLabelValues(string(event.Kind)).Inc()
		}
	}
}

// avgBlockTimeLocked requires tipMu held (read or write).
func (m *Monitor) avgBlockTimeLocked() time.Duration {
	if len(m.blockTimes) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range m.blockTimes {
		sum += d
	}

	return sum / time.Duration(len(m.blockTimes))
}
