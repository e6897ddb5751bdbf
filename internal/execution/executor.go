package execution

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sgriggs/mevflow/internal/admission"
	"github.com/sgriggs/mevflow/internal/circuitbreaker"
	"github.com/sgriggs/mevflow/internal/storage"
	"github.com/sgriggs/mevflow/internal/strategy"
	"github.com/sgriggs/mevflow/pkg/config"
	"github.com/sgriggs/mevflow/pkg/providerpool"
	"github.com/sgriggs/mevflow/pkg/relay"
	"github.com/sgriggs/mevflow/pkg/types"
	"github.com/sgriggs/mevflow/pkg/wallet"
	"go.uber.org/zap"
)

const (
	receiptPollInterval = time.Second

	// How many blocks back to look for the transaction that consumed a
	// replaced nonce.
	replacementScanDepth = 10
)

// BundleRelay is the relay surface the executor depends on.
// *relay.Client satisfies it; tests supply fakes.
type BundleRelay interface {
	SimulateBundle(ctx context.Context, txs []*gethtypes.Transaction, blockNumber uint64) (*relay.BundleSimResult, error)
	SendBundle(ctx context.Context, txs []*gethtypes.Transaction, targetBlock, minTimestamp, maxTimestamp uint64) (string, error)
	GetBundleStats(ctx context.Context, bundleHash string, targetBlock uint64) (*relay.BundleStats, error)
}

// ProfitLookup resolves strategy tags to their implementations for outcome
// reconciliation.
type ProfitLookup interface {
	Lookup(tag string) (strategy.Strategy, bool)
}

// Executor drains the opportunity channel through admission, planning,
// simulation and dispatch. Concurrency is bounded by a semaphore; each
// executed plan reports exactly one terminal outcome to the breaker.
type Executor struct {
	cfg        *config.Config
	pool       *providerpool.Pool
	wallets    *wallet.Manager
	nonces     *NonceManager
	sim        Simulator
	relay      BundleRelay
	breaker    *circuitbreaker.Breaker
	admission  *admission.Controller
	strategies ProfitLookup
	sink       storage.Sink
	logger     *zap.Logger

	opps            <-chan *types.Opportunity
	sem             chan struct{}
	minSimProfitWei *big.Int

	inFlight  atomic.Int64
	executed  atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds executor dependencies.
type Config struct {
	Config        *config.Config
	Pool          *providerpool.Pool
	Wallets       *wallet.Manager
	Nonces        *NonceManager
	Simulator     Simulator
	Relay         BundleRelay
	Breaker       *circuitbreaker.Breaker
	Admission     *admission.Controller
	Strategies    ProfitLookup
	Sink          storage.Sink
	Opportunities <-chan *types.Opportunity
	Logger        *zap.Logger
}

// Stats is a point-in-time executor view for the status endpoint.
type Stats struct {
	InFlight  int64  `json:"in_flight"`
	Executed  uint64 `json:"executed"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
}

// New creates an executor.
func New(cfg *Config) (*Executor, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Config == nil {
		return nil, errors.New("pipeline config cannot be nil")
	}
	if cfg.Pool == nil {
		return nil, errors.New("pool cannot be nil")
	}
	if cfg.Wallets == nil {
		return nil, errors.New("wallet manager cannot be nil")
	}
	if cfg.Nonces == nil {
		return nil, errors.New("nonce manager cannot be nil")
	}
	if cfg.Simulator == nil {
		return nil, errors.New("simulator cannot be nil")
	}
	if cfg.Breaker == nil {
		return nil, errors.New("breaker cannot be nil")
	}
	if cfg.Admission == nil {
		return nil, errors.New("admission controller cannot be nil")
	}
	if cfg.Sink == nil {
		return nil, errors.New("sink cannot be nil")
	}
	if cfg.Opportunities == nil {
		return nil, errors.New("opportunity channel cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &Executor{
		cfg:             cfg.Config,
		pool:            cfg.Pool,
		wallets:         cfg.Wallets,
		nonces:          cfg.Nonces,
		sim:             cfg.Simulator,
		relay:           cfg.Relay,
		breaker:         cfg.Breaker,
		admission:       cfg.Admission,
		strategies:      cfg.Strategies,
		sink:            cfg.Sink,
		opps:            cfg.Opportunities,
		sem:             make(chan struct{}, cfg.Config.MaxConcurrentExecutions),
		minSimProfitWei: etherToWei(cfg.Config.MinSimulatedProfitETH),
		logger:          cfg.Logger,
	}, nil
}

// Start launches the intake loop.
func (e *Executor) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(1)
	go e.intakeLoop()

	e.logger.Info("executor-started",
		zap.Int("max_concurrent", e.cfg.MaxConcurrentExecutions),
		zap.Float64("min_simulated_profit_eth", e.cfg.MinSimulatedProfitETH))

	return nil
}

// Stop halts intake and waits for in-flight executions to finish.
func (e *Executor) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()

	e.logger.Info("executor-stopped",
		zap.Uint64("executed", e.executed.Load()),
		zap.Uint64("succeeded", e.succeeded.Load()))
}

// Stats returns current executor counters.
func (e *Executor) Stats() Stats {
	return Stats{
		InFlight:  e.inFlight.Load(),
		Executed:  e.executed.Load(),
		Succeeded: e.succeeded.Load(),
		Failed:    e.failed.Load(),
	}
}

func (e *Executor) intakeLoop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case opp, ok := <-e.opps:
			if !ok {
				return
			}

			select {
			case e.sem <- struct{}{}:
			case <-e.ctx.Done():
				return
			}

			e.inFlight.Add(1)
			InFlightExecutions.Inc()

			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				defer func() {
					<-e.sem
					e.inFlight.Add(-1)
					InFlightExecutions.Dec()
				}()

				e.process(opp)
			}()
		}
	}
}

// process runs one opportunity end to end. Outcomes are reported to the
// breaker exactly once, from report.
func (e *Executor) process(opp *types.Opportunity) {
	assessment, err := e.admission.Evaluate(e.ctx, opp)
	if err != nil {
		e.logger.Error("admission-evaluation-failed",
			zap.String("opportunity_id", opp.ID), zap.Error(err))
		return
	}

	if sinkErr := e.sink.RecordDecision(e.ctx, opp, assessment); sinkErr != nil {
		e.logger.Warn("decision-persist-failed", zap.Error(sinkErr))
	}

	if !assessment.Approved {
		return
	}

	start := time.Now()
	outcome := e.execute(opp, assessment)
	outcome.OpportunityID = opp.ID
	outcome.StrategyTag = opp.StrategyTag
	outcome.CompletedAt = time.Now()

	ExecutionDurationSeconds.Observe(time.Since(start).Seconds())

	e.report(opp, outcome)
}

func (e *Executor) execute(opp *types.Opportunity, assessment *admission.Assessment) *types.ExecutionOutcome {
	plan, key, err := e.buildPlan(e.ctx, opp, assessment.CompositeScore)
	if err != nil {
		return failureOutcome(err)
	}

	sim, err := e.sim.Simulate(e.ctx, plan, opp)
	if err != nil {
		return failureOutcome(err)
	}

	if sim.NetProfit.Cmp(e.minSimProfitWei) < 0 {
		return failureOutcome(types.NewExecutionError(types.FailureSimulation,
			fmt.Errorf("simulated net profit %s wei below floor %s wei",
				sim.NetProfit, e.minSimProfitWei)))
	}

	signed, err := e.signPlan(key, plan)
	if err != nil {
		return failureOutcome(types.NewExecutionError(types.FailureProvider, err))
	}

	switch plan.Mode {
	case types.DispatchStandard:
		return e.dispatchStandard(plan, opp, signed[0])
	case types.DispatchBundle:
		return e.dispatchBundle(plan, opp, signed)
	case types.DispatchFlashLoan:
		return e.dispatchFlashLoan(plan, opp, signed[0])
	default:
		return failureOutcome(types.NewExecutionError(types.FailureProvider,
			fmt.Errorf("unknown dispatch mode %q", plan.Mode)))
	}
}

func (e *Executor) signPlan(key *wallet.Key, plan *types.ExecutionPlan) ([]*gethtypes.Transaction, error) {
	signed := make([]*gethtypes.Transaction, 0, len(plan.Txs))

	for _, planned := range plan.Txs {
		tx := gethtypes.NewTx(&gethtypes.LegacyTx{
			Nonce:    planned.Nonce,
			GasPrice: planned.GasPrice,
			Gas:      planned.GasLimit,
			To:       planned.To,
			Value:    planned.Value,
			Data:     planned.Data,
		})

		signedTx, err := e.wallets.SignTx(key, tx)
		if err != nil {
			return nil, fmt.Errorf("sign nonce %d: %w", planned.Nonce, err)
		}
		signed = append(signed, signedTx)
	}

	return signed, nil
}

// report delivers the terminal outcome to breaker, sizing history and sink.
// This is the single call site for breaker outcome reporting.
func (e *Executor) report(opp *types.Opportunity, outcome *types.ExecutionOutcome) {
	e.executed.Add(1)

	if outcome.Success {
		e.succeeded.Add(1)
		e.breaker.RecordSuccess(opp.StrategyTag)
		e.admission.RecordOutcome(weiToEther(outcome.RealizedProfit))
		ExecutionsTotal.WithLabelValues("success").Inc()

		e.logger.Info("execution-succeeded",
			zap.String("opportunity_id", opp.ID),
			zap.String("strategy", opp.StrategyTag),
			zap.String("tx_hash", outcome.TxHash.Hex()),
			zap.String("realized_profit_wei", valueOrZero(outcome.RealizedProfit).String()))
	} else {
		e.failed.Add(1)
		e.breaker.RecordFailure(opp.StrategyTag)
		e.admission.RecordOutcome(-gasLossEther(outcome))
		ExecutionsTotal.WithLabelValues(string(outcome.Failure)).Inc()

		e.logger.Warn("execution-failed",
			zap.String("opportunity_id", opp.ID),
			zap.String("strategy", opp.StrategyTag),
			zap.String("failure", string(outcome.Failure)),
			zap.Error(outcome.Err))
	}

	if err := e.sink.RecordOutcome(e.ctx, outcome); err != nil {
		e.logger.Warn("outcome-persist-failed", zap.Error(err))
	}
}

func (e *Executor) suggestGasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := e.pool.WithFallback(ctx, func(ctx context.Context, backend providerpool.Backend) error {
		var err error
		price, err = backend.SuggestGasPrice(ctx)
		return err
	})
	return price, err
}

func (e *Executor) latestBlock(ctx context.Context) (uint64, error) {
	var number uint64
	err := e.pool.WithFallback(ctx, func(ctx context.Context, backend providerpool.Backend) error {
		var err error
		number, err = backend.BlockNumber(ctx)
		return err
	})
	return number, err
}

// waitReceipt polls for the transaction receipt until the confirmation
// timeout. A consumed nonce without a matching receipt means the transaction
// was replaced; the replacement's receipt settles the dispatch when it can
// be located in recent blocks.
func (e *Executor) waitReceipt(plan *types.ExecutionPlan, tx *gethtypes.Transaction) (*gethtypes.Receipt, *types.ExecutionError) {
	deadline := time.After(e.cfg.ConfirmTimeout)
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return nil, types.NewExecutionError(types.FailureTimeout, e.ctx.Err())

		case <-deadline:
			e.nonces.Invalidate(plan.Wallet)

			if e.nonceConsumed(plan, tx.Nonce()) {
				if receipt := e.findReplacement(plan, tx.Nonce()); receipt != nil {
					e.logger.Info("replacement-receipt-adopted",
						zap.Uint64("nonce", tx.Nonce()),
						zap.String("tx_hash", receipt.TxHash.Hex()))
					return receipt, nil
				}

				return nil, types.NewExecutionError(types.FailureNotIncluded,
					fmt.Errorf("nonce %d consumed but no replacement found within %d blocks",
						tx.Nonce(), replacementScanDepth))
			}

			return nil, types.NewExecutionError(types.FailureTimeout,
				fmt.Errorf("no receipt within %s", e.cfg.ConfirmTimeout))

		case <-ticker.C:
			var receipt *gethtypes.Receipt
			err := e.pool.WithFallback(e.ctx, func(ctx context.Context, backend providerpool.Backend) error {
				var fetchErr error
				receipt, fetchErr = backend.TransactionReceipt(ctx, tx.Hash())
				return fetchErr
			})
			if err != nil {
				if !errors.Is(err, ethereum.NotFound) {
					e.logger.Debug("receipt-poll-error", zap.Error(err))
				}
				continue
			}
			if receipt != nil {
				return receipt, nil
			}
		}
	}
}

// findReplacement scans recent blocks for the mined transaction occupying
// the wallet's nonce and fetches its receipt. Returns nil when the
// replacement has not landed in the scan window.
func (e *Executor) findReplacement(plan *types.ExecutionPlan, nonce uint64) *gethtypes.Receipt {
	tip, err := e.latestBlock(e.ctx)
	if err != nil {
		return nil
	}

	signer := gethtypes.LatestSignerForChainID(big.NewInt(e.cfg.ChainID))

	for offset := uint64(0); offset < replacementScanDepth && offset <= tip; offset++ {
		height := tip - offset

		var block *gethtypes.Block
		err := e.pool.WithFallback(e.ctx, func(ctx context.Context, backend providerpool.Backend) error {
			var fetchErr error
			block, fetchErr = backend.BlockByNumber(ctx, new(big.Int).SetUint64(height))
			return fetchErr
		})
		if err != nil || block == nil {
			continue
		}

		for _, candidate := range block.Transactions() {
			if candidate.Nonce() != nonce {
				continue
			}
			if sender, senderErr := gethtypes.Sender(signer, candidate); senderErr != nil || sender != plan.Wallet {
				continue
			}

			var receipt *gethtypes.Receipt
			err := e.pool.WithFallback(e.ctx, func(ctx context.Context, backend providerpool.Backend) error {
				var fetchErr error
				receipt, fetchErr = backend.TransactionReceipt(ctx, candidate.Hash())
				return fetchErr
			})
			if err != nil {
				return nil
			}
			return receipt
		}
	}

	return nil
}

func (e *Executor) nonceConsumed(plan *types.ExecutionPlan, nonce uint64) bool {
	var pending uint64
	err := e.pool.WithFallback(e.ctx, func(ctx context.Context, backend providerpool.Backend) error {
		var err error
		pending, err = backend.PendingNonceAt(ctx, plan.Wallet)
		return err
	})
	if err != nil {
		return false
	}

	return pending > nonce
}

// dispatchStandard broadcasts one transaction to the public mempool and
// waits for its receipt.
func (e *Executor) dispatchStandard(plan *types.ExecutionPlan, opp *types.Opportunity, tx *gethtypes.Transaction) *types.ExecutionOutcome {
	hash, err := e.pool.Broadcast(e.ctx, tx, e.cfg.BroadcastTopK)
	if err != nil {
		e.nonces.Invalidate(plan.Wallet)
		return failureOutcome(types.NewExecutionError(types.FailureProvider, err))
	}

	receipt, execErr := e.waitReceipt(plan, tx)
	if execErr != nil {
		out := failureOutcome(execErr)
		out.TxHash = hash
		return out
	}

	return e.settleReceipt(receipt, opp, minedHash(receipt, hash))
}

// minedHash prefers the receipt's own hash, which differs from the broadcast
// hash when a replacement transaction was adopted.
func minedHash(receipt *gethtypes.Receipt, broadcast common.Hash) common.Hash {
	if receipt != nil && receipt.TxHash != (common.Hash{}) {
		return receipt.TxHash
	}
	return broadcast
}

// dispatchBundle pre-simulates against the relay, submits the bundle for its
// target block and polls for inclusion.
func (e *Executor) dispatchBundle(plan *types.ExecutionPlan, opp *types.Opportunity, signed []*gethtypes.Transaction) *types.ExecutionOutcome {
	if e.relay == nil {
		return failureOutcome(types.NewExecutionError(types.FailureProvider,
			errors.New("bundle dispatch requested but no relay configured")))
	}

	sim, err := e.relay.SimulateBundle(e.ctx, signed, plan.TargetBlock-1)
	if err != nil {
		return failureOutcome(types.NewExecutionError(types.FailureProvider, err))
	}
	if !sim.Success {
		return failureOutcome(types.NewExecutionError(types.FailureSimulation,
			fmt.Errorf("relay simulation reverted at tx %d: %s", sim.RevertedAt, sim.RevertReason)))
	}

	bundleHash, err := e.relay.SendBundle(e.ctx, signed, plan.TargetBlock, 0, 0)
	if err != nil {
		return failureOutcome(types.NewExecutionError(types.FailureProvider, err))
	}

	outcome := e.awaitBundleInclusion(plan, bundleHash)
	outcome.BundleHash = bundleHash
	if !outcome.Success {
		return outcome
	}

	// The frontrun's receipt carries the bundle's gas accounting.
	receipt, execErr := e.waitReceipt(plan, signed[0])
	if execErr != nil {
		settled := e.settleReceipt(nil, opp, signed[0].Hash())
		settled.BundleHash = bundleHash
		return settled
	}

	settled := e.settleReceipt(receipt, opp, signed[0].Hash())
	settled.BundleHash = bundleHash
	return settled
}

// awaitBundleInclusion waits for the target block to pass and asks the relay
// whether the bundle landed.
func (e *Executor) awaitBundleInclusion(plan *types.ExecutionPlan, bundleHash string) *types.ExecutionOutcome {
	deadline := time.After(e.cfg.ConfirmTimeout)
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return failureOutcome(types.NewExecutionError(types.FailureTimeout, e.ctx.Err()))

		case <-deadline:
			return failureOutcome(types.NewExecutionError(types.FailureNotIncluded,
				fmt.Errorf("bundle %s not included by deadline", bundleHash)))

		case <-ticker.C:
			tip, err := e.latestBlock(e.ctx)
			if err != nil || tip < plan.TargetBlock {
				continue
			}

			stats, err := e.relay.GetBundleStats(e.ctx, bundleHash, plan.TargetBlock)
			if err != nil {
				continue
			}

			if stats.Included {
				return &types.ExecutionOutcome{Success: true}
			}

			return failureOutcome(types.NewExecutionError(types.FailureNotIncluded,
				fmt.Errorf("bundle %s missed block %d", bundleHash, plan.TargetBlock)))
		}
	}
}

// dispatchFlashLoan broadcasts the flash-loan call and requires both a
// successful receipt and the contract's completion event.
func (e *Executor) dispatchFlashLoan(plan *types.ExecutionPlan, opp *types.Opportunity, tx *gethtypes.Transaction) *types.ExecutionOutcome {
	hash, err := e.pool.Broadcast(e.ctx, tx, e.cfg.BroadcastTopK)
	if err != nil {
		e.nonces.Invalidate(plan.Wallet)
		return failureOutcome(types.NewExecutionError(types.FailureProvider, err))
	}

	receipt, execErr := e.waitReceipt(plan, tx)
	if execErr != nil {
		out := failureOutcome(execErr)
		out.TxHash = hash
		return out
	}

	settledHash := minedHash(receipt, hash)

	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return revertedOutcome(receipt, settledHash)
	}

	if !completionEventPresent(receipt) {
		out := revertedOutcome(receipt, settledHash)
		out.Err = errors.New("flash loan completion event missing from receipt")
		return out
	}

	return e.settleReceipt(receipt, opp, settledHash)
}

// settleReceipt converts a confirmed receipt into a terminal outcome.
func (e *Executor) settleReceipt(receipt *gethtypes.Receipt, opp *types.Opportunity, hash common.Hash) *types.ExecutionOutcome {
	if receipt != nil && receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return revertedOutcome(receipt, hash)
	}

	outcome := &types.ExecutionOutcome{
		Success:        true,
		TxHash:         hash,
		RealizedProfit: e.reconcileProfit(receipt, opp),
	}
	if receipt != nil {
		outcome.GasUsed = receipt.GasUsed
		outcome.EffectiveGasPrice = receipt.EffectiveGasPrice
	}

	return outcome
}

func failureOutcome(err error) *types.ExecutionOutcome {
	var execErr *types.ExecutionError
	if !errors.As(err, &execErr) {
		execErr = types.NewExecutionError(types.FailureProvider, err)
	}

	return &types.ExecutionOutcome{
		Success: false,
		Failure: execErr.Kind,
		Err:     execErr,
	}
}

func revertedOutcome(receipt *gethtypes.Receipt, hash common.Hash) *types.ExecutionOutcome {
	outcome := &types.ExecutionOutcome{
		Success: false,
		TxHash:  hash,
		Failure: types.FailureReverted,
		Err:     types.NewExecutionError(types.FailureReverted, errors.New("transaction reverted on chain")),
	}
	if receipt != nil {
		outcome.GasUsed = receipt.GasUsed
		outcome.EffectiveGasPrice = receipt.EffectiveGasPrice
	}

	return outcome
}

func gasLossEther(outcome *types.ExecutionOutcome) float64 {
	if outcome.EffectiveGasPrice == nil {
		return 0
	}

	loss := new(big.Int).Mul(new(big.Int).SetUint64(outcome.GasUsed), outcome.EffectiveGasPrice)
	return weiToEther(loss)
}

var weiPerEther = big.NewFloat(1e18)

func etherToWei(eth float64) *big.Int {
	wei, _ := new(big.Float).Mul(big.NewFloat(eth), weiPerEther).Int(nil)
	return wei
}

func weiToEther(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}

	eth, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerEther).Float64()
	return eth
}
