package testutil

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sgriggs/mevflow/internal/admission"
	"github.com/sgriggs/mevflow/pkg/types"
)

// MockBackend implements providerpool.Backend with overridable function
// fields. Unset fields return benign defaults so tests only stub what they
// exercise.
type MockBackend struct {
	BlockNumberFn        func(ctx context.Context) (uint64, error)
	BlockByNumberFn      func(ctx context.Context, number *big.Int) (*gethtypes.Block, error)
	HeaderByNumberFn     func(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
	TransactionByHashFn  func(ctx context.Context, hash common.Hash) (*gethtypes.Transaction, bool, error)
	TransactionReceiptFn func(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error)
	PendingNonceAtFn     func(ctx context.Context, account common.Address) (uint64, error)
	SendTransactionFn    func(ctx context.Context, tx *gethtypes.Transaction) error
	CallContractFn       func(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGasFn        func(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	BalanceAtFn          func(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SuggestGasPriceFn    func(ctx context.Context) (*big.Int, error)
}

func (m *MockBackend) BlockNumber(ctx context.Context) (uint64, error) {
	if m.BlockNumberFn != nil {
		return m.BlockNumberFn(ctx)
	}
	return 100, nil
}

func (m *MockBackend) BlockByNumber(ctx context.Context, number *big.Int) (*gethtypes.Block, error) {
	if m.BlockByNumberFn != nil {
		return m.BlockByNumberFn(ctx, number)
	}
	return nil, ethereum.NotFound
}

func (m *MockBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error) {
	if m.HeaderByNumberFn != nil {
		return m.HeaderByNumberFn(ctx, number)
	}
	return nil, ethereum.NotFound
}

func (m *MockBackend) TransactionByHash(ctx context.Context, hash common.Hash) (*gethtypes.Transaction, bool, error) {
	if m.TransactionByHashFn != nil {
		return m.TransactionByHashFn(ctx, hash)
	}
	return nil, false, ethereum.NotFound
}

func (m *MockBackend) TransactionReceipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	if m.TransactionReceiptFn != nil {
		return m.TransactionReceiptFn(ctx, hash)
	}
	return nil, ethereum.NotFound
}

func (m *MockBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if m.PendingNonceAtFn != nil {
		return m.PendingNonceAtFn(ctx, account)
	}
	return 0, nil
}

func (m *MockBackend) SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error {
	if m.SendTransactionFn != nil {
		return m.SendTransactionFn(ctx, tx)
	}
	return nil
}

func (m *MockBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if m.CallContractFn != nil {
		return m.CallContractFn(ctx, msg, blockNumber)
	}
	return nil, nil
}

func (m *MockBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if m.EstimateGasFn != nil {
		return m.EstimateGasFn(ctx, msg)
	}
	return 21000, nil
}

func (m *MockBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if m.BalanceAtFn != nil {
		return m.BalanceAtFn(ctx, account, blockNumber)
	}
	return big.NewInt(0), nil
}

func (m *MockBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if m.SuggestGasPriceFn != nil {
		return m.SuggestGasPriceFn(ctx)
	}
	return big.NewInt(20_000_000_000), nil
}

// StubBalance is a fixed-value admission balance source.
type StubBalance struct {
	ETH float64
	Err error
}

func (s *StubBalance) AvailableBalance(context.Context) (float64, error) {
	return s.ETH, s.Err
}

// StubStrategy emits preloaded opportunities for any event it receives.
type StubStrategy struct {
	Tag        string
	EventKinds []types.EventKind
	Emit       []*types.Opportunity

	mu     sync.Mutex
	Events []*types.ChainEvent
}

func (s *StubStrategy) Name() string { return s.Tag }

func (s *StubStrategy) Kinds() []types.EventKind { return s.EventKinds }

func (s *StubStrategy) OnEvent(_ context.Context, event *types.ChainEvent) []*types.Opportunity {
	s.mu.Lock()
	s.Events = append(s.Events, event)
	s.mu.Unlock()

	return s.Emit
}

// SeenEvents returns a copy of the events received so far.
func (s *StubStrategy) SeenEvents() []*types.ChainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*types.ChainEvent, len(s.Events))
	copy(out, s.Events)
	return out
}

// RecordingSink captures decisions and outcomes in memory.
type RecordingSink struct {
	mu        sync.Mutex
	Decisions []*admission.Assessment
	Outcomes  []*types.ExecutionOutcome
}

func (s *RecordingSink) RecordDecision(_ context.Context, _ *types.Opportunity, assessment *admission.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Decisions = append(s.Decisions, assessment)
	return nil
}

func (s *RecordingSink) RecordOutcome(_ context.Context, outcome *types.ExecutionOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Outcomes = append(s.Outcomes, outcome)
	return nil
}

func (s *RecordingSink) Close() error { return nil }

// DecisionCount returns the number of recorded decisions.
func (s *RecordingSink) DecisionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.Decisions)
}

// LastOutcome returns the most recent recorded outcome, nil if none.
func (s *RecordingSink) LastOutcome() *types.ExecutionOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.Outcomes) == 0 {
		return nil
	}
	return s.Outcomes[len(s.Outcomes)-1]
}
