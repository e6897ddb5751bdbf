package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DispatchMode selects how an execution plan reaches the chain.
type DispatchMode string

const (
	DispatchStandard  DispatchMode = "standard"
	DispatchBundle    DispatchMode = "bundle"
	DispatchFlashLoan DispatchMode = "flashloan-call"
)

// PlannedTx is one unsigned transaction inside an execution plan.
type PlannedTx struct {
	To       *common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
	GasPrice *big.Int
	Nonce    uint64
}

// ExecutionPlan holds the transactions derived from an approved opportunity.
// Nonces in Txs are contiguous starting at NonceStart and are reserved
// exclusively for this plan.
type ExecutionPlan struct {
	OpportunityID string
	StrategyTag   string
	Kind          OpportunityKind
	Wallet        common.Address
	NonceStart    uint64
	Txs           []PlannedTx
	Mode          DispatchMode
	TargetBlock   uint64 // bundle dispatch only
}

// ExecutionOutcome is the terminal result of dispatching one plan.
type ExecutionOutcome struct {
	OpportunityID     string
	StrategyTag       string
	Success           bool
	TxHash            common.Hash
	BundleHash        string
	RealizedProfit    *big.Int // wei, meaningful only when Success
	GasUsed           uint64
	EffectiveGasPrice *big.Int
	Failure           FailureKind
	Err               error
	CompletedAt       time.Time
}
