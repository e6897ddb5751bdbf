package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// EventKind identifies the classified type of a chain event.
type EventKind string

const (
	EventBlock       EventKind = "block"
	EventTransaction EventKind = "transaction"
	EventSwap        EventKind = "swap"
	EventLiquidation EventKind = "liquidation"
	EventFlashLoan   EventKind = "flashloan"
	EventHighValue   EventKind = "highValue"
	EventReorg       EventKind = "reorg"
	EventGasUpdate   EventKind = "gasUpdate"
)

// EventSource indicates where a transaction was first observed.
type EventSource string

const (
	SourceMempool EventSource = "mempool"
	SourceBlock   EventSource = "block"
)

// BlockSummary carries the block-level fields emitted with block events.
type BlockSummary struct {
	Number       uint64
	Hash         common.Hash
	ParentHash   common.Hash
	Timestamp    time.Time
	TxCount      int
	BaseFee      *big.Int
	AvgBlockTime time.Duration
}

// ChainEvent is a classified on-chain or pending observation.
// Exactly one of Tx, Block or GasPrice is populated depending on Kind.
type ChainEvent struct {
	Kind       EventKind
	Source     EventSource
	Hash       common.Hash
	Tx         *gethtypes.Transaction
	Block      *BlockSummary
	GasPrice   *big.Int
	ObservedAt time.Time
}
