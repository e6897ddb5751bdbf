package types

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// OpportunityKind identifies the strategy family an opportunity belongs to.
type OpportunityKind string

const (
	KindArbitrage   OpportunityKind = "arbitrage"
	KindSandwich    OpportunityKind = "sandwich"
	KindLiquidation OpportunityKind = "liquidation"
	KindFlashLoan   OpportunityKind = "flashloan"
)

// Opportunity is a candidate profitable action emitted by a strategy.
// Shared fields are always set; exactly one of the kind-specific payloads
// (Arbitrage, Sandwich, Liquidation, FlashLoan) matches Kind.
type Opportunity struct {
	ID          string
	StrategyTag string
	Kind        OpportunityKind

	ExpectedProfit *big.Int // wei
	RequiredAmount *big.Int // wei
	GasEstimate    uint64
	GasPrice       *big.Int // wei, strategy's suggested price
	Confidence     float64  // 0.0-1.0
	Priority       int

	CreatedAt time.Time
	ExpiresAt time.Time

	// Risk inputs supplied by the detecting strategy.
	TokenRiskScore     float64
	VenueRiskScore     float64
	EstimatedSlippage  float64
	EstimatedLiquidity *big.Int // wei

	Arbitrage   *ArbitrageParams
	Sandwich    *SandwichParams
	Liquidation *LiquidationParams
	FlashLoan   *FlashLoanParams
}

// ArbitrageParams describes a single-transaction swap-path arbitrage.
type ArbitrageParams struct {
	Router   common.Address
	Path     []common.Address
	CallData []byte
	MinOut   *big.Int
}

// SandwichParams describes a front/backrun pair around a target transaction.
type SandwichParams struct {
	TargetTx  common.Hash
	Router    common.Address
	FrontCall []byte
	BackCall  []byte
	// Gas price of the victim transaction; the frontrun must price above it
	// and the backrun below it.
	TargetGasPrice *big.Int
}

// LiquidationParams describes a lending-protocol liquidation call.
type LiquidationParams struct {
	Protocol common.Address
	Borrower common.Address
	CallData []byte
}

// FlashLoanParams describes a flash-loan entry-point invocation.
type FlashLoanParams struct {
	Provider common.Address
	Asset    common.Address
	Amount   *big.Int
	Params   []byte
}

// NewOpportunity creates an opportunity with a fresh ID and an expiry of
// createdAt + horizon.
func NewOpportunity(strategyTag string, kind OpportunityKind, horizon time.Duration) *Opportunity {
	now := time.Now()

	return &Opportunity{
		ID:          uuid.New().String(),
		StrategyTag: strategyTag,
		Kind:        kind,
		CreatedAt:   now,
		ExpiresAt:   now.Add(horizon),
		Confidence:  0.5,
	}
}

// Expired reports whether the opportunity's deadline has passed at the given
// instant. The caller supplies the clock so queuing delay is accounted for.
func (o *Opportunity) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// String returns a short human-readable representation.
func (o *Opportunity) String() string {
	id := o.ID
	if len(id) > 8 {
		id = id[:8]
	}

	return fmt.Sprintf("Opportunity[%s] kind=%s strategy=%s profit=%s gas=%d",
		id, o.Kind, o.StrategyTag, o.ExpectedProfit, o.GasEstimate)
}
