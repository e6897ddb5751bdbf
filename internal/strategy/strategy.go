package strategy

import (
	"context"
	"math/big"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sgriggs/mevflow/pkg/types"
)

// Strategy turns chain events into opportunities. Implementations are
// registered with the Runner, which routes each subscribed event kind to
// OnEvent and fans resulting opportunities into the execution pipeline.
type Strategy interface {
	// Name is the strategy tag attached to emitted opportunities.
	Name() string

	// Kinds lists the event kinds the strategy wants to observe.
	Kinds() []types.EventKind

	// OnEvent inspects one event and returns zero or more opportunities.
	OnEvent(ctx context.Context, event *types.ChainEvent) []*types.Opportunity
}

// ProfitCalculator is an optional extension for strategies that can compute
// realized profit from a confirmed receipt more precisely than the default
// expected-minus-gas reconciliation.
type ProfitCalculator interface {
	CalculateProfit(receipt *gethtypes.Receipt, opp *types.Opportunity) (*big.Int, error)
}
