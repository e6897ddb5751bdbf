package storage

import (
	"context"

	"github.com/sgriggs/mevflow/internal/admission"
	"github.com/sgriggs/mevflow/pkg/types"
)

// Sink persists admission decisions and execution outcomes. Writes are
// best-effort on the hot path; a failed write is logged, never fatal.
type Sink interface {
	// RecordDecision persists one admission verdict.
	RecordDecision(ctx context.Context, opp *types.Opportunity, assessment *admission.Assessment) error

	// RecordOutcome persists one terminal execution outcome.
	RecordOutcome(ctx context.Context, outcome *types.ExecutionOutcome) error

	// Close flushes and releases the sink.
	Close() error
}
