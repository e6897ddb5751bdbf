package storage

import (
	"context"

	"github.com/sgriggs/mevflow/internal/admission"
	"github.com/sgriggs/mevflow/pkg/types"
	"go.uber.org/zap"
)

// ConsoleSink logs decisions and outcomes instead of persisting them.
// Default when no postgres is configured.
type ConsoleSink struct {
	logger *zap.Logger
}

// NewConsoleSink creates a log-only sink.
func NewConsoleSink(logger *zap.Logger) *ConsoleSink {
	return &ConsoleSink{logger: logger}
}

// RecordDecision logs one admission verdict.
func (s *ConsoleSink) RecordDecision(_ context.Context, opp *types.Opportunity, assessment *admission.Assessment) error {
	s.logger.Info("admission-decision",
		zap.String("opportunity_id", opp.ID),
		zap.String("strategy", opp.StrategyTag),
		zap.Bool("approved", assessment.Approved),
		zap.String("reject_reason", assessment.RejectReason),
		zap.Float64("composite_score", assessment.CompositeScore),
		zap.Float64("position_eth", assessment.PositionETH))

	RecordsWrittenTotal.WithLabelValues("decision").Inc()
	return nil
}

// RecordOutcome logs one terminal execution outcome.
func (s *ConsoleSink) RecordOutcome(_ context.Context, outcome *types.ExecutionOutcome) error {
	profit := ""
	if outcome.RealizedProfit != nil {
		profit = outcome.RealizedProfit.String()
	}

	s.logger.Info("execution-outcome",
		zap.String("opportunity_id", outcome.OpportunityID),
		zap.String("strategy", outcome.StrategyTag),
		zap.Bool("success", outcome.Success),
		zap.String("tx_hash", outcome.TxHash.Hex()),
		zap.String("bundle_hash", outcome.BundleHash),
		zap.String("realized_profit_wei", profit),
		zap.Uint64("gas_used", outcome.GasUsed),
		zap.String("failure", string(outcome.Failure)))

	RecordsWrittenTotal.WithLabelValues("outcome").Inc()
	return nil
}

// Close is a no-op for the console sink.
func (s *ConsoleSink) Close() error {
	return nil
}
