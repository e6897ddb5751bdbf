package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	_ "github.com/lib/pq"
	"github.com/sgriggs/mevflow/internal/admission"
	"github.com/sgriggs/mevflow/pkg/types"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS admission_decisions (
	id              BIGSERIAL PRIMARY KEY,
	opportunity_id  TEXT        NOT NULL,
	strategy_tag    TEXT        NOT NULL,
	kind            TEXT        NOT NULL,
	approved        BOOLEAN     NOT NULL,
	reject_reason   TEXT,
	composite_score DOUBLE PRECISION NOT NULL,
	position_eth    DOUBLE PRECISION,
	checks          JSONB,
	evaluated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS execution_outcomes (
	id                  BIGSERIAL PRIMARY KEY,
	opportunity_id      TEXT        NOT NULL,
	strategy_tag        TEXT        NOT NULL,
	success             BOOLEAN     NOT NULL,
	tx_hash             TEXT,
	bundle_hash         TEXT,
	realized_profit_wei NUMERIC(78,0),
	gas_used            BIGINT,
	failure_kind        TEXT,
	error_detail        TEXT,
	completed_at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_opportunity ON admission_decisions(opportunity_id);
CREATE INDEX IF NOT EXISTS idx_outcomes_opportunity ON execution_outcomes(opportunity_id);
`

const insertDecisionSQL = `
INSERT INTO admission_decisions
	(opportunity_id, strategy_tag, kind, approved, reject_reason, composite_score, position_eth, checks, evaluated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

const insertOutcomeSQL = `
INSERT INTO execution_outcomes
	(opportunity_id, strategy_tag, success, tx_hash, bundle_hash, realized_profit_wei, gas_used, failure_kind, error_detail, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// PostgresSink persists decisions and outcomes to postgres.
type PostgresSink struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds postgres sink configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresSink opens the database, verifies connectivity and ensures the
// schema exists.
func NewPostgresSink(cfg *PostgresConfig) (*PostgresSink, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	_, err = db.Exec(schema)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	cfg.Logger.Info("postgres-sink-initialized",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return &PostgresSink{db: db, logger: cfg.Logger}, nil
}

// NewPostgresSinkFromDB wraps an existing database handle. Used by tests.
func NewPostgresSinkFromDB(db *sql.DB, logger *zap.Logger) *PostgresSink {
	return &PostgresSink{db: db, logger: logger}
}

// RecordDecision persists one admission verdict.
func (s *PostgresSink) RecordDecision(ctx context.Context, opp *types.Opportunity, assessment *admission.Assessment) error {
	checksJSON, err := json.Marshal(assessment.Checks)
	if err != nil {
		return fmt.Errorf("marshal checks: %w", err)
	}

	_, err = s.db.ExecContext(ctx, insertDecisionSQL,
		opp.ID,
		opp.StrategyTag,
		string(opp.Kind),
		assessment.Approved,
		assessment.RejectReason,
		assessment.CompositeScore,
		assessment.PositionETH,
		checksJSON,
		assessment.EvaluatedAt,
	)
	if err != nil {
		WriteErrorsTotal.WithLabelValues("decision").Inc()
		return fmt.Errorf("insert decision: %w", err)
	}

	RecordsWrittenTotal.WithLabelValues("decision").Inc()
	return nil
}

// RecordOutcome persists one terminal execution outcome.
func (s *PostgresSink) RecordOutcome(ctx context.Context, outcome *types.ExecutionOutcome) error {
	profit := ""
	if outcome.RealizedProfit != nil {
		profit = outcome.RealizedProfit.String()
	}

	errDetail := ""
	if outcome.Err != nil {
		errDetail = outcome.Err.Error()
	}

	_, err := s.db.ExecContext(ctx, insertOutcomeSQL,
		outcome.OpportunityID,
		outcome.StrategyTag,
		outcome.Success,
		outcome.TxHash.Hex(),
		outcome.BundleHash,
		sql.NullString{String: profit, Valid: profit != ""},
		int64(outcome.GasUsed),
		string(outcome.Failure),
		errDetail,
		outcome.CompletedAt,
	)
	if err != nil {
		WriteErrorsTotal.WithLabelValues("outcome").Inc()
		return fmt.Errorf("insert outcome: %w", err)
	}

	RecordsWrittenTotal.WithLabelValues("outcome").Inc()
	return nil
}

// Close releases the database handle.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}
