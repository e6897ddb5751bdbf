package storage

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sgriggs/mevflow/internal/admission"
	"github.com/sgriggs/mevflow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newMockSink(t *testing.T) (*PostgresSink, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewPostgresSinkFromDB(db, zaptest.NewLogger(t)), mock
}

func TestPostgresSink_RecordDecision(t *testing.T) {
	t.Parallel()

	sink, mock := newMockSink(t)

	opp := types.NewOpportunity("arb-v2", types.KindArbitrage, time.Minute)
	assessment := &admission.Assessment{
		OpportunityID:  opp.ID,
		Approved:       true,
		CompositeScore: 1.8,
		PositionETH:    2.5,
		Checks: []admission.CheckResult{
			{Name: "gas-price", Passed: true, Value: 40, Threshold: 300, Weight: 1.5, Ratio: 0.13},
		},
		EvaluatedAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO admission_decisions").
		WithArgs(opp.ID, "arb-v2", "arbitrage", true, "", 1.8, 2.5, sqlmock.AnyArg(), assessment.EvaluatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, sink.RecordDecision(context.Background(), opp, assessment))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_RecordOutcome(t *testing.T) {
	t.Parallel()

	sink, mock := newMockSink(t)

	outcome := &types.ExecutionOutcome{
		OpportunityID:  "opp-1",
		StrategyTag:    "arb-v2",
		Success:        true,
		TxHash:         common.HexToHash("0x0abc"),
		RealizedProfit: big.NewInt(40_000_000_000_000_000),
		GasUsed:        210_000,
		CompletedAt:    time.Now(),
	}

	mock.ExpectExec("INSERT INTO execution_outcomes").
		WithArgs("opp-1", "arb-v2", true, outcome.TxHash.Hex(), "",
			sqlmock.AnyArg(), int64(210_000), "", "", outcome.CompletedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, sink.RecordOutcome(context.Background(), outcome))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_RecordOutcomeFailure(t *testing.T) {
	t.Parallel()

	sink, mock := newMockSink(t)

	outcome := &types.ExecutionOutcome{
		OpportunityID: "opp-2",
		StrategyTag:   "sandwich-v2",
		Success:       false,
		Failure:       types.FailureNotIncluded,
		Err:           errors.New("bundle missed block 123"),
		CompletedAt:   time.Now(),
	}

	mock.ExpectExec("INSERT INTO execution_outcomes").
		WithArgs("opp-2", "sandwich-v2", false, outcome.TxHash.Hex(), "",
			sqlmock.AnyArg(), int64(0), string(types.FailureNotIncluded),
			"bundle missed block 123", outcome.CompletedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, sink.RecordOutcome(context.Background(), outcome))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_InsertErrorSurfaces(t *testing.T) {
	t.Parallel()

	sink, mock := newMockSink(t)

	mock.ExpectExec("INSERT INTO execution_outcomes").
		WillReturnError(errors.New("connection reset"))

	err := sink.RecordOutcome(context.Background(), &types.ExecutionOutcome{CompletedAt: time.Now()})
	assert.ErrorContains(t, err, "insert outcome")
}
