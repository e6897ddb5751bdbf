package admission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHistory_DailyCountersRollOverAtUTCMidnight(t *testing.T) {
	t.Parallel()

	current := time.Date(2026, 3, 14, 23, 50, 0, 0, time.UTC)
	h := NewHistory()
	h.now = func() time.Time { return current }
	h.day = current.Format("2006-01-02")

	h.RecordOutcome(-0.3)
	h.RecordOutcome(0.1)

	assert.Equal(t, 0.3, h.DailyLossUsed())

	loss, trades, wins := h.DailySnapshot()
	assert.Equal(t, 0.3, loss)
	assert.Equal(t, 2, trades)
	assert.Equal(t, 1, wins)

	current = current.Add(20 * time.Minute) // past midnight UTC

	assert.Equal(t, 0.0, h.DailyLossUsed())
	_, trades, wins = h.DailySnapshot()
	assert.Equal(t, 0, trades)
	assert.Equal(t, 0, wins)

	// The Kelly trade history survives the rollover.
	assert.Equal(t, 2, h.TradeCount())
}

func TestHistory_Stats(t *testing.T) {
	t.Parallel()

	h := NewHistory()
	h.RecordOutcome(0.2)
	h.RecordOutcome(0.1)
	h.RecordOutcome(-0.05)
	h.RecordOutcome(-0.15)

	winRate, avgWin, avgLoss := h.Stats()
	assert.InDelta(t, 0.5, winRate, 1e-9)
	assert.InDelta(t, 0.15, avgWin, 1e-9)
	assert.InDelta(t, 0.10, avgLoss, 1e-9)
}

func TestHistory_StatsEmpty(t *testing.T) {
	t.Parallel()

	winRate, avgWin, avgLoss := NewHistory().Stats()
	assert.Zero(t, winRate)
	assert.Zero(t, avgWin)
	assert.Zero(t, avgLoss)
}

func TestHistory_TradeHistoryIsBounded(t *testing.T) {
	t.Parallel()

	h := NewHistory()
	for i := 0; i < maxTradeHistory+25; i++ {
		h.RecordOutcome(0.01)
	}

	assert.Equal(t, maxTradeHistory, h.TradeCount())
}
