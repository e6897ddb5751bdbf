package admission

import (
	"sync"
	"time"
)

const maxTradeHistory = 200

// History tracks daily PnL counters and a bounded trade history used by the
// Kelly sizing step. Daily counters reset on UTC date rollover.
type History struct {
	mu sync.Mutex

	day        string // UTC date of the current counters, YYYY-MM-DD
	dailyLoss  float64
	dailyWins  int
	dailyCount int

	trades []float64 // realized profit in ETH, newest last

	now func() time.Time
}

// NewHistory creates an empty trade history.
func NewHistory() *History {
	h := &History{now: time.Now}
	h.day = h.now().UTC().Format("2006-01-02")
	return h
}

// RecordOutcome registers one realized trade result in ETH.
// Losses are recorded as negative profit and accrue against the daily budget.
func (h *History) RecordOutcome(profitETH float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.rolloverLocked()

	h.dailyCount++
	if profitETH < 0 {
		h.dailyLoss += -profitETH
	} else {
		h.dailyWins++
	}

	h.trades = append(h.trades, profitETH)
	if len(h.trades) > maxTradeHistory {
		h.trades = h.trades[len(h.trades)-maxTradeHistory:]
	}
}

// DailyLossUsed returns the loss accrued against today's budget in ETH.
func (h *History) DailyLossUsed() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.rolloverLocked()

	return h.dailyLoss
}

// TradeCount returns the number of trades in the retained history.
func (h *History) TradeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.trades)
}

// Stats returns win rate, average win and average loss over the retained
// history. Averages are zero when no wins or losses exist.
func (h *History) Stats() (winRate, avgWin, avgLoss float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.trades) == 0 {
		return 0, 0, 0
	}

	var wins, losses int
	var winSum, lossSum float64
	for _, p := range h.trades {
		if p > 0 {
			wins++
			winSum += p
		} else if p < 0 {
			losses++
			lossSum += -p
		}
	}

	winRate = float64(wins) / float64(len(h.trades))
	if wins > 0 {
		avgWin = winSum / float64(wins)
	}
	if losses > 0 {
		avgLoss = lossSum / float64(losses)
	}

	return winRate, avgWin, avgLoss
}

// DailySnapshot returns today's counters for status reporting.
func (h *History) DailySnapshot() (lossUsed float64, trades, wins int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.rolloverLocked()

	return h.dailyLoss, h.dailyCount, h.dailyWins
}

func (h *History) rolloverLocked() {
	today := h.now().UTC().Format("2006-01-02")
	if today == h.day {
		return
	}

	h.day = today
	h.dailyLoss = 0
	h.dailyWins = 0
	h.dailyCount = 0
}
