package providerpool

import (
	"sync"
	"time"
)

const latencyWindow = 50

// minRequestsForHealth is the minimum sample size before the error-rate rule
// can mark a provider unhealthy.
const minRequestsForHealth = 10

// Health tracks per-provider reliability. Request and error counters are
// monotonic; the latency window rolls.
type Health struct {
	mu        sync.Mutex
	requests  uint64
	errors    uint64
	latencies []time.Duration
	latIdx    int
	lastBlock uint64
	unhealthy bool
}

// HealthSnapshot is a point-in-time copy of a provider's health record.
type HealthSnapshot struct {
	Name       string        `json:"name"`
	Healthy    bool          `json:"healthy"`
	Requests   uint64        `json:"requests"`
	Errors     uint64        `json:"errors"`
	ErrorRate  float64       `json:"error_rate"`
	AvgLatency time.Duration `json:"avg_latency"`
	LastBlock  uint64        `json:"last_block"`
}

func newHealth() *Health {
	return &Health{
		latencies: make([]time.Duration, 0, latencyWindow),
	}
}

// record updates counters and the rolling latency window after one call.
// The healthy flag flips false once the error rate exceeds 50% over at least
// minRequestsForHealth requests.
func (h *Health) record(latency time.Duration, failed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.requests++
	if failed {
		h.errors++
	}

	if len(h.latencies) < latencyWindow {
		h.latencies = append(h.latencies, latency)
	} else {
		h.latencies[h.latIdx] = latency
		h.latIdx = (h.latIdx + 1) % latencyWindow
	}

	if h.requests >= minRequestsForHealth && h.errorRateLocked() > 0.5 {
		h.unhealthy = true
	}
}

// setBlock records the latest reported block height.
func (h *Health) setBlock(block uint64) {
	h.mu.Lock()
	h.lastBlock = block
	h.mu.Unlock()
}

// setUnhealthy forces the healthy flag, used by the periodic lag check.
func (h *Health) setUnhealthy(unhealthy bool) {
	h.mu.Lock()
	h.unhealthy = unhealthy
	h.mu.Unlock()
}

// healthy reports whether the provider is currently usable.
func (h *Health) healthy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.unhealthy
}

func (h *Health) errorRateLocked() float64 {
	if h.requests == 0 {
		return 0
	}
	return float64(h.errors) / float64(h.requests)
}

// avgLatencyLocked returns the mean of the rolling window.
func (h *Health) avgLatencyLocked() time.Duration {
	if len(h.latencies) == 0 {
		return 0
	}

	var sum time.Duration
	for _, l := range h.latencies {
		sum += l
	}
	return sum / time.Duration(len(h.latencies))
}

// score returns the selection score: lower is better. Latency in
// milliseconds, plus the error rate scaled by 1000, minus priority weight.
func (h *Health) score(priority int) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	latencyMs := float64(h.avgLatencyLocked()) / float64(time.Millisecond)
	return latencyMs + h.errorRateLocked()*1000 - float64(priority)*10
}

// snapshot copies the health record for status reporting.
func (h *Health) snapshot(name string) HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	return HealthSnapshot{
		Name:       name,
		Healthy:    !h.unhealthy,
		Requests:   h.requests,
		Errors:     h.errors,
		ErrorRate:  h.errorRateLocked(),
		AvgLatency: h.avgLatencyLocked(),
		LastBlock:  h.lastBlock,
	}
}
