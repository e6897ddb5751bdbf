package circuitbreaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/sgriggs/mevflow/pkg/types"
	"go.uber.org/zap"
)

// State is the breaker's position in its 3-state machine.
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the canonical state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Breaker is a 3-state fault-tolerance gate over execution outcomes.
// CLOSED admits everything; OPEN blocks all admissions until the cooldown
// elapses, then a single probe (HALF_OPEN) decides whether to close again.
// Per-strategy failure counts can disable one strategy without tripping the
// global breaker.
type Breaker struct {
	mu sync.Mutex

	state               State
	openedAt            time.Time
	consecutiveFailures int
	failureTimes        []time.Time // trailing-hour window, pruned on use
	strategyFailures    map[string]int
	disabledStrategies  map[string]bool

	maxConsecutiveFailures int
	maxHourlyFailures      int
	cooldown               time.Duration
	strategyFailureLimit   int

	logger *zap.Logger
	now    func() time.Time
}

// Config holds circuit breaker configuration.
type Config struct {
	MaxConsecutiveFailures int
	MaxHourlyFailures      int
	Cooldown               time.Duration
	StrategyFailureLimit   int
	Logger                 *zap.Logger
}

// Status holds current breaker status for debugging and HTTP endpoints.
type Status struct {
	State               string          `json:"state"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	HourlyFailures      int             `json:"hourly_failures"`
	CooldownRemaining   time.Duration   `json:"cooldown_remaining"`
	StrategyFailures    map[string]int  `json:"strategy_failures"`
	DisabledStrategies  map[string]bool `json:"disabled_strategies"`
}

// New creates a new circuit breaker with the given configuration.
func New(cfg *Config) (*Breaker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		return nil, fmt.Errorf("max consecutive failures must be positive")
	}
	if cfg.MaxHourlyFailures <= 0 {
		return nil, fmt.Errorf("max hourly failures must be positive")
	}
	if cfg.Cooldown <= 0 {
		return nil, fmt.Errorf("cooldown must be positive")
	}
	if cfg.StrategyFailureLimit <= 0 {
		return nil, fmt.Errorf("strategy failure limit must be positive")
	}

	breaker := &Breaker{
		state:                  StateClosed,
		strategyFailures:       make(map[string]int),
		disabledStrategies:     make(map[string]bool),
		maxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		maxHourlyFailures:      cfg.MaxHourlyFailures,
		cooldown:               cfg.Cooldown,
		strategyFailureLimit:   cfg.StrategyFailureLimit,
		logger:                 cfg.Logger,
		now:                    time.Now,
	}

	BreakerState.Set(float64(StateClosed))

	return breaker, nil
}

// Allow reports whether new admissions may proceed. While OPEN it returns
// types.ErrCircuitOpen until the cooldown has elapsed, at which point the
// breaker moves to HALF_OPEN and admits a single probe.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cooldown {
			b.transitionLocked(StateHalfOpen)
			return nil
		}
		return types.ErrCircuitOpen
	default:
		return types.ErrCircuitOpen
	}
}

// AllowStrategy reports whether a specific strategy is still enabled.
func (b *Breaker) AllowStrategy(tag string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disabledStrategies[tag] {
		return fmt.Errorf("strategy %q disabled after %d failures", tag, b.strategyFailures[tag])
	}

	return nil
}

// RecordSuccess registers a successful execution outcome.
// A success while HALF_OPEN closes the breaker and resets the consecutive
// failure count.
func (b *Breaker) RecordSuccess(tag string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0

	if b.state == StateHalfOpen {
		b.transitionLocked(StateClosed)
		b.logger.Info("breaker-closed-after-probe", zap.String("strategy", tag))
	}
}

// RecordFailure registers a failed execution outcome. A failure while OPEN
// counts toward the windows but does not restart the cooldown timer.
func (b *Breaker) RecordFailure(tag string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.consecutiveFailures++
	b.failureTimes = append(b.failureTimes, now)
	b.pruneHourlyLocked(now)

	FailuresRecordedTotal.Inc()

	if tag != "" {
		b.strategyFailures[tag]++
		if !b.disabledStrategies[tag] && b.strategyFailures[tag] >= b.strategyFailureLimit {
			b.disabledStrategies[tag] = true
			StrategiesDisabled.Inc()
			b.logger.Warn("strategy-disabled",
				zap.String("strategy", tag),
				zap.Int("failures", b.strategyFailures[tag]))
		}
	}

	switch b.state {
	case StateHalfOpen:
		// Probe failed: re-open and restart the cooldown.
		b.openedAt = now
		b.transitionLocked(StateOpen)
	case StateClosed:
		if b.consecutiveFailures >= b.maxConsecutiveFailures ||
			len(b.failureTimes) >= b.maxHourlyFailures {
			b.openedAt = now
			b.transitionLocked(StateOpen)
			b.logger.Warn("breaker-opened",
				zap.Int("consecutive_failures", b.consecutiveFailures),
				zap.Int("hourly_failures", len(b.failureTimes)),
				zap.Duration("cooldown", b.cooldown))
		}
	case StateOpen:
		// Already open; openedAt deliberately untouched.
	}
}

// Reset manually closes the breaker and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.failureTimes = nil
	b.strategyFailures = make(map[string]int)
	b.disabledStrategies = make(map[string]bool)
	b.transitionLocked(StateClosed)

	b.logger.Info("breaker-manually-reset")
}

// State returns the current state, moving OPEN to HALF_OPEN if the cooldown
// has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		b.transitionLocked(StateHalfOpen)
	}

	return b.state
}

// Status returns a copy of the breaker's current status.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pruneHourlyLocked(b.now())

	remaining := time.Duration(0)
	if b.state == StateOpen {
		elapsed := b.now().Sub(b.openedAt)
		if elapsed < b.cooldown {
			remaining = b.cooldown - elapsed
		}
	}

	strategyFailures := make(map[string]int, len(b.strategyFailures))
	for k, v := range b.strategyFailures {
		strategyFailures[k] = v
	}

	disabled := make(map[string]bool, len(b.disabledStrategies))
	for k, v := range b.disabledStrategies {
		disabled[k] = v
	}

	return Status{
		State:               b.state.String(),
		ConsecutiveFailures: b.consecutiveFailures,
		HourlyFailures:      len(b.failureTimes),
		CooldownRemaining:   remaining,
		StrategyFailures:    strategyFailures,
		DisabledStrategies:  disabled,
	}
}

// pruneHourlyLocked drops failure timestamps older than the trailing hour.
// Exact sliding window, not bucketed.
func (b *Breaker) pruneHourlyLocked(now time.Time) {
	cutoff := now.Add(-time.Hour)
	idx := 0
	for idx < len(b.failureTimes) && b.failureTimes[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		b.failureTimes = append(b.failureTimes[:0], b.failureTimes[idx:]...)
	}
}

func (b *Breaker) transitionLocked(to State) {
	if b.state == to {
		return
	}

	b.logger.Info("breaker-state-transition",
		zap.String("from", b.state.String()),
		zap.String("to", to.String()))

	b.state = to
	BreakerState.Set(float64(to))
	StateTransitionsTotal.Inc()
}
