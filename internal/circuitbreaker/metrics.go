package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BreakerState tracks the current breaker state (0=CLOSED, 1=OPEN, 2=HALF_OPEN).
	BreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mevflow_breaker_state",
		Help: "Circuit breaker state (0=CLOSED, 1=OPEN, 2=HALF_OPEN)",
	})

	// StateTransitionsTotal counts breaker state transitions.
	StateTransitionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mevflow_breaker_state_transitions_total",
		Help: "Total circuit breaker state transitions",
	})

	// FailuresRecordedTotal counts failures reported to the breaker.
	FailuresRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mevflow_breaker_failures_recorded_total",
		Help: "Total execution failures recorded by the breaker",
	})

	// StrategiesDisabled counts strategies disabled by per-strategy limits.
	StrategiesDisabled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mevflow_breaker_strategies_disabled_total",
		Help: "Total strategies disabled after exceeding their failure limit",
	})
)
