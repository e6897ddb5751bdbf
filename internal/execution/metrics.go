package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExecutionsTotal counts terminal outcomes by result.
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mevflow_executions_total",
		Help: "Total executions by terminal outcome",
	}, []string{"outcome"})

	// InFlightExecutions tracks executions currently past admission.
	InFlightExecutions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mevflow_executions_in_flight",
		Help: "Executions currently in flight",
	})

	// ExecutionDurationSeconds tracks wall time from approval to outcome.
	ExecutionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mevflow_execution_duration_seconds",
		Help:    "Execution duration from approval to terminal outcome",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	// NoncesReservedTotal counts reserved nonces.
	NoncesReservedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mevflow_nonces_reserved_total",
		Help: "Total nonces reserved from local counters",
	})

	// NonceInvalidationsTotal counts counter invalidations forcing a chain re-query.
	NonceInvalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mevflow_nonce_invalidations_total",
		Help: "Total nonce counter invalidations",
	})
)
