package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BundleSubmissionsTotal counts bundle submissions by outcome.
	BundleSubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mevflow_relay_bundle_submissions_total",
		Help: "Bundle submissions to the private relay by outcome",
	}, []string{"outcome"})

	// RequestDurationSeconds observes relay round-trip latency per method.
	RequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mevflow_relay_request_duration_seconds",
		Help:    "Relay request duration by RPC method",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
)
