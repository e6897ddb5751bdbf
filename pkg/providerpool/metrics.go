package providerpool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts RPC calls per provider and outcome.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mevflow_provider_requests_total",
		Help: "Total RPC requests per provider",
	}, []string{"provider", "outcome"})

	// RequestLatencySeconds observes per-provider RPC latency.
	RequestLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mevflow_provider_request_latency_seconds",
		Help:    "RPC request latency per provider",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	// HealthyProviders tracks the number of currently healthy providers.
	HealthyProviders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mevflow_provider_healthy_count",
		Help: "Number of providers currently considered healthy",
	})

	// FallbackExhaustedTotal counts operations that failed on every provider.
	FallbackExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mevflow_provider_fallback_exhausted_total",
		Help: "Operations for which all providers failed",
	})

	// BroadcastsTotal counts parallel broadcast attempts by outcome.
	BroadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mevflow_provider_broadcasts_total",
		Help: "Transaction broadcasts by outcome",
	}, []string{"outcome"})
)
