package admission

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecisionsTotal counts admission decisions by outcome.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mevflow_admission_decisions_total",
		Help: "Total admission decisions",
	}, []string{"outcome"})

	// CheckFailuresTotal counts failed risk checks by check name.
	CheckFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mevflow_admission_check_failures_total",
		Help: "Total failed risk checks",
	}, []string{"check"})

	// CompositeScoreObserved tracks the composite score of approved opportunities.
	CompositeScoreObserved = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mevflow_admission_composite_score",
		Help:    "Composite risk score of approved opportunities",
		Buckets: prometheus.LinearBuckets(0, 1, 11),
	})
)
