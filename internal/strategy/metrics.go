package strategy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OpportunitiesEmittedTotal counts opportunities emitted per strategy.
	OpportunitiesEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mevflow_strategy_opportunities_emitted_total",
		Help: "Total opportunities emitted by strategies",
	}, []string{"strategy", "kind"})

	// OpportunitiesDroppedTotal counts opportunities dropped on a full fan-in channel.
	OpportunitiesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mevflow_strategy_opportunities_dropped_total",
		Help: "Total opportunities dropped due to a saturated pipeline",
	}, []string{"strategy"})
)
