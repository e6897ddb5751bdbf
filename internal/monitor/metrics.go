package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsPublishedTotal counts published events by kind.
	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mevflow_monitor_events_published_total",
		Help: "Total chain events published to subscribers",
	}, []string{"kind"})

	// EventsDroppedTotal counts events dropped on full subscriber channels.
	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mevflow_monitor_events_dropped_total",
		Help: "Total chain events dropped due to slow subscribers",
	}, []string{"kind"})

	// DuplicatesDroppedTotal counts pending hashes rejected by the dedup set.
	DuplicatesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mevflow_monitor_duplicates_dropped_total",
		Help: "Total duplicate pending transaction hashes dropped",
	})

	// BlocksProcessedTotal counts ingested blocks.
	BlocksProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mevflow_monitor_blocks_processed_total",
		Help: "Total blocks processed",
	})

	// ReorgsDetectedTotal counts detected chain reorganizations.
	ReorgsDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mevflow_monitor_reorgs_detected_total",
		Help: "Total chain reorganizations detected",
	})

	// DedupSetSize tracks the dedup set cardinality.
	DedupSetSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mevflow_monitor_dedup_set_size",
		Help: "Current dedup set size",
	})
)
