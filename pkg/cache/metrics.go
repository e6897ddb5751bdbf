package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHitsTotal counts cache lookups that found an entry.
	CacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mevflow_cache_hits_total",
		Help: "Total number of cache hits",
	})

	// CacheMissesTotal counts cache lookups that found nothing.
	CacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mevflow_cache_misses_total",
		Help: "Total number of cache misses",
	})

	// CacheSetsTotal counts accepted cache writes.
	CacheSetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mevflow_cache_sets_total",
		Help: "Total number of cache sets",
	})

	// CacheDeletesTotal counts cache deletions.
	CacheDeletesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mevflow_cache_deletes_total",
		Help: "Total number of cache deletes",
	})
)
