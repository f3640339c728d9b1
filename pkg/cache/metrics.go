package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by backend
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "people_cache_hits_total",
			Help: "Total number of query cache hits",
		},
		[]string{"backend"}, // "memory", "redis"
	)

	// CacheMisses tracks cache misses by backend, expired reads included
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "people_cache_misses_total",
			Help: "Total number of query cache misses",
		},
		[]string{"backend"},
	)

	// CacheEntries tracks the number of stored entries
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "people_cache_entries",
			Help: "Current number of entries in the query cache",
		},
		[]string{"backend"},
	)

	// CacheRemovals tracks removed entries by reason
	CacheRemovals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "people_cache_removals_total",
			Help: "Total number of cache entries removed",
		},
		[]string{"backend", "reason"}, // "expired", "evicted", "invalidated", "swept"
	)

	// CacheInvalidations tracks whole-cache invalidations
	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "people_cache_invalidations_total",
			Help: "Total number of whole-cache invalidations",
		},
		[]string{"backend"},
	)

	// CacheErrors tracks backend errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "people_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"backend", "operation"}, // "get", "set", "delete", "invalidate", "stats"
	)
)
