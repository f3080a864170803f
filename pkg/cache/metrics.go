package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks payloads served from Redis.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pmid_cache_hits_total",
			Help: "Total number of search payload cache hits",
		},
	)

	// CacheMisses tracks lookups that found no usable entry.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pmid_cache_misses_total",
			Help: "Total number of search payload cache misses",
		},
	)

	// CacheErrors tracks cache operation errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmid_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
