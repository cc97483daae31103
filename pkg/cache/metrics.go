package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by tier
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worklog_cache_hits_total",
			Help: "Total number of tracker cache hits",
		},
		[]string{"tier"}, // "short", "medium", "long"
	)

	// CacheMisses tracks cache misses by tier
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worklog_cache_misses_total",
			Help: "Total number of tracker cache misses",
		},
		[]string{"tier"},
	)

	// CacheWrites tracks stored entries by tier
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worklog_cache_writes_total",
			Help: "Total number of entries written to the tracker cache",
		},
		[]string{"tier"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worklog_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "decode"
	)
)
