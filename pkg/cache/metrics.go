package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (memory, redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progress_cache_hits_total",
			Help: "Total number of report cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks cache misses by layer
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progress_cache_misses_total",
			Help: "Total number of report cache misses",
		},
		[]string{"layer"},
	)

	// CacheBytesWritten counts report bytes written by layer. Overwrites count again.
	CacheBytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progress_cache_bytes_written_total",
			Help: "Total bytes of reports written to the cache",
		},
		[]string{"layer"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progress_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set"
	)
)
