package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by store name
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_cache_hits_total",
			Help: "Total number of cache hits by store",
		},
		[]string{"store"},
	)

	// CacheMisses tracks cache misses by store name
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_cache_misses_total",
			Help: "Total number of cache misses by store",
		},
		[]string{"store"},
	)

	// CacheEntries tracks the current entry count by store name
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_cache_entries",
			Help: "Current number of entries by store",
		},
		[]string{"store"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "put", "delete", "destroy"
	)
)
