package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Hits tracks feature cache hits by lookup kind (scoped, latest).
	Hits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feature_cache_hits_total",
			Help: "Total number of feature cache hits",
		},
		[]string{"lookup"},
	)

	// Misses tracks feature cache misses by lookup kind.
	Misses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feature_cache_misses_total",
			Help: "Total number of feature cache misses",
		},
		[]string{"lookup"},
	)

	// Writes tracks feature records written.
	Writes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feature_cache_writes_total",
			Help: "Total number of feature records written",
		},
	)

	// Errors tracks store operation errors.
	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feature_cache_errors_total",
			Help: "Total number of feature store operation errors",
		},
		[]string{"operation"}, // "get", "put", "latest", "delete"
	)
)
