package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheHits tracks live cache hits.
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketd_cache_hits_total",
		Help: "Total number of live cache hits",
	})

	// cacheMisses tracks cache misses, including reads of expired entries.
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketd_cache_misses_total",
		Help: "Total number of cache misses (absent or expired entries)",
	})

	// cacheStaleHits tracks fallback reads that returned an expired entry.
	cacheStaleHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketd_cache_stale_hits_total",
		Help: "Total number of stale fallback reads served from the cache",
	})

	// cacheEntries tracks the number of stored entries, expired ones included.
	cacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketd_cache_entries",
		Help: "Current number of cache entries (expired entries included)",
	})
)
