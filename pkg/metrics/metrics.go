// Package metrics documents the Prometheus metrics exposed by marketd.
// Metrics are defined in their owning packages (cache, quota, coingecko,
// market) via promauto and served on /metrics by pkg/api.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the Prometheus registerer used by all marketd metrics.
var Registry = prometheus.DefaultRegisterer

// Metrics catalogue
//
// Cache (pkg/cache):
//   - marketd_cache_hits_total (Counter): live cache hits
//   - marketd_cache_misses_total (Counter): misses, expired reads included
//   - marketd_cache_stale_hits_total (Counter): stale fallback reads
//   - marketd_cache_entries (Gauge): stored entries, expired included
//
// Quota (pkg/quota):
//   - marketd_quota_admissions_total{plan} (Counter): admitted upstream-bound requests
//   - marketd_quota_denials_total{plan} (Counter): quota denials
//   - marketd_quota_rollover_resets_total (Counter): daily counter resets
//
// Upstream (pkg/coingecko):
//   - marketd_upstream_requests_total{status} (Counter): requests by HTTP status or network_error
//   - marketd_upstream_request_duration_seconds (Histogram): request duration
//   - marketd_upstream_outcomes_total{class} (Counter): classified outcomes
//
// Orchestrator (pkg/market):
//   - marketd_market_requests_total{result} (Counter): requests by result
//     (hit, fresh, stale, denied, failed, invalid)
//
// Example queries:
//
//   # Cache hit rate
//   rate(marketd_cache_hits_total[5m]) /
//   (rate(marketd_cache_hits_total[5m]) + rate(marketd_cache_misses_total[5m]))
//
//   # Share of responses served stale
//   rate(marketd_market_requests_total{result="stale"}[5m])
//
//   # Quota pressure by plan
//   rate(marketd_quota_denials_total[1h])
