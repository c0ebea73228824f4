package coingecko

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal counts upstream requests by HTTP status or "network_error".
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketd_upstream_requests_total",
		Help: "Total upstream requests by status",
	}, []string{"status"})

	// requestDuration observes upstream request duration in seconds.
	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marketd_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})

	// outcomesTotal counts classified outcomes.
	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketd_upstream_outcomes_total",
		Help: "Total upstream outcomes by class",
	}, []string{"class"})
)
