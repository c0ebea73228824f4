package market

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// requestsTotal counts orchestrated requests by result:
// hit, fresh, stale, denied, failed, invalid.
var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "marketd_market_requests_total",
	Help: "Total market requests by result",
}, []string{"result"})
