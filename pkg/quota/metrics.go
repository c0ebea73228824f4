package quota

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// admissionsTotal counts admitted upstream-bound requests by plan.
	admissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketd_quota_admissions_total",
		Help: "Total admitted upstream-bound requests by plan",
	}, []string{"plan"})

	// denialsTotal counts quota denials by plan.
	denialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketd_quota_denials_total",
		Help: "Total quota denials by plan",
	}, []string{"plan"})

	// rolloverResetsTotal counts calendar-day counter resets.
	rolloverResetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketd_quota_rollover_resets_total",
		Help: "Total daily counter resets on calendar-date change",
	})
)
