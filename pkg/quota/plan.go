// Package quota implements per-user daily admission for upstream-bound
// requests. The counter advances only on genuine upstream fetches, never on
// cache hits, and resets on calendar-date change in a fixed reference zone.
package quota

import "strings"

// Plan is a subscription tier.
type Plan string

const (
	// PlanFree is capped at a configured number of upstream calls per day.
	PlanFree Plan = "Free"

	// PlanPro has no daily ceiling.
	PlanPro Plan = "Pro"
)

// ParsePlan maps a stored plan string to a tier. Only "free"
// (case-insensitive) is capped; anything else is treated as uncapped, which
// matches how stored plan_type values have always been interpreted.
func ParsePlan(s string) Plan {
	if strings.EqualFold(s, string(PlanFree)) {
		return PlanFree
	}
	return PlanPro
}

// Capped reports whether the plan has a daily ceiling.
func (p Plan) Capped() bool {
	return p == PlanFree
}
