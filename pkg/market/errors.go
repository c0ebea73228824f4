package market

import (
	"errors"
	"fmt"

	"github.com/marketdash/marketd/pkg/quota"
)

// ErrPerPageRange rejects out-of-range per_page values before any cache or
// quota interaction.
var ErrPerPageRange = errors.New("per_page must be between 1 and 250")

// QuotaExceededError is returned when the daily admission check denies a
// request. It is a normal control-flow value, not an upstream failure, so the
// stale-cache fallback never applies to it.
type QuotaExceededError struct {
	Plan  quota.Plan
	Limit int
}

// Error implements the error interface.
func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("Daily request limit reached (%s plan: %d/day)", e.Plan, e.Limit)
}

// UpstreamError is returned when the upstream call failed and no cached
// entry was available for fallback.
type UpstreamError struct {
	// Overloaded marks an explicit upstream rate limit (maps to 503);
	// other failures are unavailability (maps to 502).
	Overloaded bool

	// Status is the upstream status marker ("429", "500", "network_error").
	Status string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Overloaded {
		return fmt.Sprintf("upstream rate limited (status %s), no cached data available", e.Status)
	}
	return fmt.Sprintf("upstream request failed (status %s), no cached data available", e.Status)
}
