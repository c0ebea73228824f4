// Package coingecko fetches market data from the CoinGecko API and
// classifies upstream outcomes for the request orchestrator.
package coingecko

import "strconv"

// MarketItem is the normalized projection of one upstream market record.
// Unknown upstream fields are dropped by decoding into this struct; nullable
// numeric fields stay pointers so an absent upstream value round-trips as
// JSON null rather than a default guess.
type MarketItem struct {
	ID                       string   `json:"id"`
	Symbol                   string   `json:"symbol"`
	Name                     string   `json:"name"`
	Image                    string   `json:"image"`
	CurrentPrice             *float64 `json:"current_price"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
	MarketCapRank            *int     `json:"market_cap_rank"`
}

// OutcomeKind classifies the result of one upstream call.
type OutcomeKind string

const (
	// OutcomeSuccess is a 2xx response with a parsed body.
	OutcomeSuccess OutcomeKind = "success"

	// OutcomeRateLimited is an explicit upstream 429.
	OutcomeRateLimited OutcomeKind = "rate_limited"

	// OutcomeUpstreamError is any other non-2xx status.
	OutcomeUpstreamError OutcomeKind = "upstream_error"

	// OutcomeNetworkFailure is a transport-level failure (refused connection,
	// timeout, DNS).
	OutcomeNetworkFailure OutcomeKind = "network_failure"
)

// Outcome is the classified result of one upstream call. It is produced and
// consumed within a single request's handling and never persisted.
type Outcome struct {
	Kind   OutcomeKind
	Items  []MarketItem
	Status int
}

// UpstreamStatus renders the outcome for the X-Upstream-Status response
// marker: the HTTP status code, or "network_error" for transport failures.
func (o Outcome) UpstreamStatus() string {
	if o.Kind == OutcomeNetworkFailure {
		return "network_error"
	}
	return strconv.Itoa(o.Status)
}

// Query identifies one markets request.
type Query struct {
	VsCurrency string
	PerPage    int
	Page       int
}
