// Package market orchestrates market-data requests across the cache, the
// quota tracker, and the upstream fetcher.
package market

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/marketdash/marketd/pkg/cache"
	"github.com/marketdash/marketd/pkg/coingecko"
	"github.com/marketdash/marketd/pkg/quota"
)

// Per-page bounds accepted by the markets endpoint.
const (
	MinPerPage = 1
	MaxPerPage = 250
)

// Fetcher performs one classified upstream call.
type Fetcher interface {
	FetchMarkets(ctx context.Context, q coingecko.Query) (coingecko.Outcome, error)
}

// Admitter gates upstream-bound requests per user.
type Admitter interface {
	Admit(ctx context.Context, email string) (quota.Decision, error)
}

// Result is a successful markets response. Stale results are successes with
// an advisory marker, never errors.
type Result struct {
	Items []coingecko.MarketItem

	// Stale is true when the response was served from an expired cache entry
	// because the upstream call failed.
	Stale bool

	// UpstreamStatus carries the upstream failure reason on stale results
	// ("429", "500", "network_error"); empty otherwise.
	UpstreamStatus string
}

// Service is the per-request coordinator. Each request flows
// cache → quota → upstream → cache write, falling back to a stale cache
// entry when the upstream call fails after admission.
type Service struct {
	cache    *cache.Store[[]coingecko.MarketItem]
	admitter Admitter
	fetcher  Fetcher
	ttl      time.Duration
	logger   zerolog.Logger
}

// New creates a Service. ttl is the cache lifetime for fresh upstream
// responses.
func New(store *cache.Store[[]coingecko.MarketItem], admitter Admitter, fetcher Fetcher, ttl time.Duration) *Service {
	return &Service{
		cache:    store,
		admitter: admitter,
		fetcher:  fetcher,
		ttl:      ttl,
		logger:   log.With().Str("component", "market").Logger(),
	}
}

// Markets serves one markets request for the given user.
//
// Cache hits return immediately with no quota mutation and no upstream call.
// On a miss the quota tracker must admit the request before the upstream is
// contacted; a failed upstream call still counts against the day's quota.
func (s *Service) Markets(ctx context.Context, email string, q coingecko.Query) (*Result, error) {
	// Validation precedes caching: bad input is rejected before any cache
	// or quota interaction.
	if q.PerPage < MinPerPage || q.PerPage > MaxPerPage {
		requestsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrPerPageRange
	}

	key := cache.MarketsKey(q.VsCurrency, q.PerPage, q.Page)

	if items, ok := s.cache.Get(key); ok {
		s.logger.Debug().Str("key", key).Msg("Cache hit")
		requestsTotal.WithLabelValues("hit").Inc()
		return &Result{Items: items}, nil
	}

	decision, err := s.admitter.Admit(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("quota check: %w", err)
	}
	if !decision.Allowed {
		requestsTotal.WithLabelValues("denied").Inc()
		return nil, &QuotaExceededError{Plan: decision.Plan, Limit: decision.Limit}
	}

	s.logger.Debug().Str("key", key).Str("email", email).Msg("Cache miss, calling upstream")

	outcome, err := s.fetcher.FetchMarkets(ctx, q)
	if err != nil {
		// Unexpected failure (malformed success body). The quota increment
		// stands and nothing was cached.
		requestsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("upstream fetch: %w", err)
	}

	if outcome.Kind == coingecko.OutcomeSuccess {
		s.cache.Set(key, outcome.Items, s.ttl)
		requestsTotal.WithLabelValues("fresh").Inc()
		return &Result{Items: outcome.Items}, nil
	}

	// Upstream failed after admission: fall back to the last-known entry for
	// this key, expired or not.
	if items, ok := s.cache.GetStale(key); ok {
		s.logger.Warn().
			Str("key", key).
			Str("outcome", string(outcome.Kind)).
			Str("status", outcome.UpstreamStatus()).
			Msg("Upstream failed, serving stale cache")
		requestsTotal.WithLabelValues("stale").Inc()
		return &Result{Items: items, Stale: true, UpstreamStatus: outcome.UpstreamStatus()}, nil
	}

	requestsTotal.WithLabelValues("failed").Inc()
	return nil, &UpstreamError{
		Overloaded: outcome.Kind == coingecko.OutcomeRateLimited,
		Status:     outcome.UpstreamStatus(),
	}
}
