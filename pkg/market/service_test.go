package market

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketdash/marketd/pkg/cache"
	"github.com/marketdash/marketd/pkg/coingecko"
	"github.com/marketdash/marketd/pkg/quota"
	"github.com/marketdash/marketd/pkg/store"
)

// fakeFetcher returns a scripted outcome and counts calls.
type fakeFetcher struct {
	mu      sync.Mutex
	outcome coingecko.Outcome
	err     error
	calls   int
}

func (f *fakeFetcher) FetchMarkets(ctx context.Context, q coingecko.Query) (coingecko.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.outcome, f.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	service *Service
	cache   *cache.Store[[]coingecko.MarketItem]
	fetcher *fakeFetcher
	users   *store.Users
}

func newFixture(t *testing.T, freeLimit int) *fixture {
	t.Helper()

	users, err := store.Open(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { users.Close() })

	_, err = users.Create(context.Background(), "a@x.com", "hash")
	require.NoError(t, err)

	tracker := quota.NewTracker(users, freeLimit, time.UTC, zerolog.Nop())
	c := cache.New[[]coingecko.MarketItem]()
	f := &fakeFetcher{}

	return &fixture{
		service: New(c, tracker, f, time.Minute),
		cache:   c,
		fetcher: f,
		users:   users,
	}
}

func sampleItems() []coingecko.MarketItem {
	price := 42000.5
	rank := 1
	return []coingecko.MarketItem{{
		ID:            "bitcoin",
		Symbol:        "btc",
		Name:          "Bitcoin",
		Image:         "https://img.example/btc.png",
		CurrentPrice:  &price,
		MarketCapRank: &rank,
	}}
}

func usdQuery(page int) coingecko.Query {
	return coingecko.Query{VsCurrency: "usd", PerPage: 20, Page: page}
}

func dailyCount(t *testing.T, f *fixture) int {
	t.Helper()
	u, err := f.users.GetByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	return u.DailyRequestCount
}

func TestMarkets_CacheHitSkipsQuotaAndUpstream(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	key := cache.MarketsKey("usd", 20, 1)
	f.cache.Set(key, sampleItems(), time.Minute)

	res, err := f.service.Markets(ctx, "a@x.com", usdQuery(1))
	require.NoError(t, err)

	assert.False(t, res.Stale)
	assert.Equal(t, sampleItems(), res.Items)
	assert.Equal(t, 0, f.fetcher.callCount(), "cache hit must not reach the upstream")
	assert.Equal(t, 0, dailyCount(t, f), "cache hit must not mutate quota state")
}

func TestMarkets_ConcurrentHitsNeverTouchQuota(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	f.cache.Set(cache.MarketsKey("usd", 20, 1), sampleItems(), time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.service.Markets(ctx, "a@x.com", usdQuery(1))
			assert.NoError(t, err)
			assert.NotNil(t, res)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, dailyCount(t, f))
	assert.Equal(t, 0, f.fetcher.callCount())
}

func TestMarkets_MissFetchesAndCaches(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	f.fetcher.outcome = coingecko.Outcome{Kind: coingecko.OutcomeSuccess, Items: sampleItems(), Status: 200}

	res, err := f.service.Markets(ctx, "a@x.com", usdQuery(1))
	require.NoError(t, err)
	assert.False(t, res.Stale)
	assert.Equal(t, 1, f.fetcher.callCount())
	assert.Equal(t, 1, dailyCount(t, f))

	// Repeat request is served from cache: same data, no second upstream
	// call, no further quota increment.
	res2, err := f.service.Markets(ctx, "a@x.com", usdQuery(1))
	require.NoError(t, err)
	assert.Equal(t, res.Items, res2.Items)
	assert.Equal(t, 1, f.fetcher.callCount())
	assert.Equal(t, 1, dailyCount(t, f))
}

func TestMarkets_QuotaDenied(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	f.fetcher.outcome = coingecko.Outcome{Kind: coingecko.OutcomeSuccess, Items: sampleItems(), Status: 200}

	_, err := f.service.Markets(ctx, "a@x.com", usdQuery(1))
	require.NoError(t, err)

	// Second distinct page misses the cache and hits the ceiling.
	_, err = f.service.Markets(ctx, "a@x.com", usdQuery(2))
	var qerr *QuotaExceededError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, quota.PlanFree, qerr.Plan)
	assert.Equal(t, 1, qerr.Limit)
	assert.Contains(t, qerr.Error(), "1/day")

	assert.Equal(t, 1, f.fetcher.callCount(), "denied request must not reach the upstream")
	assert.Equal(t, 1, dailyCount(t, f))
}

func TestMarkets_StaleFallback(t *testing.T) {
	tests := []struct {
		name       string
		outcome    coingecko.Outcome
		wantStatus string
	}{
		{"rate limited", coingecko.Outcome{Kind: coingecko.OutcomeRateLimited, Status: 429}, "429"},
		{"server error", coingecko.Outcome{Kind: coingecko.OutcomeUpstreamError, Status: 502}, "502"},
		{"network failure", coingecko.Outcome{Kind: coingecko.OutcomeNetworkFailure}, "network_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 10)
			ctx := context.Background()
			f.fetcher.outcome = tt.outcome

			// Warm the key with an already-expired entry.
			key := cache.MarketsKey("usd", 20, 1)
			f.cache.Set(key, sampleItems(), -time.Second)

			res, err := f.service.Markets(ctx, "a@x.com", usdQuery(1))
			require.NoError(t, err, "stale responses are successes, not errors")

			assert.True(t, res.Stale)
			assert.Equal(t, tt.wantStatus, res.UpstreamStatus)
			assert.Equal(t, sampleItems(), res.Items)
			assert.Equal(t, 1, dailyCount(t, f), "failed upstream call still counts against quota")
		})
	}
}

func TestMarkets_ColdFailure(t *testing.T) {
	tests := []struct {
		name           string
		outcome        coingecko.Outcome
		wantOverloaded bool
	}{
		{"rate limited", coingecko.Outcome{Kind: coingecko.OutcomeRateLimited, Status: 429}, true},
		{"server error", coingecko.Outcome{Kind: coingecko.OutcomeUpstreamError, Status: 500}, false},
		{"network failure", coingecko.Outcome{Kind: coingecko.OutcomeNetworkFailure}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 10)
			f.fetcher.outcome = tt.outcome

			_, err := f.service.Markets(context.Background(), "a@x.com", usdQuery(1))
			var uerr *UpstreamError
			require.ErrorAs(t, err, &uerr)
			assert.Equal(t, tt.wantOverloaded, uerr.Overloaded)
			assert.Equal(t, 1, dailyCount(t, f))
		})
	}
}

func TestMarkets_ValidationPrecedesCacheAndQuota(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	for _, perPage := range []int{0, 251, -5} {
		_, err := f.service.Markets(ctx, "a@x.com", coingecko.Query{VsCurrency: "usd", PerPage: perPage, Page: 1})
		assert.ErrorIs(t, err, ErrPerPageRange, "per_page=%d", perPage)
	}

	assert.Equal(t, 0, f.fetcher.callCount())
	assert.Equal(t, 0, dailyCount(t, f), "invalid input must not consume quota")
}

func TestMarkets_BoundaryPerPageAccepted(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	f.fetcher.outcome = coingecko.Outcome{Kind: coingecko.OutcomeSuccess, Items: sampleItems(), Status: 200}

	for _, perPage := range []int{1, 250} {
		_, err := f.service.Markets(ctx, "a@x.com", coingecko.Query{VsCurrency: "usd", PerPage: perPage, Page: 1})
		assert.NoError(t, err, "per_page=%d", perPage)
	}
}

func TestMarkets_UnexpectedFetchErrorPropagates(t *testing.T) {
	f := newFixture(t, 10)
	f.fetcher.err = errors.New("decode upstream body: unexpected EOF")

	_, err := f.service.Markets(context.Background(), "a@x.com", usdQuery(1))
	require.Error(t, err)

	var uerr *UpstreamError
	assert.False(t, errors.As(err, &uerr), "unexpected failures are not taxonomy errors")
	assert.Equal(t, 1, dailyCount(t, f), "quota is not refunded on failure")
}

func TestMarkets_UnknownUser(t *testing.T) {
	f := newFixture(t, 10)

	_, err := f.service.Markets(context.Background(), "nobody@x.com", usdQuery(1))
	assert.ErrorIs(t, err, store.ErrNotFound)
}
