package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketdash/marketd/internal/testutil"
	"github.com/marketdash/marketd/pkg/auth"
	"github.com/marketdash/marketd/pkg/cache"
	"github.com/marketdash/marketd/pkg/coingecko"
	"github.com/marketdash/marketd/pkg/market"
	"github.com/marketdash/marketd/pkg/quota"
	"github.com/marketdash/marketd/pkg/store"
)

type apiFixture struct {
	server   *httptest.Server
	upstream *testutil.MockUpstream
	users    *store.Users
}

func newAPIFixture(t *testing.T, freeLimit int, cacheTTL time.Duration) *apiFixture {
	t.Helper()

	upstream := testutil.NewMockUpstream()
	t.Cleanup(upstream.Close)

	users, err := store.Open(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { users.Close() })

	tokens := auth.NewTokenManager("test-secret", time.Hour)
	tracker := quota.NewTracker(users, freeLimit, time.UTC, zerolog.Nop())
	fetcher := coingecko.New(coingecko.Config{BaseURL: upstream.URL(), Timeout: 2 * time.Second})
	marketSvc := market.New(cache.New[[]coingecko.MarketItem](), tracker, fetcher, cacheTTL)

	srv := httptest.NewServer(New(":0", users, tokens, marketSvc))
	t.Cleanup(srv.Close)

	return &apiFixture{server: srv, upstream: upstream, users: users}
}

func (f *apiFixture) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func (f *apiFixture) get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.server.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (f *apiFixture) register(t *testing.T, email, password string) string {
	t.Helper()
	resp := f.postJSON(t, "/register", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tok := decodeBody[tokenResponse](t, resp)
	require.NotEmpty(t, tok.AccessToken)
	require.Equal(t, "bearer", tok.TokenType)
	return tok.AccessToken
}

func TestScenario_RegisterLoginQuota(t *testing.T) {
	f := newAPIFixture(t, 10, time.Minute)

	// Register.
	token := f.register(t, "a@x.com", "pw1")

	// Login with correct credentials.
	resp := f.postJSON(t, "/login", map[string]string{"email": "a@x.com", "password": "pw1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	loginTok := decodeBody[tokenResponse](t, resp)
	assert.NotEmpty(t, loginTok.AccessToken)

	// Login with wrong password.
	resp = f.postJSON(t, "/login", map[string]string{"email": "a@x.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Ten distinct uncached pages succeed while the upstream is healthy.
	for page := 1; page <= 10; page++ {
		resp = f.get(t, fmt.Sprintf("/api/coins/markets?per_page=20&page=%d", page), token)
		require.Equal(t, http.StatusOK, resp.StatusCode, "page %d", page)
		items := decodeBody[[]coingecko.MarketItem](t, resp)
		assert.NotEmpty(t, items)
	}

	// The eleventh distinct page hits the Free ceiling.
	resp = f.get(t, "/api/coins/markets?per_page=20&page=11", token)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	errBody := decodeBody[errorResponse](t, resp)
	assert.Contains(t, errBody.Detail, "10/day")

	// A cached page still serves without consuming quota.
	resp = f.get(t, "/api/coins/markets?per_page=20&page=1", token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// /me reflects the consumed quota.
	resp = f.get(t, "/me", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "a@x.com", me["email"])
	assert.Equal(t, "Free", me["plan_type"])
	assert.EqualValues(t, 10, me["daily_request_count"])
	assert.NotNil(t, me["last_request_date"])
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newAPIFixture(t, 10, time.Minute)

	f.register(t, "a@x.com", "pw1")

	resp := f.postJSON(t, "/register", map[string]string{"email": "a@x.com", "password": "pw2"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errBody := decodeBody[errorResponse](t, resp)
	assert.Equal(t, "Email already registered", errBody.Detail)
}

func TestRegister_MissingFields(t *testing.T) {
	f := newAPIFixture(t, 10, time.Minute)

	resp := f.postJSON(t, "/register", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestMarkets_AuthRequired(t *testing.T) {
	f := newAPIFixture(t, 10, time.Minute)

	resp := f.get(t, "/api/coins/markets", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = f.get(t, "/api/coins/markets", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Valid token for a user that no longer exists.
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	ghost, err := tokens.Issue("ghost@x.com")
	require.NoError(t, err)
	resp = f.get(t, "/api/coins/markets", ghost)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestMarkets_PerPageBoundary(t *testing.T) {
	f := newAPIFixture(t, 10, time.Minute)
	token := f.register(t, "a@x.com", "pw1")

	for _, perPage := range []string{"0", "251", "abc"} {
		resp := f.get(t, "/api/coins/markets?per_page="+perPage, token)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "per_page=%s", perPage)
		resp.Body.Close()
	}

	// No quota was consumed by invalid input.
	resp := f.get(t, "/me", token)
	me := decodeBody[map[string]any](t, resp)
	assert.EqualValues(t, 0, me["daily_request_count"])
	assert.Zero(t, f.upstream.RequestCount())
}

func TestMarkets_StaleFallbackHeaders(t *testing.T) {
	// Negative TTL makes every fresh write immediately stale.
	f := newAPIFixture(t, 10, -time.Second)
	token := f.register(t, "a@x.com", "pw1")

	// Warm the (immediately expired) cache entry.
	resp := f.get(t, "/api/coins/markets?per_page=20&page=1", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fresh := decodeBody[[]coingecko.MarketItem](t, resp)
	assert.Empty(t, resp.Header.Get(headerDataStale))

	// Upstream now rate limits; the expired entry is served stale.
	f.upstream.SetMarketsResponse(testutil.NewRateLimitResponse())

	resp = f.get(t, "/api/coins/markets?per_page=20&page=1", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get(headerDataStale))
	assert.Equal(t, "429", resp.Header.Get(headerUpstreamStatus))
	stale := decodeBody[[]coingecko.MarketItem](t, resp)
	assert.Equal(t, fresh, stale)
}

func TestMarkets_ColdFailures(t *testing.T) {
	f := newAPIFixture(t, 10, time.Minute)
	token := f.register(t, "a@x.com", "pw1")

	// Upstream 429 with no cached fallback.
	f.upstream.SetMarketsResponse(testutil.NewRateLimitResponse())
	resp := f.get(t, "/api/coins/markets?per_page=20&page=1", token)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()

	// Other upstream failure with no cached fallback.
	f.upstream.SetMarketsResponse(testutil.NewServerErrorResponse())
	resp = f.get(t, "/api/coins/markets?per_page=20&page=2", token)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	resp.Body.Close()
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t, 10, time.Minute)

	resp, err := http.Get(f.server.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.JSONEq(t, `{"status": "ok"}`, string(body))
}

func TestMethodNotAllowed(t *testing.T) {
	f := newAPIFixture(t, 10, time.Minute)

	resp, err := http.Get(f.server.URL + "/register")
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	resp.Body.Close()
}
