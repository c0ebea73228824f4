package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Config holds the upstream client configuration.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.coingecko.com/api/v3".
	BaseURL string

	// Timeout bounds each outbound call. Must be finite.
	Timeout time.Duration

	// RatePerSecond smooths outbound calls to the public API; zero disables
	// smoothing. Burst defaults to 1 when smoothing is on.
	RatePerSecond float64
	Burst         int
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://api.coingecko.com/api/v3",
		Timeout: 10 * time.Second,
	}
}

// Client performs bounded-duration calls against the markets endpoint.
// It never retries; retry and fallback policy belong to the caller.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// New creates an upstream client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		limiter:    limiter,
		logger:     log.With().Str("component", "coingecko").Logger(),
	}
}

// FetchMarkets performs one upstream call and classifies the result.
// Expected upstream conditions (429, other non-2xx, transport failure) are
// returned as classified outcomes; the error return is reserved for truly
// unexpected failures such as a malformed success body.
func (c *Client) FetchMarkets(ctx context.Context, q Query) (Outcome, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			outcomesTotal.WithLabelValues(string(OutcomeNetworkFailure)).Inc()
			return Outcome{Kind: OutcomeNetworkFailure}, nil
		}
	}

	params := url.Values{}
	params.Set("vs_currency", q.VsCurrency)
	params.Set("order", "market_cap_desc")
	params.Set("per_page", strconv.Itoa(q.PerPage))
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("sparkline", "false")
	params.Set("price_change_percentage", "24h")

	reqURL := c.baseURL + "/coins/markets?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		c.logger.Warn().Err(err).Msg("Upstream request failed")
		requestsTotal.WithLabelValues("network_error").Inc()
		outcomesTotal.WithLabelValues(string(OutcomeNetworkFailure)).Inc()
		return Outcome{Kind: OutcomeNetworkFailure}, nil
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Warn().Int("status", resp.StatusCode).Msg("Upstream rate limited")
		outcomesTotal.WithLabelValues(string(OutcomeRateLimited)).Inc()
		return Outcome{Kind: OutcomeRateLimited, Status: resp.StatusCode}, nil

	case resp.StatusCode < 200 || resp.StatusCode > 299:
		c.logger.Warn().Int("status", resp.StatusCode).Msg("Upstream error")
		outcomesTotal.WithLabelValues(string(OutcomeUpstreamError)).Inc()
		return Outcome{Kind: OutcomeUpstreamError, Status: resp.StatusCode}, nil
	}

	var items []MarketItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		outcomesTotal.WithLabelValues(string(OutcomeUpstreamError)).Inc()
		return Outcome{}, fmt.Errorf("decode upstream body: %w", err)
	}

	c.logger.Debug().Int("items", len(items)).Msg("Upstream fetch succeeded")
	outcomesTotal.WithLabelValues(string(OutcomeSuccess)).Inc()
	return Outcome{Kind: OutcomeSuccess, Items: items, Status: resp.StatusCode}, nil
}
