// Package rates implements an api.RateFetcher backed by an exchangerate-api style HTTP provider.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/shopspring/decimal"

	"github.com/ArionMiles/dispatchcost/internal/metrics"
	"github.com/ArionMiles/dispatchcost/pkg/api"
)

// Defaults for Config.
const (
	DefaultBaseURL    = "https://v6.exchangerate-api.com/v6"
	DefaultTimeout    = 10 * time.Second
	DefaultAttempts   = 3
	DefaultRetryDelay = time.Second
)

// errRetryable marks provider responses worth another attempt (rate limits, server errors).
var errRetryable = errors.New("retryable provider response")

// Config holds configuration for the rate client.
type Config struct {
	// BaseURL is the provider root; the client requests {BaseURL}/{APIKey}/latest/{currency}.
	BaseURL string
	// APIKey is inserted into the path. Leave empty for keyless proxies.
	APIKey string
	// Timeout bounds a single HTTP request. Defaults to DefaultTimeout.
	Timeout time.Duration
	// Attempts is the number of tries for retryable responses. Defaults to DefaultAttempts.
	Attempts uint
	// RetryDelay is the base delay between attempts. Defaults to DefaultRetryDelay.
	RetryDelay time.Duration
}

// Client fetches conversion factors from the provider.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	attempts   uint
	delay      time.Duration
	logger     *slog.Logger
}

type latestResponse struct {
	Result          string                 `json:"result"`
	ErrorType       string                 `json:"error-type"`
	BaseCode        string                 `json:"base_code"`
	ConversionRates map[string]json.Number `json:"conversion_rates"`
}

// New creates a rate client.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		attempts:   cfg.Attempts,
		delay:      cfg.RetryDelay,
		logger:     logger,
	}
}

// FetchRate returns the factor converting one unit of from into to.
// A provider table without an entry for to yields api.ErrRateNotFound.
func (c *Client) FetchRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	rate, err := c.fetchRate(ctx, from, to)
	metrics.RateFetchesTotal.WithLabelValues(metrics.Outcome(err)).Inc()
	return rate, err
}

func (c *Client) fetchRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	table, err := c.Latest(ctx, from)
	if err != nil {
		return decimal.Zero, err
	}

	raw, ok := table[strings.ToUpper(to)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s/%s", api.ErrRateNotFound, from, to)
	}

	rate, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing rate %q: %w", raw, err)
	}

	c.logger.Debug("fetched rate", "from", from, "to", to, "rate", rate.String())
	return rate, nil
}

// Latest returns the provider's full conversion table for base.
func (c *Client) Latest(ctx context.Context, base string) (map[string]json.Number, error) {
	var resp latestResponse

	err := retry.Do(
		func() error {
			var err error
			resp, err = c.get(ctx, base)
			return err
		},
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			if errors.Is(err, errRetryable) {
				c.logger.Warn("rate provider unavailable, will retry", "base", base, "error", err)
				return true
			}
			return false
		}),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("fetching rates for %s: %w", base, err)
	}

	if resp.Result != "" && resp.Result != "success" {
		return nil, fmt.Errorf("rate provider returned %q: %s", resp.Result, resp.ErrorType)
	}
	if len(resp.ConversionRates) == 0 {
		return nil, fmt.Errorf("%w: empty conversion table for %s", api.ErrRateNotFound, base)
	}

	return resp.ConversionRates, nil
}

func (c *Client) get(ctx context.Context, base string) (latestResponse, error) {
	var out latestResponse

	endpoint := c.baseURL
	if c.apiKey != "" {
		endpoint += "/" + url.PathEscape(c.apiKey)
	}
	endpoint += "/latest/" + url.PathEscape(strings.ToUpper(base))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return out, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return out, fmt.Errorf("requesting rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return out, fmt.Errorf("%w: status %d", errRetryable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return out, fmt.Errorf("rate provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("decoding rates: %w", err)
	}
	return out, nil
}
