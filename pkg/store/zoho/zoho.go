// Package zoho implements an api.RecordStore on the Zoho Creator v2 REST API.
package zoho

import (
	"bytes"
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

	"github.com/ArionMiles/dispatchcost/pkg/api"
)

// Defaults for Config.
const (
	DefaultAPIURL     = "https://creator.zoho.com/api/v2"
	DefaultAttempts   = 3
	DefaultRetryDelay = 2 * time.Second
)

// OAuth scopes needed to read, create and update records.
const (
	ScopeReportRead   = "ZohoCreator.report.READ"
	ScopeReportUpdate = "ZohoCreator.report.UPDATE"
	ScopeFormCreate   = "ZohoCreator.form.CREATE"
)

// Scopes lists every scope the store uses.
var Scopes = []string{ScopeReportRead, ScopeReportUpdate, ScopeFormCreate}

var errRetryable = errors.New("retryable zoho response")

// Config holds configuration for the Zoho store.
type Config struct {
	// APIURL is the Creator API root. Defaults to DefaultAPIURL.
	APIURL string `json:"api_url"`
	// Owner is the account owning the application.
	Owner string `json:"owner"`
	// App is the application link name.
	App string `json:"app"`
	// Attempts is the number of tries for rate limited or 5xx responses.
	Attempts uint `json:"-"`
	// RetryDelay is the base delay between attempts.
	RetryDelay time.Duration `json:"-"`
}

// Store talks to one Zoho Creator application.
type Store struct {
	client   *http.Client
	baseURL  string
	attempts uint
	delay    time.Duration
	logger   *slog.Logger
}

// envelope is the response shape shared by every Creator endpoint. Data is an array for
// report reads and an object for form and record mutations.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type requestBody struct {
	Data api.Payload `json:"data"`
}

// New creates a Zoho store. httpClient must attach the Zoho OAuth token.
func New(httpClient *http.Client, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Owner == "" || cfg.App == "" {
		return nil, errors.New("owner and app are required")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	s := &Store{
		client:   httpClient,
		baseURL:  fmt.Sprintf("%s/%s/%s", strings.TrimRight(cfg.APIURL, "/"), url.PathEscape(cfg.Owner), url.PathEscape(cfg.App)),
		attempts: cfg.Attempts,
		delay:    cfg.RetryDelay,
		logger:   logger,
	}

	logger.Info("zoho store initialized", "owner", cfg.Owner, "app", cfg.App)
	return s, nil
}

// Find lists the records of report matching criteria.
func (s *Store) Find(ctx context.Context, report, criteria string) (api.QueryResult, error) {
	endpoint := fmt.Sprintf("%s/report/%s", s.baseURL, url.PathEscape(report))
	if criteria != "" {
		endpoint += "?" + url.Values{"criteria": {criteria}}.Encode()
	}

	env, err := s.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return api.QueryResult{}, fmt.Errorf("reading report %s: %w", report, err)
	}

	result := api.QueryResult{Code: env.Code}
	if env.Code == api.CodeSuccess && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &result.Records); err != nil {
			return api.QueryResult{}, fmt.Errorf("decoding records: %w", err)
		}
	}

	s.logger.Debug("read report", "report", report, "criteria", criteria, "code", env.Code, "count", len(result.Records))
	return result, nil
}

// Create adds a record through form.
func (s *Store) Create(ctx context.Context, form string, payload api.Payload) (api.MutationResult, error) {
	endpoint := fmt.Sprintf("%s/form/%s", s.baseURL, url.PathEscape(form))

	env, err := s.do(ctx, http.MethodPost, endpoint, requestBody{Data: payload})
	if err != nil {
		return api.MutationResult{}, fmt.Errorf("adding record to %s: %w", form, err)
	}
	return mutationResult(env), nil
}

// Update modifies the record id in report.
func (s *Store) Update(ctx context.Context, report, id string, payload api.Payload) (api.MutationResult, error) {
	endpoint := fmt.Sprintf("%s/report/%s/%s", s.baseURL, url.PathEscape(report), url.PathEscape(id))

	env, err := s.do(ctx, http.MethodPatch, endpoint, requestBody{Data: payload})
	if err != nil {
		return api.MutationResult{}, fmt.Errorf("updating record %s: %w", id, err)
	}
	result := mutationResult(env)
	if result.ID == "" {
		result.ID = id
	}
	return result, nil
}

func mutationResult(env envelope) api.MutationResult {
	result := api.MutationResult{Code: env.Code, Message: env.Message}

	var data struct {
		ID string `json:"ID"`
	}
	if len(env.Data) > 0 && json.Unmarshal(env.Data, &data) == nil {
		result.ID = data.ID
	}
	return result
}

func (s *Store) do(ctx context.Context, method, endpoint string, body any) (envelope, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return envelope{}, fmt.Errorf("marshaling request: %w", err)
		}
	}

	var env envelope
	err := retry.Do(
		func() error {
			var err error
			env, err = s.roundTrip(ctx, method, endpoint, payload)
			return err
		},
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			if errors.Is(err, errRetryable) {
				s.logger.Warn("zoho unavailable, will retry", "method", method, "error", err)
				return true
			}
			return false
		}),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.LastErrorOnly(true),
	)
	return env, err
}

func (s *Store) roundTrip(ctx context.Context, method, endpoint string, payload []byte) (envelope, error) {
	var env envelope

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return env, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return env, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return env, fmt.Errorf("%w: status %d", errRetryable, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return env, fmt.Errorf("reading response: %w", err)
	}

	// Creator reports application level failures (e.g. no records) with a 4xx status and a
	// JSON code; only bodies without a code are transport errors.
	if err := json.Unmarshal(raw, &env); err != nil || env.Code == 0 {
		snippet := raw
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return envelope{}, fmt.Errorf("unexpected response (status %d): %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return env, nil
}
