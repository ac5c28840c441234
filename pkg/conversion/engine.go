package conversion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/dispatchcost/pkg/api"
	"github.com/ArionMiles/dispatchcost/pkg/currency"
)

var (
	// ErrInvalidAmount is returned when an amount is not a non-negative number. The amount is set to 0.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidRate is returned for a staged or fetched rate that is not a usable number.
	ErrInvalidRate = errors.New("invalid rate")
)

// Engine owns a State and applies every edit to it.
//
// Rate fetches run without holding the lock. Each rate-affecting call takes a new generation
// and a fetched rate is applied only if no newer rate-affecting call was made meanwhile.
type Engine struct {
	mu         sync.Mutex
	state      State
	generation uint64
	fetcher    api.RateFetcher
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithCurrencies overrides the default currency pair.
func WithCurrencies(source, target string) Option {
	return func(e *Engine) {
		if source != "" {
			e.state.SourceCurrency = strings.ToUpper(source)
		}
		if target != "" {
			e.state.TargetCurrency = strings.ToUpper(target)
		}
	}
}

// New creates an Engine in its default state.
func New(fetcher api.RateFetcher, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		state:   DefaultState(),
		fetcher: fetcher,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns a snapshot of the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// RateSummary returns the exchange-rate line and whether it should be shown.
func (e *Engine) RateSummary() (string, bool) {
	return e.State().RateSummary()
}

// SetItem sets the free text label.
func (e *Engine) SetItem(item string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Item = item
}

// SetAmount parses raw as the amount in the source currency and recomputes the target amount.
// An unparseable or negative value is stored as 0 and ErrInvalidAmount is returned.
func (e *Engine) SetAmount(raw string) error {
	amount, err := parseNonNegative(raw)
	if err != nil {
		amount = decimal.Zero
		err = fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Amount = amount
	e.state.TargetAmount = convert(amount, e.state.LiveRate)
	return err
}

// SetSourceCurrency changes the currency the amount is entered in. Choosing the current target
// currency only records the code; any other code fetches the rate for the new pair.
func (e *Engine) SetSourceCurrency(ctx context.Context, code string) error {
	code, err := currency.Normalize(code)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.state.SourceCurrency = code
	gen := e.nextGeneration()
	target := e.state.TargetCurrency
	e.mu.Unlock()

	if code == target {
		e.logger.Debug("source matches target, skipping rate fetch", "currency", code)
		return nil
	}
	return e.refresh(ctx, gen, code, target)
}

// SetTargetCurrency changes the currency the amount is converted to. It mirrors SetSourceCurrency.
func (e *Engine) SetTargetCurrency(ctx context.Context, code string) error {
	code, err := currency.Normalize(code)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.state.TargetCurrency = code
	gen := e.nextGeneration()
	source := e.state.SourceCurrency
	e.mu.Unlock()

	if code == source {
		e.logger.Debug("target matches source, skipping rate fetch", "currency", code)
		return nil
	}
	return e.refresh(ctx, gen, source, code)
}

// InitializeRate fetches the rate for the current pair. It seeds a new form.
func (e *Engine) InitializeRate(ctx context.Context) error {
	e.mu.Lock()
	gen := e.nextGeneration()
	source, target := e.state.SourceCurrency, e.state.TargetCurrency
	e.mu.Unlock()

	return e.refresh(ctx, gen, source, target)
}

// StageOverrideRate records a manually typed rate without making it active.
func (e *Engine) StageOverrideRate(raw string) error {
	rate, err := parseNonNegative(raw)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidRate, raw)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.OverrideRate = rate
	return nil
}

// CancelOverride discards a staged rate.
func (e *Engine) CancelOverride() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.OverrideRate = e.state.LiveRate
}

// CommitOverrideRate makes the staged rate the live rate and recomputes the target amount.
// Fetches still in flight are superseded.
func (e *Engine) CommitOverrideRate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextGeneration()
	e.state.LiveRate = e.state.OverrideRate
	e.state.TargetAmount = convert(e.state.Amount, e.state.LiveRate)
}

// Hydrate restores a persisted record. Rates are left untouched, so the rate summary may be
// stale until the next currency change.
func (e *Engine) Hydrate(h Hydration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextGeneration()
	e.state.Item = h.Item
	e.state.SourceCurrency = h.SourceCurrency
	e.state.TargetCurrency = h.TargetCurrency
	e.state.Amount = h.Amount
	e.state.TargetAmount = h.TargetAmount
}

// nextGeneration must be called with e.mu held.
func (e *Engine) nextGeneration() uint64 {
	e.generation++
	return e.generation
}

// refresh fetches the rate for from/to and applies it if gen is still current.
// On failure the previous rate and target amount are kept.
func (e *Engine) refresh(ctx context.Context, gen uint64, from, to string) error {
	logger := e.logger.With("from", from, "to", to, "generation", gen)

	rate, err := e.fetcher.FetchRate(ctx, from, to)
	if err == nil && !rate.IsPositive() {
		err = fmt.Errorf("%w: %s", ErrInvalidRate, rate.String())
	}
	if err != nil {
		logger.Warn("rate fetch failed, keeping previous rate", "error", err)
		return fmt.Errorf("fetching rate %s/%s: %w", from, to, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.generation {
		logger.Debug("discarding superseded rate", "rate", rate.String(), "current_generation", e.generation)
		return nil
	}

	e.state.LiveRate = rate
	e.state.OverrideRate = rate
	e.state.TargetAmount = convert(e.state.Amount, rate)

	logger.Debug("applied rate", "rate", rate.String(), "target_amount", e.state.TargetAmount.StringFixed(2))
	return nil
}

func parseNonNegative(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, errors.New("negative value")
	}
	return d, nil
}
