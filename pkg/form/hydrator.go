// Package form ties a conversion engine to a record store: it loads an existing record into the
// engine for editing and turns the final engine state into a persisted record.
package form

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/ArionMiles/dispatchcost/internal/metrics"
	"github.com/ArionMiles/dispatchcost/pkg/api"
	"github.com/ArionMiles/dispatchcost/pkg/conversion"
	"github.com/ArionMiles/dispatchcost/pkg/currency"
)

// Default store names used by the dispatch item cost application.
const (
	DefaultReport = "All_Dispatch_Item_Costs"
	DefaultForm   = "Dispatch_Item_Cost"
)

var (
	// ErrRecordNotFound is returned when the store has no record for the requested id.
	ErrRecordNotFound = errors.New("record not found")
	// ErrInvalidRecordID is returned for ids that cannot be embedded in a criteria expression.
	ErrInvalidRecordID = errors.New("invalid record id")
)

var recordIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Hydrator loads a persisted record into an engine.
type Hydrator struct {
	store  api.RecordStore
	report string
	logger *slog.Logger
}

// NewHydrator creates a Hydrator reading from report.
func NewHydrator(store api.RecordStore, report string, logger *slog.Logger) *Hydrator {
	if logger == nil {
		logger = slog.Default()
	}
	if report == "" {
		report = DefaultReport
	}
	return &Hydrator{
		store:  store,
		report: report,
		logger: logger,
	}
}

// Hydrate queries the record with the given id and maps it into engine.
// Live and override rates are not fetched. On any failure the engine is left untouched.
func (h *Hydrator) Hydrate(ctx context.Context, id string, engine *conversion.Engine) error {
	err := h.hydrate(ctx, id, engine)
	metrics.HydrationsTotal.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		h.logger.Warn("failed to load record, keeping default form", "id", id, "error", err)
	}
	return err
}

func (h *Hydrator) hydrate(ctx context.Context, id string, engine *conversion.Engine) error {
	if err := ValidateRecordID(id); err != nil {
		return err
	}

	result, err := h.store.Find(ctx, h.report, Criteria(id))
	if err != nil {
		return fmt.Errorf("finding record %s: %w", id, err)
	}
	if result.Code != api.CodeSuccess {
		return fmt.Errorf("finding record %s: %w %d", id, api.ErrUnexpectedCode, result.Code)
	}
	if len(result.Records) == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}

	record := result.Records[0]
	amount, err := currency.ParseDisplayAmount(record.PayingIn)
	if err != nil {
		h.logger.Warn("unparseable paying-in amount, using 0", "id", id, "value", record.PayingIn)
	}
	targetAmount, err := currency.ParseDisplayAmount(record.Cost)
	if err != nil {
		h.logger.Warn("unparseable cost amount, using 0", "id", id, "value", record.Cost)
	}

	engine.Hydrate(conversion.Hydration{
		Item:           record.Item,
		SourceCurrency: record.BaseCurrency,
		TargetCurrency: record.ConvertedCurrency,
		Amount:         amount,
		TargetAmount:   targetAmount,
	})

	h.logger.Info("loaded record for editing",
		"id", id,
		"item", record.Item,
		"source_currency", record.BaseCurrency,
		"target_currency", record.ConvertedCurrency,
	)
	return nil
}

// ValidateRecordID rejects ids that cannot be embedded in a criteria expression.
func ValidateRecordID(id string) error {
	if !recordIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidRecordID, id)
	}
	return nil
}

// Criteria builds the store filter selecting a record by id.
func Criteria(id string) string {
	return fmt.Sprintf("(ID == %s)", id)
}
