package form

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ArionMiles/dispatchcost/internal/metrics"
	"github.com/ArionMiles/dispatchcost/pkg/api"
	"github.com/ArionMiles/dispatchcost/pkg/conversion"
)

var (
	// ErrSubmissionInProgress is returned while a previous submission has not finished.
	ErrSubmissionInProgress = errors.New("submission already in progress")
	// ErrAlreadySubmitted is returned once the form has been saved.
	ErrAlreadySubmitted = errors.New("form already submitted")
)

// Status is the submission lifecycle of a form.
type Status int

const (
	StatusIdle Status = iota
	StatusSubmitting
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSubmitting:
		return "submitting"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Submission modes used as metric labels.
const (
	ModeCreate = "create"
	ModeUpdate = "update"
)

// Submitter persists a form exactly once. A failed submission may be retried; a successful one
// cannot be repeated.
type Submitter struct {
	mu        sync.Mutex
	status    Status
	store     api.RecordStore
	formatter *Formatter
	form      string
	report    string
	recordID  string
	logger    *slog.Logger
}

// NewSubmitter creates a Submitter. A non-empty recordID makes every submission an update of
// that record in report; otherwise a new record is created through form.
func NewSubmitter(store api.RecordStore, form, report, recordID string, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	if form == "" {
		form = DefaultForm
	}
	if report == "" {
		report = DefaultReport
	}
	return &Submitter{
		store:     store,
		formatter: NewFormatter(),
		form:      form,
		report:    report,
		recordID:  recordID,
		logger:    logger,
	}
}

// Status returns the current submission status.
func (s *Submitter) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Mode reports whether submissions create or update a record.
func (s *Submitter) Mode() string {
	if s.recordID != "" {
		return ModeUpdate
	}
	return ModeCreate
}

// Submit validates state, builds the payload and sends it to the store.
// Validation failures are returned as *ValidationError without contacting the store or
// changing the status.
func (s *Submitter) Submit(ctx context.Context, state conversion.State) (api.MutationResult, error) {
	s.mu.Lock()
	switch s.status {
	case StatusSubmitting:
		s.mu.Unlock()
		return api.MutationResult{}, ErrSubmissionInProgress
	case StatusSucceeded:
		s.mu.Unlock()
		return api.MutationResult{}, ErrAlreadySubmitted
	}

	payload, err := s.formatter.Build(state)
	if err != nil {
		s.mu.Unlock()
		return api.MutationResult{}, err
	}
	s.status = StatusSubmitting
	s.mu.Unlock()

	mode := s.Mode()
	logger := s.logger.With("mode", mode, "record_id", s.recordID)
	logger.Info("submitting dispatch item cost", "item", payload.Item, "paying_in", payload.PayingIn, "cost", payload.Cost)

	result, err := s.send(ctx, payload)
	if err == nil && result.Code != api.CodeSuccess {
		err = fmt.Errorf("%w %d: %s", api.ErrUnexpectedCode, result.Code, result.Message)
	}
	metrics.SubmissionsTotal.WithLabelValues(mode, metrics.Outcome(err)).Inc()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.status = StatusFailed
		logger.Error("submission failed", "error", err)
		return result, fmt.Errorf("submitting %s: %w", mode, err)
	}

	s.status = StatusSucceeded
	logger.Info("submission succeeded", "id", result.ID)
	return result, nil
}

func (s *Submitter) send(ctx context.Context, payload api.Payload) (api.MutationResult, error) {
	if s.recordID != "" {
		return s.store.Update(ctx, s.report, s.recordID, payload)
	}
	return s.store.Create(ctx, s.form, payload)
}
