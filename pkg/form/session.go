package form

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ArionMiles/dispatchcost/pkg/api"
	"github.com/ArionMiles/dispatchcost/pkg/conversion"
)

// Deps are the collaborators shared by every session.
type Deps struct {
	Store   api.RecordStore
	Fetcher api.RateFetcher
	// Report is the store report records are read from and updated in.
	Report string
	// Form is the store form new records are created through.
	Form string
	// SourceCurrency and TargetCurrency override the default pair of a new form.
	SourceCurrency string
	TargetCurrency string
	Logger         *slog.Logger
}

// Session is one open form: a conversion engine plus the submitter that will persist it.
// A session opened with a record id edits that record; otherwise it creates a new one.
type Session struct {
	engine    *conversion.Engine
	hydrator  *Hydrator
	submitter *Submitter
	recordID  string
	logger    *slog.Logger

	loadOnce sync.Once
	loadErr  error
}

// NewSession creates a session. Call Load to seed it.
func NewSession(deps Deps, recordID string) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "form")
	if recordID != "" {
		logger = logger.With("record_id", recordID)
	}

	return &Session{
		engine:    conversion.New(deps.Fetcher, logger, conversion.WithCurrencies(deps.SourceCurrency, deps.TargetCurrency)),
		hydrator:  NewHydrator(deps.Store, deps.Report, logger),
		submitter: NewSubmitter(deps.Store, deps.Form, deps.Report, recordID, logger),
		recordID:  recordID,
		logger:    logger,
	}
}

// Load seeds the session once. In edit mode the record is hydrated and no rate is fetched;
// in create mode the rate for the default pair is fetched. The returned error is informational:
// the session stays usable with its default values.
func (s *Session) Load(ctx context.Context) error {
	s.loadOnce.Do(func() {
		if s.EditMode() {
			s.loadErr = s.hydrator.Hydrate(ctx, s.recordID, s.engine)
			return
		}
		s.loadErr = s.engine.InitializeRate(ctx)
	})
	return s.loadErr
}

// Engine returns the session's conversion engine.
func (s *Session) Engine() *conversion.Engine {
	return s.engine
}

// EditMode reports whether the session edits an existing record.
func (s *Session) EditMode() bool {
	return s.recordID != ""
}

// RecordID returns the edited record id, or "" in create mode.
func (s *Session) RecordID() string {
	return s.recordID
}

// Status returns the submission status.
func (s *Session) Status() Status {
	return s.submitter.Status()
}

// Submit persists the current engine state.
func (s *Session) Submit(ctx context.Context) (api.MutationResult, error) {
	return s.submitter.Submit(ctx, s.engine.State())
}
