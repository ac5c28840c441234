// Package audit keeps an append-only CSV trail of every create and update sent to a record store.
//
// Entries are queued without blocking the submission and written in batches by a background
// goroutine. Close drains the queue.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ArionMiles/dispatchcost/internal/metrics"
	"github.com/ArionMiles/dispatchcost/pkg/api"
	"github.com/ArionMiles/dispatchcost/pkg/form"
)

const queueSize = 256

// Entry is one store mutation.
type Entry struct {
	Time     time.Time
	Mode     string
	RecordID string
	Code     int
	Outcome  string
	Error    string
	Payload  api.Payload
}

// Config holds configuration for the audit log.
type Config struct {
	// FilePath is the CSV file entries are appended to.
	FilePath string
	// BatchSize is the number of entries to buffer before writing. Defaults to DefaultBatchSize.
	BatchSize int
	// FlushInterval is the interval between automatic flushes. Defaults to DefaultFlushInterval.
	FlushInterval time.Duration
}

// Log records store mutations.
type Log struct {
	entries chan *Entry
	sink    *csvSink
	done    chan error
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// Open opens or creates the audit file and starts the background writer.
func Open(cfg Config, logger *slog.Logger) (*Log, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "audit")

	sink, err := openCSV(cfg.FilePath, logger)
	if err != nil {
		return nil, err
	}

	l := &Log{
		entries: make(chan *Entry, queueSize),
		sink:    sink,
		done:    make(chan error, 1),
		logger:  logger,
	}

	buf := newBuffer(sink.writeBatch, cfg.BatchSize, cfg.FlushInterval, logger)
	go func() {
		l.done <- buf.run(context.Background(), l.entries)
	}()

	logger.Info("audit log opened", "file", cfg.FilePath)
	return l, nil
}

// Record queues an entry. It never blocks: when the queue is full the entry is dropped and logged.
func (l *Log) Record(e *Entry) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		l.logger.Warn("audit log closed, dropping entry", "mode", e.Mode, "record_id", e.RecordID)
		return
	}

	select {
	case l.entries <- e:
		metrics.AuditEntriesTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	default:
		metrics.AuditEntriesTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		l.logger.Warn("audit queue full, dropping entry", "mode", e.Mode, "record_id", e.RecordID)
	}
}

// Close flushes queued entries and closes the file. It is safe to call more than once.
func (l *Log) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.entries)
	l.mu.Unlock()

	return errors.Join(<-l.done, l.sink.Close())
}

// Wrap returns a store that records every Create and Update on l before returning the result.
func (l *Log) Wrap(store api.RecordStore) api.RecordStore {
	return &auditedStore{RecordStore: store, log: l}
}

type auditedStore struct {
	api.RecordStore
	log *Log
}

func (s *auditedStore) Create(ctx context.Context, formName string, payload api.Payload) (api.MutationResult, error) {
	result, err := s.RecordStore.Create(ctx, formName, payload)
	s.log.Record(newEntry(form.ModeCreate, result.ID, payload, result, err))
	return result, err
}

func (s *auditedStore) Update(ctx context.Context, report, id string, payload api.Payload) (api.MutationResult, error) {
	result, err := s.RecordStore.Update(ctx, report, id, payload)
	s.log.Record(newEntry(form.ModeUpdate, id, payload, result, err))
	return result, err
}

func newEntry(mode, id string, payload api.Payload, result api.MutationResult, err error) *Entry {
	e := &Entry{
		Time:     time.Now(),
		Mode:     mode,
		RecordID: id,
		Code:     result.Code,
		Outcome:  metrics.OutcomeSuccess,
		Payload:  payload,
	}
	switch {
	case err != nil:
		e.Outcome = metrics.OutcomeFailure
		e.Error = err.Error()
	case result.Code != api.CodeSuccess:
		e.Outcome = metrics.OutcomeFailure
		e.Error = result.Message
	}
	return e
}
