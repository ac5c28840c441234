package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultBatchSize is the default number of entries to buffer before flushing.
const DefaultBatchSize = 10

// DefaultFlushInterval is the default interval between automatic flushes.
const DefaultFlushInterval = 30 * time.Second

// flusher is called when the buffer needs to be flushed.
type flusher func(entries []*Entry) error

// buffer collects entries and flushes them in batches.
type buffer struct {
	entries       []*Entry
	mu            sync.Mutex
	flush         flusher
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
}

func newBuffer(fn flusher, batchSize int, flushInterval time.Duration, logger *slog.Logger) *buffer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &buffer{
		entries:       make([]*Entry, 0, batchSize),
		flush:         fn,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger,
	}
}

// run consumes entries until in is closed or ctx is canceled, flushing what is left in both cases.
func (b *buffer) run(ctx context.Context, in <-chan *Entry) error {
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	b.logger.Debug("audit buffer started",
		"batch_size", b.batchSize,
		"flush_interval", b.flushInterval,
	)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("audit buffer stopping, flushing remaining entries")
			if err := b.flushAll(); err != nil {
				b.logger.Error("failed to flush on shutdown", "error", err)
			}
			return ctx.Err()
		case <-ticker.C:
			if err := b.flushAll(); err != nil {
				b.logger.Error("failed to flush on interval", "error", err)
			}
		case entry, ok := <-in:
			if !ok {
				return b.flushAll()
			}
			if b.add(entry) {
				if err := b.flushAll(); err != nil {
					b.logger.Error("failed to flush on batch size", "error", err)
				}
			}
		}
	}
}

// add buffers entry and reports whether the batch is full.
func (b *buffer) add(entry *Entry) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, entry)
	return len(b.entries) >= b.batchSize
}

// flushAll hands every buffered entry to the flusher. Entries are dropped if the flush fails.
func (b *buffer) flushAll() error {
	b.mu.Lock()
	if len(b.entries) == 0 {
		b.mu.Unlock()
		return nil
	}

	toFlush := make([]*Entry, len(b.entries))
	copy(toFlush, b.entries)
	b.entries = b.entries[:0]
	b.mu.Unlock()

	if err := b.flush(toFlush); err != nil {
		return err
	}

	b.logger.Debug("flushed audit entries", "count", len(toFlush))
	return nil
}

// Len returns the current number of buffered entries.
func (b *buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
