package audit

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

var csvHeaders = []string{
	"Timestamp",
	"Mode",
	"Record_ID",
	"Outcome",
	"Code",
	"Item",
	"Base_Currency",
	"Converted_Currency",
	"Paying_In",
	"Cost",
	"Approval_Status",
	"Error",
}

// csvSink appends audit entries to a CSV file.
type csvSink struct {
	filePath string
	file     *os.File
	writer   *csv.Writer
	mu       sync.Mutex
	logger   *slog.Logger
}

func openCSV(path string, logger *slog.Logger) (*csvSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating audit directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening audit file: %w", err)
	}

	s := &csvSink{
		filePath: path,
		file:     file,
		writer:   csv.NewWriter(file),
		logger:   logger,
	}

	stat, err := file.Stat()
	if err != nil {
		if closeErr := file.Close(); closeErr != nil {
			return nil, fmt.Errorf("stat audit file: %w (close error: %w)", err, closeErr)
		}
		return nil, fmt.Errorf("stat audit file: %w", err)
	}

	if stat.Size() == 0 {
		if err := s.writeRows([][]string{csvHeaders}); err != nil {
			if closeErr := file.Close(); closeErr != nil {
				return nil, fmt.Errorf("writing headers: %w (close error: %w)", err, closeErr)
			}
			return nil, fmt.Errorf("writing headers: %w", err)
		}
	}

	return s, nil
}

// writeBatch appends entries to the file.
func (s *csvSink) writeBatch(entries []*Entry) error {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Time.UTC().Format(time.RFC3339),
			e.Mode,
			e.RecordID,
			e.Outcome,
			strconv.Itoa(e.Code),
			e.Payload.Item,
			e.Payload.BaseCurrency,
			e.Payload.ConvertedCurrency,
			e.Payload.PayingIn,
			e.Payload.Cost,
			e.Payload.ApprovalStatus,
			e.Error,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeRows(rows); err != nil {
		return fmt.Errorf("writing audit rows: %w", err)
	}

	s.logger.Debug("wrote audit entries", "count", len(entries), "file", s.filePath)
	return nil
}

func (s *csvSink) writeRows(rows [][]string) error {
	if err := s.writer.WriteAll(rows); err != nil {
		return err
	}
	return s.writer.Error()
}

// Close closes the file.
func (s *csvSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writer.Flush()
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("closing audit file: %w", err)
	}
	return nil
}
