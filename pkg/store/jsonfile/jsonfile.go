// Package jsonfile implements an api.RecordStore that keeps dispatch item costs in a local JSON file.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/ArionMiles/dispatchcost/pkg/api"
)

// Config holds configuration for the JSON file store.
type Config struct {
	// FilePath is the path to the JSON file. It is created on first write.
	FilePath string `json:"filePath"`
}

// Store reads and writes records in a JSON array on disk.
type Store struct {
	filePath string
	records  []api.Record
	mu       sync.Mutex
	logger   *slog.Logger
}

// New creates a JSON file store, loading any records already present.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("file path is required")
	}

	s := &Store{
		filePath: cfg.FilePath,
		records:  make([]api.Record, 0),
		logger:   logger,
	}

	if err := s.loadExisting(); err != nil {
		return nil, fmt.Errorf("loading %s: %w", cfg.FilePath, err)
	}

	logger.Info("json store initialized", "file", cfg.FilePath, "existing_count", len(s.records))
	return s, nil
}

func (s *Store) loadExisting() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, &s.records)
}

// Find supports criteria selecting a single record by id.
func (s *Store) Find(_ context.Context, report, criteria string) (api.QueryResult, error) {
	id, ok := api.IDFromCriteria(criteria)
	if !ok {
		return api.QueryResult{}, fmt.Errorf("%w: %q", api.ErrUnsupportedCriteria, criteria)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(id); i >= 0 {
		return api.QueryResult{Code: api.CodeSuccess, Records: []api.Record{s.records[i]}}, nil
	}
	s.logger.Debug("record not found", "report", report, "id", id)
	return api.QueryResult{Code: api.CodeNoRecords}, nil
}

// Create appends a record with a new id.
func (s *Store) Create(_ context.Context, form string, payload api.Payload) (api.MutationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.records = append(s.records, payload.Record(id))
	if err := s.persist(); err != nil {
		s.records = s.records[:len(s.records)-1]
		return api.MutationResult{}, err
	}

	s.logger.Debug("created record", "form", form, "id", id, "total_count", len(s.records))
	return api.MutationResult{Code: api.CodeSuccess, ID: id}, nil
}

// Update replaces the record with the given id. A missing id is reported with api.CodeNoRecords.
func (s *Store) Update(_ context.Context, report, id string, payload api.Payload) (api.MutationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return api.MutationResult{Code: api.CodeNoRecords, Message: "record not found"}, nil
	}

	prev := s.records[i]
	s.records[i] = payload.Record(id)
	if err := s.persist(); err != nil {
		s.records[i] = prev
		return api.MutationResult{}, err
	}

	s.logger.Debug("updated record", "report", report, "id", id)
	return api.MutationResult{Code: api.CodeSuccess, ID: id}, nil
}

// Count returns the number of stored records.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// indexOf must be called with s.mu held.
func (s *Store) indexOf(id string) int {
	for i, r := range s.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// persist writes the whole array through a temp file so readers never see a partial file.
// Must be called with s.mu held.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling json: %w", err)
	}

	if dir := filepath.Dir(s.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
	}

	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing json file: %w", err)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		return fmt.Errorf("replacing json file: %w", err)
	}
	return nil
}
