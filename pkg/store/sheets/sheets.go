// Package sheets implements an api.RecordStore on a Google Sheets spreadsheet, one record per row.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/ArionMiles/dispatchcost/pkg/api"
)

// Retry defaults for rate limited requests.
const (
	DefaultAttempts   = 3
	DefaultRetryDelay = 60 * time.Second
)

// Scope is the OAuth scope the store needs.
const Scope = sheets.SpreadsheetsScope

var headers = []any{"ID", "Item", "Base_Currency", "Converted_Currency", "Paying_In", "Cost", "Approval_Status"}

// Config holds configuration for the Sheets store.
type Config struct {
	// SheetTitle is the title for a new spreadsheet (if SheetID is empty).
	SheetTitle string `json:"sheetTitle"`
	// SheetID is the ID of an existing spreadsheet to use.
	SheetID string `json:"sheetId"`
	// SheetName is the name of the sheet within the spreadsheet.
	SheetName string `json:"sheetName"`
	// Attempts and RetryDelay control retries on HTTP 429.
	Attempts   uint          `json:"-"`
	RetryDelay time.Duration `json:"-"`
}

// valuesAPI is the subset of the Sheets values API the store uses.
type valuesAPI interface {
	Get(ctx context.Context, spreadsheetID, readRange string) ([][]any, error)
	Append(ctx context.Context, spreadsheetID, writeRange string, rows [][]any) error
	Update(ctx context.Context, spreadsheetID, writeRange string, rows [][]any) error
}

// Store keeps records in a sheet. Row 1 holds headers.
type Store struct {
	mu            sync.Mutex
	values        valuesAPI
	spreadsheetID string
	sheetName     string
	attempts      uint
	delay         time.Duration
	logger        *slog.Logger
}

// New creates a Sheets store, opening cfg.SheetID or creating a spreadsheet titled cfg.SheetTitle.
func New(ctx context.Context, httpClient *http.Client, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := sheets.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	values := serviceValues{client: client}
	spreadsheetID, err := initSpreadsheet(ctx, client, values, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing spreadsheet: %w", err)
	}

	s := newStore(values, spreadsheetID, cfg, logger)
	logger.Info("sheets store initialized", "spreadsheet_id", spreadsheetID, "sheet", cfg.SheetName)
	return s, nil
}

func newStore(values valuesAPI, spreadsheetID string, cfg Config, logger *slog.Logger) *Store {
	if cfg.Attempts == 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	return &Store{
		values:        values,
		spreadsheetID: spreadsheetID,
		sheetName:     cfg.SheetName,
		attempts:      cfg.Attempts,
		delay:         cfg.RetryDelay,
		logger:        logger,
	}
}

func initSpreadsheet(ctx context.Context, client *sheets.Service, values valuesAPI, cfg Config, logger *slog.Logger) (string, error) {
	if cfg.SheetID != "" {
		spreadsheet, err := client.Spreadsheets.Get(cfg.SheetID).Context(ctx).Do()
		if err == nil {
			logger.Info("using existing spreadsheet", "title", spreadsheet.Properties.Title, "id", cfg.SheetID)
			return spreadsheet.SpreadsheetId, nil
		}
		logger.Warn("failed to get spreadsheet, will create new one", "id", cfg.SheetID, "error", err)
	}

	spreadsheet, err := client.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: cfg.SheetTitle},
		Sheets: []*sheets.Sheet{{
			Properties: &sheets.SheetProperties{Title: cfg.SheetName},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("creating spreadsheet: %w", err)
	}

	logger.Info("created new spreadsheet", "title", cfg.SheetTitle, "id", spreadsheet.SpreadsheetId)

	headerRange := fmt.Sprintf("%s!A1:G1", cfg.SheetName)
	if err := values.Update(ctx, spreadsheet.SpreadsheetId, headerRange, [][]any{headers}); err != nil {
		return "", fmt.Errorf("writing headers: %w", err)
	}
	return spreadsheet.SpreadsheetId, nil
}

// Find supports criteria selecting a single record by id.
func (s *Store) Find(ctx context.Context, report, criteria string) (api.QueryResult, error) {
	id, ok := api.IDFromCriteria(criteria)
	if !ok {
		return api.QueryResult{}, fmt.Errorf("%w: %q", api.ErrUnsupportedCriteria, criteria)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.rows(ctx)
	if err != nil {
		return api.QueryResult{}, err
	}

	for _, row := range rows {
		if cell(row, 0) == id {
			return api.QueryResult{Code: api.CodeSuccess, Records: []api.Record{rowToRecord(row)}}, nil
		}
	}
	s.logger.Debug("record not found", "report", report, "id", id)
	return api.QueryResult{Code: api.CodeNoRecords}, nil
}

// Create appends a row with a new id.
func (s *Store) Create(ctx context.Context, form string, payload api.Payload) (api.MutationResult, error) {
	id := uuid.NewString()
	row := recordToRow(payload.Record(id))

	s.mu.Lock()
	defer s.mu.Unlock()

	writeRange := fmt.Sprintf("%s!A2:G2", s.sheetName)
	err := s.withRetry(ctx, func() error {
		return s.values.Append(ctx, s.spreadsheetID, writeRange, [][]any{row})
	})
	if err != nil {
		return api.MutationResult{}, fmt.Errorf("appending row to sheet: %w", err)
	}

	s.logger.Info("wrote record", "form", form, "id", id, "item", payload.Item)
	return api.MutationResult{Code: api.CodeSuccess, ID: id}, nil
}

// Update rewrites the row holding id. A missing id is reported with api.CodeNoRecords.
func (s *Store) Update(ctx context.Context, report, id string, payload api.Payload) (api.MutationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.rows(ctx)
	if err != nil {
		return api.MutationResult{}, err
	}

	index := -1
	for i, row := range rows {
		if cell(row, 0) == id {
			index = i
			break
		}
	}
	if index < 0 {
		return api.MutationResult{Code: api.CodeNoRecords, Message: "record not found"}, nil
	}

	// rows start at sheet row 2
	rowNumber := index + 2
	writeRange := fmt.Sprintf("%s!A%d:G%d", s.sheetName, rowNumber, rowNumber)
	err = s.withRetry(ctx, func() error {
		return s.values.Update(ctx, s.spreadsheetID, writeRange, [][]any{recordToRow(payload.Record(id))})
	})
	if err != nil {
		return api.MutationResult{}, fmt.Errorf("updating row %d: %w", rowNumber, err)
	}

	s.logger.Info("updated record", "report", report, "id", id, "row", rowNumber)
	return api.MutationResult{Code: api.CodeSuccess, ID: id}, nil
}

// SpreadsheetID returns the ID of the spreadsheet records are kept in.
func (s *Store) SpreadsheetID() string {
	return s.spreadsheetID
}

func (s *Store) rows(ctx context.Context) ([][]any, error) {
	var rows [][]any
	readRange := fmt.Sprintf("%s!A2:G", s.sheetName)
	err := s.withRetry(ctx, func() error {
		var err error
		rows, err = s.values.Get(ctx, s.spreadsheetID, readRange)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading sheet: %w", err)
	}
	return rows, nil
}

func (s *Store) withRetry(ctx context.Context, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
				s.logger.Warn("rate limited, will retry", "error", err)
				return true
			}
			return false
		}),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.LastErrorOnly(true),
	)
}

func recordToRow(r api.Record) []any {
	return []any{r.ID, r.Item, r.BaseCurrency, r.ConvertedCurrency, r.PayingIn, r.Cost, r.ApprovalStatus}
}

func rowToRecord(row []any) api.Record {
	return api.Record{
		ID:                cell(row, 0),
		Item:              cell(row, 1),
		BaseCurrency:      cell(row, 2),
		ConvertedCurrency: cell(row, 3),
		PayingIn:          cell(row, 4),
		Cost:              cell(row, 5),
		ApprovalStatus:    cell(row, 6),
	}
}

// cell returns column i of row as a string; the API omits trailing empty cells.
func cell(row []any, i int) string {
	if i >= len(row) || row[i] == nil {
		return ""
	}
	if s, ok := row[i].(string); ok {
		return s
	}
	return fmt.Sprint(row[i])
}

// serviceValues adapts *sheets.Service to valuesAPI.
type serviceValues struct {
	client *sheets.Service
}

func (v serviceValues) Get(ctx context.Context, spreadsheetID, readRange string) ([][]any, error) {
	resp, err := v.client.Spreadsheets.Values.Get(spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (v serviceValues) Append(ctx context.Context, spreadsheetID, writeRange string, rows [][]any) error {
	_, err := v.client.Spreadsheets.Values.Append(spreadsheetID, writeRange, &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

func (v serviceValues) Update(ctx context.Context, spreadsheetID, writeRange string, rows [][]any) error {
	_, err := v.client.Spreadsheets.Values.Update(spreadsheetID, writeRange, &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}
