// Package postgres provides an api.RecordStore backed by PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ArionMiles/dispatchcost/pkg/api"
	"github.com/ArionMiles/dispatchcost/pkg/currency"
)

//go:embed 001_create_dispatch_item_costs.sql
var migrationSQL string

// Config holds the PostgreSQL store configuration.
type Config struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"password"`
	SSLMode  string `json:"sslmode"`

	// DSN, when set, is used instead of the individual connection fields.
	DSN string `json:"dsn,omitempty"`

	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int `json:"maxPoolSize,omitempty"`
}

// Store reads and writes dispatch item costs in the dispatch_item_costs table.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects to PostgreSQL and applies the schema.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 5
	}

	connStr := cfg.DSN
	if connStr == "" {
		connStr = fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
		)
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to PostgreSQL",
		"host", poolConfig.ConnConfig.Host,
		"port", poolConfig.ConnConfig.Port,
		"database", poolConfig.ConnConfig.Database,
	)

	s := &Store{pool: pool, logger: logger}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) runMigrations(ctx context.Context) error {
	s.logger.Info("running database migrations")

	if _, err := s.pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}

	s.logger.Info("migrations completed successfully")
	return nil
}

// Find supports criteria selecting a single record by id. Ids that are not UUIDs match nothing.
func (s *Store) Find(ctx context.Context, report, criteria string) (api.QueryResult, error) {
	raw, ok := api.IDFromCriteria(criteria)
	if !ok {
		return api.QueryResult{}, fmt.Errorf("%w: %q", api.ErrUnsupportedCriteria, criteria)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return api.QueryResult{Code: api.CodeNoRecords}, nil
	}

	var r api.Record
	err = s.pool.QueryRow(ctx, `
		SELECT id::text, item, base_currency, converted_currency, paying_in, cost, approval_status
		FROM dispatch_item_costs
		WHERE id = $1
	`, id).Scan(&r.ID, &r.Item, &r.BaseCurrency, &r.ConvertedCurrency, &r.PayingIn, &r.Cost, &r.ApprovalStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		s.logger.Debug("record not found", "report", report, "id", raw)
		return api.QueryResult{Code: api.CodeNoRecords}, nil
	}
	if err != nil {
		return api.QueryResult{}, fmt.Errorf("querying record %s: %w", raw, err)
	}

	return api.QueryResult{Code: api.CodeSuccess, Records: []api.Record{r}}, nil
}

// Create inserts a record with a new id.
func (s *Store) Create(ctx context.Context, form string, payload api.Payload) (api.MutationResult, error) {
	id := uuid.New()
	payingInAmount, costAmount := s.amounts(payload)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO dispatch_item_costs (
			id, item, base_currency, converted_currency, paying_in, cost,
			paying_in_amount, cost_amount, approval_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		id,
		payload.Item,
		payload.BaseCurrency,
		payload.ConvertedCurrency,
		payload.PayingIn,
		payload.Cost,
		payingInAmount,
		costAmount,
		payload.ApprovalStatus,
	)
	if err != nil {
		return api.MutationResult{}, fmt.Errorf("inserting record: %w", err)
	}

	s.logger.Info("inserted record", "form", form, "id", id.String(), "item", payload.Item)
	return api.MutationResult{Code: api.CodeSuccess, ID: id.String()}, nil
}

// Update rewrites the record with the given id. A missing id is reported with api.CodeNoRecords.
func (s *Store) Update(ctx context.Context, report, id string, payload api.Payload) (api.MutationResult, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return api.MutationResult{Code: api.CodeNoRecords, Message: "record not found"}, nil
	}
	payingInAmount, costAmount := s.amounts(payload)

	tag, err := s.pool.Exec(ctx, `
		UPDATE dispatch_item_costs SET
			item = $2,
			base_currency = $3,
			converted_currency = $4,
			paying_in = $5,
			cost = $6,
			paying_in_amount = $7,
			cost_amount = $8,
			approval_status = $9,
			updated_at = NOW()
		WHERE id = $1
	`,
		uid,
		payload.Item,
		payload.BaseCurrency,
		payload.ConvertedCurrency,
		payload.PayingIn,
		payload.Cost,
		payingInAmount,
		costAmount,
		payload.ApprovalStatus,
	)
	if err != nil {
		return api.MutationResult{}, fmt.Errorf("updating record %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return api.MutationResult{Code: api.CodeNoRecords, Message: "record not found"}, nil
	}

	s.logger.Info("updated record", "report", report, "id", id)
	return api.MutationResult{Code: api.CodeSuccess, ID: id}, nil
}

// amounts extracts the numeric columns from the display strings.
func (s *Store) amounts(p api.Payload) (payingIn, cost string) {
	a, err := currency.ParseDisplayAmount(p.PayingIn)
	if err != nil {
		s.logger.Warn("unparseable paying-in amount, storing 0", "value", p.PayingIn)
	}
	c, err := currency.ParseDisplayAmount(p.Cost)
	if err != nil {
		s.logger.Warn("unparseable cost amount, storing 0", "value", p.Cost)
	}
	return a.String(), c.StringFixed(2)
}

// Close closes the database connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
		s.logger.Info("closed PostgreSQL connection pool")
	}
}
