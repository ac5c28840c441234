// Package postgres provides a plugin wrapper for the PostgreSQL store.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/dispatchcost/internal/plugins"
	"github.com/ArionMiles/dispatchcost/pkg/api"
	pgstore "github.com/ArionMiles/dispatchcost/pkg/store/postgres"
)

// Plugin implements the StorePlugin interface for PostgreSQL.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "postgres"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Store dispatch item costs in a PostgreSQL database"
}

// OAuthProvider returns ProviderNone; PostgreSQL authenticates with its own credentials.
func (p *Plugin) OAuthProvider() string {
	return plugins.ProviderNone
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
func (p *Plugin) RequiredScopes() []string {
	return []string{}
}

// ConfigSchema returns a JSON schema describing the plugin's configuration.
func (p *Plugin) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"host": map[string]any{
				"type":        "string",
				"description": "PostgreSQL host address",
				"default":     "localhost",
			},
			"port": map[string]any{
				"type":        "integer",
				"description": "PostgreSQL port",
				"default":     5432,
			},
			"database": map[string]any{
				"type":        "string",
				"description": "Database name",
				"default":     "dispatchcost",
			},
			"user": map[string]any{
				"type":        "string",
				"description": "Database user",
			},
			"password": map[string]any{
				"type":        "string",
				"description": "Database password",
			},
			"sslmode": map[string]any{
				"type":        "string",
				"description": "SSL mode (disable, require, verify-ca, verify-full)",
				"default":     "disable",
				"enum":        []string{"disable", "require", "verify-ca", "verify-full"},
			},
			"dsn": map[string]any{
				"type":        "string",
				"description": "Connection string used instead of the individual fields",
			},
			"maxPoolSize": map[string]any{
				"type":        "integer",
				"description": "Maximum number of connections in the pool (default: 5)",
				"default":     5,
			},
		},
		"required": []string{"host", "database", "user"},
	}
}

// NewStore creates a PostgreSQL store instance. httpClient is ignored.
func (p *Plugin) NewStore(ctx context.Context, _ *http.Client, configData json.RawMessage, logger *slog.Logger) (api.RecordStore, error) {
	var cfg pgstore.Config
	if err := json.Unmarshal(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling postgres config: %w", err)
	}

	if cfg.DSN == "" {
		if cfg.Host == "" {
			return nil, fmt.Errorf("host is required")
		}
		if cfg.Database == "" {
			return nil, fmt.Errorf("database is required")
		}
		if cfg.User == "" {
			return nil, fmt.Errorf("user is required")
		}
	}

	return pgstore.New(ctx, cfg, logger)
}
