// Package sheets provides a plugin wrapper for the Google Sheets store.
package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/dispatchcost/internal/plugins"
	"github.com/ArionMiles/dispatchcost/pkg/api"
	sheetsstore "github.com/ArionMiles/dispatchcost/pkg/store/sheets"
)

// Plugin implements the StorePlugin interface for Google Sheets.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "sheets"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Store dispatch item costs as rows of a Google Sheet"
}

// OAuthProvider returns the provider whose token the store uses.
func (p *Plugin) OAuthProvider() string {
	return plugins.ProviderGoogle
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
func (p *Plugin) RequiredScopes() []string {
	return []string{sheetsstore.Scope}
}

// ConfigSchema returns a JSON schema describing the plugin's configuration.
func (p *Plugin) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sheetTitle": map[string]any{
				"type":        "string",
				"description": "Title for a new spreadsheet (used if sheetId is not provided)",
			},
			"sheetId": map[string]any{
				"type":        "string",
				"description": "ID of an existing spreadsheet to use",
			},
			"sheetName": map[string]any{
				"type":        "string",
				"description": "Name of the sheet/tab within the spreadsheet",
			},
		},
		"required": []string{"sheetName"},
	}
}

// NewStore creates a Sheets store instance.
func (p *Plugin) NewStore(ctx context.Context, httpClient *http.Client, configData json.RawMessage, logger *slog.Logger) (api.RecordStore, error) {
	if httpClient == nil {
		return nil, errors.New("sheets store requires an authorized http client")
	}

	var cfg sheetsstore.Config
	if err := json.Unmarshal(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling sheets config: %w", err)
	}

	if cfg.SheetName == "" {
		return nil, fmt.Errorf("sheetName is required")
	}
	if cfg.SheetID == "" && cfg.SheetTitle == "" {
		return nil, fmt.Errorf("either sheetId or sheetTitle is required")
	}

	return sheetsstore.New(ctx, httpClient, cfg, logger)
}
