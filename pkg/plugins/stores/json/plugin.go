// Package json provides a plugin wrapper for the JSON file store.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/dispatchcost/internal/plugins"
	"github.com/ArionMiles/dispatchcost/pkg/api"
	"github.com/ArionMiles/dispatchcost/pkg/store/jsonfile"
)

// Plugin implements the StorePlugin interface for a local JSON file.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "json"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Store dispatch item costs in a local JSON file"
}

// OAuthProvider returns ProviderNone.
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
			"filePath": map[string]any{
				"type":        "string",
				"description": "Path to the JSON file",
				"default":     "data/dispatch_item_costs.json",
			},
		},
		"required": []string{"filePath"},
	}
}

// NewStore creates a JSON file store instance. httpClient is ignored.
func (p *Plugin) NewStore(_ context.Context, _ *http.Client, configData json.RawMessage, logger *slog.Logger) (api.RecordStore, error) {
	var cfg jsonfile.Config
	if err := json.Unmarshal(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling json store config: %w", err)
	}

	if cfg.FilePath == "" {
		return nil, fmt.Errorf("filePath is required")
	}

	return jsonfile.New(cfg, logger)
}
