// Package zoho provides a plugin wrapper for the Zoho Creator store.
package zoho

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/dispatchcost/internal/plugins"
	"github.com/ArionMiles/dispatchcost/pkg/api"
	zohostore "github.com/ArionMiles/dispatchcost/pkg/store/zoho"
)

// Plugin implements the StorePlugin interface for Zoho Creator.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "zoho"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Store dispatch item costs in a Zoho Creator application"
}

// OAuthProvider returns the provider whose token the store uses.
func (p *Plugin) OAuthProvider() string {
	return plugins.ProviderZoho
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
func (p *Plugin) RequiredScopes() []string {
	return zohostore.Scopes
}

// ConfigSchema returns a JSON schema describing the plugin's configuration.
func (p *Plugin) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"owner": map[string]any{
				"type":        "string",
				"description": "Account name owning the Creator application",
			},
			"app": map[string]any{
				"type":        "string",
				"description": "Link name of the Creator application",
			},
			"api_url": map[string]any{
				"type":        "string",
				"description": "Creator API root for the account's data centre",
				"default":     zohostore.DefaultAPIURL,
			},
		},
		"required": []string{"owner", "app"},
	}
}

// NewStore creates a Zoho store. httpClient must carry the Zoho OAuth token.
func (p *Plugin) NewStore(_ context.Context, httpClient *http.Client, configData json.RawMessage, logger *slog.Logger) (api.RecordStore, error) {
	if httpClient == nil {
		return nil, errors.New("zoho store requires an authorized http client")
	}

	var cfg zohostore.Config
	if err := json.Unmarshal(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling zoho config: %w", err)
	}

	return zohostore.New(httpClient, cfg, logger)
}
