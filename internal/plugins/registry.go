// Package plugins provides a registry of record store plugins.
package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/ArionMiles/dispatchcost/pkg/api"
)

// OAuth providers a store plugin can depend on.
const (
	ProviderNone   = ""
	ProviderZoho   = "zoho"
	ProviderGoogle = "google"
)

// StorePlugin defines the interface for record store plugins.
type StorePlugin interface {
	// Name returns the plugin name (e.g., "zoho", "sheets").
	Name() string
	// Description returns a human-readable description.
	Description() string
	// OAuthProvider names the provider whose token the store needs, or ProviderNone.
	OAuthProvider() string
	// RequiredScopes returns the OAuth scopes needed by this plugin.
	RequiredScopes() []string
	// ConfigSchema returns a JSON schema describing the plugin's configuration.
	ConfigSchema() map[string]any
	// NewStore creates a store with the given config. httpClient is nil for stores
	// without an OAuth provider.
	NewStore(ctx context.Context, httpClient *http.Client, config json.RawMessage, logger *slog.Logger) (api.RecordStore, error)
}

// Registry manages available store plugins.
type Registry struct {
	stores map[string]StorePlugin
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		stores: make(map[string]StorePlugin),
	}
}

// Register registers a store plugin.
func (r *Registry) Register(plugin StorePlugin) error {
	name := plugin.Name()
	if _, exists := r.stores[name]; exists {
		return fmt.Errorf("store plugin %q already registered", name)
	}
	r.stores[name] = plugin
	return nil
}

// Get returns a store plugin by name.
func (r *Registry) Get(name string) (StorePlugin, error) {
	plugin, exists := r.stores[name]
	if !exists {
		return nil, fmt.Errorf("store plugin %q not found", name)
	}
	return plugin, nil
}

// List returns all registered store plugins sorted by name.
func (r *Registry) List() []StorePlugin {
	plugins := make([]StorePlugin, 0, len(r.stores))
	for _, plugin := range r.stores {
		plugins = append(plugins, plugin)
	}
	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].Name() < plugins[j].Name()
	})
	return plugins
}

// Create creates a store instance from a plugin.
func (r *Registry) Create(ctx context.Context, name string, httpClient *http.Client, config json.RawMessage, logger *slog.Logger) (api.RecordStore, error) {
	plugin, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return plugin.NewStore(ctx, httpClient, config, logger)
}
