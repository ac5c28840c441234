// Package daemon wires configuration, the store plugin registry and the rate client into the
// collaborators shared by every dispatchcost command.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/ArionMiles/dispatchcost/internal/plugins"
	"github.com/ArionMiles/dispatchcost/internal/server"
	"github.com/ArionMiles/dispatchcost/pkg/audit"
	"github.com/ArionMiles/dispatchcost/pkg/client"
	"github.com/ArionMiles/dispatchcost/pkg/config"
	"github.com/ArionMiles/dispatchcost/pkg/form"
	jsonplugin "github.com/ArionMiles/dispatchcost/pkg/plugins/stores/json"
	postgresplugin "github.com/ArionMiles/dispatchcost/pkg/plugins/stores/postgres"
	sheetsplugin "github.com/ArionMiles/dispatchcost/pkg/plugins/stores/sheets"
	zohoplugin "github.com/ArionMiles/dispatchcost/pkg/plugins/stores/zoho"
	"github.com/ArionMiles/dispatchcost/pkg/rates"
)

// OAuth describes how to authorize requests for a store plugin.
type OAuth struct {
	Provider  string
	Config    *oauth2.Config
	TokenFile string
	Options   []client.Option
	// AuthOptions are passed to the authorization URL during setup.
	AuthOptions []oauth2.AuthCodeOption
}

// NewRegistry returns a registry holding every built-in store plugin.
func NewRegistry() (*plugins.Registry, error) {
	registry := plugins.NewRegistry()
	for _, plugin := range []plugins.StorePlugin{
		&zohoplugin.Plugin{},
		&sheetsplugin.Plugin{},
		&postgresplugin.Plugin{},
		&jsonplugin.Plugin{},
	} {
		if err := registry.Register(plugin); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// Runner builds form dependencies from configuration.
type Runner struct {
	registry *plugins.Registry
	cfg      config.Config
	logger   *slog.Logger
}

// New creates a new runner.
func New(registry *plugins.Registry, cfg config.Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
}

// Plugin returns the configured store plugin.
func (r *Runner) Plugin() (plugins.StorePlugin, error) {
	return r.registry.Get(r.cfg.Store)
}

// OAuth returns the authorization settings of the configured store, or nil when the store does
// not use OAuth.
func (r *Runner) OAuth() (*OAuth, error) {
	plugin, err := r.Plugin()
	if err != nil {
		return nil, err
	}

	switch provider := plugin.OAuthProvider(); provider {
	case plugins.ProviderNone:
		return nil, nil
	case plugins.ProviderZoho:
		z := r.cfg.Zoho
		return &OAuth{
			Provider:    provider,
			Config:      client.ZohoConfig(z.ClientID, z.ClientSecret, z.AccountsURL, plugin.RequiredScopes()...),
			TokenFile:   z.TokenFile,
			Options:     []client.Option{client.WithTokenType(client.ZohoTokenType)},
			AuthOptions: []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("prompt", "consent")},
		}, nil
	case plugins.ProviderGoogle:
		oc, err := client.GoogleConfig(r.cfg.Sheets.CredentialsFile, plugin.RequiredScopes()...)
		if err != nil {
			return nil, err
		}
		return &OAuth{
			Provider:  provider,
			Config:    oc,
			TokenFile: r.cfg.Sheets.TokenFile,
		}, nil
	default:
		return nil, fmt.Errorf("store plugin %q uses unknown oauth provider %q", plugin.Name(), provider)
	}
}

// Deps creates the record store and the rate client. When an audit path is configured the store
// is wrapped so every mutation is logged. The returned close function releases the store and must
// be called once the deps are no longer used.
func (r *Runner) Deps(ctx context.Context) (form.Deps, func(), error) {
	var httpClient *http.Client

	auth, err := r.OAuth()
	if err != nil {
		return form.Deps{}, nil, fmt.Errorf("resolving oauth settings: %w", err)
	}
	if auth != nil {
		httpClient, err = client.New(ctx, auth.Config, auth.TokenFile, r.logger, auth.Options...)
		if err != nil {
			return form.Deps{}, nil, fmt.Errorf("creating %s http client: %w", auth.Provider, err)
		}
	}

	pluginCfg, err := r.cfg.PluginConfig()
	if err != nil {
		return form.Deps{}, nil, err
	}

	store, err := r.registry.Create(
		ctx,
		r.cfg.Store,
		httpClient,
		pluginCfg,
		r.logger.With("component", "store", "plugin", r.cfg.Store),
	)
	if err != nil {
		return form.Deps{}, nil, fmt.Errorf("creating store: %w", err)
	}

	closeStore := func() {}
	if c, ok := store.(interface{ Close() }); ok {
		closeStore = c.Close
	}
	closeFn := closeStore

	if r.cfg.Audit.FilePath != "" {
		auditLog, err := audit.Open(audit.Config{
			FilePath:      r.cfg.Audit.FilePath,
			BatchSize:     r.cfg.Audit.BatchSize,
			FlushInterval: r.cfg.Audit.FlushInterval(),
		}, r.logger)
		if err != nil {
			closeStore()
			return form.Deps{}, nil, fmt.Errorf("opening audit log: %w", err)
		}
		store = auditLog.Wrap(store)
		closeFn = func() {
			if err := auditLog.Close(); err != nil {
				r.logger.Error("failed to close audit log", "error", err)
			}
			closeStore()
		}
	}

	r.logger.Info("store ready", "store", r.cfg.Store, "report", r.cfg.Report, "form", r.cfg.Form)

	return form.Deps{
		Store:          store,
		Fetcher:        r.Rates(),
		Report:         r.cfg.Report,
		Form:           r.cfg.Form,
		SourceCurrency: r.cfg.SourceCurrency,
		TargetCurrency: r.cfg.TargetCurrency,
		Logger:         r.logger,
	}, closeFn, nil
}

// Rates creates the exchange rate client.
func (r *Runner) Rates() *rates.Client {
	return rates.New(rates.Config{
		BaseURL: r.cfg.Rates.BaseURL,
		APIKey:  r.cfg.Rates.APIKey,
		Timeout: r.cfg.Rates.Timeout(),
	}, r.logger.With("component", "rates"))
}

// Serve runs the form API until ctx is canceled.
func (r *Runner) Serve(ctx context.Context) error {
	deps, closeFn, err := r.Deps(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	r.logger.Info("starting dispatchcost server", "addr", r.cfg.ListenAddr, "store", r.cfg.Store)
	if err := server.New(deps, server.Config{
		AllowedOrigins: r.cfg.Origins(),
		SessionTTL:     r.cfg.SessionTTL(),
	}, r.logger).Run(ctx, r.cfg.ListenAddr); err != nil {
		return err
	}
	r.logger.Info("server stopped")
	return nil
}
