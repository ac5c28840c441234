package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/dispatchcost/internal/daemon"
	"github.com/ArionMiles/dispatchcost/pkg/config"
	"github.com/ArionMiles/dispatchcost/pkg/logging"
)

// app holds what every subcommand needs once the configuration is loaded.
type app struct {
	configPath string
	cfg        config.Config
	logger     *slog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "dispatchcost",
		Short:         "Record dispatch item costs with live currency conversion",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "optional JSON config file")

	root.AddCommand(
		newServeCmd(a),
		newSetupCmd(a),
		newStatusCmd(a),
		newSubmitCmd(a),
		newCurrenciesCmd(a),
	)

	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger = logging.Setup(logConfig(cfg))
	return nil
}

// logConfig picks the production JSON setup when LOG_JSON is set.
func logConfig(cfg config.Config) logging.Config {
	logCfg := logging.DefaultConfig()
	if cfg.LogJSON {
		logCfg = logging.ProductionConfig()
	}
	logCfg.Level = logging.ParseLevel(cfg.LogLevel)
	return logCfg
}

func (a *app) runner() (*daemon.Runner, error) {
	registry, err := daemon.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("registering store plugins: %w", err)
	}
	return daemon.New(registry, a.cfg, a.logger), nil
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func (a *app) signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			a.logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the form API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration:\n%w", err)
			}

			r, err := a.runner()
			if err != nil {
				return err
			}

			ctx, cancel := a.signalContext()
			defer cancel()
			return r.Serve(ctx)
		},
	}
}
