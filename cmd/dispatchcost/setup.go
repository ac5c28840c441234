package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/dispatchcost/internal/plugins"
	"github.com/ArionMiles/dispatchcost/pkg/client"
)

func newSetupCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Authorize dispatchcost against the configured record store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runSetup(cmd, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "re-authenticate even if a token exists")
	return cmd
}

// runSetup handles the OAuth setup flow.
func (a *app) runSetup(cmd *cobra.Command, force bool) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "=== Dispatch Cost Setup ===")
	fmt.Fprintln(out)

	r, err := a.runner()
	if err != nil {
		return err
	}

	plugin, err := r.Plugin()
	if err != nil {
		return err
	}

	if plugin.OAuthProvider() == plugins.ProviderNone {
		fmt.Fprintf(out, "The %s store needs no authorization. Run 'dispatchcost status' to check the configuration.\n", plugin.Name())
		return nil
	}

	if plugin.OAuthProvider() == plugins.ProviderGoogle {
		secretsPath := a.cfg.Sheets.CredentialsFile
		if _, err := os.Stat(secretsPath); os.IsNotExist(err) {
			return fmt.Errorf("credentials file not found: %s\n\nTo get your credentials:\n"+
				"1. Go to https://console.cloud.google.com/apis/credentials\n"+
				"2. Create an OAuth 2.0 Client ID (Desktop application)\n"+
				"3. Download the JSON file and save it as '%s'", secretsPath, secretsPath)
		}
	}

	auth, err := r.OAuth()
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(auth.TokenFile); err == nil {
			fmt.Fprintf(out, "Already authenticated! Token file exists: %s\n", auth.TokenFile)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "To re-authenticate, run: dispatchcost setup --force")
			return nil
		}
	} else {
		if err := os.Remove(auth.TokenFile); err != nil && !os.IsNotExist(err) {
			a.logger.Warn("failed to remove existing token", "error", err)
		}
		fmt.Fprintln(out, "Forcing re-authentication...")
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "This will set up OAuth authentication with %s for the %s store.\n", auth.Provider, plugin.Name())
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Required permissions:")
	for _, scope := range plugin.RequiredScopes() {
		fmt.Fprintf(out, "  - %s\n", scope)
	}
	fmt.Fprintln(out)

	ctx, cancel := a.signalContext()
	defer cancel()

	if _, err := client.Login(ctx, auth.Config, auth.TokenFile, a.logger, auth.AuthOptions...); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "=== Setup Complete ===")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Token saved to: %s\n", auth.TokenFile)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  1. Run 'dispatchcost status' to verify the configuration")
	fmt.Fprintln(out, "  2. Run 'dispatchcost serve' to start the form API")
	fmt.Fprintln(out)

	return nil
}
