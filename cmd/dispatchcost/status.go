package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/dispatchcost/internal/daemon"
	"github.com/ArionMiles/dispatchcost/pkg/api"
	"github.com/ArionMiles/dispatchcost/pkg/client"
	"github.com/ArionMiles/dispatchcost/pkg/form"
)

const statusTimeout = 10 * time.Second

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the configuration, authorization and connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runStatus(cmd.OutOrStdout())
		},
	}
}

// runStatus checks the configuration and authentication status.
func (a *app) runStatus(out io.Writer) error {
	fmt.Fprintln(out, "=== Dispatch Cost Status ===")
	fmt.Fprintln(out)

	allGood := true

	fmt.Fprint(out, "Configuration: ")
	if err := a.cfg.Validate(); err != nil {
		fmt.Fprintf(out, "✗ %v\n", err)
		allGood = false
	} else {
		fmt.Fprintf(out, "✓ store=%s report=%s form=%s\n", a.cfg.Store, a.cfg.Report, a.cfg.Form)
	}

	r, err := a.runner()
	if err != nil {
		return err
	}

	if !checkTokenStatus(out, r) {
		allGood = false
	}

	if allGood {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Connectivity:")
		if !a.checkConnectivity(out, r) {
			allGood = false
		}
	}

	printFinalStatus(out, allGood)
	return nil
}

func checkTokenStatus(out io.Writer, r *daemon.Runner) bool {
	auth, err := r.OAuth()
	if err != nil {
		fmt.Fprintf(out, "OAuth settings: ✗ %v\n", err)
		return false
	}
	if auth == nil {
		fmt.Fprintln(out, "OAuth token: ✓ Not required")
		return true
	}

	fmt.Fprintf(out, "OAuth token (%s): ", auth.TokenFile)
	token, err := client.TokenFromFile(auth.TokenFile)
	if err != nil {
		fmt.Fprintln(out, "✗ Not found (run 'dispatchcost setup')")
		return false
	}

	if token.Expiry.Before(time.Now()) {
		fmt.Fprintln(out, "⚠ Expired (will refresh on next run)")
	} else {
		fmt.Fprintf(out, "✓ Valid (expires: %s)\n", token.Expiry.Format(time.RFC3339))
	}
	return true
}

func (a *app) checkConnectivity(out io.Writer, r *daemon.Runner) bool {
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	deps, closeFn, err := r.Deps(ctx)
	if err != nil {
		fmt.Fprintf(out, "  Store: ✗ %v\n", err)
		return false
	}
	defer closeFn()

	ok := true

	fmt.Fprintf(out, "  Rate provider (%s/%s): ", a.cfg.SourceCurrency, a.cfg.TargetCurrency)
	rate, err := deps.Fetcher.FetchRate(ctx, a.cfg.SourceCurrency, a.cfg.TargetCurrency)
	if err != nil {
		fmt.Fprintf(out, "✗ %v\n", err)
		ok = false
	} else {
		fmt.Fprintf(out, "✓ 1 %s = %s %s\n", a.cfg.SourceCurrency, rate.String(), a.cfg.TargetCurrency)
	}

	// Any answer from the store, including "no records", proves the report is reachable.
	fmt.Fprintf(out, "  Store (%s): ", a.cfg.Store)
	result, err := deps.Store.Find(ctx, deps.Report, form.Criteria("0"))
	switch {
	case err != nil:
		fmt.Fprintf(out, "✗ %v\n", err)
		ok = false
	case result.Code != api.CodeSuccess && result.Code != api.CodeNoRecords:
		fmt.Fprintf(out, "✗ unexpected response code %d\n", result.Code)
		ok = false
	default:
		fmt.Fprintln(out, "✓ Connected")
	}

	return ok
}

func printFinalStatus(out io.Writer, allGood bool) {
	fmt.Fprintln(out)
	if allGood {
		fmt.Fprintln(out, "Status: ✓ Ready to run")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Run 'dispatchcost serve' to start the form API.")
	} else {
		fmt.Fprintln(out, "Status: ✗ Configuration issues detected")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Fix the issues above, then run 'dispatchcost status' again.")
	}
}
