package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/dispatchcost/pkg/currency"
	"github.com/ArionMiles/dispatchcost/pkg/form"
)

type submitOptions struct {
	id     string
	item   string
	amount string
	from   string
	to     string
	rate   string
	dryRun bool
}

func newSubmitCmd(a *app) *cobra.Command {
	var opts submitOptions

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Create a dispatch item cost, or update one with --id",
		Long: "Fills a form from flags and submits it. Without --id a new record is created using the\n" +
			"live rate; with --id the record is loaded first and only the given flags change it.",
		Args: cobra.NoArgs,
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

			deps, closeFn, err := r.Deps(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			return runSubmit(ctx, cmd.OutOrStdout(), deps, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.id, "id", "", "record id to edit")
	f.StringVar(&opts.item, "item", "", "item description")
	f.StringVar(&opts.amount, "amount", "", "amount in the source currency")
	f.StringVar(&opts.from, "from", "", "source currency code")
	f.StringVar(&opts.to, "to", "", "target currency code")
	f.StringVar(&opts.rate, "rate", "", "manual exchange rate replacing the live rate")
	f.BoolVar(&opts.dryRun, "dry-run", false, "print the record without saving it")
	return cmd
}

// runSubmit drives a session the same way the form does: load, edit, then submit once.
func runSubmit(ctx context.Context, out io.Writer, deps form.Deps, opts submitOptions) error {
	if opts.id != "" {
		if err := form.ValidateRecordID(opts.id); err != nil {
			return err
		}
	}

	sess := form.NewSession(deps, opts.id)
	if err := sess.Load(ctx); err != nil {
		if sess.EditMode() {
			return fmt.Errorf("loading record %s: %w", opts.id, err)
		}
		fmt.Fprintf(out, "Warning: %v\n", err)
	}

	engine := sess.Engine()

	if opts.from != "" {
		if err := currencyChanged(out, "source", engine.SetSourceCurrency(ctx, opts.from)); err != nil {
			return err
		}
	}
	if opts.to != "" {
		if err := currencyChanged(out, "target", engine.SetTargetCurrency(ctx, opts.to)); err != nil {
			return err
		}
	}
	if opts.item != "" {
		engine.SetItem(opts.item)
	}
	if opts.amount != "" {
		if err := engine.SetAmount(opts.amount); err != nil {
			return err
		}
	}
	if opts.rate != "" {
		if err := engine.StageOverrideRate(opts.rate); err != nil {
			return err
		}
		engine.CommitOverrideRate()
	}

	if summary, ok := engine.RateSummary(); ok {
		fmt.Fprintln(out, summary)
	}

	payload, err := form.NewFormatter().Build(engine.State())
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	fmt.Fprintln(out, string(b))

	if opts.dryRun {
		return nil
	}

	result, err := sess.Submit(ctx)
	if err != nil {
		return err
	}

	if sess.EditMode() {
		fmt.Fprintf(out, "Updated record %s\n", opts.id)
	} else {
		fmt.Fprintf(out, "Created record %s\n", result.ID)
	}
	return nil
}

// currencyChanged fails only on an unknown currency. A failed rate fetch keeps the last good rate
// and is printed as a warning.
func currencyChanged(out io.Writer, which string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, currency.ErrUnknownCurrency):
		return fmt.Errorf("setting %s currency: %w", which, err)
	default:
		fmt.Fprintf(out, "Warning: fetching rate for %s currency: %v\n", which, err)
		return nil
	}
}
