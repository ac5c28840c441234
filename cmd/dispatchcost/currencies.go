package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/dispatchcost/pkg/currency"
)

// rateTable returns every rate from base in a single provider call.
type rateTable interface {
	Latest(ctx context.Context, base string) (map[string]json.Number, error)
}

func newCurrenciesCmd(a *app) *cobra.Command {
	var withRates bool

	cmd := &cobra.Command{
		Use:   "currencies",
		Short: "List the supported currencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var table rateTable
			if withRates {
				r, err := a.runner()
				if err != nil {
					return err
				}
				table = r.Rates()
			}

			ctx, cancel := a.signalContext()
			defer cancel()
			return listCurrencies(ctx, cmd.OutOrStdout(), table, a.cfg.SourceCurrency)
		},
	}
	cmd.Flags().BoolVar(&withRates, "rates", false, "show the live rate from the default source currency")
	return cmd
}

// listCurrencies prints the currency table. With a rate table each row also shows the rate from base.
func listCurrencies(ctx context.Context, out io.Writer, table rateTable, base string) error {
	var rates map[string]json.Number
	if table != nil {
		var err error
		if rates, err = table.Latest(ctx, base); err != nil {
			return err
		}
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if rates == nil {
		fmt.Fprintln(w, "CODE\tSYMBOL\tNAME")
	} else {
		fmt.Fprintf(w, "CODE\tSYMBOL\tNAME\tRATE (1 %s)\n", base)
	}

	for _, c := range currency.All() {
		if rates == nil {
			fmt.Fprintf(w, "%s\t%s\t%s\n", c.Code, c.Symbol, c.Name)
			continue
		}

		rate := "-"
		if r, ok := rates[c.Code]; ok {
			rate = r.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Code, c.Symbol, c.Name, rate)
	}

	return w.Flush()
}
