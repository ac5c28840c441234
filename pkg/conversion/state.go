// Package conversion keeps an amount, its currency pair and the exchange rate between them consistent
// while a dispatch item cost is being edited.
package conversion

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Default currency pair of a fresh form.
const (
	DefaultSourceCurrency = "USD"
	DefaultTargetCurrency = "ZMW"
)

// State is the single mutable aggregate behind a form. It is only changed through Engine methods.
type State struct {
	Item           string `json:"item"`
	SourceCurrency string `json:"source_currency"`
	TargetCurrency string `json:"target_currency"`
	// Amount is expressed in SourceCurrency and is never rounded.
	Amount decimal.Decimal `json:"amount"`
	// LiveRate converts one unit of SourceCurrency into TargetCurrency.
	LiveRate decimal.Decimal `json:"live_rate"`
	// OverrideRate is a staged manual rate, active only after CommitOverrideRate.
	OverrideRate decimal.Decimal `json:"override_rate"`
	// TargetAmount is always Amount * LiveRate rounded to 2 places.
	TargetAmount decimal.Decimal `json:"target_amount"`
}

// DefaultState returns the state of a new, unhydrated form.
func DefaultState() State {
	return State{
		SourceCurrency: DefaultSourceCurrency,
		TargetCurrency: DefaultTargetCurrency,
		Amount:         decimal.Zero,
		LiveRate:       decimal.Zero,
		OverrideRate:   decimal.Zero,
		TargetAmount:   decimal.Zero,
	}
}

// SameCurrency reports whether no conversion is needed.
func (s State) SameCurrency() bool {
	return s.SourceCurrency == s.TargetCurrency
}

// RateSummary renders the "1 USD = 18.5 ZMW" line. The second value is false when
// both currencies are equal, in which case no rate is shown at all.
func (s State) RateSummary() (string, bool) {
	if s.SameCurrency() {
		return "", false
	}
	return fmt.Sprintf("1 %s = %s %s", s.SourceCurrency, s.LiveRate.String(), s.TargetCurrency), true
}

// Hydration carries the fields restored from a persisted record.
type Hydration struct {
	Item           string
	SourceCurrency string
	TargetCurrency string
	Amount         decimal.Decimal
	TargetAmount   decimal.Decimal
}

func convert(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Round(2)
}
