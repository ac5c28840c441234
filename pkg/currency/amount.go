package currency

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDisplayAmount extracts the number from a display string such as "K 2,500.00" by dropping
// every character that is not a digit or a decimal point. An empty result is 0.
func ParseDisplayAmount(s string) (decimal.Decimal, error) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}

	digits := b.String()
	if digits == "" {
		return decimal.Zero, nil
	}

	d, err := decimal.NewFromString(digits)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return d, nil
}

// Display renders amount prefixed by the symbol of code, e.g. "K 925.00" for places=2.
// A negative places writes the amount as entered, keeping its own scale ("100.00" stays "100.00").
func Display(code string, amount decimal.Decimal, places int32) (string, error) {
	sym, err := Symbol(code)
	if err != nil {
		return "", err
	}
	if places < 0 {
		return sym + " " + asEntered(amount), nil
	}
	return sym + " " + amount.StringFixed(places), nil
}

func asEntered(amount decimal.Decimal) string {
	if exp := amount.Exponent(); exp < 0 {
		return amount.StringFixed(-exp)
	}
	return amount.String()
}
