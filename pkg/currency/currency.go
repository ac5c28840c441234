// Package currency holds the static currency reference table used to render amounts.
package currency

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/currency"
)

//go:embed currencies.json
var tableInput []byte

// ErrUnknownCurrency is returned when a code is not a valid ISO 4217 code or is missing from the table.
var ErrUnknownCurrency = errors.New("unknown currency")

// Currency is one entry of the reference table.
type Currency struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

var (
	table  []Currency
	byCode map[string]Currency
)

func init() {
	if err := json.Unmarshal(tableInput, &table); err != nil {
		panic(fmt.Sprintf("parsing embedded currency table: %v", err))
	}
	byCode = make(map[string]Currency, len(table))
	for _, c := range table {
		byCode[c.Code] = c
	}
}

// Normalize upper-cases code and checks it is a recognised ISO 4217 code.
func Normalize(code string) (string, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	return unit.String(), nil
}

// Lookup returns the table entry for code.
func Lookup(code string) (Currency, error) {
	c, ok := byCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return Currency{}, fmt.Errorf("%w: %q not in currency table", ErrUnknownCurrency, code)
	}
	return c, nil
}

// Symbol returns the display symbol for code.
func Symbol(code string) (string, error) {
	c, err := Lookup(code)
	if err != nil {
		return "", err
	}
	return c.Symbol, nil
}

// All returns a copy of the table in display order.
func All() []Currency {
	out := make([]Currency, len(table))
	copy(out, table)
	return out
}
