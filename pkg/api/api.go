// Package api defines the core interfaces and data structures for dispatchcost.
package api

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// CodeSuccess is the response code a record store returns when a request succeeded.
const CodeSuccess = 3000

// CodeNoRecords is returned by Find when the criteria matched nothing.
const CodeNoRecords = 9280

// ApprovalPending is the approval status stamped on every submitted record.
const ApprovalPending = "Pending"

var (
	// ErrUnexpectedCode is returned when a store answers with a code other than CodeSuccess.
	ErrUnexpectedCode = errors.New("unexpected response code")
	// ErrRateNotFound is returned by a RateFetcher when the provider has no rate for the pair.
	ErrRateNotFound = errors.New("rate not found")
	// ErrUnsupportedCriteria is returned by stores that cannot evaluate a Find criteria.
	ErrUnsupportedCriteria = errors.New("unsupported criteria")
)

// Record is a dispatch item cost as persisted by a record store.
// Paying_In and Cost are display strings such as "$ 100.00".
type Record struct {
	ID                string `json:"ID,omitempty"`
	Item              string `json:"Item"`
	BaseCurrency      string `json:"Base_Currency"`
	ConvertedCurrency string `json:"Converted_Currency"`
	PayingIn          string `json:"Paying_In"`
	Cost              string `json:"Cost"`
	ApprovalStatus    string `json:"Approval_Status,omitempty"`
}

// Payload is the persisted shape built at submit time.
type Payload struct {
	Item              string `json:"Item"`
	PayingIn          string `json:"Paying_In"`
	Cost              string `json:"Cost"`
	BaseCurrency      string `json:"Base_Currency"`
	ConvertedCurrency string `json:"Converted_Currency"`
	ApprovalStatus    string `json:"Approval_Status"`
}

// Record converts the payload into a record carrying the given id.
func (p Payload) Record(id string) Record {
	return Record{
		ID:                id,
		Item:              p.Item,
		BaseCurrency:      p.BaseCurrency,
		ConvertedCurrency: p.ConvertedCurrency,
		PayingIn:          p.PayingIn,
		Cost:              p.Cost,
		ApprovalStatus:    p.ApprovalStatus,
	}
}

// QueryResult is the answer to a Find request.
type QueryResult struct {
	Code    int      `json:"code"`
	Records []Record `json:"data"`
}

// MutationResult is the answer to a Create or Update request.
// Only Code matters to the form; ID is filled when the store reports it.
type MutationResult struct {
	Code    int    `json:"code"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

// RecordStore reads and mutates dispatch item cost records.
type RecordStore interface {
	// Find returns the records of report matching criteria, e.g. "(ID == 42)".
	Find(ctx context.Context, report, criteria string) (QueryResult, error)
	// Create adds a new record through the named form.
	Create(ctx context.Context, form string, payload Payload) (MutationResult, error)
	// Update replaces the fields of an existing record.
	Update(ctx context.Context, report, id string, payload Payload) (MutationResult, error)
}

// RateFetcher returns the factor converting one unit of from into to.
type RateFetcher interface {
	FetchRate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// RateFetcherFunc adapts a function to RateFetcher.
type RateFetcherFunc func(ctx context.Context, from, to string) (decimal.Decimal, error)

// FetchRate calls f.
func (f RateFetcherFunc) FetchRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	return f(ctx, from, to)
}

var idCriteria = regexp.MustCompile(`^\(\s*ID\s*==\s*"?([A-Za-z0-9_-]+)"?\s*\)$`)

// IDFromCriteria extracts the id from a criteria of the form "(ID == 42)".
// Stores that only support lookups by id use it to interpret Find requests.
func IDFromCriteria(criteria string) (string, bool) {
	m := idCriteria.FindStringSubmatch(strings.TrimSpace(criteria))
	if m == nil {
		return "", false
	}
	return m[1], true
}
