package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/dispatchcost/pkg/api"
	"github.com/ArionMiles/dispatchcost/pkg/config"
	"github.com/ArionMiles/dispatchcost/pkg/currency"
	"github.com/ArionMiles/dispatchcost/pkg/form"
	"github.com/ArionMiles/dispatchcost/pkg/logging"
	"github.com/ArionMiles/dispatchcost/pkg/store/jsonfile"
)

func testDeps(t *testing.T) (form.Deps, *jsonfile.Store) {
	t.Helper()
	store, err := jsonfile.New(jsonfile.Config{FilePath: filepath.Join(t.TempDir(), "records.json")}, logging.Discard())
	require.NoError(t, err)

	return form.Deps{
		Store: store,
		Fetcher: api.RateFetcherFunc(func(context.Context, string, string) (decimal.Decimal, error) {
			return decimal.RequireFromString("18.5"), nil
		}),
		Report: form.DefaultReport,
		Form:   form.DefaultForm,
		Logger: logging.Discard(),
	}, store
}

func TestRunSubmitCreate(t *testing.T) {
	deps, store := testDeps(t)
	var out bytes.Buffer

	err := runSubmit(context.Background(), &out, deps, submitOptions{item: "Cement", amount: "50"})
	require.NoError(t, err)

	assert.Equal(t, 1, store.Count())
	assert.Contains(t, out.String(), "1 USD = 18.5 ZMW")
	assert.Contains(t, out.String(), `"Cost": "K 925.00"`)
	assert.Contains(t, out.String(), "Created record ")
}

func TestRunSubmitDryRun(t *testing.T) {
	deps, store := testDeps(t)
	var out bytes.Buffer

	err := runSubmit(context.Background(), &out, deps, submitOptions{item: "Cement", amount: "10", rate: "20", dryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 0, store.Count())
	assert.Contains(t, out.String(), "1 USD = 20 ZMW")
	assert.Contains(t, out.String(), `"Cost": "K 200.00"`)
}

func TestRunSubmitUpdate(t *testing.T) {
	deps, store := testDeps(t)
	created, err := store.Create(context.Background(), form.DefaultForm, api.Payload{
		Item:              "Cement",
		PayingIn:          "$ 100.00",
		Cost:              "K 2500.00",
		BaseCurrency:      "USD",
		ConvertedCurrency: "ZMW",
	})
	require.NoError(t, err)

	var out bytes.Buffer
	err = runSubmit(context.Background(), &out, deps, submitOptions{id: created.ID, item: "Steel"})
	require.NoError(t, err)

	found, err := store.Find(context.Background(), form.DefaultReport, form.Criteria(created.ID))
	require.NoError(t, err)
	require.Len(t, found.Records, 1)
	assert.Equal(t, "Steel", found.Records[0].Item)
	assert.Equal(t, "$ 100.00", found.Records[0].PayingIn)
	assert.Equal(t, "K 2500.00", found.Records[0].Cost)
	assert.Contains(t, out.String(), "Updated record "+created.ID)
}

func TestRunSubmitErrors(t *testing.T) {
	tests := []struct {
		name string
		opts submitOptions
		want error
	}{
		{name: "missing item", opts: submitOptions{amount: "5"}},
		{name: "invalid id", opts: submitOptions{id: "1 OR 1"}, want: form.ErrInvalidRecordID},
		{name: "unknown record", opts: submitOptions{id: "missing", item: "Cement"}},
		{name: "bad rate", opts: submitOptions{item: "Cement", rate: "abc"}},
		{name: "unknown currency", opts: submitOptions{item: "Cement", to: "QQQ"}, want: currency.ErrUnknownCurrency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps, store := testDeps(t)

			err := runSubmit(context.Background(), &bytes.Buffer{}, deps, tt.opts)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			assert.Equal(t, 0, store.Count())
		})
	}
}

func TestRunSubmitRateFailureKeepsLastRate(t *testing.T) {
	deps, store := testDeps(t)
	calls := 0
	deps.Fetcher = api.RateFetcherFunc(func(context.Context, string, string) (decimal.Decimal, error) {
		calls++
		if calls > 1 {
			return decimal.Zero, errors.New("provider down")
		}
		return decimal.RequireFromString("18.5"), nil
	})

	var out bytes.Buffer
	err := runSubmit(context.Background(), &out, deps, submitOptions{item: "Cement", amount: "50", to: "EUR"})
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Contains(t, out.String(), "Warning: fetching rate for target currency: ")
	assert.Contains(t, out.String(), "provider down")
	assert.Contains(t, out.String(), "1 USD = 18.5 EUR")
	assert.Equal(t, 1, store.Count())
}

func TestRunSubmitValidationMessage(t *testing.T) {
	deps, _ := testDeps(t)

	err := runSubmit(context.Background(), &bytes.Buffer{}, deps, submitOptions{amount: "5"})

	var verr *form.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "Item is required", verr.Message)
}

type fakeRateTable map[string]json.Number

func (f fakeRateTable) Latest(context.Context, string) (map[string]json.Number, error) {
	return f, nil
}

func TestListCurrencies(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, listCurrencies(context.Background(), &out, nil, "USD"))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "CODE"))
	assert.Greater(t, len(lines), 1)
	assert.Contains(t, out.String(), "ZMW")

	out.Reset()
	table := fakeRateTable{"USD": "1", "ZMW": "18.5"}
	require.NoError(t, listCurrencies(context.Background(), &out, table, "USD"))
	assert.Contains(t, out.String(), "RATE (1 USD)")
	assert.Regexp(t, `ZMW\s+K\s+.*18\.5`, out.String())
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "setup", "status", "submit", "currencies"} {
		assert.Contains(t, names, want)
	}
}

func TestLogConfig(t *testing.T) {
	t.Setenv("LOG_JSON", "")

	cfg := config.Default()
	cfg.LogLevel = "debug"
	got := logConfig(cfg)
	assert.False(t, got.JSON)
	assert.Equal(t, slog.LevelDebug, got.Level)

	cfg.LogJSON = true
	cfg.LogLevel = "warn"
	got = logConfig(cfg)
	assert.True(t, got.JSON)
	assert.Equal(t, slog.LevelWarn, got.Level)
}
