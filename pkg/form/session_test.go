package form

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/dispatchcost/pkg/api"
)

func TestSession_CreateMode(t *testing.T) {
	store := new(MockRecordStore)
	store.On("Create", mock.Anything, "Form", mock.MatchedBy(func(p api.Payload) bool {
		return p.PayingIn == "$ 50" && p.Cost == "K 925.00"
	})).Return(api.MutationResult{Code: api.CodeSuccess}, nil).Once()

	s := NewSession(Deps{
		Store:   store,
		Fetcher: fixedRate("18.5"),
		Form:    "Form",
		Report:  "Report",
		Logger:  discardLogger(),
	}, "")
	assert.False(t, s.EditMode())

	require.NoError(t, s.Load(context.Background()))
	assert.True(t, s.Engine().State().LiveRate.Equal(decimal.RequireFromString("18.5")))

	s.Engine().SetItem("Diesel")
	require.NoError(t, s.Engine().SetAmount("50"))

	_, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, s.Status())
	store.AssertNotCalled(t, "Find", mock.Anything, mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestSession_EditMode(t *testing.T) {
	store := new(MockRecordStore)
	store.On("Find", mock.Anything, "Report", "(ID == 42)").Return(storedRecord(), nil).Once()
	store.On("Update", mock.Anything, "Report", "42", mock.MatchedBy(func(p api.Payload) bool {
		return p.Item == "Cement" && p.PayingIn == "$ 100.00" && p.Cost == "K 2500.00"
	})).Return(api.MutationResult{Code: api.CodeSuccess}, nil).Once()

	fetches := 0
	fetcher := api.RateFetcherFunc(func(context.Context, string, string) (decimal.Decimal, error) {
		fetches++
		return decimal.NewFromInt(25), nil
	})

	s := NewSession(Deps{Store: store, Fetcher: fetcher, Report: "Report", Logger: discardLogger()}, "42")
	assert.True(t, s.EditMode())
	assert.Equal(t, "42", s.RecordID())

	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.Load(context.Background()))
	assert.Zero(t, fetches, "edit mode must not fetch a rate on load")

	_, err := s.Submit(context.Background())
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestSession_EditModeLoadFailureKeepsDefaults(t *testing.T) {
	store := new(MockRecordStore)
	store.On("Find", mock.Anything, DefaultReport, "(ID == 5)").
		Return(api.QueryResult{Code: api.CodeNoRecords}, nil).Once()
	store.On("Update", mock.Anything, DefaultReport, "5", mock.Anything).
		Return(api.MutationResult{Code: api.CodeSuccess}, nil).Once()

	s := NewSession(Deps{Store: store, Fetcher: failingRate(), Logger: discardLogger()}, "5")

	assert.Error(t, s.Load(context.Background()))
	assert.Equal(t, "", s.Engine().State().Item)

	s.Engine().SetItem("Gravel")
	_, err := s.Submit(context.Background())
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestSession_CustomCurrencies(t *testing.T) {
	s := NewSession(Deps{
		Store:          new(MockRecordStore),
		Fetcher:        fixedRate("0.05"),
		SourceCurrency: "zar",
		TargetCurrency: "usd",
		Logger:         discardLogger(),
	}, "")

	state := s.Engine().State()
	assert.Equal(t, "ZAR", state.SourceCurrency)
	assert.Equal(t, "USD", state.TargetCurrency)
}
