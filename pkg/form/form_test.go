package form

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/dispatchcost/pkg/api"
	"github.com/ArionMiles/dispatchcost/pkg/conversion"
	"github.com/ArionMiles/dispatchcost/pkg/currency"
)

type MockRecordStore struct {
	mock.Mock
}

func (m *MockRecordStore) Find(ctx context.Context, report, criteria string) (api.QueryResult, error) {
	args := m.Called(ctx, report, criteria)
	return args.Get(0).(api.QueryResult), args.Error(1)
}

func (m *MockRecordStore) Create(ctx context.Context, form string, payload api.Payload) (api.MutationResult, error) {
	args := m.Called(ctx, form, payload)
	return args.Get(0).(api.MutationResult), args.Error(1)
}

func (m *MockRecordStore) Update(ctx context.Context, report, id string, payload api.Payload) (api.MutationResult, error) {
	args := m.Called(ctx, report, id, payload)
	return args.Get(0).(api.MutationResult), args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedRate(rate string) api.RateFetcher {
	return api.RateFetcherFunc(func(context.Context, string, string) (decimal.Decimal, error) {
		return decimal.RequireFromString(rate), nil
	})
}

func failingRate() api.RateFetcher {
	return api.RateFetcherFunc(func(context.Context, string, string) (decimal.Decimal, error) {
		return decimal.Zero, errors.New("provider down")
	})
}

func storedRecord() api.QueryResult {
	return api.QueryResult{
		Code: api.CodeSuccess,
		Records: []api.Record{{
			ID:                "42",
			Item:              "Cement",
			BaseCurrency:      "USD",
			ConvertedCurrency: "ZMW",
			PayingIn:          "$ 100.00",
			Cost:              "K 2500.00",
		}},
	}
}

func TestCriteria(t *testing.T) {
	assert.Equal(t, "(ID == 42)", Criteria("42"))

	id, ok := api.IDFromCriteria(Criteria("42"))
	require.True(t, ok)
	assert.Equal(t, "42", id)
}

func TestHydrate(t *testing.T) {
	store := new(MockRecordStore)
	store.On("Find", mock.Anything, DefaultReport, "(ID == 42)").Return(storedRecord(), nil).Once()

	engine := conversion.New(failingRate(), discardLogger())
	h := NewHydrator(store, "", discardLogger())

	require.NoError(t, h.Hydrate(context.Background(), "42", engine))

	s := engine.State()
	assert.Equal(t, "Cement", s.Item)
	assert.Equal(t, "USD", s.SourceCurrency)
	assert.Equal(t, "ZMW", s.TargetCurrency)
	assert.True(t, s.Amount.Equal(decimal.NewFromInt(100)))
	assert.True(t, s.TargetAmount.Equal(decimal.NewFromInt(2500)))
	assert.True(t, s.LiveRate.IsZero(), "hydration must not touch rates")
	store.AssertExpectations(t)
}

func TestHydrate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		result  api.QueryResult
		err     error
		wantErr error
	}{
		{"transport error", api.QueryResult{}, errors.New("connection refused"), nil},
		{"unexpected code", api.QueryResult{Code: 3100}, nil, api.ErrUnexpectedCode},
		{"no records", api.QueryResult{Code: api.CodeSuccess}, nil, ErrRecordNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := new(MockRecordStore)
			store.On("Find", mock.Anything, "Report", "(ID == 7)").Return(tc.result, tc.err)

			engine := conversion.New(failingRate(), discardLogger())
			before := engine.State()

			err := NewHydrator(store, "Report", discardLogger()).Hydrate(context.Background(), "7", engine)
			require.Error(t, err)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
			assert.Equal(t, before, engine.State())
		})
	}
}

func TestHydrate_RejectsInvalidID(t *testing.T) {
	store := new(MockRecordStore)
	engine := conversion.New(failingRate(), discardLogger())

	err := NewHydrator(store, "", discardLogger()).Hydrate(context.Background(), "1) || (ID != 0", engine)
	assert.ErrorIs(t, err, ErrInvalidRecordID)
	store.AssertNotCalled(t, "Find", mock.Anything, mock.Anything, mock.Anything)
}

func TestFormatterBuild(t *testing.T) {
	engine := conversion.New(fixedRate("18.5"), discardLogger())
	require.NoError(t, engine.InitializeRate(context.Background()))
	engine.SetItem("Diesel")
	require.NoError(t, engine.SetAmount("50"))

	payload, err := NewFormatter().Build(engine.State())
	require.NoError(t, err)

	assert.Equal(t, api.Payload{
		Item:              "Diesel",
		PayingIn:          "$ 50",
		Cost:              "K 925.00",
		BaseCurrency:      "USD",
		ConvertedCurrency: "ZMW",
		ApprovalStatus:    api.ApprovalPending,
	}, payload)
}

func TestFormatterBuild_KeepsAmountPrecision(t *testing.T) {
	state := conversion.DefaultState()
	state.Item = "Bolts"
	state.Amount = decimal.RequireFromString("12.345")
	state.TargetAmount = decimal.RequireFromString("228.38")

	payload, err := NewFormatter().Build(state)
	require.NoError(t, err)
	assert.Equal(t, "$ 12.345", payload.PayingIn)
	assert.Equal(t, "K 228.38", payload.Cost)
}

func TestFormatterBuild_KeepsTrailingZeros(t *testing.T) {
	e := conversion.New(fixedRate("18.5"), discardLogger())
	e.SetItem("Bolts")
	require.NoError(t, e.SetAmount("50.50"))

	payload, err := NewFormatter().Build(e.State())
	require.NoError(t, err)
	assert.Equal(t, "$ 50.50", payload.PayingIn)
}

func TestFormatterBuild_RequiresItem(t *testing.T) {
	_, err := NewFormatter().Build(conversion.DefaultState())

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Item", verr.Field)
	assert.Equal(t, "Item is required", verr.Message)
}

func TestFormatterBuild_UnknownCurrency(t *testing.T) {
	state := conversion.DefaultState()
	state.Item = "Tyres"
	state.TargetCurrency = "XTS"

	_, err := NewFormatter().Build(state)
	assert.ErrorIs(t, err, currency.ErrUnknownCurrency)
}

func readyState() conversion.State {
	s := conversion.DefaultState()
	s.Item = "Diesel"
	s.Amount = decimal.NewFromInt(50)
	s.LiveRate = decimal.RequireFromString("18.5")
	s.OverrideRate = s.LiveRate
	s.TargetAmount = decimal.RequireFromString("925")
	return s
}

func TestSubmit_Create(t *testing.T) {
	store := new(MockRecordStore)
	store.On("Create", mock.Anything, DefaultForm, mock.MatchedBy(func(p api.Payload) bool {
		return p.Cost == "K 925.00" && p.PayingIn == "$ 50"
	})).Return(api.MutationResult{Code: api.CodeSuccess, ID: "99"}, nil).Once()

	s := NewSubmitter(store, "", "", "", discardLogger())
	assert.Equal(t, ModeCreate, s.Mode())

	res, err := s.Submit(context.Background(), readyState())
	require.NoError(t, err)
	assert.Equal(t, "99", res.ID)
	assert.Equal(t, StatusSucceeded, s.Status())

	_, err = s.Submit(context.Background(), readyState())
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	store.AssertExpectations(t)
}

func TestSubmit_Update(t *testing.T) {
	store := new(MockRecordStore)
	store.On("Update", mock.Anything, "Report", "42", mock.Anything).
		Return(api.MutationResult{Code: api.CodeSuccess}, nil).Once()

	s := NewSubmitter(store, "Form", "Report", "42", discardLogger())
	assert.Equal(t, ModeUpdate, s.Mode())

	_, err := s.Submit(context.Background(), readyState())
	require.NoError(t, err)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestSubmit_ValidationDoesNotCallStore(t *testing.T) {
	store := new(MockRecordStore)
	s := NewSubmitter(store, "", "", "", discardLogger())

	state := readyState()
	state.Item = ""

	_, err := s.Submit(context.Background(), state)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, StatusIdle, s.Status())
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_FailureAllowsRetry(t *testing.T) {
	store := new(MockRecordStore)
	store.On("Create", mock.Anything, DefaultForm, mock.Anything).
		Return(api.MutationResult{Code: 3001, Message: "invalid"}, nil).Once()
	store.On("Create", mock.Anything, DefaultForm, mock.Anything).
		Return(api.MutationResult{}, errors.New("timeout")).Once()
	store.On("Create", mock.Anything, DefaultForm, mock.Anything).
		Return(api.MutationResult{Code: api.CodeSuccess}, nil).Once()

	s := NewSubmitter(store, "", "", "", discardLogger())

	_, err := s.Submit(context.Background(), readyState())
	assert.ErrorIs(t, err, api.ErrUnexpectedCode)
	assert.Equal(t, StatusFailed, s.Status())

	_, err = s.Submit(context.Background(), readyState())
	assert.Error(t, err)
	assert.Equal(t, StatusFailed, s.Status())

	_, err = s.Submit(context.Background(), readyState())
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, s.Status())
	store.AssertExpectations(t)
}

// blockingStore holds Create until release is closed.
type blockingStore struct {
	MockRecordStore
	started chan struct{}
	release chan struct{}
}

func (b *blockingStore) Create(context.Context, string, api.Payload) (api.MutationResult, error) {
	close(b.started)
	<-b.release
	return api.MutationResult{Code: api.CodeSuccess}, nil
}

func TestSubmit_RejectsConcurrentSubmit(t *testing.T) {
	store := &blockingStore{started: make(chan struct{}), release: make(chan struct{})}
	s := NewSubmitter(store, "", "", "", discardLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := s.Submit(context.Background(), readyState())
		assert.NoError(t, err)
	}()

	<-store.started
	assert.Equal(t, StatusSubmitting, s.Status())
	_, err := s.Submit(context.Background(), readyState())
	assert.ErrorIs(t, err, ErrSubmissionInProgress)

	close(store.release)
	wg.Wait()
	assert.Equal(t, StatusSucceeded, s.Status())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "idle", StatusIdle.String())
	assert.Equal(t, "submitting", StatusSubmitting.String())
	assert.Equal(t, "succeeded", StatusSucceeded.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "status(9)", Status(9).String())
}
