package sheets

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/ArionMiles/dispatchcost/pkg/api"
	"github.com/ArionMiles/dispatchcost/pkg/logging"
)

type MockValues struct {
	mock.Mock
}

func (m *MockValues) Get(ctx context.Context, spreadsheetID, readRange string) ([][]any, error) {
	args := m.Called(ctx, spreadsheetID, readRange)
	rows, _ := args.Get(0).([][]any)
	return rows, args.Error(1)
}

func (m *MockValues) Append(ctx context.Context, spreadsheetID, writeRange string, rows [][]any) error {
	return m.Called(ctx, spreadsheetID, writeRange, rows).Error(0)
}

func (m *MockValues) Update(ctx context.Context, spreadsheetID, writeRange string, rows [][]any) error {
	return m.Called(ctx, spreadsheetID, writeRange, rows).Error(0)
}

func testStore(values valuesAPI) *Store {
	return newStore(values, "sheet-1", Config{SheetName: "Costs", RetryDelay: time.Millisecond}, logging.Discard())
}

func testPayload(item string) api.Payload {
	return api.Payload{
		Item:              item,
		PayingIn:          "$ 50",
		Cost:              "K 925.00",
		BaseCurrency:      "USD",
		ConvertedCurrency: "ZMW",
		ApprovalStatus:    api.ApprovalPending,
	}
}

var storedRows = [][]any{
	{"a1", "Cement", "USD", "ZMW", "$ 100.00", "K 2500.00", "Approved"},
	{"b2", "Diesel", "USD", "ZMW", "$ 50", "K 925.00"},
}

func TestFind(t *testing.T) {
	values := new(MockValues)
	values.On("Get", mock.Anything, "sheet-1", "Costs!A2:G").Return(storedRows, nil)
	s := testStore(values)

	res, err := s.Find(context.Background(), "All_Dispatch_Item_Costs", "(ID == b2)")
	require.NoError(t, err)
	require.Equal(t, api.CodeSuccess, res.Code)
	assert.Equal(t, api.Record{
		ID:                "b2",
		Item:              "Diesel",
		BaseCurrency:      "USD",
		ConvertedCurrency: "ZMW",
		PayingIn:          "$ 50",
		Cost:              "K 925.00",
	}, res.Records[0])

	res, err = s.Find(context.Background(), "All_Dispatch_Item_Costs", "(ID == zz)")
	require.NoError(t, err)
	assert.Equal(t, api.CodeNoRecords, res.Code)
}

func TestFind_UnsupportedCriteria(t *testing.T) {
	s := testStore(new(MockValues))
	_, err := s.Find(context.Background(), "r", "(Item == x)")
	assert.ErrorIs(t, err, api.ErrUnsupportedCriteria)
}

func TestCreate(t *testing.T) {
	values := new(MockValues)
	values.On("Append", mock.Anything, "sheet-1", "Costs!A2:G2", mock.MatchedBy(func(rows [][]any) bool {
		return len(rows) == 1 && rows[0][1] == "Diesel" && rows[0][5] == "K 925.00" && rows[0][0] != ""
	})).Return(nil).Once()
	s := testStore(values)

	res, err := s.Create(context.Background(), "Dispatch_Item_Cost", testPayload("Diesel"))
	require.NoError(t, err)
	assert.Equal(t, api.CodeSuccess, res.Code)
	assert.NotEmpty(t, res.ID)
	values.AssertExpectations(t)
}

func TestCreate_RetriesRateLimit(t *testing.T) {
	values := new(MockValues)
	values.On("Append", mock.Anything, "sheet-1", mock.Anything, mock.Anything).
		Return(&googleapi.Error{Code: http.StatusTooManyRequests}).Once()
	values.On("Append", mock.Anything, "sheet-1", mock.Anything, mock.Anything).Return(nil).Once()
	s := testStore(values)

	_, err := s.Create(context.Background(), "f", testPayload("Diesel"))
	require.NoError(t, err)
	values.AssertNumberOfCalls(t, "Append", 2)
}

func TestCreate_DoesNotRetryOtherErrors(t *testing.T) {
	values := new(MockValues)
	values.On("Append", mock.Anything, "sheet-1", mock.Anything, mock.Anything).
		Return(&googleapi.Error{Code: http.StatusForbidden}).Once()
	s := testStore(values)

	_, err := s.Create(context.Background(), "f", testPayload("Diesel"))
	require.Error(t, err)
	values.AssertNumberOfCalls(t, "Append", 1)
}

func TestUpdate(t *testing.T) {
	values := new(MockValues)
	values.On("Get", mock.Anything, "sheet-1", "Costs!A2:G").Return(storedRows, nil)
	values.On("Update", mock.Anything, "sheet-1", "Costs!A3:G3", mock.MatchedBy(func(rows [][]any) bool {
		return rows[0][0] == "b2" && rows[0][1] == "Petrol"
	})).Return(nil).Once()
	s := testStore(values)

	res, err := s.Update(context.Background(), "r", "b2", testPayload("Petrol"))
	require.NoError(t, err)
	assert.Equal(t, api.CodeSuccess, res.Code)
	values.AssertExpectations(t)
}

func TestUpdate_Missing(t *testing.T) {
	values := new(MockValues)
	values.On("Get", mock.Anything, "sheet-1", "Costs!A2:G").Return(storedRows, nil)
	s := testStore(values)

	res, err := s.Update(context.Background(), "r", "nope", testPayload("Petrol"))
	require.NoError(t, err)
	assert.Equal(t, api.CodeNoRecords, res.Code)
	values.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCell(t *testing.T) {
	row := []any{"x", 12.5, nil}
	assert.Equal(t, "x", cell(row, 0))
	assert.Equal(t, "12.5", cell(row, 1))
	assert.Equal(t, "", cell(row, 2))
	assert.Equal(t, "", cell(row, 9))
}
