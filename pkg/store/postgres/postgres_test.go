package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ArionMiles/dispatchcost/pkg/api"
	"github.com/ArionMiles/dispatchcost/pkg/logging"
)

func TestNew_ConnectionFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := New(ctx, Config{
		Host:     "nonexistent-host.invalid",
		Database: "dispatchcost",
		User:     "dispatchcost",
		Password: "password",
	}, logging.Discard())
	assert.Error(t, err)
}

func newContainerStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()
	ctr, err := tcpostgres.Run(
		ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("dispatchcost"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(ctr)
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := New(ctx, Config{DSN: dsn}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestStore_Integration(t *testing.T) {
	s := newContainerStore(t)
	ctx := context.Background()

	payload := api.Payload{
		Item:              "Diesel",
		PayingIn:          "$ 50",
		Cost:              "K 925.00",
		BaseCurrency:      "USD",
		ConvertedCurrency: "ZMW",
		ApprovalStatus:    api.ApprovalPending,
	}

	created, err := s.Create(ctx, "Dispatch_Item_Cost", payload)
	require.NoError(t, err)
	require.Equal(t, api.CodeSuccess, created.Code)

	res, err := s.Find(ctx, "All_Dispatch_Item_Costs", "(ID == "+created.ID+")")
	require.NoError(t, err)
	require.Equal(t, api.CodeSuccess, res.Code)
	assert.Equal(t, payload.Record(created.ID), res.Records[0])

	payload.Item = "Petrol"
	payload.Cost = "K 1,110.00"
	updated, err := s.Update(ctx, "All_Dispatch_Item_Costs", created.ID, payload)
	require.NoError(t, err)
	assert.Equal(t, api.CodeSuccess, updated.Code)

	var costAmount string
	require.NoError(t, s.pool.QueryRow(ctx,
		`SELECT cost_amount::text FROM dispatch_item_costs WHERE id = $1`, created.ID).Scan(&costAmount))
	assert.Equal(t, "1110.00", costAmount)

	// Re-running migrations is a no-op.
	require.NoError(t, s.runMigrations(ctx))

	missing, err := s.Find(ctx, "All_Dispatch_Item_Costs", "(ID == 00000000-0000-0000-0000-000000000000)")
	require.NoError(t, err)
	assert.Equal(t, api.CodeNoRecords, missing.Code)

	notUUID, err := s.Update(ctx, "All_Dispatch_Item_Costs", "42", payload)
	require.NoError(t, err)
	assert.Equal(t, api.CodeNoRecords, notUUID.Code)

	_, err = s.Find(ctx, "All_Dispatch_Item_Costs", "(Item == Diesel)")
	assert.ErrorIs(t, err, api.ErrUnsupportedCriteria)
}
