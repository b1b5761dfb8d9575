package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesahub/gateway/internal/domain"
	"github.com/pesahub/gateway/internal/testutil"
)

func TestQueryStatus_UnknownAccount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newTestService(db)

	_, err := svc.QueryStatus(context.Background(), "254700009999")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestQueryStatus_NoHistoryIsNotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newTestService(db)

	testutil.SeedAccount(t, db, "254700000001", 500)

	_, err := svc.QueryStatus(context.Background(), "254700000001")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestQueryStatus_FreshEntryIsRecent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newTestService(db)
	ctx := context.Background()

	_, err := svc.ReconcileCallback(ctx, domain.CallbackEvent{
		Phone:      "254700000001",
		Kind:       domain.EntryKindDeposit,
		Amount:     500,
		Receipt:    "R-STATUS-1",
		ResultCode: domain.ResultCodeSuccess,
	})
	require.NoError(t, err)

	status, err := svc.QueryStatus(ctx, "254700000001")
	require.NoError(t, err)

	assert.True(t, status.IsRecent)
	assert.Equal(t, int64(500), status.Balance)
	assert.Equal(t, domain.EntryKindDeposit, status.LastEntry.Kind)
	require.NotNil(t, status.LastEntry.Receipt)
	assert.Equal(t, "R-STATUS-1", *status.LastEntry.Receipt)
}

func TestQueryStatus_StaleEntryIsNotRecent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newTestService(db)
	ctx := context.Background()

	_, err := svc.ReconcileCallback(ctx, domain.CallbackEvent{
		Phone:      "254700000001",
		Kind:       domain.EntryKindDeposit,
		Amount:     500,
		Receipt:    "R-STATUS-2",
		ResultCode: domain.ResultCodeSuccess,
	})
	require.NoError(t, err)

	testutil.BackdateLastEntry(t, db, "254700000001", 10*time.Minute)

	status, err := svc.QueryStatus(ctx, "254700000001")
	require.NoError(t, err)
	assert.False(t, status.IsRecent)
}

func TestQueryStatus_ByAlias(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newTestService(db)
	ctx := context.Background()

	testutil.SeedAccountWithAlias(t, db, "254700000001", "wallet-7", 0)

	_, err := svc.ReconcileCallback(ctx, domain.CallbackEvent{
		Phone:      "254700000001",
		Kind:       domain.EntryKindDeposit,
		Amount:     200,
		Receipt:    "R-STATUS-3",
		ResultCode: domain.ResultCodeSuccess,
	})
	require.NoError(t, err)

	status, err := svc.QueryStatus(ctx, "wallet-7")
	require.NoError(t, err)
	assert.Equal(t, int64(200), status.Balance)
}
