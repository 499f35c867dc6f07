package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-payments/internal/models"
	"ms-payments/internal/order/db"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = bunDB.NewCreateTable().Model((*models.Order)(nil)).Exec(context.Background())
	if err != nil {
		t.Fatalf("Failed to create orders table: %v", err)
	}

	return &db.DB{Bun: bunDB}, bunDB
}

func insertOrder(t *testing.T, store *db.DB, status models.OrderStatus) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:          uuid.NewString(),
		OrderNumber: "ORD-" + uuid.NewString()[:8],
		UserID:      "user123",
		Quantity:    2,
		GrossAmount: 100.0,
		FinalAmount: 100.0,
		Status:      status,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, store.CreateOrder(context.Background(), order))
	return order
}

func TestGetByOrderNumber(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	order := insertOrder(t, store, models.StatusPending)

	got, err := store.GetByOrderNumber(ctx, order.OrderNumber)
	assert.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	assert.Equal(t, models.StatusPending, got.Status)

	_, err = store.GetByOrderNumber(ctx, "ORD-does-not-exist")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestMarkSucceededAppliesExactlyOnce(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	order := insertOrder(t, store, models.StatusPending)
	now := time.Now()

	applied, err := store.MarkSucceeded(ctx, order.ID, models.StatusSettlement, now)
	assert.NoError(t, err)
	assert.True(t, applied)

	// A repeated success event must lose the conditional update.
	applied, err = store.MarkSucceeded(ctx, order.ID, models.StatusCapture, now.Add(time.Minute))
	assert.NoError(t, err)
	assert.False(t, applied)

	got, err := store.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSettlement, got.Status)
	assert.WithinDuration(t, now, got.PaidAt, time.Second)
}

func TestMarkSucceededLegacyPaidRowLoses(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	// Historical rows carry the legacy alias; they must arbitrate the
	// same way as canonical successful statuses.
	order := insertOrder(t, store, models.StatusLegacyPaid)

	applied, err := store.MarkSucceeded(ctx, order.ID, models.StatusSettlement, time.Now())
	assert.NoError(t, err)
	assert.False(t, applied)

	got, err := store.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLegacyPaid, got.Status)
}

func TestPaidAtNeverCleared(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	order := insertOrder(t, store, models.StatusPending)
	paidAt := time.Now().Add(-time.Hour)

	applied, err := store.MarkSucceeded(ctx, order.ID, models.StatusSettlement, paidAt)
	require.NoError(t, err)
	require.True(t, applied)

	// Corrections overwrite the status but leave paid_at alone.
	err = store.ForceStatus(ctx, order.ID, models.StatusRefund, time.Now())
	require.NoError(t, err)

	got, err := store.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRefund, got.Status)
	assert.WithinDuration(t, paidAt, got.PaidAt, time.Second)

	// A later success keeps the original paid_at.
	applied, err = store.MarkSucceeded(ctx, order.ID, models.StatusSettlement, time.Now())
	require.NoError(t, err)
	require.True(t, applied)

	got, err = store.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, paidAt, got.PaidAt, time.Second)
}

func TestMarkFailedRespectsTerminalFailures(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	order := insertOrder(t, store, models.StatusPending)

	applied, err := store.MarkFailed(ctx, order.ID, models.StatusExpire, time.Now())
	assert.NoError(t, err)
	assert.True(t, applied)

	applied, err = store.MarkFailed(ctx, order.ID, models.StatusDeny, time.Now())
	assert.NoError(t, err)
	assert.False(t, applied)

	got, err := store.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpire, got.Status)
}

func TestSetStatusIfDiffers(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	order := insertOrder(t, store, models.StatusPending)

	applied, err := store.SetStatusIfDiffers(ctx, order.ID, models.StatusAuthorize, time.Now())
	assert.NoError(t, err)
	assert.True(t, applied)

	applied, err = store.SetStatusIfDiffers(ctx, order.ID, models.StatusAuthorize, time.Now())
	assert.NoError(t, err)
	assert.False(t, applied)
}

func TestListExpiryCandidates(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	now := time.Now()
	cutoff := now.Add(-6 * time.Hour)

	stale := insertOrder(t, store, models.StatusPending)
	_, err := bunDB.NewUpdate().
		Model((*models.Order)(nil)).
		Set("created_at = ?", now.Add(-7*time.Hour)).
		Where("id = ?", stale.ID).
		Exec(ctx)
	require.NoError(t, err)

	// Fresh pending order, locked stale order and settled stale order
	// must all be excluded.
	insertOrder(t, store, models.StatusPending)

	locked := insertOrder(t, store, models.StatusPending)
	_, err = bunDB.NewUpdate().
		Model((*models.Order)(nil)).
		Set("created_at = ?", now.Add(-7*time.Hour)).
		Set("sync_locked = ?", true).
		Where("id = ?", locked.ID).
		Exec(ctx)
	require.NoError(t, err)

	settled := insertOrder(t, store, models.StatusSettlement)
	_, err = bunDB.NewUpdate().
		Model((*models.Order)(nil)).
		Set("created_at = ?", now.Add(-7*time.Hour)).
		Where("id = ?", settled.ID).
		Exec(ctx)
	require.NoError(t, err)

	candidates, err := store.ListExpiryCandidates(ctx, cutoff)
	assert.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, stale.ID, candidates[0].ID)
}

func TestExpiryWindowMeasuredFromToken(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	now := time.Now()

	// Order created long ago, but the buyer opened a payment session
	// recently: the token timestamp wins and the order stays out.
	order := insertOrder(t, store, models.StatusPending)
	_, err := bunDB.NewUpdate().
		Model((*models.Order)(nil)).
		Set("created_at = ?", now.Add(-10*time.Hour)).
		Where("id = ?", order.ID).
		Exec(ctx)
	require.NoError(t, err)
	require.NoError(t, store.SavePaymentToken(ctx, order.ID, "tok-abc", now.Add(-time.Hour)))

	candidates, err := store.ListExpiryCandidates(ctx, now.Add(-6*time.Hour))
	assert.NoError(t, err)
	assert.Empty(t, candidates)
}
