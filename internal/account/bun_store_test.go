package account

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/blagoySimandov/careerpilot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

var accountColumns = []string{
	"user_id", "tier", "usage_count", "subscription_status",
	"billing_customer_id", "billing_subscription_id", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*BunStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqlDB, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })

	store := NewBunStore(db)
	store.now = func() time.Time { return fixedNow }
	return store, mock
}

func TestBunStoreGet(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows(accountColumns).
		AddRow("u1", "BASIC", int64(3), "active", "cus_1", "sub_1", fixedNow, fixedNow)
	mock.ExpectQuery(`SELECT .* FROM "accounts" AS "a" WHERE \(user_id = 'u1'\) LIMIT 1`).
		WillReturnRows(rows)

	a, err := store.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.TierBasic, a.Tier)
	assert.Equal(t, int64(3), a.UsageCount)
	assert.Equal(t, models.SubscriptionActive, a.SubscriptionStatus)
	require.NotNil(t, a.BillingCustomerID)
	assert.Equal(t, "cus_1", *a.BillingCustomerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBunStoreGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .* FROM "accounts"`).WillReturnRows(sqlmock.NewRows(accountColumns))

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBunStoreCreate(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	insert := `INSERT INTO "accounts" .* ON CONFLICT \(user_id\) DO NOTHING RETURNING `
	returned := []string{"billing_customer_id", "billing_subscription_id"}

	mock.ExpectQuery(insert).WillReturnRows(sqlmock.NewRows(returned).AddRow(nil, nil))
	created, err := store.Create(ctx, models.NewAccount("u1", fixedNow))
	require.NoError(t, err)
	assert.True(t, created)

	mock.ExpectQuery(insert).WillReturnRows(sqlmock.NewRows(returned))
	created, err = store.Create(ctx, models.NewAccount("u1", fixedNow))
	require.NoError(t, err)
	assert.False(t, created, "a conflicting insert returns no row")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBunStoreIncrementUsageGuarded(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows(accountColumns).
		AddRow("u1", "FREEMIUM", int64(2), "inactive", nil, nil, fixedNow, fixedNow)
	mock.ExpectQuery(`UPDATE "accounts" AS "a" SET usage_count = usage_count \+ 1, .* WHERE \(user_id = 'u1'\) AND \(tier = 'FREEMIUM'\) AND \(usage_count < 2\) RETURNING \*`).
		WillReturnRows(rows)

	a, err := store.IncrementUsage(context.Background(), "u1", UsageGuard{Tier: models.TierFreemium, Below: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), a.UsageCount)
	assert.Nil(t, a.BillingCustomerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBunStoreIncrementUsageRejected(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`UPDATE "accounts" .* RETURNING \*`).WillReturnRows(sqlmock.NewRows(accountColumns))

	_, err := store.IncrementUsage(context.Background(), "u1", UsageGuard{Tier: models.TierFreemium, Below: 2})
	assert.ErrorIs(t, err, ErrGuardRejected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBunStoreIncrementUsageUnlimitedHasNoCountGuard(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows(accountColumns).
		AddRow("u1", "PREMIUM_PLUS", int64(41), "active", "cus_1", "sub_1", fixedNow, fixedNow)
	mock.ExpectQuery(`WHERE \(user_id = 'u1'\) AND \(tier = 'PREMIUM_PLUS'\) RETURNING \*`).
		WillReturnRows(rows)

	a, err := store.IncrementUsage(context.Background(), "u1", UsageGuard{Tier: models.TierPremiumPlus, Unlimited: true})
	require.NoError(t, err)
	assert.Equal(t, int64(41), a.UsageCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBunStoreUpdate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE "accounts" AS "a" SET updated_at = .*, tier = 'FREEMIUM', subscription_status = 'cancelled', "billing_subscription_id" = NULL WHERE \(user_id = 'u1'\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Update(context.Background(), "u1", AccountUpdate{
		Tier:                  ptr(models.TierFreemium),
		SubscriptionStatus:    ptr(models.SubscriptionCancelled),
		BillingSubscriptionID: ptr(""),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBunStoreUpdateMissingRow(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE "accounts"`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Update(context.Background(), "ghost", AccountUpdate{UsageCount: ptr(int64(0))})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBunStoreEmptyUpdateIsNoop(t *testing.T) {
	store, mock := newMockStore(t)
	require.NoError(t, store.Update(context.Background(), "u1", AccountUpdate{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBunStoreResetAllUsage(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE "accounts" AS "a" SET usage_count = 0, .* WHERE \(usage_count > 0\)`).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := store.ResetAllUsage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
