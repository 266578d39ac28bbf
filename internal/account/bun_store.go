package account

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/blagoySimandov/careerpilot/internal/models"
	"github.com/uptrace/bun"
)

type BunStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{db: db, now: time.Now}
}

func (s *BunStore) Get(ctx context.Context, userID string) (*models.Account, error) {
	return s.selectOne(ctx, "user_id = ?", userID)
}

func (s *BunStore) FindByBillingCustomerID(ctx context.Context, customerID string) (*models.Account, error) {
	return s.selectOne(ctx, "billing_customer_id = ?", customerID)
}

func (s *BunStore) FindByBillingSubscriptionID(ctx context.Context, subscriptionID string) (*models.Account, error) {
	return s.selectOne(ctx, "billing_subscription_id = ?", subscriptionID)
}

func (s *BunStore) selectOne(ctx context.Context, where string, arg any) (*models.Account, error) {
	row := new(models.AccountDB)
	err := s.db.NewSelect().
		Model(row).
		Where(where, arg).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.ToAccount(), nil
}

func (s *BunStore) Create(ctx context.Context, account *models.Account) (bool, error) {
	row := models.AccountFromDomain(account)
	res, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// IncrementUsage runs one UPDATE whose WHERE clause is the guard, so concurrent
// callers cannot both pass the same quota check.
func (s *BunStore) IncrementUsage(ctx context.Context, userID string, guard UsageGuard) (*models.Account, error) {
	row := new(models.AccountDB)
	q := s.db.NewUpdate().
		Model(row).
		Set("usage_count = usage_count + 1").
		Set("updated_at = ?", s.now()).
		Where("user_id = ?", userID).
		Where("tier = ?", guard.Tier)
	if !guard.Unlimited {
		q = q.Where("usage_count < ?", guard.Below)
	}

	err := q.Returning("*").Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGuardRejected
	}
	if err != nil {
		return nil, err
	}
	return row.ToAccount(), nil
}

func (s *BunStore) Update(ctx context.Context, userID string, update AccountUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	q := s.db.NewUpdate().
		Model((*models.AccountDB)(nil)).
		Set("updated_at = ?", s.now()).
		Where("user_id = ?", userID)

	if update.Tier != nil {
		q = q.Set("tier = ?", *update.Tier)
	}
	if update.UsageCount != nil {
		q = q.Set("usage_count = ?", *update.UsageCount)
	}
	if update.SubscriptionStatus != nil {
		q = q.Set("subscription_status = ?", *update.SubscriptionStatus)
	}
	if update.BillingCustomerID != nil {
		q = setNullable(q, "billing_customer_id", *update.BillingCustomerID)
	}
	if update.BillingSubscriptionID != nil {
		q = setNullable(q, "billing_subscription_id", *update.BillingSubscriptionID)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func setNullable(q *bun.UpdateQuery, column, value string) *bun.UpdateQuery {
	if value == "" {
		return q.Set("? = NULL", bun.Ident(column))
	}
	return q.Set("? = ?", bun.Ident(column), value)
}

func (s *BunStore) ResetAllUsage(ctx context.Context) (int64, error) {
	res, err := s.db.NewUpdate().
		Model((*models.AccountDB)(nil)).
		Set("usage_count = 0").
		Set("updated_at = ?", s.now()).
		Where("usage_count > 0").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
