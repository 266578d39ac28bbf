package account

import (
	"context"

	"github.com/blagoySimandov/careerpilot/internal/models"
)

// UsageGuard is the predicate an increment must satisfy at write time.
type UsageGuard struct {
	Tier      models.Tier
	Below     int64
	Unlimited bool
}

func (g UsageGuard) Allows(a *models.Account) bool {
	return a.Tier == g.Tier && (g.Unlimited || a.UsageCount < g.Below)
}

// AccountUpdate lists the fields to overwrite; nil fields are left unchanged.
// An empty string for a billing id stores NULL.
type AccountUpdate struct {
	Tier                  *models.Tier
	UsageCount            *int64
	SubscriptionStatus    *models.SubscriptionStatus
	BillingCustomerID     *string
	BillingSubscriptionID *string
}

func (u AccountUpdate) IsEmpty() bool {
	return u.Tier == nil && u.UsageCount == nil && u.SubscriptionStatus == nil &&
		u.BillingCustomerID == nil && u.BillingSubscriptionID == nil
}

type Store interface {
	Get(ctx context.Context, userID string) (*models.Account, error)
	// Create inserts the account unless one exists; created reports which happened.
	Create(ctx context.Context, account *models.Account) (created bool, err error)
	// IncrementUsage adds one to usage_count in a single conditional write.
	// It returns ErrGuardRejected when the row no longer satisfies guard.
	IncrementUsage(ctx context.Context, userID string, guard UsageGuard) (*models.Account, error)
	Update(ctx context.Context, userID string, update AccountUpdate) error
	FindByBillingCustomerID(ctx context.Context, customerID string) (*models.Account, error)
	FindByBillingSubscriptionID(ctx context.Context, subscriptionID string) (*models.Account, error)
	ResetAllUsage(ctx context.Context) (int64, error)
}

func ptr[T any](v T) *T { return &v }
