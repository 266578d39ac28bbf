package models

import (
	"time"

	"github.com/uptrace/bun"
)

type AccountDB struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	UserID                string             `bun:"user_id,pk" json:"user_id"`
	Tier                  Tier               `bun:"tier,notnull" json:"tier"`
	UsageCount            int64              `bun:"usage_count,notnull" json:"usage_count"`
	SubscriptionStatus    SubscriptionStatus `bun:"subscription_status,notnull" json:"subscription_status"`
	BillingCustomerID     *string            `bun:"billing_customer_id" json:"billing_customer_id"`
	BillingSubscriptionID *string            `bun:"billing_subscription_id" json:"billing_subscription_id"`
	CreatedAt             time.Time          `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt             time.Time          `bun:"updated_at,notnull" json:"updated_at"`
}

func (a *AccountDB) ToAccount() *Account {
	return &Account{
		UserID:                a.UserID,
		Tier:                  a.Tier,
		UsageCount:            a.UsageCount,
		SubscriptionStatus:    a.SubscriptionStatus,
		BillingCustomerID:     a.BillingCustomerID,
		BillingSubscriptionID: a.BillingSubscriptionID,
		CreatedAt:             a.CreatedAt,
		UpdatedAt:             a.UpdatedAt,
	}
}

func AccountFromDomain(a *Account) *AccountDB {
	return &AccountDB{
		UserID:                a.UserID,
		Tier:                  a.Tier,
		UsageCount:            a.UsageCount,
		SubscriptionStatus:    a.SubscriptionStatus,
		BillingCustomerID:     a.BillingCustomerID,
		BillingSubscriptionID: a.BillingSubscriptionID,
		CreatedAt:             a.CreatedAt,
		UpdatedAt:             a.UpdatedAt,
	}
}
