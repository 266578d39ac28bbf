package models

import "time"

type Tier string

const (
	TierFreemium    Tier = "FREEMIUM"
	TierBasic       Tier = "BASIC"
	TierPremium     Tier = "PREMIUM"
	TierPremiumPlus Tier = "PREMIUM_PLUS"
)

func (t Tier) Valid() bool {
	switch t {
	case TierFreemium, TierBasic, TierPremium, TierPremiumPlus:
		return true
	}
	return false
}

type SubscriptionStatus string

const (
	SubscriptionInactive  SubscriptionStatus = "inactive"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionInactive, SubscriptionActive, SubscriptionCancelled:
		return true
	}
	return false
}

type Account struct {
	UserID                string             `json:"userId"`
	Tier                  Tier               `json:"tier"`
	UsageCount            int64              `json:"usageCount"`
	SubscriptionStatus    SubscriptionStatus `json:"subscriptionStatus"`
	BillingCustomerID     *string            `json:"billingCustomerId"`
	BillingSubscriptionID *string            `json:"billingSubscriptionId"`
	CreatedAt             time.Time          `json:"createdAt"`
	UpdatedAt             time.Time          `json:"updatedAt"`
}

// NewAccount returns the defaults applied on first access.
func NewAccount(userID string, now time.Time) *Account {
	return &Account{
		UserID:             userID,
		Tier:               TierFreemium,
		UsageCount:         0,
		SubscriptionStatus: SubscriptionInactive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.BillingCustomerID = cloneString(a.BillingCustomerID)
	c.BillingSubscriptionID = cloneString(a.BillingSubscriptionID)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
