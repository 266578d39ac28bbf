package account

import (
	"context"
	"errors"
	"time"

	"github.com/blagoySimandov/careerpilot/internal/apperr"
	"github.com/blagoySimandov/careerpilot/internal/config"
	"github.com/blagoySimandov/careerpilot/internal/models"
	"github.com/rs/zerolog/log"
)

// UsagePolicy decides what happens to usage_count when a subscription is cancelled.
type UsagePolicy int

const (
	// PreserveUsage keeps the consumed generations of the current cycle.
	PreserveUsage UsagePolicy = iota
	ResetUsageOnCancel
)

// CancellationUsagePolicy is the policy applied unless a Ledger is built WithCancellationPolicy.
const CancellationUsagePolicy = PreserveUsage

// Lookup is the result of GetOrCreate. Created is true when this call inserted the account.
type Lookup struct {
	Account *models.Account
	Created bool
}

type TierChange struct {
	Tier                  models.Tier
	BillingCustomerID     string
	BillingSubscriptionID string
	Status                models.SubscriptionStatus
}

// Ledger owns per-user tier, usage and subscription state. It trusts its caller:
// identity checks happen in the HTTP layer.
type Ledger struct {
	store        Store
	storeTimeout time.Duration
	maxRetries   int
	cancelPolicy UsagePolicy
	now          func() time.Time
}

type LedgerOption func(*Ledger)

func WithCancellationPolicy(p UsagePolicy) LedgerOption {
	return func(l *Ledger) { l.cancelPolicy = p }
}

func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

func NewLedger(store Store, cfg config.LedgerConfig, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:        store,
		storeTimeout: cfg.StoreTimeout,
		maxRetries:   cfg.MaxIncrementRetries,
		cancelPolicy: CancellationUsagePolicy,
		now:          time.Now,
	}
	if l.storeTimeout <= 0 {
		l.storeTimeout = 5 * time.Second
	}
	if l.maxRetries < 1 {
		l.maxRetries = 1
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) GetOrCreate(ctx context.Context, userID string) (Lookup, error) {
	if userID == "" {
		return Lookup{}, apperr.Validation("userId is required")
	}

	acct, err := l.get(ctx, userID)
	if err == nil {
		return Lookup{Account: acct}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Lookup{}, apperr.Storage("account.get", err)
	}

	created, err := l.create(ctx, userID)
	if err != nil {
		return Lookup{}, apperr.Storage("account.create", err)
	}

	// A concurrent request may have won the insert; read back what is stored.
	acct, err = l.get(ctx, userID)
	if err != nil {
		return Lookup{}, apperr.Storage("account.get", err)
	}
	if created {
		log.Info().Str("user_id", userID).Msg("Account created")
	}
	return Lookup{Account: acct, Created: created}, nil
}

func (l *Ledger) IncrementUsage(ctx context.Context, userID string) (*models.Account, error) {
	for attempt := 0; attempt < l.maxRetries; attempt++ {
		lookup, err := l.GetOrCreate(ctx, userID)
		if err != nil {
			return nil, err
		}
		acct := lookup.Account

		limit, unlimited := Limit(acct.Tier)
		if !unlimited && acct.UsageCount >= limit {
			return nil, &QuotaExceededError{UsageCount: acct.UsageCount, Limit: limit, Tier: acct.Tier}
		}

		guard := UsageGuard{Tier: acct.Tier, Below: limit, Unlimited: unlimited}
		updated, err := l.incrementGuarded(ctx, userID, guard)
		if errors.Is(err, ErrGuardRejected) {
			log.Debug().Str("user_id", userID).Int("attempt", attempt+1).Msg("Usage increment lost race, retrying")
			continue
		}
		if err != nil {
			return nil, apperr.Storage("account.increment_usage", err)
		}
		return updated, nil
	}
	return nil, apperr.Storage("account.increment_usage", ErrContention)
}

func (l *Ledger) ResetUsage(ctx context.Context, userID string) error {
	return l.ensureAndUpdate(ctx, userID, "account.reset_usage", AccountUpdate{UsageCount: ptr(int64(0))})
}

// ApplyTierChange overwrites all billing fields and resets usage. It is the only
// path billing events use to change tier, so replays converge on the same state.
func (l *Ledger) ApplyTierChange(ctx context.Context, userID string, change TierChange) error {
	if !change.Tier.Valid() {
		return apperr.Validation("unknown tier " + string(change.Tier))
	}
	if !change.Status.Valid() {
		return apperr.Validation("unknown subscription status " + string(change.Status))
	}

	subscriptionID := change.BillingSubscriptionID
	if change.Status != models.SubscriptionActive {
		subscriptionID = ""
	}

	update := AccountUpdate{
		Tier:                  ptr(change.Tier),
		UsageCount:            ptr(int64(0)),
		SubscriptionStatus:    ptr(change.Status),
		BillingCustomerID:     ptr(change.BillingCustomerID),
		BillingSubscriptionID: ptr(subscriptionID),
	}
	return l.ensureAndUpdate(ctx, userID, "account.apply_tier_change", update)
}

func (l *Ledger) ApplyCancellation(ctx context.Context, userID string) error {
	update := AccountUpdate{
		Tier:                  ptr(models.TierFreemium),
		SubscriptionStatus:    ptr(models.SubscriptionCancelled),
		BillingSubscriptionID: ptr(""),
	}
	if l.cancelPolicy == ResetUsageOnCancel {
		update.UsageCount = ptr(int64(0))
	}
	return l.ensureAndUpdate(ctx, userID, "account.apply_cancellation", update)
}

// SetSubscriptionStatus changes only the billing status. The subscription id is
// kept (or set) while active and cleared otherwise.
func (l *Ledger) SetSubscriptionStatus(ctx context.Context, userID string, status models.SubscriptionStatus, subscriptionID string) error {
	if !status.Valid() {
		return apperr.Validation("unknown subscription status " + string(status))
	}
	update := AccountUpdate{SubscriptionStatus: ptr(status)}
	switch {
	case status != models.SubscriptionActive:
		update.BillingSubscriptionID = ptr("")
	case subscriptionID != "":
		update.BillingSubscriptionID = ptr(subscriptionID)
	}
	return l.ensureAndUpdate(ctx, userID, "account.set_subscription_status", update)
}

func (l *Ledger) FindByBillingCustomerID(ctx context.Context, customerID string) (*models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	acct, err := l.store.FindByBillingCustomerID(ctx, customerID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("account.find_by_customer", "no account for billing customer")
	}
	if err != nil {
		return nil, apperr.Storage("account.find_by_customer", err)
	}
	return acct, nil
}

func (l *Ledger) FindByBillingSubscriptionID(ctx context.Context, subscriptionID string) (*models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	acct, err := l.store.FindByBillingSubscriptionID(ctx, subscriptionID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("account.find_by_subscription", "no account for billing subscription")
	}
	if err != nil {
		return nil, apperr.Storage("account.find_by_subscription", err)
	}
	return acct, nil
}

// ResetAllUsage starts a new usage cycle for every account.
func (l *Ledger) ResetAllUsage(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	n, err := l.store.ResetAllUsage(ctx)
	if err != nil {
		return 0, apperr.Storage("account.reset_all_usage", err)
	}
	return n, nil
}

// ensureAndUpdate lazily creates the account so billing events that arrive
// before the user's first read still land.
func (l *Ledger) ensureAndUpdate(ctx context.Context, userID, op string, update AccountUpdate) error {
	if userID == "" {
		return apperr.Validation("userId is required")
	}

	err := l.update(ctx, userID, update)
	if errors.Is(err, ErrNotFound) {
		if _, err := l.create(ctx, userID); err != nil {
			return apperr.Storage(op, err)
		}
		err = l.update(ctx, userID, update)
	}
	if err != nil {
		return apperr.Storage(op, err)
	}
	return nil
}

func (l *Ledger) get(ctx context.Context, userID string) (*models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()
	return l.store.Get(ctx, userID)
}

func (l *Ledger) create(ctx context.Context, userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()
	return l.store.Create(ctx, models.NewAccount(userID, l.now()))
}

func (l *Ledger) update(ctx context.Context, userID string, update AccountUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()
	return l.store.Update(ctx, userID, update)
}

func (l *Ledger) incrementGuarded(ctx context.Context, userID string, guard UsageGuard) (*models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()
	return l.store.IncrementUsage(ctx, userID, guard)
}
