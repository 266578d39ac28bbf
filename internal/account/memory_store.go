package account

import (
	"context"
	"sync"
	"time"

	"github.com/blagoySimandov/careerpilot/internal/models"
)

// MemoryStore keeps accounts in process memory. Used when no DATABASE_URL is configured.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*models.Account),
		now:      time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (s *MemoryStore) Create(ctx context.Context, account *models.Account) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.UserID]; ok {
		return false, nil
	}
	s.accounts[account.UserID] = account.Clone()
	return true, nil
}

func (s *MemoryStore) IncrementUsage(ctx context.Context, userID string, guard UsageGuard) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[userID]
	if !ok || !guard.Allows(a) {
		return nil, ErrGuardRejected
	}
	a.UsageCount++
	a.UpdatedAt = s.now()
	return a.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, userID string, update AccountUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[userID]
	if !ok {
		return ErrNotFound
	}
	if update.IsEmpty() {
		return nil
	}
	if update.Tier != nil {
		a.Tier = *update.Tier
	}
	if update.UsageCount != nil {
		a.UsageCount = *update.UsageCount
	}
	if update.SubscriptionStatus != nil {
		a.SubscriptionStatus = *update.SubscriptionStatus
	}
	if update.BillingCustomerID != nil {
		a.BillingCustomerID = nullable(*update.BillingCustomerID)
	}
	if update.BillingSubscriptionID != nil {
		a.BillingSubscriptionID = nullable(*update.BillingSubscriptionID)
	}
	a.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) FindByBillingCustomerID(ctx context.Context, customerID string) (*models.Account, error) {
	return s.find(func(a *models.Account) bool {
		return a.BillingCustomerID != nil && *a.BillingCustomerID == customerID
	})
}

func (s *MemoryStore) FindByBillingSubscriptionID(ctx context.Context, subscriptionID string) (*models.Account, error) {
	return s.find(func(a *models.Account) bool {
		return a.BillingSubscriptionID != nil && *a.BillingSubscriptionID == subscriptionID
	})
}

func (s *MemoryStore) find(match func(*models.Account) bool) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if match(a) {
			return a.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ResetAllUsage(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, a := range s.accounts {
		if a.UsageCount > 0 {
			a.UsageCount = 0
			a.UpdatedAt = s.now()
			n++
		}
	}
	return n, nil
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
