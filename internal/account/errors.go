package account

import (
	"errors"
	"fmt"

	"github.com/blagoySimandov/careerpilot/internal/models"
)

var (
	ErrNotFound      = errors.New("account not found")
	ErrGuardRejected = errors.New("conditional update rejected")
	ErrContention    = errors.New("too many concurrent usage updates")
)

type QuotaExceededError struct {
	UsageCount int64       `json:"usageCount"`
	Limit      int64       `json:"limit"`
	Tier       models.Tier `json:"tier"`
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("generation quota exceeded: %d/%d used on tier %s", e.UsageCount, e.Limit, e.Tier)
}
