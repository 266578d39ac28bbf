package api

import (
	"context"
	"net/http"

	"github.com/blagoySimandov/careerpilot/internal/account"
	"github.com/blagoySimandov/careerpilot/internal/auth"
	"github.com/blagoySimandov/careerpilot/internal/logging"
	"github.com/blagoySimandov/careerpilot/internal/models"
	"github.com/gorilla/mux"
)

type AccountService interface {
	GetOrCreate(ctx context.Context, userID string) (account.Lookup, error)
	IncrementUsage(ctx context.Context, userID string) (*models.Account, error)
	ResetUsage(ctx context.Context, userID string) error
}

type AccountHandler struct {
	ledger AccountService
}

func NewAccountHandler(ledger AccountService) *AccountHandler {
	return &AccountHandler{ledger: ledger}
}

type AccountResponse struct {
	*models.Account
	Limit     int64 `json:"limit"`
	Unlimited bool  `json:"unlimited"`
	Created   bool  `json:"created"`
}

type UsageResponse struct {
	UserID     string      `json:"userId"`
	UsageCount int64       `json:"usageCount"`
	Limit      int64       `json:"limit"`
	Unlimited  bool        `json:"unlimited"`
	Tier       models.Tier `json:"tier"`
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.subject(w, r)
	if !ok {
		return
	}

	lookup, err := h.ledger.GetOrCreate(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	acct := lookup.Account
	limit, unlimited := account.Limit(acct.Tier)
	logging.EnrichUsage(r.Context(), string(acct.Tier), acct.UsageCount)
	writeJSON(w, http.StatusOK, AccountResponse{
		Account:   acct,
		Limit:     limit,
		Unlimited: unlimited,
		Created:   lookup.Created,
	})
}

func (h *AccountHandler) IncrementUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.subject(w, r)
	if !ok {
		return
	}

	acct, err := h.ledger.IncrementUsage(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	limit, unlimited := account.Limit(acct.Tier)
	logging.EnrichUsage(r.Context(), string(acct.Tier), acct.UsageCount)
	writeJSON(w, http.StatusOK, UsageResponse{
		UserID:     acct.UserID,
		UsageCount: acct.UsageCount,
		Limit:      limit,
		Unlimited:  unlimited,
		Tier:       acct.Tier,
	})
}

func (h *AccountHandler) ResetUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.subject(w, r)
	if !ok {
		return
	}

	if err := h.ledger.ResetUsage(r.Context(), userID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "usageCount": 0})
}

func (h *AccountHandler) subject(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := mux.Vars(r)["userId"]
	if _, err := auth.RequireSubject(r.Context(), userID); err != nil {
		writeError(w, r, err)
		return "", false
	}
	return userID, true
}
