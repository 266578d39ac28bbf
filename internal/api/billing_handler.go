package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/blagoySimandov/careerpilot/internal/apperr"
	"github.com/blagoySimandov/careerpilot/internal/auth"
	"github.com/blagoySimandov/careerpilot/internal/billing"
	"github.com/blagoySimandov/careerpilot/internal/logging"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	maxWebhookBodyBytes   = 64 << 10
	maxJSONBodyBytes      = 64 << 10
)

type BillingService interface {
	Plans() []billing.Plan
	CreateCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error)
	VerifySession(ctx context.Context, callerID, sessionID string) (*billing.SessionSummary, error)
	HandleWebhookEvent(ctx context.Context, payload []byte, signatureHeader string) (billing.WebhookResult, error)
	CancelSubscription(ctx context.Context, req billing.CancelRequest) (*billing.CancelResult, error)
}

type BillingHandler struct {
	billing BillingService
}

func NewBillingHandler(svc BillingService) *BillingHandler {
	return &BillingHandler{billing: svc}
}

type CreateCheckoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type VerifySessionRequest struct {
	SessionID string `json:"sessionId"`
}

type WebhookResponse struct {
	Received bool   `json:"received"`
	Status   string `json:"status,omitempty"`
}

func (h *BillingHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.billing.Plans())
}

func (h *BillingHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req billing.CheckoutRequest
	if err := decodeJSON(w, r, maxJSONBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := auth.RequireSubject(r.Context(), req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.UserEmail == "" {
		req.UserEmail = user.Email
	}

	session, err := h.billing.CreateCheckoutSession(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CreateCheckoutResponse{SessionID: session.ID, URL: session.URL})
}

func (h *BillingHandler) VerifySession(w http.ResponseWriter, r *http.Request) {
	var req VerifySessionRequest
	if err := decodeJSON(w, r, maxJSONBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, r, apperr.Unauthorized("Unauthorized"))
		return
	}

	summary, err := h.billing.VerifySession(r.Context(), user.ID, req.SessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logging.EnrichMetadata(r.Context(), "session_id", summary.SessionID)
	writeJSON(w, http.StatusOK, summary)
}

func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	var req billing.CancelRequest
	if err := decodeJSON(w, r, maxJSONBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := auth.RequireSubject(r.Context(), req.UserID); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.billing.CancelSubscription(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleWebhook needs the raw body: the signature covers the exact bytes sent.
func (h *BillingHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, apperr.Validation("Webhook payload too large"))
			return
		}
		writeError(w, r, apperr.Validation("Failed to read body"))
		return
	}

	result, err := h.billing.HandleWebhookEvent(r.Context(), payload, r.Header.Get(stripeSignatureHeader))
	if err != nil {
		writeError(w, r, err)
		return
	}

	logging.EnrichWebhook(r.Context(), result.EventID, result.Kind.String(), string(result.Status))
	writeJSON(w, http.StatusOK, WebhookResponse{Received: true, Status: string(result.Status)})
}
