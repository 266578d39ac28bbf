package billing

import (
	"context"
	"errors"
	"time"

	"github.com/blagoySimandov/careerpilot/internal/account"
	"github.com/blagoySimandov/careerpilot/internal/apperr"
	"github.com/blagoySimandov/careerpilot/internal/config"
	"github.com/blagoySimandov/careerpilot/internal/metrics"
	"github.com/blagoySimandov/careerpilot/internal/models"
	"github.com/rs/zerolog/log"
)

const providerPaymentPaid = "paid"

// Ledger is the part of account.Ledger the reconciler mutates.
type Ledger interface {
	ApplyTierChange(ctx context.Context, userID string, change account.TierChange) error
	ApplyCancellation(ctx context.Context, userID string) error
	SetSubscriptionStatus(ctx context.Context, userID string, status models.SubscriptionStatus, subscriptionID string) error
	FindByBillingCustomerID(ctx context.Context, customerID string) (*models.Account, error)
	FindByBillingSubscriptionID(ctx context.Context, subscriptionID string) (*models.Account, error)
}

type CheckoutRequest struct {
	PriceRef  string `json:"priceRef"`
	PlanName  string `json:"planName"`
	UserID    string `json:"userId"`
	UserEmail string `json:"userEmail"`
}

type SessionSummary struct {
	SessionID      string      `json:"sessionId"`
	PaymentStatus  string      `json:"paymentStatus"`
	CustomerEmail  string      `json:"customerEmail,omitempty"`
	CustomerID     string      `json:"customerId,omitempty"`
	SubscriptionID string      `json:"subscriptionId,omitempty"`
	UserID         string      `json:"userId"`
	PlanName       string      `json:"planName"`
	Tier           models.Tier `json:"tier"`
	AmountTotal    int64       `json:"amountTotal"`
	Currency       string      `json:"currency,omitempty"`
}

type CancelRequest struct {
	UserID         string `json:"userId"`
	CustomerID     string `json:"customerId,omitempty"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
}

type CancelResult struct {
	SubscriptionID string `json:"subscriptionId"`
	Status         string `json:"status"`
}

type WebhookStatus string

const (
	WebhookProcessed WebhookStatus = "processed"
	WebhookDuplicate WebhookStatus = "duplicate"
	WebhookIgnored   WebhookStatus = "ignored"
	WebhookFailed    WebhookStatus = "failed"
)

type WebhookResult struct {
	EventID string
	Kind    EventKind
	Status  WebhookStatus
}

// errSkip marks an event that is acknowledged without a ledger change.
var errSkip = errors.New("event skipped")

type Reconciler struct {
	provider   Provider
	verifier   Verifier
	ledger     Ledger
	deduper    EventDeduper
	catalogue  *Catalogue
	metrics    *metrics.Metrics
	successURL string
	cancelURL  string
	timeout    time.Duration
}

type ReconcilerOption func(*Reconciler)

func WithDeduper(d EventDeduper) ReconcilerOption {
	return func(r *Reconciler) { r.deduper = d }
}

func WithMetrics(m *metrics.Metrics) ReconcilerOption {
	return func(r *Reconciler) { r.metrics = m }
}

func NewReconciler(provider Provider, verifier Verifier, ledger Ledger, cfg config.BillingConfig, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		provider:   provider,
		verifier:   verifier,
		ledger:     ledger,
		catalogue:  NewCatalogue(cfg),
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		timeout:    cfg.ProviderTimeout,
	}
	if r.timeout <= 0 {
		r.timeout = 10 * time.Second
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.deduper == nil {
		r.deduper = NewMemoryDeduper(cfg.DedupTTL)
	}
	return r
}

func (r *Reconciler) Plans() []Plan {
	return r.catalogue.List()
}

// CreateCheckoutSession starts a subscription purchase. userId and planName travel
// as metadata on both the session and the subscription; they are the only link
// back to the account when the provider reports completion.
func (r *Reconciler) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.UserID == "" {
		return nil, apperr.Validation("userId is required")
	}
	if req.PlanName == "" {
		return nil, apperr.Validation("planName is required")
	}
	priceRef := req.PriceRef
	if priceRef == "" {
		if plan, ok := r.catalogue.Get(req.PlanName); ok {
			priceRef = plan.PriceRef
		}
	}
	if priceRef == "" {
		return nil, apperr.Validation("priceRef is required")
	}

	var session *CheckoutSession
	err := r.callProvider(ctx, "checkout.create", func(ctx context.Context) error {
		var err error
		session, err = r.provider.CreateCheckoutSession(ctx, CheckoutParams{
			PriceRef:   priceRef,
			PlanName:   req.PlanName,
			UserID:     req.UserID,
			UserEmail:  req.UserEmail,
			SuccessURL: r.successURL,
			CancelURL:  r.cancelURL,
		})
		return err
	})
	if err != nil {
		return nil, apperr.Upstream("billing.create_checkout_session", err)
	}

	log.Info().
		Str("user_id", req.UserID).
		Str("plan_name", req.PlanName).
		Str("session_id", session.ID).
		Msg("Checkout session created")
	return session, nil
}

// VerifySession applies the purchased tier once the provider reports the session paid.
// Only the user the session was created for may verify it.
// Repeating it is harmless: the tier change is a full overwrite.
func (r *Reconciler) VerifySession(ctx context.Context, callerID, sessionID string) (*SessionSummary, error) {
	if sessionID == "" {
		return nil, apperr.Validation("sessionId is required")
	}
	if callerID == "" {
		return nil, apperr.Unauthorized("caller identity is required")
	}

	var session *CheckoutSession
	err := r.callProvider(ctx, "checkout.retrieve", func(ctx context.Context) error {
		var err error
		session, err = r.provider.GetCheckoutSession(ctx, sessionID)
		return err
	})
	if err != nil {
		return nil, apperr.Upstream("billing.verify_session", err)
	}

	userID := session.Metadata[config.StripeMetadataUserID]
	if userID == "" {
		return nil, apperr.Validation("checkout session has no userId metadata")
	}
	if userID != callerID {
		log.Warn().Str("user_id", callerID).Str("session_id", sessionID).Msg("Session verification rejected: session belongs to another user")
		return nil, apperr.Forbidden("checkout session belongs to another user")
	}

	if session.PaymentStatus != providerPaymentPaid {
		return nil, apperr.PaymentIncomplete(session.PaymentStatus)
	}
	planName := session.Metadata[config.StripeMetadataPlanName]
	tier := TierForPlan(planName)

	err = r.ledger.ApplyTierChange(ctx, userID, account.TierChange{
		Tier:                  tier,
		BillingCustomerID:     session.CustomerID,
		BillingSubscriptionID: session.SubscriptionID,
		Status:                models.SubscriptionActive,
	})
	if err != nil {
		return nil, err
	}

	return &SessionSummary{
		SessionID:      session.ID,
		PaymentStatus:  session.PaymentStatus,
		CustomerEmail:  session.CustomerEmail,
		CustomerID:     session.CustomerID,
		SubscriptionID: session.SubscriptionID,
		UserID:         userID,
		PlanName:       planName,
		Tier:           tier,
		AmountTotal:    session.AmountTotal,
		Currency:       session.Currency,
	}, nil
}

// HandleWebhookEvent verifies the signature before reading anything from payload.
// After a valid signature the event is always acknowledged: processing failures
// are logged with the payload and reported in the result, not returned. A failed
// event is not recorded as processed, so a manual resend from the provider's
// dashboard or a replay of the logged payload runs it again.
func (r *Reconciler) HandleWebhookEvent(ctx context.Context, payload []byte, signatureHeader string) (WebhookResult, error) {
	event, err := r.verifier.VerifyEvent(payload, signatureHeader)
	if err != nil {
		r.metrics.ObserveWebhook("unverified", "invalid_signature")
		log.Warn().Err(err).Msg("Webhook signature verification failed")
		return WebhookResult{}, apperr.InvalidSignature(err)
	}

	result := WebhookResult{EventID: event.ID, Kind: event.Kind}
	logger := log.With().Str("event_id", event.ID).Str("event_type", event.Type).Logger()

	seen, err := r.deduper.Processed(ctx, event.ID)
	if err != nil {
		// Handlers are idempotent, so processing a possible duplicate is safe.
		logger.Warn().Err(err).Msg("Webhook dedup unavailable, processing anyway")
		seen = false
	}
	if seen {
		logger.Info().Msg("Duplicate webhook event acknowledged")
		result.Status = WebhookDuplicate
		r.metrics.ObserveWebhook(event.Kind.String(), string(result.Status))
		return result, nil
	}

	err = r.dispatch(ctx, event)
	switch {
	case err == nil:
		result.Status = WebhookProcessed
	case errors.Is(err, errSkip):
		result.Status = WebhookIgnored
	default:
		result.Status = WebhookFailed
		logger.Error().Err(err).Bytes("payload", payload).Msg("Webhook processing failed")
	}
	if result.Status != WebhookFailed {
		if err := r.deduper.MarkProcessed(ctx, event.ID); err != nil {
			logger.Warn().Err(err).Msg("Failed to record processed webhook event")
		}
	}
	r.metrics.ObserveWebhook(event.Kind.String(), string(result.Status))
	return result, nil
}

func (r *Reconciler) dispatch(ctx context.Context, event *Event) error {
	switch event.Kind {
	case EventCheckoutSessionCompleted:
		return r.handleCheckoutCompleted(ctx, event)
	case EventInvoicePaymentSucceeded:
		return r.handleInvoicePaid(ctx, event)
	case EventSubscriptionDeleted:
		return r.handleSubscriptionDeleted(ctx, event)
	case EventSubscriptionUpdated:
		return r.handleSubscriptionUpdated(ctx, event)
	case EventUnknown:
		log.Info().Str("event_id", event.ID).Str("event_type", event.Type).Msg("Webhook ignored (unhandled type)")
		return errSkip
	default:
		return errSkip
	}
}

func (r *Reconciler) handleCheckoutCompleted(ctx context.Context, event *Event) error {
	session, err := parseEventData[checkoutSessionPayload](event)
	if err != nil {
		return skip(event, "malformed checkout session payload", err)
	}

	userID := session.Metadata[config.StripeMetadataUserID]
	if userID == "" {
		return skip(event, "checkout session has no userId metadata", nil)
	}
	tier := TierForPlan(session.Metadata[config.StripeMetadataPlanName])

	err = r.ledger.ApplyTierChange(ctx, userID, account.TierChange{
		Tier:                  tier,
		BillingCustomerID:     session.Customer,
		BillingSubscriptionID: session.Subscription,
		Status:                models.SubscriptionActive,
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("event_id", event.ID).
		Str("user_id", userID).
		Str("tier", string(tier)).
		Str("subscription_id", session.Subscription).
		Msg("Subscription activated")
	return nil
}

func (r *Reconciler) handleInvoicePaid(ctx context.Context, event *Event) error {
	invoice, err := parseEventData[invoicePayload](event)
	if err != nil {
		return skip(event, "malformed invoice payload", err)
	}

	subscriptionID := invoice.subscriptionID()
	if subscriptionID == "" {
		return skip(event, "invoice has no subscription", nil)
	}

	var sub *Subscription
	err = r.callProvider(ctx, "subscription.retrieve", func(ctx context.Context) error {
		var err error
		sub, err = r.provider.GetSubscription(ctx, subscriptionID)
		return err
	})
	if err != nil {
		return apperr.Upstream("billing.invoice_paid", err)
	}

	userID := sub.Metadata[config.StripeMetadataUserID]
	if userID == "" {
		userID = invoice.userID()
	}
	if userID == "" {
		userID, err = r.resolveUser(ctx, subscriptionID, invoice.Customer)
		if err != nil {
			return err
		}
	}

	if err := r.ledger.SetSubscriptionStatus(ctx, userID, models.SubscriptionActive, subscriptionID); err != nil {
		return err
	}
	log.Info().Str("event_id", event.ID).Str("user_id", userID).Str("subscription_id", subscriptionID).Msg("Invoice paid, subscription active")
	return nil
}

func (r *Reconciler) handleSubscriptionDeleted(ctx context.Context, event *Event) error {
	sub, err := parseEventData[subscriptionPayload](event)
	if err != nil {
		return skip(event, "malformed subscription payload", err)
	}

	userID := sub.Metadata[config.StripeMetadataUserID]
	if userID == "" {
		userID, err = r.resolveUser(ctx, sub.ID, sub.Customer)
		if err != nil {
			return err
		}
	}

	if err := r.ledger.ApplyCancellation(ctx, userID); err != nil {
		return err
	}
	log.Info().Str("event_id", event.ID).Str("user_id", userID).Str("subscription_id", sub.ID).Msg("Subscription cancelled")
	return nil
}

func (r *Reconciler) handleSubscriptionUpdated(ctx context.Context, event *Event) error {
	sub, err := parseEventData[subscriptionPayload](event)
	if err != nil {
		return skip(event, "malformed subscription payload", err)
	}

	userID := sub.Metadata[config.StripeMetadataUserID]
	if userID == "" {
		userID, err = r.resolveUser(ctx, sub.ID, sub.Customer)
		if err != nil {
			return err
		}
	}

	status := models.SubscriptionInactive
	if sub.Status == "active" {
		status = models.SubscriptionActive
	}
	if err := r.ledger.SetSubscriptionStatus(ctx, userID, status, sub.ID); err != nil {
		return err
	}
	log.Info().
		Str("event_id", event.ID).
		Str("user_id", userID).
		Str("provider_status", sub.Status).
		Str("status", string(status)).
		Msg("Subscription status updated")
	return nil
}

// resolveUser finds the account for events that arrive without userId metadata.
func (r *Reconciler) resolveUser(ctx context.Context, subscriptionID, customerID string) (string, error) {
	if subscriptionID != "" {
		acct, err := r.ledger.FindByBillingSubscriptionID(ctx, subscriptionID)
		if err == nil {
			return acct.UserID, nil
		}
		if !apperr.Is(err, apperr.KindNotFound) {
			return "", err
		}
	}
	if customerID != "" {
		acct, err := r.ledger.FindByBillingCustomerID(ctx, customerID)
		if err == nil {
			return acct.UserID, nil
		}
		if !apperr.Is(err, apperr.KindNotFound) {
			return "", err
		}
	}
	log.Warn().Str("subscription_id", subscriptionID).Str("customer_id", customerID).Msg("Webhook references no known account")
	return "", errSkip
}

// CancelSubscription cancels with the provider first and only then downgrades the account.
// The subscription or customer must belong to req.UserID.
func (r *Reconciler) CancelSubscription(ctx context.Context, req CancelRequest) (*CancelResult, error) {
	if req.UserID == "" {
		return nil, apperr.Validation("userId is required")
	}
	if req.SubscriptionID == "" && req.CustomerID == "" {
		return nil, apperr.Validation("customerId or subscriptionId is required")
	}

	subscriptionID := req.SubscriptionID
	if subscriptionID != "" {
		if err := r.checkSubscriptionOwner(ctx, req.UserID, subscriptionID); err != nil {
			return nil, err
		}
	} else {
		ownsCustomer, err := r.ownsCustomer(ctx, req.UserID, req.CustomerID)
		if err != nil {
			return nil, err
		}
		var subs []*Subscription
		err = r.callProvider(ctx, "subscription.list", func(ctx context.Context) error {
			var err error
			subs, err = r.provider.ListActiveSubscriptions(ctx, req.CustomerID)
			return err
		})
		if err != nil {
			return nil, apperr.Upstream("billing.cancel_subscription", err)
		}
		if len(subs) == 0 {
			if !ownsCustomer {
				return nil, errNotSubscriptionOwner()
			}
			return nil, apperr.NotFound("billing.cancel_subscription", "no active subscription found")
		}
		if !ownsCustomer && subs[0].Metadata[config.StripeMetadataUserID] != req.UserID {
			return nil, errNotSubscriptionOwner()
		}
		subscriptionID = subs[0].ID
	}

	var sub *Subscription
	err := r.callProvider(ctx, "subscription.cancel", func(ctx context.Context) error {
		var err error
		sub, err = r.provider.CancelSubscription(ctx, subscriptionID)
		return err
	})
	if err != nil {
		return nil, apperr.Upstream("billing.cancel_subscription", err)
	}

	if err := r.ledger.ApplyCancellation(ctx, req.UserID); err != nil {
		return nil, err
	}

	log.Info().Str("user_id", req.UserID).Str("subscription_id", sub.ID).Msg("Subscription cancelled by user")
	return &CancelResult{SubscriptionID: sub.ID, Status: sub.Status}, nil
}

func errNotSubscriptionOwner() error {
	return apperr.Forbidden("subscription does not belong to this user")
}

// checkSubscriptionOwner trusts the ledger first. A subscription the ledger has not
// linked yet falls back to the userId metadata stamped on it at checkout.
func (r *Reconciler) checkSubscriptionOwner(ctx context.Context, userID, subscriptionID string) error {
	acct, err := r.ledger.FindByBillingSubscriptionID(ctx, subscriptionID)
	switch {
	case err == nil && acct.UserID == userID:
		return nil
	case err == nil:
		log.Warn().Str("user_id", userID).Str("subscription_id", subscriptionID).Msg("Cancel rejected: subscription linked to another account")
		return errNotSubscriptionOwner()
	case !apperr.Is(err, apperr.KindNotFound):
		return err
	}

	var sub *Subscription
	err = r.callProvider(ctx, "subscription.retrieve", func(ctx context.Context) error {
		var err error
		sub, err = r.provider.GetSubscription(ctx, subscriptionID)
		return err
	})
	if err != nil {
		return apperr.Upstream("billing.cancel_subscription", err)
	}
	if sub.Metadata[config.StripeMetadataUserID] != userID {
		log.Warn().Str("user_id", userID).Str("subscription_id", subscriptionID).Msg("Cancel rejected: subscription metadata names another user")
		return errNotSubscriptionOwner()
	}
	return nil
}

func (r *Reconciler) ownsCustomer(ctx context.Context, userID, customerID string) (bool, error) {
	acct, err := r.ledger.FindByBillingCustomerID(ctx, customerID)
	switch {
	case err == nil:
		return acct.UserID == userID, nil
	case apperr.Is(err, apperr.KindNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (r *Reconciler) callProvider(ctx context.Context, op string, call func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := call(ctx)
	r.metrics.ObserveProviderCall(op, err)
	return err
}

func skip(event *Event, reason string, err error) error {
	log.Warn().Err(err).Str("event_id", event.ID).Str("event_type", event.Type).Msg("Webhook skipped: " + reason)
	return errSkip
}
