package billing

import "context"

type CheckoutParams struct {
	PriceRef   string
	PlanName   string
	UserID     string
	UserEmail  string
	SuccessURL string
	CancelURL  string
}

type CheckoutSession struct {
	ID             string
	URL            string
	Status         string
	PaymentStatus  string
	CustomerID     string
	SubscriptionID string
	CustomerEmail  string
	AmountTotal    int64
	Currency       string
	Metadata       map[string]string
}

type Subscription struct {
	ID         string
	CustomerID string
	Status     string
	Metadata   map[string]string
}

// Provider is the subset of the billing provider API the reconciler depends on.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	ListActiveSubscriptions(ctx context.Context, customerID string) ([]*Subscription, error)
}

// Verifier authenticates a raw webhook body against its signature header.
type Verifier interface {
	VerifyEvent(payload []byte, signatureHeader string) (*Event, error)
}
