package billing

import (
	"encoding/json"

	"github.com/blagoySimandov/careerpilot/internal/config"
)

// EventKind is the closed set of webhook events the reconciler acts on.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventCheckoutSessionCompleted
	EventInvoicePaymentSucceeded
	EventSubscriptionDeleted
	EventSubscriptionUpdated
)

var eventTypes = map[string]EventKind{
	"checkout.session.completed":    EventCheckoutSessionCompleted,
	"invoice.payment_succeeded":     EventInvoicePaymentSucceeded,
	"customer.subscription.deleted": EventSubscriptionDeleted,
	"customer.subscription.updated": EventSubscriptionUpdated,
}

func ParseEventKind(eventType string) EventKind {
	return eventTypes[eventType]
}

func (k EventKind) String() string {
	switch k {
	case EventCheckoutSessionCompleted:
		return "checkout.session.completed"
	case EventInvoicePaymentSucceeded:
		return "invoice.payment_succeeded"
	case EventSubscriptionDeleted:
		return "customer.subscription.deleted"
	case EventSubscriptionUpdated:
		return "customer.subscription.updated"
	default:
		return "unknown"
	}
}

// Event is a verified webhook event. Raw is the event's data.object.
type Event struct {
	ID   string
	Type string
	Kind EventKind
	Raw  json.RawMessage
}

func parseEventData[T any](event *Event) (*T, error) {
	var data T
	if err := json.Unmarshal(event.Raw, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

type checkoutSessionPayload struct {
	ID            string            `json:"id"`
	Customer      string            `json:"customer"`
	Subscription  string            `json:"subscription"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
}

type invoicePayload struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription string            `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// subscriptionID reads the subscription from the legacy top-level field or,
// on newer API versions, from parent.subscription_details.
func (p *invoicePayload) subscriptionID() string {
	if p.Subscription != "" {
		return p.Subscription
	}
	if p.Parent != nil && p.Parent.SubscriptionDetails != nil {
		return p.Parent.SubscriptionDetails.Subscription
	}
	return ""
}

func (p *invoicePayload) userID() string {
	if p.Parent != nil && p.Parent.SubscriptionDetails != nil {
		return p.Parent.SubscriptionDetails.Metadata[config.StripeMetadataUserID]
	}
	return ""
}

type subscriptionPayload struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}
