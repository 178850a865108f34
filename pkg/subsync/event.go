package subsync

import (
	"context"
	"time"
)

// Event is a verified billing event, one variant per handled provider
// event type. Unknown provider types collapse into Other.
type Event interface {
	// EventKind names the variant for logging and metrics.
	EventKind() string
}

// CheckoutCompleted signals a finished checkout session. It is the sole
// creation point for subscription records.
type CheckoutCompleted struct {
	SessionID string

	// UserID is the application user id carried in the session's
	// client reference. Empty when the checkout was started without one.
	UserID string

	CustomerID     string
	SubscriptionID string
}

func (CheckoutCompleted) EventKind() string { return "checkout_completed" }

// SubscriptionChanged covers both provider "created" and "updated"
// events: a subscription can be updated before the checkout webhook is
// processed, or created directly from the provider dashboard.
type SubscriptionChanged struct {
	Subscription SubscriptionState
}

func (SubscriptionChanged) EventKind() string { return "subscription_changed" }

// SubscriptionDeleted signals that the provider ended a subscription.
type SubscriptionDeleted struct {
	Subscription SubscriptionState
}

func (SubscriptionDeleted) EventKind() string { return "subscription_deleted" }

// PaymentFailed signals a failed invoice payment. Informational only: it
// never changes status or entitlement.
type PaymentFailed struct {
	InvoiceID      string
	SubscriptionID string
	Message        string
}

func (PaymentFailed) EventKind() string { return "payment_failed" }

// Other is any provider event type the reconciler does not handle.
// It is acknowledged without touching the stores.
type Other struct {
	Type string
}

func (e Other) EventKind() string { return e.Type }

// SubscriptionState is the provider-authoritative snapshot of a
// subscription, as carried in an event payload or fetched from the API.
type SubscriptionState struct {
	ID                 string
	CustomerID         string
	PriceID            string
	Status             string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
}

// CustomerState is the provider's view of a customer.
type CustomerState struct {
	ID    string
	Email string

	// UserID is the application user id from the customer's metadata,
	// empty when the provider has no such linkage.
	UserID string
}

// BillingAPI is the outbound capability the reconciler needs from the
// billing provider. It is passed in explicitly; the reconciler never
// constructs a provider client itself.
type BillingAPI interface {
	RetrieveSubscription(ctx context.Context, id string) (*SubscriptionState, error)
	RetrieveCustomer(ctx context.Context, id string) (*CustomerState, error)
}
