// Package subsync keeps an application's subscription and user records
// synchronized with a billing provider. It consumes verified webhook
// events and applies idempotent state transitions to two persisted
// collections: subscriptions (keyed by provider subscription id) and
// users (keyed by application user id).
package subsync

import "time"

// Plan is the internal plan tag derived from a provider price id.
type Plan string

const (
	PlanMonthly Plan = "monthly"
	PlanYearly  Plan = "yearly"
)

// Subscription statuses as reported by the provider. The provider string
// is authoritative; these constants cover the values the reconciler
// inspects.
const (
	StatusActive   = "active"
	StatusTrialing = "trialing"
	StatusCanceled = "canceled"
)

// IsEntitling reports whether a subscription status grants premium access.
func IsEntitling(status string) bool {
	return status == StatusActive || status == StatusTrialing
}

// EntitlingStatuses returns the set of statuses that grant premium access,
// in the form store queries expect.
func EntitlingStatuses() []string {
	return []string{StatusActive, StatusTrialing}
}

// SubscriptionRecord is the persisted view of one provider subscription.
// It is created exactly once (on checkout completion) and only updated
// afterwards, never recreated.
type SubscriptionRecord struct {
	// ID is the provider subscription id and the record key.
	ID string

	// UserID is the application user the subscription belongs to.
	// Set at creation, immutable, and the only link back to the user.
	UserID string

	// CustomerID is the provider customer id. Immutable.
	CustomerID string

	// Plan is recomputed from the provider's current price id on every update.
	Plan Plan

	// Status is the provider-defined status string (active, trialing,
	// past_due, canceled, ...). Authoritative from the provider.
	Status string

	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool

	// PaymentIssue is set on payment failure and never cleared by the
	// reconciler. LastPaymentError holds the most recent failure message.
	PaymentIssue     bool
	LastPaymentError string

	// CreatedAt and UpdatedAt are assigned by the store.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserRecord is the persisted premium standing of one application user.
type UserRecord struct {
	// ID is the application user id and the record key.
	ID string

	// IsPremium is true iff at least one of the user's subscriptions has
	// an entitling status, as of the most recently processed event.
	IsPremium bool

	// PremiumPlan and PremiumExpiry are only meaningful while IsPremium
	// is true; nil means absent.
	PremiumPlan   *Plan
	PremiumExpiry *time.Time

	// StripeCustomerID is set once at checkout.
	StripeCustomerID string

	// UpdatedAt is assigned by the store.
	UpdatedAt time.Time
}
