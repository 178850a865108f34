package subsync

import (
	"context"
	"time"
)

// SubscriptionUpdate is a merge-update of a subscription record. Only
// non-nil fields are written; everything else is preserved.
type SubscriptionUpdate struct {
	Plan               *Plan
	Status             *string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  *bool
	PaymentIssue       *bool
	LastPaymentError   *string
}

// UserPremiumUpdate is a merge-update of a user's premium field group.
// The four premium fields are always written together; nil Plan/Expiry
// clear the stored values rather than leaving stale ones. Other user
// fields are preserved, and the record is created when absent.
type UserPremiumUpdate struct {
	IsPremium bool
	Plan      *Plan
	Expiry    *time.Time

	// CustomerID is written only when non-empty (set once at checkout).
	CustomerID string
}

// SubscriptionStore persists subscription records keyed by provider
// subscription id.
type SubscriptionStore interface {
	// Get returns the record or ErrSubscriptionNotFound.
	Get(ctx context.Context, id string) (*SubscriptionRecord, error)

	// Create writes a new record. A record that already exists under the
	// same id is overwritten; double delivery of a checkout event must
	// not fail.
	Create(ctx context.Context, rec *SubscriptionRecord) error

	// Update merge-writes the non-nil fields of upd. Returns
	// ErrSubscriptionNotFound when no record exists.
	Update(ctx context.Context, id string, upd SubscriptionUpdate) error

	// ListByUserAndStatus returns up to limit records for the user whose
	// status is in statuses.
	ListByUserAndStatus(ctx context.Context, userID string, statuses []string, limit int) ([]*SubscriptionRecord, error)
}

// UserStore persists user records keyed by application user id.
// Method names do not collide with SubscriptionStore, so one backend
// type can implement both.
type UserStore interface {
	// GetUser returns the record or ErrUserNotFound.
	GetUser(ctx context.Context, id string) (*UserRecord, error)

	// ApplyPremium merge-writes the premium field group, creating the
	// record when absent.
	ApplyPremium(ctx context.Context, userID string, upd UserPremiumUpdate) error
}
