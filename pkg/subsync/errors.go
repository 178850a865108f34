package subsync

import "errors"

var (
	// ErrSubscriptionNotFound is returned by SubscriptionStore when no
	// record exists for a subscription id.
	ErrSubscriptionNotFound = errors.New("subscription record not found")

	// ErrUserNotFound is returned by UserStore when no record exists for
	// a user id.
	ErrUserNotFound = errors.New("user record not found")

	// ErrReconcilerNotConfigured is returned when a required reconciler
	// dependency is missing.
	ErrReconcilerNotConfigured = errors.New("reconciler not configured")
)
