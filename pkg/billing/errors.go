package billing

import "errors"

var (
	// ErrHandlerNotConfigured is returned when a webhook handler is
	// missing a required dependency.
	ErrHandlerNotConfigured = errors.New("webhook handler not configured")

	// ErrClientNotConfigured is returned when the provider API client is
	// created without credentials.
	ErrClientNotConfigured = errors.New("billing API client not configured")
)
