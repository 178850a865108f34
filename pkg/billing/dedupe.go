package billing

import "context"

// Deduper suppresses reprocessing of provider event ids. Providers
// deliver events at least once; a Deduper lets the webhook handler
// acknowledge a replayed delivery without running its handler again.
type Deduper interface {
	// Do runs fn unless eventID has already been processed, and reports
	// whether the delivery was a duplicate. A failed fn is not retained,
	// so the provider's retry of the same event id is processed again.
	Do(ctx context.Context, eventID string, fn func() error) (duplicate bool, err error)
}
