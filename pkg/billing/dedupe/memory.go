// Package dedupe provides billing.Deduper implementations for webhook
// event-id deduplication: an in-memory deduper for single-instance
// deployments and tests, and a Redis-backed one for multi-instance
// deployments.
package dedupe

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTTL bounds how long processed event ids are remembered.
	// Stripe retries failed webhooks for up to three days.
	DefaultTTL = 72 * time.Hour

	sweepInterval = 10 * time.Minute
)

// Memory is an in-process deduper. Concurrent deliveries of the same
// event id are collapsed into a single handler run via singleflight;
// later deliveries within the TTL are reported as duplicates.
type Memory struct {
	mu        sync.Mutex
	processed map[string]time.Time
	lastSweep time.Time
	ttl       time.Duration
	group     singleflight.Group
	now       func() time.Time
}

// NewMemory creates an in-memory deduper. A non-positive ttl falls back
// to DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		processed: make(map[string]time.Time),
		ttl:       ttl,
		now:       time.Now,
	}
}

// Do implements billing.Deduper.
func (m *Memory) Do(_ context.Context, eventID string, fn func() error) (bool, error) {
	if m.seen(eventID) {
		return true, nil
	}

	var ran bool
	_, err, _ := m.group.Do(eventID, func() (interface{}, error) {
		ran = true
		if err := fn(); err != nil {
			return nil, err
		}
		m.mark(eventID)
		return nil, nil
	})
	if err != nil {
		return false, err
	}
	// A caller that joined an in-flight run did not process the event
	// itself; its delivery was a duplicate.
	return !ran, nil
}

func (m *Memory) seen(eventID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	// Lazy cleanup instead of a background goroutine, so the deduper
	// never leaks a ticker.
	if now.Sub(m.lastSweep) > sweepInterval {
		for id, at := range m.processed {
			if now.Sub(at) > m.ttl {
				delete(m.processed, id)
			}
		}
		m.lastSweep = now
	}

	at, ok := m.processed[eventID]
	return ok && now.Sub(at) <= m.ttl
}

func (m *Memory) mark(eventID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[eventID] = m.now()
}
