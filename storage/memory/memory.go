// Package memory provides an in-memory implementation of the subsync
// store interfaces. This implementation is primarily intended for
// testing and development.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/subsync/subsync/pkg/subsync"
)

// Store implements subsync.SubscriptionStore and subsync.UserStore
// using in-memory maps.
type Store struct {
	mu            sync.RWMutex
	subscriptions map[string]*subsync.SubscriptionRecord
	users         map[string]*subsync.UserRecord
	now           func() time.Time
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		subscriptions: make(map[string]*subsync.SubscriptionRecord),
		users:         make(map[string]*subsync.UserRecord),
		now:           time.Now,
	}
}

// Get implements subsync.SubscriptionStore
func (s *Store) Get(ctx context.Context, id string) (*subsync.SubscriptionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.subscriptions[id]
	if !ok {
		return nil, subsync.ErrSubscriptionNotFound
	}

	// Return a copy to prevent external mutations
	recCopy := *rec
	return &recCopy, nil
}

// Create implements subsync.SubscriptionStore. An existing record under
// the same id is overwritten.
func (s *Store) Create(ctx context.Context, rec *subsync.SubscriptionRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("invalid subscription record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recCopy := *rec
	now := s.now().UTC()
	recCopy.CreatedAt = now
	recCopy.UpdatedAt = now
	s.subscriptions[rec.ID] = &recCopy
	return nil
}

// Update implements subsync.SubscriptionStore
func (s *Store) Update(ctx context.Context, id string, upd subsync.SubscriptionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.subscriptions[id]
	if !ok {
		return subsync.ErrSubscriptionNotFound
	}

	if upd.Plan != nil {
		rec.Plan = *upd.Plan
	}
	if upd.Status != nil {
		rec.Status = *upd.Status
	}
	if upd.CurrentPeriodStart != nil {
		rec.CurrentPeriodStart = *upd.CurrentPeriodStart
	}
	if upd.CurrentPeriodEnd != nil {
		rec.CurrentPeriodEnd = *upd.CurrentPeriodEnd
	}
	if upd.CancelAtPeriodEnd != nil {
		rec.CancelAtPeriodEnd = *upd.CancelAtPeriodEnd
	}
	if upd.PaymentIssue != nil {
		rec.PaymentIssue = *upd.PaymentIssue
	}
	if upd.LastPaymentError != nil {
		rec.LastPaymentError = *upd.LastPaymentError
	}
	rec.UpdatedAt = s.now().UTC()
	return nil
}

// ListByUserAndStatus implements subsync.SubscriptionStore
func (s *Store) ListByUserAndStatus(
	ctx context.Context, userID string, statuses []string, limit int,
) ([]*subsync.SubscriptionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}

	var out []*subsync.SubscriptionRecord
	for _, rec := range s.subscriptions {
		if rec.UserID != userID || !wanted[rec.Status] {
			continue
		}
		recCopy := *rec
		out = append(out, &recCopy)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// GetUser implements subsync.UserStore
func (s *Store) GetUser(ctx context.Context, id string) (*subsync.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[id]
	if !ok {
		return nil, subsync.ErrUserNotFound
	}

	recCopy := *rec
	return &recCopy, nil
}

// ApplyPremium implements subsync.UserStore
func (s *Store) ApplyPremium(ctx context.Context, userID string, upd subsync.UserPremiumUpdate) error {
	if userID == "" {
		return fmt.Errorf("invalid user id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[userID]
	if !ok {
		rec = &subsync.UserRecord{ID: userID}
		s.users[userID] = rec
	}

	rec.IsPremium = upd.IsPremium
	rec.PremiumPlan = copyPlan(upd.Plan)
	rec.PremiumExpiry = copyTime(upd.Expiry)
	if upd.CustomerID != "" {
		rec.StripeCustomerID = upd.CustomerID
	}
	rec.UpdatedAt = s.now().UTC()
	return nil
}

// Clear removes all data (useful for testing)
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscriptions = make(map[string]*subsync.SubscriptionRecord)
	s.users = make(map[string]*subsync.UserRecord)
}

func copyPlan(p *subsync.Plan) *subsync.Plan {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
