// Package firestore provides a Cloud Firestore implementation of the
// subsync store interfaces: a `subscriptions` collection keyed by
// provider subscription id and a `users` collection keyed by
// application user id.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/subsync/subsync/pkg/subsync"
)

// Store implements subsync.SubscriptionStore and subsync.UserStore
// using Google Cloud Firestore.
type Store struct {
	client                  *firestore.Client
	subscriptionsCollection string
	usersCollection         string
}

// Config holds Firestore store configuration
type Config struct {
	// SubscriptionsCollection is the collection for subscription records
	// Default: "subscriptions"
	SubscriptionsCollection string

	// UsersCollection is the collection for user records
	// Default: "users"
	UsersCollection string
}

// New creates a new Firestore store adapter
func New(client *firestore.Client, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	if config.SubscriptionsCollection == "" {
		config.SubscriptionsCollection = "subscriptions"
	}
	if config.UsersCollection == "" {
		config.UsersCollection = "users"
	}

	return &Store{
		client:                  client,
		subscriptionsCollection: config.SubscriptionsCollection,
		usersCollection:         config.UsersCollection,
	}, nil
}

// Get implements subsync.SubscriptionStore
func (s *Store) Get(ctx context.Context, id string) (*subsync.SubscriptionRecord, error) {
	snap, err := s.client.Collection(s.subscriptionsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, subsync.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	if !snap.Exists() {
		return nil, subsync.ErrSubscriptionNotFound
	}

	return subscriptionFromDoc(id, snap.Data()), nil
}

// Create implements subsync.SubscriptionStore. The document is written
// wholesale; an existing document under the same id is overwritten.
func (s *Store) Create(ctx context.Context, rec *subsync.SubscriptionRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("invalid subscription record")
	}

	data := map[string]interface{}{
		"userId":             rec.UserID,
		"customerId":         rec.CustomerID,
		"subscriptionId":     rec.ID,
		"plan":               string(rec.Plan),
		"status":             rec.Status,
		"currentPeriodStart": rec.CurrentPeriodStart,
		"currentPeriodEnd":   rec.CurrentPeriodEnd,
		"cancelAtPeriodEnd":  rec.CancelAtPeriodEnd,
		"createdAt":          firestore.ServerTimestamp,
		"updatedAt":          firestore.ServerTimestamp,
	}

	if _, err := s.client.Collection(s.subscriptionsCollection).Doc(rec.ID).Set(ctx, data); err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// Update implements subsync.SubscriptionStore. Firestore's Update fails
// with NotFound when the document does not exist, which maps to
// ErrSubscriptionNotFound.
func (s *Store) Update(ctx context.Context, id string, upd subsync.SubscriptionUpdate) error {
	updates := []firestore.Update{
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	}
	if upd.Plan != nil {
		updates = append(updates, firestore.Update{Path: "plan", Value: string(*upd.Plan)})
	}
	if upd.Status != nil {
		updates = append(updates, firestore.Update{Path: "status", Value: *upd.Status})
	}
	if upd.CurrentPeriodStart != nil {
		updates = append(updates, firestore.Update{Path: "currentPeriodStart", Value: *upd.CurrentPeriodStart})
	}
	if upd.CurrentPeriodEnd != nil {
		updates = append(updates, firestore.Update{Path: "currentPeriodEnd", Value: *upd.CurrentPeriodEnd})
	}
	if upd.CancelAtPeriodEnd != nil {
		updates = append(updates, firestore.Update{Path: "cancelAtPeriodEnd", Value: *upd.CancelAtPeriodEnd})
	}
	if upd.PaymentIssue != nil {
		updates = append(updates, firestore.Update{Path: "paymentIssue", Value: *upd.PaymentIssue})
	}
	if upd.LastPaymentError != nil {
		updates = append(updates, firestore.Update{Path: "lastPaymentError", Value: *upd.LastPaymentError})
	}

	_, err := s.client.Collection(s.subscriptionsCollection).Doc(id).Update(ctx, updates)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return subsync.ErrSubscriptionNotFound
		}
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	return nil
}

// ListByUserAndStatus implements subsync.SubscriptionStore
func (s *Store) ListByUserAndStatus(
	ctx context.Context, userID string, statuses []string, limit int,
) ([]*subsync.SubscriptionRecord, error) {
	query := s.client.Collection(s.subscriptionsCollection).
		Where("userId", "==", userID).
		Where("status", "in", statuses)
	if limit > 0 {
		query = query.Limit(limit)
	}

	snaps, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}

	out := make([]*subsync.SubscriptionRecord, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, subscriptionFromDoc(snap.Ref.ID, snap.Data()))
	}
	return out, nil
}

// GetUser implements subsync.UserStore
func (s *Store) GetUser(ctx context.Context, id string) (*subsync.UserRecord, error) {
	snap, err := s.client.Collection(s.usersCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, subsync.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !snap.Exists() {
		return nil, subsync.ErrUserNotFound
	}

	data := snap.Data()
	rec := &subsync.UserRecord{
		ID:               id,
		IsPremium:        getBool(data, "isPremium"),
		StripeCustomerID: getString(data, "stripeCustomerId"),
		UpdatedAt:        getTime(data, "updatedAt"),
	}
	if plan := getString(data, "premiumPlan"); plan != "" {
		p := subsync.Plan(plan)
		rec.PremiumPlan = &p
	}
	if expiry, ok := data["premiumExpiry"].(time.Time); ok && !expiry.IsZero() {
		rec.PremiumExpiry = &expiry
	}
	return rec, nil
}

// ApplyPremium implements subsync.UserStore. Uses set-with-merge so the
// document is created when absent and unrelated fields are preserved;
// nil plan/expiry are written as explicit nulls, clearing stale values.
func (s *Store) ApplyPremium(ctx context.Context, userID string, upd subsync.UserPremiumUpdate) error {
	if userID == "" {
		return fmt.Errorf("invalid user id")
	}

	data := map[string]interface{}{
		"isPremium": upd.IsPremium,
		"updatedAt": firestore.ServerTimestamp,
	}
	if upd.Plan != nil {
		data["premiumPlan"] = string(*upd.Plan)
	} else {
		data["premiumPlan"] = nil
	}
	if upd.Expiry != nil {
		data["premiumExpiry"] = *upd.Expiry
	} else {
		data["premiumExpiry"] = nil
	}
	if upd.CustomerID != "" {
		data["stripeCustomerId"] = upd.CustomerID
	}

	_, err := s.client.Collection(s.usersCollection).Doc(userID).Set(ctx, data, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

func subscriptionFromDoc(id string, data map[string]interface{}) *subsync.SubscriptionRecord {
	return &subsync.SubscriptionRecord{
		ID:                 id,
		UserID:             getString(data, "userId"),
		CustomerID:         getString(data, "customerId"),
		Plan:               subsync.Plan(getString(data, "plan")),
		Status:             getString(data, "status"),
		CurrentPeriodStart: getTime(data, "currentPeriodStart"),
		CurrentPeriodEnd:   getTime(data, "currentPeriodEnd"),
		CancelAtPeriodEnd:  getBool(data, "cancelAtPeriodEnd"),
		PaymentIssue:       getBool(data, "paymentIssue"),
		LastPaymentError:   getString(data, "lastPaymentError"),
		CreatedAt:          getTime(data, "createdAt"),
		UpdatedAt:          getTime(data, "updatedAt"),
	}
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getBool(data map[string]interface{}, key string) bool {
	if v, ok := data[key].(bool); ok {
		return v
	}
	return false
}

func getTime(data map[string]interface{}, key string) time.Time {
	if v, ok := data[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}
