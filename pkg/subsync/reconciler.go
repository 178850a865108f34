package subsync

import (
	"context"
	"errors"
	"fmt"
)

const defaultPaymentErrorMessage = "Payment failed"

// ReconcilerConfig holds the dependencies of a Reconciler.
type ReconcilerConfig struct {
	// Subscriptions is the subscription record store (required).
	Subscriptions SubscriptionStore

	// Users is the user record store (required).
	Users UserStore

	// Billing provides outbound provider lookups (required).
	Billing BillingAPI

	// Plans maps provider price ids to plan tags (required).
	Plans *PlanResolver

	// Logger is optional; nil falls back to a no-op logger.
	Logger Logger
}

// Reconciler applies verified billing events to the subscription and
// user stores. Each event is reconciled independently against current
// store state; there is no persisted state machine.
//
// Expected missing-linkage conditions (no user id on checkout, unknown
// subscription id on update/delete/payment-failed) are logged no-ops:
// Apply returns nil so the caller acknowledges the event and the
// provider does not retry a situation a retry cannot fix. Only
// unexpected failures (store or provider API errors) are returned.
type Reconciler struct {
	subs    SubscriptionStore
	users   UserStore
	billing BillingAPI
	plans   *PlanResolver
	log     Logger
}

// NewReconciler validates the configuration and creates a Reconciler.
func NewReconciler(cfg ReconcilerConfig) (*Reconciler, error) {
	if cfg.Subscriptions == nil || cfg.Users == nil || cfg.Billing == nil || cfg.Plans == nil {
		return nil, ErrReconcilerNotConfigured
	}

	log := cfg.Logger
	if log == nil {
		log = &NoopLogger{}
	}

	return &Reconciler{
		subs:    cfg.Subscriptions,
		users:   cfg.Users,
		billing: cfg.Billing,
		plans:   cfg.Plans,
		log:     log,
	}, nil
}

// Apply routes an event to its handler. Reprocessing the same event is
// safe: every handler writes state derived from the event and the
// current records, not deltas.
func (r *Reconciler) Apply(ctx context.Context, ev Event) error {
	switch ev := ev.(type) {
	case CheckoutCompleted:
		return r.applyCheckoutCompleted(ctx, ev)
	case SubscriptionChanged:
		return r.applySubscriptionChanged(ctx, ev)
	case SubscriptionDeleted:
		return r.applySubscriptionDeleted(ctx, ev)
	case PaymentFailed:
		return r.applyPaymentFailed(ctx, ev)
	case Other:
		r.log.Debug("unhandled event type", Field{Key: "type", Value: ev.Type})
		return nil
	default:
		r.log.Warn("unknown event variant", Field{Key: "kind", Value: ev.EventKind()})
		return nil
	}
}

// applyCheckoutCompleted creates the subscription record and promotes
// the user. This is the only place subscription records are created.
func (r *Reconciler) applyCheckoutCompleted(ctx context.Context, ev CheckoutCompleted) error {
	if ev.UserID == "" {
		// The session was started without a client reference; a provider
		// retry cannot supply one, so acknowledge and move on.
		r.log.Warn("checkout session has no user reference",
			Field{Key: "session_id", Value: ev.SessionID})
		return nil
	}
	if ev.SubscriptionID == "" {
		// One-time payment checkout; nothing to reconcile.
		r.log.Info("checkout session has no subscription",
			Field{Key: "session_id", Value: ev.SessionID})
		return nil
	}

	// The session payload may not yet carry price/period data, so the
	// live subscription object is authoritative.
	sub, err := r.billing.RetrieveSubscription(ctx, ev.SubscriptionID)
	if err != nil {
		return fmt.Errorf("retrieve subscription %s: %w", ev.SubscriptionID, err)
	}

	plan := r.plans.Resolve(sub.PriceID)

	rec := &SubscriptionRecord{
		ID:                 ev.SubscriptionID,
		UserID:             ev.UserID,
		CustomerID:         ev.CustomerID,
		Plan:               plan,
		Status:             sub.Status,
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
	}
	if err := r.subs.Create(ctx, rec); err != nil {
		return fmt.Errorf("create subscription record %s: %w", ev.SubscriptionID, err)
	}

	expiry := sub.CurrentPeriodEnd
	upd := UserPremiumUpdate{
		IsPremium:  true,
		Plan:       &plan,
		Expiry:     &expiry,
		CustomerID: ev.CustomerID,
	}
	if err := r.users.ApplyPremium(ctx, ev.UserID, upd); err != nil {
		return fmt.Errorf("update user %s: %w", ev.UserID, err)
	}

	r.log.Info("subscription created from checkout",
		Field{Key: "subscription_id", Value: ev.SubscriptionID},
		Field{Key: "user_id", Value: ev.UserID},
		Field{Key: "plan", Value: string(plan)})
	return nil
}

// applySubscriptionChanged refreshes a known record from the provider
// snapshot and recomputes the user's premium standing.
func (r *Reconciler) applySubscriptionChanged(ctx context.Context, ev SubscriptionChanged) error {
	st := ev.Subscription

	rec, err := r.subs.Get(ctx, st.ID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		// Record creation happens only via checkout. Best effort: look up
		// the customer so operators can trace the orphaned subscription,
		// then acknowledge.
		r.logOrphanedSubscription(ctx, st)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get subscription record %s: %w", st.ID, err)
	}

	plan := r.plans.Resolve(st.PriceID)
	upd := SubscriptionUpdate{
		Plan:               &plan,
		Status:             &st.Status,
		CurrentPeriodStart: &st.CurrentPeriodStart,
		CurrentPeriodEnd:   &st.CurrentPeriodEnd,
		CancelAtPeriodEnd:  &st.CancelAtPeriodEnd,
	}
	if err := r.subs.Update(ctx, st.ID, upd); err != nil {
		return fmt.Errorf("update subscription record %s: %w", st.ID, err)
	}

	premium := UserPremiumUpdate{IsPremium: IsEntitling(st.Status)}
	if premium.IsPremium {
		expiry := st.CurrentPeriodEnd
		premium.Plan = &plan
		premium.Expiry = &expiry
	}
	if err := r.users.ApplyPremium(ctx, rec.UserID, premium); err != nil {
		return fmt.Errorf("update user %s: %w", rec.UserID, err)
	}

	r.log.Info("subscription updated",
		Field{Key: "subscription_id", Value: st.ID},
		Field{Key: "status", Value: st.Status})
	return nil
}

// applySubscriptionDeleted marks the record canceled and demotes the
// user only when no other entitling subscription remains.
func (r *Reconciler) applySubscriptionDeleted(ctx context.Context, ev SubscriptionDeleted) error {
	st := ev.Subscription

	rec, err := r.subs.Get(ctx, st.ID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		r.log.Warn("deleted subscription has no record",
			Field{Key: "subscription_id", Value: st.ID})
		return nil
	}
	if err != nil {
		return fmt.Errorf("get subscription record %s: %w", st.ID, err)
	}

	// The record is never deleted; canceled is the terminal marker.
	status := StatusCanceled
	if err := r.subs.Update(ctx, st.ID, SubscriptionUpdate{Status: &status}); err != nil {
		return fmt.Errorf("update subscription record %s: %w", st.ID, err)
	}

	// A user can hold multiple subscriptions (e.g. an upgrade creates a
	// new provider subscription), so demote only when none remain.
	remaining, err := r.subs.ListByUserAndStatus(ctx, rec.UserID, EntitlingStatuses(), 1)
	if err != nil {
		return fmt.Errorf("list subscriptions for user %s: %w", rec.UserID, err)
	}
	if len(remaining) == 0 {
		if err := r.users.ApplyPremium(ctx, rec.UserID, UserPremiumUpdate{IsPremium: false}); err != nil {
			return fmt.Errorf("update user %s: %w", rec.UserID, err)
		}
	}

	r.log.Info("subscription deleted",
		Field{Key: "subscription_id", Value: st.ID},
		Field{Key: "user_id", Value: rec.UserID},
		Field{Key: "demoted", Value: len(remaining) == 0})
	return nil
}

// applyPaymentFailed flags the record; status and entitlement stay
// untouched until the provider sends a terminal status change.
func (r *Reconciler) applyPaymentFailed(ctx context.Context, ev PaymentFailed) error {
	if ev.SubscriptionID == "" {
		// Not a subscription invoice.
		return nil
	}

	if _, err := r.subs.Get(ctx, ev.SubscriptionID); err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			r.log.Warn("payment failure for unknown subscription",
				Field{Key: "subscription_id", Value: ev.SubscriptionID},
				Field{Key: "invoice_id", Value: ev.InvoiceID})
			return nil
		}
		return fmt.Errorf("get subscription record %s: %w", ev.SubscriptionID, err)
	}

	issue := true
	msg := ev.Message
	if msg == "" {
		msg = defaultPaymentErrorMessage
	}
	upd := SubscriptionUpdate{
		PaymentIssue:     &issue,
		LastPaymentError: &msg,
	}
	if err := r.subs.Update(ctx, ev.SubscriptionID, upd); err != nil {
		return fmt.Errorf("update subscription record %s: %w", ev.SubscriptionID, err)
	}

	r.log.Warn("payment failed",
		Field{Key: "subscription_id", Value: ev.SubscriptionID},
		Field{Key: "invoice_id", Value: ev.InvoiceID})
	return nil
}

// logOrphanedSubscription records diagnostics for a subscription event
// that has no local record. The customer lookup is best effort; its
// failure never fails the webhook.
func (r *Reconciler) logOrphanedSubscription(ctx context.Context, st SubscriptionState) {
	fields := []Field{
		{Key: "subscription_id", Value: st.ID},
		{Key: "customer_id", Value: st.CustomerID},
	}
	if st.CustomerID != "" {
		if cust, err := r.billing.RetrieveCustomer(ctx, st.CustomerID); err == nil && cust.UserID != "" {
			fields = append(fields, Field{Key: "user_id", Value: cust.UserID})
		}
	}
	r.log.Warn("subscription has no record, skipping update", fields...)
}
