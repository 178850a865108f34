package stripe

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/subsync/subsync/pkg/subsync"
)

// decodeEvent maps a verified Stripe event to its subsync variant.
// Provider event types outside the handled set collapse to Other.
func decodeEvent(event *stripe.Event) (subsync.Event, error) {
	switch event.Type {
	case "checkout.session.completed":
		return decodeCheckoutSession(event.Data.Raw)
	case "customer.subscription.created", "customer.subscription.updated":
		st, err := decodeSubscription(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		return subsync.SubscriptionChanged{Subscription: *st}, nil
	case "customer.subscription.deleted":
		st, err := decodeSubscription(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		return subsync.SubscriptionDeleted{Subscription: *st}, nil
	case "invoice.payment_failed":
		return decodeInvoicePaymentFailed(event.Data.Raw)
	default:
		return subsync.Other{Type: string(event.Type)}, nil
	}
}

func decodeCheckoutSession(raw json.RawMessage) (subsync.Event, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkout session: %w", err)
	}

	ev := subsync.CheckoutCompleted{
		SessionID: session.ID,
		UserID:    session.ClientReferenceID,
	}
	if session.Customer != nil {
		ev.CustomerID = session.Customer.ID
	}
	if session.Subscription != nil {
		ev.SubscriptionID = session.Subscription.ID
	}
	return ev, nil
}

// decodeSubscription reads a subscription webhook payload. The SDK
// struct carries id/status/items, but the period bounds moved between
// API versions: older payloads put current_period_start/end on the
// subscription, newer ones on its items. A sidecar struct covers the
// top-level fields.
func decodeSubscription(raw json.RawMessage) (*subsync.SubscriptionState, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	var periods struct {
		CurrentPeriodStart int64 `json:"current_period_start"`
		CurrentPeriodEnd   int64 `json:"current_period_end"`
	}
	if err := json.Unmarshal(raw, &periods); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subscription periods: %w", err)
	}

	st := &subsync.SubscriptionState{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		st.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			st.PriceID = item.Price.ID
		}
		if item.CurrentPeriodStart > 0 {
			periods.CurrentPeriodStart = item.CurrentPeriodStart
		}
		if item.CurrentPeriodEnd > 0 {
			periods.CurrentPeriodEnd = item.CurrentPeriodEnd
		}
	}
	if periods.CurrentPeriodStart > 0 {
		st.CurrentPeriodStart = time.Unix(periods.CurrentPeriodStart, 0).UTC()
	}
	if periods.CurrentPeriodEnd > 0 {
		st.CurrentPeriodEnd = time.Unix(periods.CurrentPeriodEnd, 0).UTC()
	}
	return st, nil
}

// decodeInvoicePaymentFailed extracts the subscription reference and
// failure message from a raw invoice payload. The subscription field is
// sometimes an id string and sometimes an expanded object, and the v83
// Invoice struct does not expose it directly, so the raw JSON is the
// reliable source.
func decodeInvoicePaymentFailed(raw json.RawMessage) (subsync.Event, error) {
	var rawData map[string]interface{}
	if err := json.Unmarshal(raw, &rawData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal invoice: %w", err)
	}

	ev := subsync.PaymentFailed{}
	if id, ok := rawData["id"].(string); ok {
		ev.InvoiceID = id
	}

	switch v := rawData["subscription"].(type) {
	case string:
		ev.SubscriptionID = v
	case map[string]interface{}:
		if id, ok := v["id"].(string); ok {
			ev.SubscriptionID = id
		}
	}

	if finErr, ok := rawData["last_finalization_error"].(map[string]interface{}); ok {
		if msg, ok := finErr["message"].(string); ok {
			ev.Message = msg
		}
	}
	return ev, nil
}
