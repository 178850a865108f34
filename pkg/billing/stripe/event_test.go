package stripe

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83"

	"github.com/subsync/subsync/pkg/subsync"
)

func parseEvent(t *testing.T, envelope string) *stripe.Event {
	t.Helper()
	var event stripe.Event
	require.NoError(t, json.Unmarshal([]byte(envelope), &event))
	return &event
}

func TestDecodeEvent_CheckoutSessionCompleted(t *testing.T) {
	event := parseEvent(t, `{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_1",
			"object": "checkout.session",
			"client_reference_id": "user-123",
			"customer": "cus_123",
			"subscription": "sub_123"
		}}
	}`)

	typed, err := decodeEvent(event)
	require.NoError(t, err)

	ev, ok := typed.(subsync.CheckoutCompleted)
	require.True(t, ok)
	assert.Equal(t, "cs_test_1", ev.SessionID)
	assert.Equal(t, "user-123", ev.UserID)
	assert.Equal(t, "cus_123", ev.CustomerID)
	assert.Equal(t, "sub_123", ev.SubscriptionID)
}

func TestDecodeEvent_CheckoutSessionWithoutSubscription(t *testing.T) {
	event := parseEvent(t, `{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_1",
			"object": "checkout.session",
			"client_reference_id": "user-123"
		}}
	}`)

	typed, err := decodeEvent(event)
	require.NoError(t, err)

	ev, ok := typed.(subsync.CheckoutCompleted)
	require.True(t, ok)
	assert.Empty(t, ev.CustomerID)
	assert.Empty(t, ev.SubscriptionID)
}

func TestDecodeEvent_SubscriptionWithTopLevelPeriods(t *testing.T) {
	// Older API versions report the billing period on the subscription
	// itself.
	event := parseEvent(t, `{
		"id": "evt_2",
		"type": "customer.subscription.updated",
		"data": {"object": {
			"id": "sub_123",
			"object": "subscription",
			"customer": "cus_123",
			"status": "active",
			"cancel_at_period_end": true,
			"current_period_start": 1735689600,
			"current_period_end": 1738368000,
			"items": {"object": "list", "data": [
				{"id": "si_1", "object": "subscription_item", "price": {"id": "price_m"}}
			]}
		}}
	}`)

	typed, err := decodeEvent(event)
	require.NoError(t, err)

	ev, ok := typed.(subsync.SubscriptionChanged)
	require.True(t, ok)
	st := ev.Subscription
	assert.Equal(t, "sub_123", st.ID)
	assert.Equal(t, "cus_123", st.CustomerID)
	assert.Equal(t, "price_m", st.PriceID)
	assert.Equal(t, "active", st.Status)
	assert.True(t, st.CancelAtPeriodEnd)
	assert.Equal(t, time.Unix(1735689600, 0).UTC(), st.CurrentPeriodStart)
	assert.Equal(t, time.Unix(1738368000, 0).UTC(), st.CurrentPeriodEnd)
}

func TestDecodeEvent_SubscriptionWithItemLevelPeriods(t *testing.T) {
	// Newer API versions move the billing period onto the subscription
	// items.
	event := parseEvent(t, `{
		"id": "evt_2",
		"type": "customer.subscription.created",
		"data": {"object": {
			"id": "sub_123",
			"object": "subscription",
			"customer": "cus_123",
			"status": "trialing",
			"items": {"object": "list", "data": [
				{
					"id": "si_1",
					"object": "subscription_item",
					"price": {"id": "price_y"},
					"current_period_start": 1735689600,
					"current_period_end": 1767225600
				}
			]}
		}}
	}`)

	typed, err := decodeEvent(event)
	require.NoError(t, err)

	ev, ok := typed.(subsync.SubscriptionChanged)
	require.True(t, ok)
	st := ev.Subscription
	assert.Equal(t, "price_y", st.PriceID)
	assert.Equal(t, "trialing", st.Status)
	assert.Equal(t, time.Unix(1735689600, 0).UTC(), st.CurrentPeriodStart)
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), st.CurrentPeriodEnd)
}

func TestDecodeEvent_SubscriptionDeleted(t *testing.T) {
	event := parseEvent(t, `{
		"id": "evt_3",
		"type": "customer.subscription.deleted",
		"data": {"object": {
			"id": "sub_123",
			"object": "subscription",
			"customer": "cus_123",
			"status": "canceled"
		}}
	}`)

	typed, err := decodeEvent(event)
	require.NoError(t, err)

	ev, ok := typed.(subsync.SubscriptionDeleted)
	require.True(t, ok)
	assert.Equal(t, "sub_123", ev.Subscription.ID)
	assert.Equal(t, "canceled", ev.Subscription.Status)
}

func TestDecodeEvent_InvoicePaymentFailed(t *testing.T) {
	tests := []struct {
		name        string
		object      string
		wantSubID   string
		wantMessage string
	}{
		{
			name: "subscription as id string",
			object: `{
				"id": "in_1",
				"object": "invoice",
				"subscription": "sub_123",
				"last_finalization_error": {"message": "Your card was declined."}
			}`,
			wantSubID:   "sub_123",
			wantMessage: "Your card was declined.",
		},
		{
			name: "subscription as expanded object",
			object: `{
				"id": "in_1",
				"object": "invoice",
				"subscription": {"id": "sub_456", "object": "subscription"}
			}`,
			wantSubID: "sub_456",
		},
		{
			name:   "no subscription reference",
			object: `{"id": "in_1", "object": "invoice"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := parseEvent(t, `{
				"id": "evt_4",
				"type": "invoice.payment_failed",
				"data": {"object": `+tt.object+`}
			}`)

			typed, err := decodeEvent(event)
			require.NoError(t, err)

			ev, ok := typed.(subsync.PaymentFailed)
			require.True(t, ok)
			assert.Equal(t, "in_1", ev.InvoiceID)
			assert.Equal(t, tt.wantSubID, ev.SubscriptionID)
			assert.Equal(t, tt.wantMessage, ev.Message)
		})
	}
}

func TestDecodeEvent_UnhandledTypeCollapsesToOther(t *testing.T) {
	event := parseEvent(t, `{
		"id": "evt_5",
		"type": "invoice.paid",
		"data": {"object": {"id": "in_1", "object": "invoice"}}
	}`)

	typed, err := decodeEvent(event)
	require.NoError(t, err)

	ev, ok := typed.(subsync.Other)
	require.True(t, ok)
	assert.Equal(t, "invoice.paid", ev.Type)
}
