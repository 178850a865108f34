// Package stripe implements the webhook ingress and outbound API client
// for Stripe: signature verification, decoding of provider events into
// subsync event variants, and the subsync.BillingAPI capability.
package stripe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/subsync/subsync/pkg/billing"
	"github.com/subsync/subsync/pkg/subsync"
)

const providerName = "stripe"

// Client implements subsync.BillingAPI over the Stripe API.
type Client struct {
	sc      *stripe.Client
	metrics billing.Metrics
}

// NewClient creates a Stripe API client. Metrics may be nil.
func NewClient(apiKey string, metrics billing.Metrics) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, billing.ErrClientNotConfigured
	}
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}
	return &Client{
		sc:      stripe.NewClient(apiKey),
		metrics: metrics,
	}, nil
}

// RetrieveSubscription fetches the live subscription object. The API
// object is authoritative for price and period data, which a checkout
// session payload may not yet carry.
func (c *Client) RetrieveSubscription(ctx context.Context, id string) (*subsync.SubscriptionState, error) {
	start := time.Now()
	sub, err := c.sc.V1Subscriptions.Retrieve(ctx, id, nil)
	c.metrics.RecordAPICallDuration(providerName, "/subscriptions/retrieve", time.Since(start))
	if err != nil {
		c.metrics.RecordAPICall(providerName, "/subscriptions/retrieve", "error")
		return nil, fmt.Errorf("retrieve subscription: %w", err)
	}
	c.metrics.RecordAPICall(providerName, "/subscriptions/retrieve", "success")

	return subscriptionStateFromAPI(sub), nil
}

// RetrieveCustomer fetches a customer and surfaces the application user
// id from its metadata, when present.
func (c *Client) RetrieveCustomer(ctx context.Context, id string) (*subsync.CustomerState, error) {
	start := time.Now()
	cust, err := c.sc.V1Customers.Retrieve(ctx, id, nil)
	c.metrics.RecordAPICallDuration(providerName, "/customers/retrieve", time.Since(start))
	if err != nil {
		c.metrics.RecordAPICall(providerName, "/customers/retrieve", "error")
		return nil, fmt.Errorf("retrieve customer: %w", err)
	}
	c.metrics.RecordAPICall(providerName, "/customers/retrieve", "success")

	state := &subsync.CustomerState{
		ID:    cust.ID,
		Email: cust.Email,
	}
	if cust.Metadata != nil {
		state.UserID = cust.Metadata["user_id"]
	}
	return state, nil
}

// subscriptionStateFromAPI maps an API subscription object. In v83 the
// period bounds live on the subscription items.
func subscriptionStateFromAPI(sub *stripe.Subscription) *subsync.SubscriptionState {
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
			st.CurrentPeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		}
		if item.CurrentPeriodEnd > 0 {
			st.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		}
	}
	return st
}
