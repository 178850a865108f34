package prommetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	if metrics == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordWebhookEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordWebhookEvent("stripe", "checkout.session.completed", "success")
	metrics.RecordWebhookEvent("stripe", "checkout.session.completed", "success")
	metrics.RecordWebhookEvent("stripe", "invoice.payment_failed", "duplicate")

	got := testutil.ToFloat64(metrics.webhookEventsTotal.WithLabelValues(
		"stripe", "checkout.session.completed", "success"))
	if got != 2 {
		t.Errorf("Expected 2 success events, got %v", got)
	}
	got = testutil.ToFloat64(metrics.webhookEventsTotal.WithLabelValues(
		"stripe", "invoice.payment_failed", "duplicate"))
	if got != 1 {
		t.Errorf("Expected 1 duplicate event, got %v", got)
	}
}

func TestRecordWebhookError(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordWebhookError("stripe", "signature_invalid")

	got := testutil.ToFloat64(metrics.webhookErrorsTotal.WithLabelValues("stripe", "signature_invalid"))
	if got != 1 {
		t.Errorf("Expected 1 error, got %v", got)
	}
}

func TestRecordDurations(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordWebhookProcessingDuration("stripe", "checkout.session.completed", 50*time.Millisecond)
	metrics.RecordAPICall("stripe", "retrieve_subscription", "success")
	metrics.RecordAPICallDuration("stripe", "retrieve_subscription", 20*time.Millisecond)

	// Unobserved vectors gather nothing, so only the three touched
	// families appear.
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) != 3 {
		t.Errorf("Expected 3 metric families, got %d", len(families))
	}
}
