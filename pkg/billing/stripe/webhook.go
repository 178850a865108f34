package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/subsync/subsync/pkg/billing"
	"github.com/subsync/subsync/pkg/billing/internal"
	"github.com/subsync/subsync/pkg/subsync"
)

const defaultMaxBodyBytes = 256 * 1024

// HandlerConfig holds webhook handler dependencies.
type HandlerConfig struct {
	// WebhookSecret is the Stripe signing secret (whsec_...) used to
	// verify the Stripe-Signature header (required).
	WebhookSecret string

	// Reconciler applies verified events to the stores (required).
	Reconciler *subsync.Reconciler

	// Deduper optionally suppresses replayed deliveries by event id.
	Deduper billing.Deduper

	// Logger is optional; nil falls back to a no-op logger.
	Logger subsync.Logger

	// Metrics is optional; nil falls back to no-op metrics.
	Metrics billing.Metrics

	// MaxBodyBytes caps the request body size (default 256 KiB).
	MaxBodyBytes int64
}

// Handler is the single inbound HTTP endpoint: it verifies the raw
// payload against the signing secret, decodes the event, and hands it to
// the reconciler. Signature verification is the authentication mechanism
// for this endpoint.
type Handler struct {
	secret       []byte
	reconciler   *subsync.Reconciler
	deduper      billing.Deduper
	log          subsync.Logger
	metrics      billing.Metrics
	maxBodyBytes int64
}

// NewHandler validates the configuration and creates a webhook handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" || cfg.Reconciler == nil {
		return nil, billing.ErrHandlerNotConfigured
	}
	log := cfg.Logger
	if log == nil {
		log = &subsync.NoopLogger{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &Handler{
		secret:       []byte(secret),
		reconciler:   cfg.Reconciler,
		deduper:      cfg.Deduper,
		log:          log,
		metrics:      metrics,
		maxBodyBytes: maxBody,
	}, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := internal.ReadBodyStrict(w, r, h.maxBodyBytes)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			h.metrics.RecordWebhookError(providerName, "payload_too_large")
		} else {
			http.Error(w, fmt.Sprintf("Webhook Error: %v", err), http.StatusBadRequest)
			h.metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		return
	}

	sig := r.Header.Get("Stripe-Signature")

	// Stripe's HMAC verification is constant-time and bounds the
	// timestamp skew; a tampered payload or stale header fails here and
	// the event is never processed.
	event, err := stripe.ConstructEvent(body, sig, string(h.secret), stripe.WithIgnoreAPIVersionMismatch())
	if err != nil {
		h.log.Warn("webhook signature verification failed",
			subsync.Field{Key: "error", Value: err.Error()})
		http.Error(w, fmt.Sprintf("Webhook Error: %v", err), http.StatusBadRequest)
		h.metrics.RecordWebhookError(providerName, "signature_invalid")
		return
	}

	eventType := string(event.Type)
	h.log.Info("received event",
		subsync.Field{Key: "event_id", Value: event.ID},
		subsync.Field{Key: "type", Value: eventType})

	typed, err := decodeEvent(&event)
	if err != nil {
		// A verified event with an unusable shape is a processing
		// failure: let the provider retry.
		h.log.Error("failed to decode event",
			subsync.Field{Key: "event_id", Value: event.ID},
			subsync.Field{Key: "type", Value: eventType},
			subsync.Field{Key: "error", Value: err.Error()})
		h.fail(w, eventType, startTime)
		return
	}

	duplicate, err := h.process(r.Context(), event.ID, typed)
	if err != nil {
		h.log.Error("webhook processing failed",
			subsync.Field{Key: "event_id", Value: event.ID},
			subsync.Field{Key: "type", Value: eventType},
			subsync.Field{Key: "error", Value: err.Error()})
		h.fail(w, eventType, startTime)
		return
	}

	status := "success"
	if duplicate {
		status = "duplicate"
		h.log.Info("duplicate event delivery acknowledged",
			subsync.Field{Key: "event_id", Value: event.ID})
	}
	h.metrics.RecordWebhookEvent(providerName, eventType, status)
	h.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))

	_ = internal.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) process(ctx context.Context, eventID string, ev subsync.Event) (bool, error) {
	if h.deduper == nil {
		return false, h.reconciler.Apply(ctx, ev)
	}
	return h.deduper.Do(ctx, eventID, func() error {
		return h.reconciler.Apply(ctx, ev)
	})
}

func (h *Handler) fail(w http.ResponseWriter, eventType string, startTime time.Time) {
	h.metrics.RecordWebhookEvent(providerName, eventType, "error")
	h.metrics.RecordWebhookError(providerName, "processing_error")
	h.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
	_ = internal.WriteJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "Webhook processing failed",
	})
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
