// Command subsyncd runs the Stripe webhook receiver that keeps the
// subscription and user stores synchronized with billing state.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cloudfirestore "cloud.google.com/go/firestore"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/subsync/subsync/pkg/billing"
	"github.com/subsync/subsync/pkg/billing/dedupe"
	prommetrics "github.com/subsync/subsync/pkg/billing/metrics/prometheus"
	stripeingress "github.com/subsync/subsync/pkg/billing/stripe"
	"github.com/subsync/subsync/pkg/subsync"
	zerologadapter "github.com/subsync/subsync/pkg/subsync/logger/zerolog"
	"github.com/subsync/subsync/storage/firestore"
	"github.com/subsync/subsync/storage/memory"
	"github.com/subsync/subsync/storage/postgres"
)

const (
	defaultListenAddr      = ":8080"
	defaultShutdownTimeout = 10 * time.Second
)

// stores pairs the two store interfaces a backend provides.
type stores struct {
	subs  subsync.SubscriptionStore
	users subsync.UserStore
	close func()
}

func main() {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	zl := zerolog.New(os.Stdout).With().Timestamp().Logger()
	log := zerologadapter.NewLogger(zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, zl, log); err != nil {
		zl.Error().Err(err).Msg("subsyncd exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, zl zerolog.Logger, log subsync.Logger) error {
	apiKey := os.Getenv("STRIPE_SECRET_KEY")
	webhookSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	monthlyPriceID := os.Getenv("STRIPE_PRICE_MONTHLY")
	yearlyPriceID := os.Getenv("STRIPE_PRICE_YEARLY")

	if apiKey == "" || webhookSecret == "" {
		return errors.New("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required")
	}
	if monthlyPriceID == "" || yearlyPriceID == "" {
		return errors.New("STRIPE_PRICE_MONTHLY and STRIPE_PRICE_YEARLY are required")
	}

	metrics := prommetrics.NewMetrics(prometheus.DefaultRegisterer, "subsync")

	st, err := buildStores(ctx, zl)
	if err != nil {
		return err
	}
	defer st.close()

	deduper, err := buildDeduper(zl)
	if err != nil {
		return err
	}

	client, err := stripeingress.NewClient(apiKey, metrics)
	if err != nil {
		return err
	}

	reconciler, err := subsync.NewReconciler(subsync.ReconcilerConfig{
		Subscriptions: st.subs,
		Users:         st.users,
		Billing:       client,
		Plans:         subsync.NewPlanResolver(monthlyPriceID, yearlyPriceID),
		Logger:        log,
	})
	if err != nil {
		return err
	}

	webhook, err := stripeingress.NewHandler(stripeingress.HandlerConfig{
		WebhookSecret: webhookSecret,
		Reconciler:    reconciler,
		Deduper:       deduper,
		Logger:        log,
		Metrics:       metrics,
	})
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Method(http.MethodPost, "/webhooks/stripe", webhook)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = defaultListenAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info().Str("addr", addr).Msg("subsyncd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zl.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildStores selects the persistence backend from STORE_DRIVER:
// "memory" (default), "firestore" or "postgres".
func buildStores(ctx context.Context, zl zerolog.Logger) (*stores, error) {
	driver := os.Getenv("STORE_DRIVER")
	switch driver {
	case "", "memory":
		zl.Warn().Msg("using in-memory store; records are lost on restart")
		s := memory.New()
		return &stores{subs: s, users: s, close: func() {}}, nil

	case "firestore":
		projectID := os.Getenv("FIRESTORE_PROJECT_ID")
		if projectID == "" {
			return nil, errors.New("FIRESTORE_PROJECT_ID is required for the firestore driver")
		}
		client, err := cloudfirestore.NewClient(ctx, projectID)
		if err != nil {
			return nil, err
		}
		s, err := firestore.New(client, firestore.Config{})
		if err != nil {
			client.Close()
			return nil, err
		}
		return &stores{subs: s, users: s, close: func() { client.Close() }}, nil

	case "postgres":
		connString := os.Getenv("DATABASE_URL")
		if connString == "" {
			return nil, errors.New("DATABASE_URL is required for the postgres driver")
		}
		cfg := postgres.DefaultConfig()
		cfg.ConnectionString = connString
		s, err := postgres.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &stores{subs: s, users: s, close: s.Close}, nil

	default:
		return nil, errors.New("unknown STORE_DRIVER: " + driver)
	}
}

// buildDeduper wires event-id deduplication: Redis when REDIS_ADDR is
// set, in-memory otherwise.
func buildDeduper(zl zerolog.Logger) (billing.Deduper, error) {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		return dedupe.NewMemory(dedupe.DefaultTTL), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	zl.Info().Str("addr", redisAddr).Msg("using redis event deduplication")
	return dedupe.NewRedis(client, dedupe.RedisConfig{})
}
