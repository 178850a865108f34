// Package postgres provides a PostgreSQL implementation of the subsync
// store interfaces using pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/subsync/subsync/pkg/subsync"
)

// Schema creates the two tables the store needs. Apply it with the
// migration tooling of the surrounding deployment, or via InitSchema in
// development.
const Schema = `
CREATE TABLE IF NOT EXISTS subscriptions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	customer_id TEXT NOT NULL DEFAULT '',
	plan TEXT NOT NULL,
	status TEXT NOT NULL,
	current_period_start TIMESTAMPTZ,
	current_period_end TIMESTAMPTZ,
	cancel_at_period_end BOOLEAN NOT NULL DEFAULT FALSE,
	payment_issue BOOLEAN NOT NULL DEFAULT FALSE,
	last_payment_error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS subscriptions_user_status_idx ON subscriptions (user_id, status);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	is_premium BOOLEAN NOT NULL DEFAULT FALSE,
	premium_plan TEXT,
	premium_expiry TIMESTAMPTZ,
	stripe_customer_id TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store implements subsync.SubscriptionStore and subsync.UserStore
// using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Config holds PostgreSQL store configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL store adapter
func New(ctx context.Context, config Config) (*Store, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// InitSchema applies Schema. Intended for development and tests.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Get implements subsync.SubscriptionStore
func (s *Store) Get(ctx context.Context, id string) (*subsync.SubscriptionRecord, error) {
	var rec subsync.SubscriptionRecord
	var plan string
	var periodStart, periodEnd *time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, customer_id, plan, status, current_period_start, current_period_end,
			cancel_at_period_end, payment_issue, last_payment_error, created_at, updated_at
			FROM subscriptions WHERE id = $1`,
		id).Scan(
		&rec.ID,
		&rec.UserID,
		&rec.CustomerID,
		&plan,
		&rec.Status,
		&periodStart,
		&periodEnd,
		&rec.CancelAtPeriodEnd,
		&rec.PaymentIssue,
		&rec.LastPaymentError,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, subsync.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	rec.Plan = subsync.Plan(plan)
	if periodStart != nil {
		rec.CurrentPeriodStart = *periodStart
	}
	if periodEnd != nil {
		rec.CurrentPeriodEnd = *periodEnd
	}
	return &rec, nil
}

// Create implements subsync.SubscriptionStore. An existing row under the
// same id is overwritten.
func (s *Store) Create(ctx context.Context, rec *subsync.SubscriptionRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("invalid subscription record")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO subscriptions
			(id, user_id, customer_id, plan, status, current_period_start, current_period_end,
			 cancel_at_period_end, payment_issue, last_payment_error, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, '', now(), now())
			ON CONFLICT (id) DO UPDATE SET
				user_id = EXCLUDED.user_id,
				customer_id = EXCLUDED.customer_id,
				plan = EXCLUDED.plan,
				status = EXCLUDED.status,
				current_period_start = EXCLUDED.current_period_start,
				current_period_end = EXCLUDED.current_period_end,
				cancel_at_period_end = EXCLUDED.cancel_at_period_end,
				payment_issue = EXCLUDED.payment_issue,
				last_payment_error = EXCLUDED.last_payment_error,
				updated_at = now()`,
		rec.ID, rec.UserID, rec.CustomerID, string(rec.Plan), rec.Status,
		rec.CurrentPeriodStart, rec.CurrentPeriodEnd, rec.CancelAtPeriodEnd,
	)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// Update implements subsync.SubscriptionStore. COALESCE keeps columns
// whose update field is nil.
func (s *Store) Update(ctx context.Context, id string, upd subsync.SubscriptionUpdate) error {
	var plan *string
	if upd.Plan != nil {
		p := string(*upd.Plan)
		plan = &p
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE subscriptions SET
			plan = COALESCE($2, plan),
			status = COALESCE($3, status),
			current_period_start = COALESCE($4, current_period_start),
			current_period_end = COALESCE($5, current_period_end),
			cancel_at_period_end = COALESCE($6, cancel_at_period_end),
			payment_issue = COALESCE($7, payment_issue),
			last_payment_error = COALESCE($8, last_payment_error),
			updated_at = now()
			WHERE id = $1`,
		id, plan, upd.Status, upd.CurrentPeriodStart, upd.CurrentPeriodEnd,
		upd.CancelAtPeriodEnd, upd.PaymentIssue, upd.LastPaymentError,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return subsync.ErrSubscriptionNotFound
	}
	return nil
}

// ListByUserAndStatus implements subsync.SubscriptionStore
func (s *Store) ListByUserAndStatus(
	ctx context.Context, userID string, statuses []string, limit int,
) ([]*subsync.SubscriptionRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id FROM subscriptions
			WHERE user_id = $1 AND status = ANY($2)
			LIMIT $3`,
		userID, statuses, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read subscription rows: %w", err)
	}

	out := make([]*subsync.SubscriptionRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// GetUser implements subsync.UserStore
func (s *Store) GetUser(ctx context.Context, id string) (*subsync.UserRecord, error) {
	var rec subsync.UserRecord
	var plan *string
	var expiry *time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT id, is_premium, premium_plan, premium_expiry, stripe_customer_id, updated_at
			FROM users WHERE id = $1`,
		id).Scan(
		&rec.ID,
		&rec.IsPremium,
		&plan,
		&expiry,
		&rec.StripeCustomerID,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, subsync.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if plan != nil {
		p := subsync.Plan(*plan)
		rec.PremiumPlan = &p
	}
	rec.PremiumExpiry = expiry
	return &rec, nil
}

// ApplyPremium implements subsync.UserStore. An upsert gives the same
// create-when-absent, preserve-other-fields semantics as a Firestore
// merge set; nil plan/expiry become NULLs.
func (s *Store) ApplyPremium(ctx context.Context, userID string, upd subsync.UserPremiumUpdate) error {
	if userID == "" {
		return fmt.Errorf("invalid user id")
	}

	var plan *string
	if upd.Plan != nil {
		p := string(*upd.Plan)
		plan = &p
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, is_premium, premium_plan, premium_expiry, stripe_customer_id, updated_at)
			VALUES ($1, $2, $3, $4, COALESCE($5, ''), now())
			ON CONFLICT (id) DO UPDATE SET
				is_premium = EXCLUDED.is_premium,
				premium_plan = EXCLUDED.premium_plan,
				premium_expiry = EXCLUDED.premium_expiry,
				stripe_customer_id = COALESCE($5, users.stripe_customer_id),
				updated_at = now()`,
		userID, upd.IsPremium, plan, upd.Expiry, nullableString(upd.CustomerID),
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
