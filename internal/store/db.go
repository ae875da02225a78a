package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// DB wraps a *sql.DB with the schema bootstrap and transaction helper the
// rest of the package relies on, grounded on CedrosPay-server's
// PostgresStore (sql.Open + Ping + CREATE TABLE IF NOT EXISTS, no ORM).
type DB struct {
	*sql.DB
}

// Open connects to Postgres and ensures the schema exists.
func Open(connectionString string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	db := &DB{DB: sqlDB}
	if err := db.migrate(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// BeginTx starts a transaction at read-committed isolation, the level
// spec.md §5 assumes for the session tracker's select-then-insert-or-update.
func (db *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return db.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
}

// migrate creates the schema if it does not already exist. The partial
// unique index on proxy_sessions enforces the one-active-session-per-token
// invariant (spec.md §5) at the database level, not just in application code.
func (db *DB) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			email text NOT NULL UNIQUE,
			username text NOT NULL UNIQUE,
			credential_digest text NOT NULL,
			active boolean NOT NULL DEFAULT true,
			elevated boolean NOT NULL DEFAULT false,
			balance_cents bigint NOT NULL DEFAULT 0,
			referral_code text NOT NULL UNIQUE,
			referred_by_id uuid NULL REFERENCES users(id),
			referral_bonus_earned_cents bigint NOT NULL DEFAULT 0,
			created_at timestamptz NOT NULL DEFAULT now(),
			CONSTRAINT users_not_self_referred CHECK (referred_by_id IS NULL OR referred_by_id <> id)
		)`,
		`CREATE TABLE IF NOT EXISTS access_tokens (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id uuid NOT NULL REFERENCES users(id),
			secret text NOT NULL UNIQUE,
			duration_hours integer NOT NULL,
			scope text NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now(),
			activated_at timestamptz NULL,
			active boolean NOT NULL DEFAULT true,
			revoked_at timestamptz NULL
		)`,
		`CREATE INDEX IF NOT EXISTS access_tokens_user_id_idx ON access_tokens(user_id)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id uuid NOT NULL REFERENCES users(id),
			amount_cents bigint NOT NULL,
			kind text NOT NULL,
			description text NOT NULL DEFAULT '',
			external_ref text NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS transactions_user_id_created_at_idx ON transactions(user_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS proxy_sessions (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id uuid NOT NULL REFERENCES users(id),
			token_id uuid NOT NULL REFERENCES access_tokens(id),
			device_id text NOT NULL,
			ip text NOT NULL DEFAULT '',
			user_agent text NOT NULL DEFAULT '',
			started_at timestamptz NOT NULL DEFAULT now(),
			last_activity timestamptz NOT NULL DEFAULT now(),
			ended_at timestamptz NULL,
			bytes_total bigint NOT NULL DEFAULT 0,
			request_count bigint NOT NULL DEFAULT 0,
			active boolean NOT NULL DEFAULT true
		)`,
		// Partial unique index: at most one active session per token, enforced
		// even under concurrent select-then-insert races (spec.md §5).
		`CREATE UNIQUE INDEX IF NOT EXISTS proxy_sessions_active_token_idx
			ON proxy_sessions(token_id) WHERE active`,
		`CREATE TABLE IF NOT EXISTS token_bundles (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			name text NOT NULL,
			description text NOT NULL DEFAULT '',
			token_count integer NOT NULL,
			duration_hours integer NOT NULL,
			scope text NOT NULL,
			discount_percent integer NOT NULL DEFAULT 0,
			base_price_cents bigint NOT NULL,
			total_price_cents bigint NOT NULL,
			active boolean NOT NULL DEFAULT true,
			CONSTRAINT token_bundles_token_count_positive CHECK (token_count > 0),
			CONSTRAINT token_bundles_discount_percent_range CHECK (discount_percent BETWEEN 0 AND 100)
		)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			actor_id uuid NULL,
			action text NOT NULL,
			target_type text NOT NULL DEFAULT '',
			target_id text NULL,
			details jsonb NOT NULL DEFAULT '{}',
			ip text NULL,
			user_agent text NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}
	return nil
}
