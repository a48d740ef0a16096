package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	telegram_id BIGINT NOT NULL UNIQUE,
	username TEXT NOT NULL DEFAULT '',
	first_name TEXT NOT NULL DEFAULT '',
	referral_code TEXT NOT NULL UNIQUE,
	referrer_id BIGINT REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE TABLE IF NOT EXISTS content_items (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	aliases TEXT[] NOT NULL DEFAULT '{}',
	storage_ref TEXT NOT NULL,
	kind TEXT NOT NULL DEFAULT 'document',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE TABLE IF NOT EXISTS payment_requests (
	id UUID PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(id),
	query TEXT NOT NULL DEFAULT '',
	content_id UUID REFERENCES content_items(id),
	status TEXT NOT NULL DEFAULT 'pending_match',
	amount BIGINT NOT NULL,
	currency TEXT NOT NULL,
	provider_txn_id TEXT,
	match_attempts INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	expires_at TIMESTAMPTZ NOT NULL,
	paid_at TIMESTAMPTZ,
	delivered_at TIMESTAMPTZ
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS payment_requests_provider_txn_uq
	ON payment_requests (provider_txn_id)
	WHERE provider_txn_id IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS payment_requests_active_uq
	ON payment_requests (user_id, content_id)
	WHERE content_id IS NOT NULL AND status NOT IN ('delivered', 'expired', 'refunded')`,
	`CREATE INDEX IF NOT EXISTS payment_requests_status_idx
	ON payment_requests (status, expires_at)`,
	`CREATE TABLE IF NOT EXISTS referral_commissions (
	id UUID PRIMARY KEY,
	referrer_id BIGINT NOT NULL REFERENCES users(id),
	referred_id BIGINT NOT NULL REFERENCES users(id),
	request_id UUID NOT NULL UNIQUE REFERENCES payment_requests(id),
	amount BIGINT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS referral_commissions_credited_uq
	ON referral_commissions (referred_id)
	WHERE status = 'credited'`,
}

// EnsureSchema creates the tables and the invariant-bearing indexes on startup.
// Statements are idempotent, so both apps can call it safely.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}

	return nil
}
