package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var _postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS demo_portfolios (
		user_id    TEXT PRIMARY KEY,
		cash       NUMERIC(20, 2) NOT NULL CHECK (cash >= 0),
		holdings   JSONB NOT NULL DEFAULT '{}'::jsonb,
		version    BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS demo_trades (
		id              TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL,
		symbol          TEXT NOT NULL,
		side            TEXT NOT NULL CHECK (side IN ('buy', 'sell')),
		quantity        NUMERIC NOT NULL CHECK (quantity > 0),
		price           NUMERIC NOT NULL CHECK (price > 0),
		stop_loss       NUMERIC,
		take_profit     NUMERIC,
		idempotency_key TEXT,
		meta            JSONB,
		created_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS demo_trades_user_created_idx ON demo_trades (user_id, created_at DESC)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS demo_trades_user_idempotency_idx ON demo_trades (user_id, idempotency_key) WHERE idempotency_key IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS demo_watchlist (
		user_id    TEXT NOT NULL,
		symbol     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, symbol)
	)`,
}

// sqlite keeps decimals as TEXT so no value goes through a binary float
var _sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS demo_portfolios (
		user_id    TEXT PRIMARY KEY,
		cash       TEXT NOT NULL,
		holdings   TEXT NOT NULL DEFAULT '{}',
		version    INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS demo_trades (
		id              TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL,
		symbol          TEXT NOT NULL,
		side            TEXT NOT NULL CHECK (side IN ('buy', 'sell')),
		quantity        TEXT NOT NULL,
		price           TEXT NOT NULL,
		stop_loss       TEXT,
		take_profit     TEXT,
		idempotency_key TEXT,
		meta            TEXT,
		created_at      TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS demo_trades_user_created_idx ON demo_trades (user_id, created_at DESC)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS demo_trades_user_idempotency_idx ON demo_trades (user_id, idempotency_key) WHERE idempotency_key IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS demo_watchlist (
		user_id    TEXT NOT NULL,
		symbol     TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, symbol)
	)`,
}

// Migrate creates the ledger and watchlist tables when they don't exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	schema := _postgresSchema
	if db.DriverName() == SQLite {
		schema = _sqliteSchema
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: can't apply schema", err)
		}
	}
	return nil
}
