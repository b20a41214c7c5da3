// README: Idempotent Postgres schema for reservations, drivers, directory and farm-out audit tables.
package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS reservations (
		id                  TEXT PRIMARY KEY,
		confirmation_number TEXT NOT NULL DEFAULT '',
		passenger_name      TEXT NOT NULL DEFAULT '',
		pickup_at           TIMESTAMPTZ,
		pickup_location     TEXT NOT NULL DEFAULT '',
		dropoff_location    TEXT NOT NULL DEFAULT '',
		pickup_lat          DOUBLE PRECISION NOT NULL DEFAULT 0,
		pickup_lng          DOUBLE PRECISION NOT NULL DEFAULT 0,
		farmout_mode        TEXT NOT NULL DEFAULT 'manual',
		farmout_status      TEXT NOT NULL DEFAULT 'unassigned',
		farmout_driver_id   TEXT,
		farmout_driver_name TEXT,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_farmout ON reservations(farmout_mode, farmout_status)`,
	`CREATE TABLE IF NOT EXISTS drivers (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		phone      TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL DEFAULT 'offline',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS user_directory (
		id    TEXT PRIMARY KEY,
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_directory_email ON user_directory(lower(email))`,
	`CREATE TABLE IF NOT EXISTS farmout_activity (
		id             BIGSERIAL PRIMARY KEY,
		reservation_id TEXT NOT NULL,
		message        TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_farmout_activity_reservation ON farmout_activity(reservation_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS farmout_escalations (
		id             TEXT PRIMARY KEY,
		reservation_id TEXT NOT NULL,
		summary        TEXT NOT NULL,
		recipients     JSONB NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL,
		delivered_at   TIMESTAMPTZ
	)`,
}

// Migrate applies the schema; every statement is safe to re-run.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
