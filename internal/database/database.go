// Package database provides PostgreSQL connection management using pgx.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riverfold/event-registration/internal/config"
)

// NewPool creates and validates a pgxpool connection pool.
// It retries up to 5 times to accommodate containers starting up.
func NewPool(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	// Sensible pool defaults for a small service.
	poolCfg.MaxConns = 20
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= 5; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			pingErr := pool.Ping(ctx)
			if pingErr == nil {
				return pool, nil
			}
			err = pingErr
			pool.Close()
		}
		slog.Warn("db connect failed, retrying", "attempt", attempt, "error", err)
		time.Sleep(2 * time.Second)
	}
	return nil, fmt.Errorf("connect to postgres: %w", err)
}

// schema creates the tables and indexes the subsystem owns. The partial
// unique index enforces at most one non-cancelled registration per
// (event_id, user_id) regardless of what the application code does.
const schema = `
CREATE TABLE IF NOT EXISTS events (
	id                    UUID PRIMARY KEY,
	title                 TEXT NOT NULL,
	status                TEXT NOT NULL DEFAULT 'draft',
	registration_required BOOLEAN NOT NULL DEFAULT FALSE,
	registration_deadline TIMESTAMPTZ,
	max_participants      INTEGER,
	confirmed_count       INTEGER NOT NULL DEFAULT 0 CHECK (confirmed_count >= 0),
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS registrations (
	id                UUID PRIMARY KEY,
	event_id          UUID NOT NULL REFERENCES events(id),
	user_id           TEXT NOT NULL,
	status            TEXT NOT NULL CHECK (status IN ('confirmed', 'waitlisted', 'cancelled')),
	participant_name  TEXT NOT NULL DEFAULT '',
	participant_email TEXT NOT NULL DEFAULT '',
	participant_phone TEXT NOT NULL DEFAULT '',
	grade             TEXT NOT NULL DEFAULT '',
	special_requests  TEXT NOT NULL DEFAULT '',
	registered_at     TIMESTAMPTZ NOT NULL,
	checked_in        BOOLEAN NOT NULL DEFAULT FALSE,
	checked_in_at     TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS registrations_active_event_user
	ON registrations (event_id, user_id)
	WHERE status <> 'cancelled';

CREATE INDEX IF NOT EXISTS registrations_waitlist_order
	ON registrations (event_id, status, registered_at);

CREATE TABLE IF NOT EXISTS notification_outbox (
	id              UUID PRIMARY KEY,
	event_id        UUID NOT NULL,
	type            TEXT NOT NULL,
	recipient_type  TEXT NOT NULL,
	title           TEXT NOT NULL,
	message         TEXT NOT NULL,
	recipient_count INTEGER NOT NULL DEFAULT 1,
	created_by      TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	sent_at         TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS notification_outbox_pending
	ON notification_outbox (created_at)
	WHERE sent_at IS NULL;
`

// Migrate applies the schema. Statements are idempotent so this runs at
// every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
