package database

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS catalog_item (
		portal        TEXT NOT NULL,
		item_code     TEXT NOT NULL,
		category      TEXT NOT NULL DEFAULT '',
		name          TEXT NOT NULL DEFAULT '',
		price         NUMERIC(12,4),
		price_basis   TEXT NOT NULL DEFAULT '',
		coverage      NUMERIC(12,4),
		coverage_unit TEXT NOT NULL DEFAULT '',
		fields        JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (portal, item_code)
	)`,
	`CREATE TABLE IF NOT EXISTS scrape_job (
		id           UUID PRIMARY KEY,
		portal       TEXT NOT NULL,
		mode         TEXT NOT NULL,
		items        JSONB NOT NULL DEFAULT '[]'::jsonb,
		status       TEXT NOT NULL,
		strategy     TEXT NOT NULL DEFAULT '',
		processed    INT NOT NULL DEFAULT 0,
		matched      INT NOT NULL DEFAULT 0,
		updated      INT NOT NULL DEFAULT 0,
		errors       INT NOT NULL DEFAULT 0,
		total        INT NOT NULL DEFAULT 0,
		error        TEXT,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		started_at   TIMESTAMPTZ,
		completed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS scrape_job_status_idx ON scrape_job (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS job_log (
		id         BIGSERIAL PRIMARY KEY,
		job_id     UUID NOT NULL REFERENCES scrape_job(id) ON DELETE CASCADE,
		kind       TEXT NOT NULL,
		message    TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS job_log_job_idx ON job_log (job_id, id)`,
	`CREATE TABLE IF NOT EXISTS outbox_event (
		id             UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id   TEXT NOT NULL,
		event_type     TEXT NOT NULL,
		payload        JSONB NOT NULL,
		target_stream  TEXT NOT NULL,
		status         TEXT NOT NULL,
		retry_count    INT NOT NULL DEFAULT 0,
		error_message  TEXT,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		processed_at   TIMESTAMPTZ,
		next_retry_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_event_pending_idx ON outbox_event (status, next_retry_at)`,
}

// EnsureSchema creates the tables used by the scraper if they are missing.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
