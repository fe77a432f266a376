// internal/db/schema.go
package db

import "database/sql"

// Schema is the full DDL for the service. Every statement is idempotent so
// Migrate can run on every startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS campaigns (
		id              SERIAL PRIMARY KEY,
		name            TEXT NOT NULL,
		from_email      TEXT NOT NULL DEFAULT '',
		from_name       TEXT NOT NULL DEFAULT '',
		subject         TEXT NOT NULL DEFAULT '',
		template_html   TEXT NOT NULL DEFAULT '',
		ab_enabled      BOOLEAN NOT NULL DEFAULT FALSE,
		split_ratio     INT NOT NULL DEFAULT 50,
		subject_b       TEXT NOT NULL DEFAULT '',
		template_html_b TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL DEFAULT 'draft',
		scheduled_at    TIMESTAMPTZ,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS subscribers (
		id         SERIAL PRIMARY KEY,
		email      TEXT NOT NULL UNIQUE,
		first_name TEXT NOT NULL DEFAULT '',
		last_name  TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL DEFAULT 'subscribed',
		attribs    JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS send_jobs (
		id            SERIAL PRIMARY KEY,
		campaign_id   INT NOT NULL REFERENCES campaigns(id),
		subscriber_id INT NOT NULL REFERENCES subscribers(id),
		to_email      TEXT NOT NULL,
		payload_json  TEXT NOT NULL DEFAULT '{}',
		status        TEXT NOT NULL DEFAULT 'queued',
		attempts      INT NOT NULL DEFAULT 0,
		max_attempts  INT NOT NULL DEFAULT 3,
		last_error    TEXT NOT NULL DEFAULT '',
		run_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		locked_at     TIMESTAMPTZ,
		locked_by     TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (campaign_id, subscriber_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_send_jobs_claim
		ON send_jobs (status, run_at, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_send_jobs_campaign
		ON send_jobs (campaign_id, status)`,
	`CREATE TABLE IF NOT EXISTS suppressions (
		id         SERIAL PRIMARY KEY,
		email      TEXT NOT NULL UNIQUE,
		reason     TEXT NOT NULL,
		source     TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	// Single row serializing rate reservations across all workers.
	`CREATE TABLE IF NOT EXISTS rate_limiter (
		id INT PRIMARY KEY CHECK (id = 1)
	)`,
	`INSERT INTO rate_limiter (id) VALUES (1) ON CONFLICT (id) DO NOTHING`,
	`CREATE TABLE IF NOT EXISTS send_events (
		id          SERIAL PRIMARY KEY,
		occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_send_events_occurred
		ON send_events (occurred_at)`,
}

// Migrate applies the schema.
func Migrate(conn *sql.DB) error {
	for _, stmt := range schema {
		if _, err := conn.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
