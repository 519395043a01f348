package database

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS hosts (
		user_id           TEXT PRIMARY KEY,
		url               TEXT NOT NULL,
		name              TEXT,
		is_superhost      BOOLEAN,
		is_verified       BOOLEAN,
		rating_average    DOUBLE PRECISION,
		rating_count      INTEGER,
		joined_years      INTEGER,
		joined_months     INTEGER,
		response_rate     DOUBLE PRECISION,
		profile_photo_url TEXT,
		bio_text          TEXT,
		about_text        TEXT,
		total_listings    INTEGER,
		first_seen_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS listings (
		listing_id     TEXT PRIMARY KEY,
		url            TEXT NOT NULL,
		host_id        TEXT,
		title          TEXT,
		description    TEXT,
		room_type      TEXT,
		location       TEXT,
		currency       TEXT,
		price_nightly  DOUBLE PRECISION,
		price_original DOUBLE PRECISION,
		price_fees     DOUBLE PRECISION,
		guest_cap      INTEGER,
		review_count   INTEGER,
		rating         DOUBLE PRECISION,
		guest_fav      BOOLEAN,
		amenities      TEXT[],
		lat            DOUBLE PRECISION,
		lng            DOUBLE PRECISION,
		metadata       JSONB,
		first_seen_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_listings_host_id ON listings(host_id)`,

	`CREATE TABLE IF NOT EXISTS reviews (
		subject_type TEXT NOT NULL,
		subject_id   TEXT NOT NULL,
		review_id    TEXT NOT NULL,
		author_name  TEXT,
		author_place TEXT,
		review_text  TEXT,
		date_text    TEXT,
		rating       DOUBLE PRECISION,
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (subject_type, subject_id, review_id)
	)`,

	`CREATE TABLE IF NOT EXISTS photos (
		listing_id TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		url        TEXT NOT NULL,
		caption    TEXT,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (listing_id, seq)
	)`,

	`CREATE TABLE IF NOT EXISTS guidebooks (
		guidebook_id TEXT PRIMARY KEY,
		host_id      TEXT NOT NULL,
		title        TEXT,
		url          TEXT NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS guidebook_entries (
		guidebook_id TEXT NOT NULL,
		name         TEXT NOT NULL,
		category     TEXT,
		note         TEXT,
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (guidebook_id, name)
	)`,

	`CREATE TABLE IF NOT EXISTS travel_history (
		host_id    TEXT NOT NULL,
		place      TEXT NOT NULL,
		when_label TEXT NOT NULL DEFAULT '',
		country    TEXT,
		trip_count INTEGER,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (host_id, place, when_label)
	)`,

	`CREATE TABLE IF NOT EXISTS checkpoints (
		target_key TEXT NOT NULL,
		stage      TEXT NOT NULL,
		status     TEXT NOT NULL,
		cursor     TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (target_key, stage)
	)`,

	`CREATE TABLE IF NOT EXISTS outbox_events (
		id           BIGSERIAL PRIMARY KEY,
		payload      JSONB NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		published_at TIMESTAMPTZ
	)`,

	`CREATE INDEX IF NOT EXISTS idx_outbox_unpublished ON outbox_events(id) WHERE published_at IS NULL`,
}

// Migrate creates the schema. Every statement is idempotent, so this
// is safe to run on each startup.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := d.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	d.logger.Info("schema up to date")
	return nil
}
