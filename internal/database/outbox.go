package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/HafssaBN/human-imitation-for-airbnb/internal/scraper"
)

// Publish stores a lifecycle event in the outbox, in the same database
// as the scraped data. The relay moves it to Redis afterwards, so an
// event is never lost to a Redis outage and never published for data
// that failed to commit.
func (d *DB) Publish(ctx context.Context, ev scraper.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := d.pool.Exec(ctx,
		`INSERT INTO outbox_events (payload) VALUES ($1)`, payload); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}
