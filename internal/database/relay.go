package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Relay drains unpublished outbox events into a Redis stream. Rows are
// claimed with SKIP LOCKED, so multiple relays can run without
// double-publishing; a crash between XADD and the published_at update
// re-delivers, which consumers must tolerate.
type Relay struct {
	db       *DB
	client   *redis.Client
	stream   string
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

func NewRelay(db *DB, client *redis.Client, stream string) *Relay {
	return &Relay{
		db:       db,
		client:   client,
		stream:   stream,
		interval: 2 * time.Second,
		batch:    100,
		logger:   slog.Default().With("component", "outbox-relay"),
	}
}

// Run polls until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := r.relayBatch(ctx)
			if err != nil {
				r.logger.Error("relay batch", "error", err)
				continue
			}
			if n > 0 {
				r.logger.Info("relayed events", "count", n, "stream", r.stream)
			}
		}
	}
}

func (r *Relay) relayBatch(ctx context.Context) (int, error) {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin relay tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, payload FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, r.batch)
	if err != nil {
		return 0, fmt.Errorf("select outbox events: %w", err)
	}

	var ids []int64
	var payloads [][]byte
	for rows.Next() {
		var id int64
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox event: %w", err)
		}
		ids = append(ids, id)
		payloads = append(payloads, payload)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate outbox events: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	for i, payload := range payloads {
		err := r.client.XAdd(ctx, &redis.XAddArgs{
			Stream: r.stream,
			Values: map[string]interface{}{"payload": string(payload)},
		}).Err()
		if err != nil {
			return 0, fmt.Errorf("xadd event %d: %w", ids[i], err)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE outbox_events SET published_at = NOW() WHERE id = ANY($1)`, ids); err != nil {
		return 0, fmt.Errorf("mark events published: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit relay tx: %w", err)
	}
	return len(ids), nil
}
