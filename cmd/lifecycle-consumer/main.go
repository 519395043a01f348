// lifecycle-consumer tails the scrape lifecycle stream and logs each
// event. It is the reference consumer for anything downstream that
// wants to react to completed or failed targets.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HafssaBN/human-imitation-for-airbnb/internal/config"
	"github.com/HafssaBN/human-imitation-for-airbnb/internal/scraper"
)

const (
	consumerGroup = "lifecycle-consumers"
	consumerName  = "consumer-1"
)

func main() {
	os.Exit(run())
}

func run() int {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("connect redis", "addr", cfg.Redis.Addr, "error", err)
		return 1
	}

	stream := cfg.Redis.Stream
	// BUSYGROUP on re-creation is fine.
	rdb.XGroupCreateMkStream(ctx, stream, consumerGroup, "0")

	slog.Info("consuming lifecycle events", "stream", stream, "group", consumerGroup)

	for {
		streams, err := rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    consumerGroup,
			Consumer: consumerName,
			Streams:  []string{stream, ">"},
			Count:    50,
			Block:    5 * time.Second,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return 0
			}
			slog.Error("read stream", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				handleMessage(msg)
				rdb.XAck(ctx, stream, consumerGroup, msg.ID)
			}
		}
	}
}

func handleMessage(msg redis.XMessage) {
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		slog.Warn("message without payload", "id", msg.ID)
		return
	}

	var ev scraper.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		slog.Warn("undecodable event", "id", msg.ID, "error", err)
		return
	}

	switch ev.Type {
	case scraper.EventTargetFailed:
		slog.Warn("target failed", "run_id", ev.RunID, "target", ev.TargetKey, "category", ev.Category)
	default:
		slog.Info("lifecycle event", "run_id", ev.RunID, "target", ev.TargetKey, "type", ev.Type)
	}
}
