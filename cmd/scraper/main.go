package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HafssaBN/human-imitation-for-airbnb/internal/api"
	"github.com/HafssaBN/human-imitation-for-airbnb/internal/browser"
	"github.com/HafssaBN/human-imitation-for-airbnb/internal/config"
	"github.com/HafssaBN/human-imitation-for-airbnb/internal/database"
	"github.com/HafssaBN/human-imitation-for-airbnb/internal/governor"
	"github.com/HafssaBN/human-imitation-for-airbnb/internal/ratelimit"
	"github.com/HafssaBN/human-imitation-for-airbnb/internal/scraper"
)

// Exit codes: 0 all targets completed, 2 some targets failed, 1 fatal
// setup or run error.
func main() {
	os.Exit(run())
}

func run() int {
	var (
		targetsFile = flag.String("targets", "", "file with one target URL per line")
		force       = flag.Bool("force-stages", false, "re-run stages whose checkpoint is done")
		serve       = flag.Bool("serve", false, "expose the status API while the run is active")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	setupLogger(cfg.Logging)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		return 1
	}

	targets, err := collectTargets(flag.Args(), *targetsFile, os.Getenv("TARGETS"))
	if err != nil {
		slog.Error("collect targets", "error", err)
		return 1
	}
	if len(targets) == 0 {
		slog.Error("no targets given; pass URLs as arguments, via -targets, or via TARGETS")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		slog.Error("connect database", "error", err)
		return 1
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		slog.Error("migrate schema", "error", err)
		return 1
	}

	b, err := browser.New(&browser.Options{
		Headless:       cfg.Browser.Headless,
		Timeout:        cfg.Browser.Timeout,
		UserAgents:     cfg.Browser.UserAgents(),
		ProxyServer:    cfg.Browser.ProxyServer,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		AcceptLanguage: cfg.Browser.AcceptLanguage,
		TimezoneID:     cfg.Browser.TimezoneID,
		Locale:         cfg.Browser.Locale,
	})
	if err != nil {
		slog.Error("launch browser", "error", err)
		return 1
	}
	defer b.Close()

	gov := governor.New(governor.Options{
		SoftBlockThreshold:  cfg.Scraper.SoftBlockThreshold,
		BackoffBase:         cfg.Scraper.BackoffBase,
		BackoffMax:          cfg.Scraper.BackoffMax,
		Cooldown:            cfg.Scraper.BlockCooldown,
		MaxTransientRetries: cfg.Scraper.MaxTransientRetries,
	})

	// Lifecycle events go through the transactional outbox; the relay
	// forwards them to the Redis stream in the background.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	relay := database.NewRelay(db, rdb, cfg.Redis.Stream)
	relayCtx, cancelRelay := context.WithCancel(context.Background())
	defer cancelRelay()
	go func() {
		if err := relay.Run(relayCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("outbox relay stopped", "error", err)
		}
	}()

	if *serve || cfg.Server.Enabled {
		srv := &http.Server{Addr: cfg.Server.Addr, Handler: api.NewServer(db).Router()}
		go func() {
			slog.Info("status server listening", "addr", cfg.Server.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("status server", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	runner := scraper.NewRunner(
		func(targetID string) (scraper.Session, error) { return b.NewSession(targetID) },
		db, gov, db,
		scraper.RunnerOptions{
			Workers: cfg.Scraper.MaxConcurrentTargets,
			Machine: scraper.Options{
				StageTimeout:      cfg.Scraper.StageTimeout,
				GalleryNoNewLimit: cfg.Scraper.GalleryNoNewLimit,
				GalleryScrollCap:  cfg.Scraper.GalleryScrollCap,
				ReviewPageCap:     cfg.Scraper.ReviewPageCap,
				Force:             *force || cfg.Scraper.ForceStages,
			},
			LimiterFactory: func() ratelimit.RateLimiter {
				return ratelimit.NewPacedLimiter(cfg.Scraper.ActionDelayMin, cfg.Scraper.ActionDelayMax)
			},
		})
	for _, t := range targets {
		runner.Add(t)
	}

	sum, err := runner.Run(ctx)
	if err != nil {
		slog.Error("run aborted", "error", err)
		return 1
	}

	for _, res := range sum.Results {
		if res.Err != nil {
			slog.Warn("target failed", "target", res.Target.Key(), "category", res.Category)
		}
	}
	slog.Info("summary", "run_id", sum.RunID, "completed", sum.Completed, "failed", sum.Failed)

	// Give the relay a moment to flush trailing events.
	time.Sleep(3 * time.Second)

	if sum.Failed > 0 {
		return 2
	}
	return 0
}

func setupLogger(cfg config.LoggingConfig) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

func collectTargets(args []string, file, env string) ([]scraper.Target, error) {
	var urls []string
	urls = append(urls, args...)

	for _, u := range strings.Split(env, ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}

	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("open targets file: %w", err)
		}
		defer f.Close()

		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			urls = append(urls, line)
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read targets file: %w", err)
		}
	}

	var targets []scraper.Target
	for _, u := range urls {
		t, err := scraper.ParseTarget(u)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}
