package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/HafssaBN/human-imitation-for-airbnb/internal/governor"
	"github.com/HafssaBN/human-imitation-for-airbnb/internal/queue"
	"github.com/HafssaBN/human-imitation-for-airbnb/internal/ratelimit"
)

// Lifecycle event types published per target.
const (
	EventTargetStarted   = "target_started"
	EventTargetCompleted = "target_completed"
	EventTargetFailed    = "target_failed"
)

// Event is one target lifecycle notification.
type Event struct {
	RunID     string     `json:"run_id"`
	TargetKey string     `json:"target_key"`
	Kind      TargetKind `json:"kind"`
	Type      string     `json:"type"`
	Category  string     `json:"category,omitempty"`
	At        time.Time  `json:"at"`
}

// Publisher delivers lifecycle events to downstream consumers. The
// database outbox implements it; a nil publisher disables events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// TargetResult is the terminal outcome of one target in one run.
type TargetResult struct {
	Target   Target
	Err      error
	Category string
	Elapsed  time.Duration
}

// Summary is the end-of-run report.
type Summary struct {
	RunID     string
	Completed int
	Failed    int
	Results   []TargetResult
}

// RunnerOptions tunes the worker pool.
type RunnerOptions struct {
	Workers        int
	Machine        Options
	LimiterFactory func() ratelimit.RateLimiter
}

// Runner drains the target frontier with a bounded worker pool. Each
// worker opens a fresh browser session per target, runs the stage
// machine to completion, and records the outcome. Failures of one
// target never stop the others.
type Runner struct {
	frontier *queue.Frontier[Target]
	sessions SessionFactory
	store    Store
	gov      *governor.Governor
	pub      Publisher
	opts     RunnerOptions
	logger   *slog.Logger

	mu      sync.Mutex
	seen    map[string]bool
	results []TargetResult
}

func NewRunner(sessions SessionFactory, store Store, gov *governor.Governor, pub Publisher, opts RunnerOptions) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.LimiterFactory == nil {
		opts.LimiterFactory = func() ratelimit.RateLimiter {
			return ratelimit.NewPacedLimiter(800*time.Millisecond, 2500*time.Millisecond)
		}
	}
	return &Runner{
		frontier: queue.NewFrontier[Target](),
		sessions: sessions,
		store:    store,
		gov:      gov,
		pub:      pub,
		opts:     opts,
		logger:   slog.Default().With("component", "runner"),
		seen:     make(map[string]bool),
	}
}

// Add enqueues a target, once. Discovery re-submitting a known target
// is a no-op.
func (r *Runner) Add(t Target) {
	r.mu.Lock()
	dup := r.seen[t.Key()]
	if !dup {
		r.seen[t.Key()] = true
	}
	r.mu.Unlock()
	if !dup {
		r.frontier.Push(t)
	}
}

// Run processes every queued target, including targets discovered
// while running, and returns the per-target summary. The returned
// error is non-nil only when the context ended the run early.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	runID := uuid.NewString()
	r.logger.Info("run started", "run_id", runID, "workers", r.opts.Workers, "queued", r.frontier.Len())

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < r.opts.Workers; i++ {
		g.Go(func() error {
			for {
				t, ok := r.frontier.Next(gctx)
				if !ok {
					return gctx.Err()
				}
				r.runTarget(gctx, runID, t)
				r.frontier.Done()
			}
		})
	}
	err := g.Wait()

	s := &Summary{RunID: runID}
	r.mu.Lock()
	s.Results = append(s.Results, r.results...)
	r.mu.Unlock()
	for _, res := range s.Results {
		if res.Err != nil {
			s.Failed++
		} else {
			s.Completed++
		}
	}

	r.logger.Info("run finished", "run_id", runID, "completed", s.Completed, "failed", s.Failed)
	return s, err
}

func (r *Runner) runTarget(ctx context.Context, runID string, t Target) {
	start := time.Now()
	r.publish(ctx, Event{RunID: runID, TargetKey: t.Key(), Kind: t.Kind, Type: EventTargetStarted, At: start})

	var runErr error
	sess, err := r.sessions(t.Key())
	if err != nil {
		runErr = fmt.Errorf("open session: %w", err)
	} else {
		opts := r.opts.Machine
		opts.Discover = r.Add
		m := NewMachine(sess, r.store, r.gov, r.opts.LimiterFactory(), opts)
		runErr = m.Run(ctx, t)
		if cerr := sess.Close(); cerr != nil {
			r.logger.Warn("close session", "target", t.Key(), "error", cerr)
		}
	}

	res := TargetResult{Target: t, Err: runErr, Category: FailureCategory(runErr), Elapsed: time.Since(start)}
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()

	ev := Event{RunID: runID, TargetKey: t.Key(), Kind: t.Kind, Type: EventTargetCompleted, At: time.Now()}
	if runErr != nil {
		ev.Type = EventTargetFailed
		ev.Category = res.Category
		r.logger.Error("target failed", "target", t.Key(), "category", res.Category, "error", runErr, "elapsed", res.Elapsed)
	} else {
		r.logger.Info("target completed", "target", t.Key(), "elapsed", res.Elapsed)
	}
	r.publish(ctx, ev)
}

func (r *Runner) publish(ctx context.Context, ev Event) {
	if r.pub == nil {
		return
	}
	if err := r.pub.Publish(ctx, ev); err != nil {
		r.logger.Warn("publish event", "type", ev.Type, "target", ev.TargetKey, "error", err)
	}
}
