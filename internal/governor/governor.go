package governor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/HafssaBN/human-imitation-for-airbnb/internal/browser"
)

// ErrTargetBlocked means the target's health machine is in Blocked and
// its cooldown has not elapsed; the caller should preserve the
// checkpoint and move on.
var ErrTargetBlocked = errors.New("target blocked")

// ErrTargetHardBlocked is the non-retryable variant; it matches
// ErrTargetBlocked under errors.Is so existing checks keep working.
var ErrTargetHardBlocked = fmt.Errorf("%w: hard", ErrTargetBlocked)

// Health is the per-target anti-bot health state.
type Health int

const (
	Healthy Health = iota
	Degraded
	Blocked
)

func (h Health) String() string {
	switch h {
	case Degraded:
		return "degraded"
	case Blocked:
		return "blocked"
	default:
		return "healthy"
	}
}

type Options struct {
	// SoftBlockThreshold consecutive soft blocks flip the target to
	// Blocked.
	SoftBlockThreshold int
	BackoffBase        time.Duration
	BackoffMax         time.Duration
	// Cooldown suspends a Blocked target before it may be retried.
	Cooldown time.Duration
	// MaxTransientRetries bounds retries of network-level faults,
	// independent of the block-detection machine.
	MaxTransientRetries int
}

func DefaultOptions() Options {
	return Options{
		SoftBlockThreshold:  5,
		BackoffBase:         2 * time.Second,
		BackoffMax:          5 * time.Minute,
		Cooldown:            15 * time.Minute,
		MaxTransientRetries: 3,
	}
}

type targetState struct {
	health       Health
	softBlocks   int
	blockedUntil time.Time
	hardBlocked  bool
}

// Governor tracks anti-bot health per target and decides whether and
// how long to wait before the next navigation attempt. State is
// per-target, so no cross-target synchronization beyond the map lock.
type Governor struct {
	mu      sync.Mutex
	targets map[string]*targetState
	opts    Options
	logger  *slog.Logger
	rng     *rand.Rand
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
}

func New(opts Options) *Governor {
	if opts.SoftBlockThreshold <= 0 {
		opts.SoftBlockThreshold = DefaultOptions().SoftBlockThreshold
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultOptions().BackoffBase
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = DefaultOptions().BackoffMax
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultOptions().Cooldown
	}
	if opts.MaxTransientRetries <= 0 {
		opts.MaxTransientRetries = DefaultOptions().MaxTransientRetries
	}

	return &Governor{
		targets: make(map[string]*targetState),
		opts:    opts,
		logger:  slog.Default().With("component", "governor"),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (g *Governor) state(target string) *targetState {
	st, ok := g.targets[target]
	if !ok {
		st = &targetState{}
		g.targets[target] = st
	}
	return st
}

// Allow reports whether a navigation attempt on the target may proceed.
// A Blocked target is re-admitted as Degraded once its cooldown has
// elapsed, unless the block was hard.
func (g *Governor) Allow(target string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.state(target)
	if st.health != Blocked {
		return nil
	}
	if st.hardBlocked {
		return fmt.Errorf("%w block on %s", ErrTargetHardBlocked, target)
	}
	if g.now().Before(st.blockedUntil) {
		return fmt.Errorf("%w: cooldown until %s", ErrTargetBlocked, st.blockedUntil.Format(time.RFC3339))
	}

	st.health = Degraded
	st.softBlocks = 0
	g.logger.Info("cooldown elapsed, re-admitting target", "target", target)
	return nil
}

// Report feeds a page classification into the target's health machine.
func (g *Governor) Report(target string, class browser.PageClass) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.state(target)
	switch class {
	case browser.PageNormal:
		if st.health != Blocked {
			st.health = Healthy
			st.softBlocks = 0
		}
	case browser.PageSoftBlock:
		st.softBlocks++
		st.health = Degraded
		if st.softBlocks >= g.opts.SoftBlockThreshold {
			st.health = Blocked
			st.blockedUntil = g.now().Add(g.opts.Cooldown)
			g.logger.Warn("target blocked after repeated soft blocks",
				"target", target,
				"consecutive", st.softBlocks,
				"cooldown_until", st.blockedUntil)
		}
	case browser.PageHardBlock:
		st.health = Blocked
		st.hardBlocked = true
		g.logger.Warn("target hard-blocked, no retry this run", "target", target)
	}
}

// Health returns the target's current health.
func (g *Governor) Health(target string) Health {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state(target).health
}

// BackoffDelay is the jittered exponential delay for the target's
// current degradation level.
func (g *Governor) BackoffDelay(target string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.state(target)
	if st.softBlocks == 0 {
		return 0
	}

	d := g.opts.BackoffBase
	for i := 1; i < st.softBlocks; i++ {
		d *= 2
		if d >= g.opts.BackoffMax {
			d = g.opts.BackoffMax
			break
		}
	}
	// Up to 25% jitter so repeated backoffs are never equidistant.
	jit := time.Duration(g.rng.Int63n(int64(d)/4 + 1))
	d += jit
	if d > g.opts.BackoffMax {
		d = g.opts.BackoffMax
	}
	return d
}

// Wait sleeps the current backoff for the target, honoring ctx.
func (g *Governor) Wait(ctx context.Context, target string) error {
	return g.sleep(ctx, g.BackoffDelay(target))
}

// RetryTransient runs fn, retrying bounded times with jittered backoff
// when it fails with a network-level transient error. Block-detection
// errors are not retried here; the two failure categories need
// different responses.
func (g *Governor) RetryTransient(ctx context.Context, target string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < g.opts.MaxTransientRetries; attempt++ {
		if attempt > 0 {
			delay := g.opts.BackoffBase * time.Duration(attempt)
			g.mu.Lock()
			delay += time.Duration(g.rng.Int63n(int64(g.opts.BackoffBase)))
			g.mu.Unlock()
			g.logger.Info("retrying after transient error",
				"target", target, "attempt", attempt+1, "delay", delay)
			if err := g.sleep(ctx, delay); err != nil {
				return err
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("exhausted %d attempts: %w", g.opts.MaxTransientRetries, lastErr)
}

// IsTransient reports whether the error is a network-level fault worth
// an immediate bounded retry.
func IsTransient(err error) bool {
	return errors.Is(err, browser.ErrNavigationTimeout) ||
		errors.Is(err, browser.ErrTransientNetwork)
}
