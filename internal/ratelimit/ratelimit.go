package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

type RateLimiter interface {
	Wait(ctx context.Context) error
	SetDelay(min, max time.Duration)
}

// PacedLimiter spaces actions with a jittered delay sampled from
// [minDelay, maxDelay]. The sampling keeps inter-action gaps from
// forming a fixed-interval fingerprint.
type PacedLimiter struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	mu         sync.Mutex
	rng        *rand.Rand
}

func NewPacedLimiter(minDelay, maxDelay time.Duration) *PacedLimiter {
	return &PacedLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *PacedLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := time.Since(r.lastAction)
	delay := r.sampleDelay()

	if elapsed < delay {
		waitTime := delay - elapsed

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}

	r.lastAction = time.Now()
	return nil
}

func (r *PacedLimiter) SetDelay(min, max time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.minDelay = min
	r.maxDelay = max
}

func (r *PacedLimiter) sampleDelay() time.Duration {
	if r.maxDelay <= r.minDelay {
		return r.minDelay
	}
	delta := r.maxDelay - r.minDelay
	return r.minDelay + time.Duration(r.rng.Int63n(int64(delta)))
}
