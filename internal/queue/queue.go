// Package queue provides the in-memory work frontier for a run.
package queue

import (
	"context"
	"sync"
)

// Frontier is a FIFO work queue that knows when it is drained.
// Consumers may push follow-up work for items they are processing, so
// the frontier only reports exhaustion once no items remain AND no
// consumer is mid-item.
type Frontier[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []T
	inflight int
	closed   bool
}

func NewFrontier[T any]() *Frontier[T] {
	f := &Frontier[T]{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Push enqueues an item. Pushing to a drained frontier is a no-op.
func (f *Frontier[T]) Push(item T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.items = append(f.items, item)
	f.cond.Signal()
}

// Next blocks until an item is available, the frontier drains, or ctx
// is cancelled. A true return obliges the caller to call Done once the
// item is finished.
func (f *Frontier[T]) Next(ctx context.Context) (T, bool) {
	var zero T

	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	defer stop()

	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		if ctx.Err() != nil || f.closed {
			return zero, false
		}
		if len(f.items) > 0 {
			item := f.items[0]
			f.items = f.items[1:]
			f.inflight++
			return item, true
		}
		if f.inflight == 0 {
			f.closed = true
			f.cond.Broadcast()
			return zero, false
		}
		f.cond.Wait()
	}
}

// Done marks one item finished.
func (f *Frontier[T]) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inflight > 0 {
		f.inflight--
	}
	f.cond.Broadcast()
}

// Len reports queued (not inflight) items.
func (f *Frontier[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}
