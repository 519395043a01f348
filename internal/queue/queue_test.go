package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrontierFIFO(t *testing.T) {
	f := NewFrontier[int]()
	f.Push(1)
	f.Push(2)
	f.Push(3)

	ctx := context.Background()
	for want := 1; want <= 3; want++ {
		got, ok := f.Next(ctx)
		require.True(t, ok)
		assert.Equal(t, want, got)
		f.Done()
	}

	_, ok := f.Next(ctx)
	assert.False(t, ok, "drained frontier should report exhaustion")
}

func TestFrontierDrainWaitsForInflight(t *testing.T) {
	f := NewFrontier[string]()
	f.Push("host")

	ctx := context.Background()
	first, ok := f.Next(ctx)
	require.True(t, ok)
	require.Equal(t, "host", first)

	// A second consumer must not see the frontier as drained while the
	// first item is still being processed: it may spawn follow-ups.
	got := make(chan string, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		item, ok := f.Next(ctx)
		if ok {
			got <- item
			f.Done()
		}
		close(got)
	}()

	time.Sleep(20 * time.Millisecond)
	f.Push("listing")
	f.Done()

	wg.Wait()
	item, open := <-got
	require.True(t, open, "consumer should have received the follow-up item")
	assert.Equal(t, "listing", item)
}

func TestFrontierClosesWhenIdle(t *testing.T) {
	f := NewFrontier[int]()
	f.Push(7)

	ctx := context.Background()
	_, ok := f.Next(ctx)
	require.True(t, ok)
	f.Done()

	_, ok = f.Next(ctx)
	assert.False(t, ok)

	// Pushes after drain are dropped.
	f.Push(8)
	assert.Equal(t, 0, f.Len())
}

func TestFrontierContextCancel(t *testing.T) {
	f := NewFrontier[int]()
	f.Push(1)
	_, ok := f.Next(context.Background())
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() {
		_, ok := f.Next(ctx)
		done <- ok
	}()

	cancel()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after cancellation")
	}
	f.Done()
}
