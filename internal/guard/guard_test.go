package guard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordesk/ordesk/internal/guard"
)

func TestWithOrderLock_Serializes(t *testing.T) {
	g := guard.New()
	id := uuid.New()

	var inside, max int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.WithOrderLock(context.Background(), id, func(context.Context) error {
				mu.Lock()
				inside++
				if inside > max {
					max = inside
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, max, "at most one caller may be inside the section")
}

func TestWithOrderLock_FIFOOrder(t *testing.T) {
	g := guard.New()
	id := uuid.New()

	holding := make(chan struct{})
	released := make(chan struct{})
	go func() {
		_ = g.WithOrderLock(context.Background(), id, func(context.Context) error {
			close(holding)
			<-released
			return nil
		})
	}()
	<-holding

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.WithOrderLock(context.Background(), id, func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
		// Stagger enqueueing so the queue order is deterministic.
		time.Sleep(10 * time.Millisecond)
	}

	close(released)
	wg.Wait()

	require.Len(t, order, 8)
	for i, got := range order {
		assert.Equal(t, i, got, "waiters must run in arrival order")
	}
}

func TestWithOrderLock_DistinctIDsRunConcurrently(t *testing.T) {
	g := guard.New()

	first := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = g.WithOrderLock(context.Background(), uuid.New(), func(context.Context) error {
			close(first)
			<-done
			return nil
		})
	}()
	<-first

	// A different order id must not queue behind the held lock.
	finished := make(chan struct{})
	go func() {
		_ = g.WithOrderLock(context.Background(), uuid.New(), func(context.Context) error {
			return nil
		})
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("independent order id was blocked")
	}
	close(done)
}

func TestWithOrderLock_ReleasedOnPanic(t *testing.T) {
	g := guard.New()
	id := uuid.New()

	require.Panics(t, func() {
		_ = g.WithOrderLock(context.Background(), id, func(context.Context) error {
			panic("boom")
		})
	})

	err := g.WithOrderLock(context.Background(), id, func(context.Context) error { return nil })
	assert.NoError(t, err, "lock must be released after a panic")
}

func TestWithOrderLock_ContextCanceledWhileQueued(t *testing.T) {
	g := guard.New()
	id := uuid.New()

	holding := make(chan struct{})
	released := make(chan struct{})
	go func() {
		_ = g.WithOrderLock(context.Background(), id, func(context.Context) error {
			close(holding)
			<-released
			return nil
		})
	}()
	<-holding

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- g.WithOrderLock(ctx, id, func(context.Context) error { return nil })
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("canceled waiter did not return")
	}

	close(released)

	// The lock must still cycle normally afterwards.
	err := g.WithOrderLock(context.Background(), id, func(context.Context) error { return nil })
	assert.NoError(t, err)
}
