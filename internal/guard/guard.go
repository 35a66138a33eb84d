package guard

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/fx"
)

// Module provides the per-order guard to Fx.
var Module = fx.Provide(New)

// Guard serializes mutations per order id. Different ids proceed fully in
// parallel; callers contending on the same id are queued in FIFO order, so
// no operator action is ever silently dropped.
type Guard struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*lockState
}

type lockState struct {
	held    bool
	waiters []chan struct{}
}

// New constructs an empty Guard.
func New() *Guard {
	return &Guard{locks: make(map[uuid.UUID]*lockState)}
}

// WithOrderLock runs fn inside the exclusive section for orderID. The lock
// is released when fn returns or panics. A caller whose context is canceled
// while queued gives up its slot and returns ctx.Err().
func (g *Guard) WithOrderLock(ctx context.Context, orderID uuid.UUID, fn func(ctx context.Context) error) error {
	if err := g.acquire(ctx, orderID); err != nil {
		return err
	}
	defer g.release(orderID)
	return fn(ctx)
}

func (g *Guard) acquire(ctx context.Context, orderID uuid.UUID) error {
	g.mu.Lock()
	state, ok := g.locks[orderID]
	if !ok {
		state = &lockState{}
		g.locks[orderID] = state
	}
	if !state.held {
		state.held = true
		g.mu.Unlock()
		return nil
	}

	ticket := make(chan struct{})
	state.waiters = append(state.waiters, ticket)
	g.mu.Unlock()

	select {
	case <-ticket:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		for i, w := range state.waiters {
			if w == ticket {
				state.waiters = append(state.waiters[:i], state.waiters[i+1:]...)
				g.mu.Unlock()
				return ctx.Err()
			}
		}
		g.mu.Unlock()
		// The ticket was already handed the lock; pass it on.
		<-ticket
		g.release(orderID)
		return ctx.Err()
	}
}

func (g *Guard) release(orderID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.locks[orderID]
	if !ok {
		return
	}
	if len(state.waiters) > 0 {
		next := state.waiters[0]
		state.waiters = state.waiters[1:]
		close(next)
		return
	}
	delete(g.locks, orderID)
}
