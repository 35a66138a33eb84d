package feed

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/ordesk/ordesk/internal/entity"
)

// Module provides the change feed to Fx.
var Module = fx.Provide(New)

// Filter selects which order snapshots a subscriber receives. A nil filter
// matches every order.
type Filter func(*entity.Order) bool

// Handler receives full canonical order snapshots, never diffs.
type Handler func(*entity.Order)

// Feed fans out canonical order state to any number of consumer views.
// Per order id, snapshots reach a given subscriber in commit order; no
// ordering is guaranteed across different order ids.
type Feed struct {
	mu     sync.Mutex
	subs   map[int64]*subscriber
	latest map[uuid.UUID]*entity.Order
	nextID int64
	logger *zap.Logger
}

type subscriber struct {
	filter  Filter
	handler Handler

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*entity.Order
	closed bool
}

// New constructs an empty Feed.
func New(logger *zap.Logger) *Feed {
	return &Feed{
		subs:   make(map[int64]*subscriber),
		latest: make(map[uuid.UUID]*entity.Order),
		logger: logger,
	}
}

// SubscribeOption tweaks subscription behavior.
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	replay bool
}

// WithReplay queues the latest known snapshot of every matching order ahead
// of live deliveries. A reconnecting view uses this instead of a "since"
// cursor: it simply resubscribes and receives current canonical state.
func WithReplay() SubscribeOption {
	return func(o *subscribeOptions) { o.replay = true }
}

// Subscribe registers a handler and returns its unsubscribe function.
// Unsubscribe is synchronous: once it returns, no further delivery is
// scheduled. It is safe to call from within the handler itself.
func (f *Feed) Subscribe(filter Filter, handler Handler, opts ...SubscribeOption) (unsubscribe func()) {
	var options subscribeOptions
	for _, opt := range opts {
		opt(&options)
	}

	sub := &subscriber{filter: filter, handler: handler}
	sub.cond = sync.NewCond(&sub.mu)

	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.subs[id] = sub
	if options.replay {
		for _, order := range f.latest {
			if sub.matches(order) {
				sub.queue = append(sub.queue, order.Clone())
			}
		}
	}
	f.mu.Unlock()

	go sub.pump()

	if f.logger != nil {
		f.logger.Debug("feed subscriber attached", zap.Int64("subscriber", id))
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()

			sub.mu.Lock()
			sub.closed = true
			sub.queue = nil
			sub.cond.Broadcast()
			sub.mu.Unlock()

			if f.logger != nil {
				f.logger.Debug("feed subscriber detached", zap.Int64("subscriber", id))
			}
		})
	}
}

// Publish delivers the order's full snapshot to every matching subscriber
// and records it as the latest canonical state for replay.
func (f *Feed) Publish(order *entity.Order) {
	if order == nil {
		return
	}
	snapshot := order.Clone()

	f.mu.Lock()
	f.latest[snapshot.ID] = snapshot
	targets := make([]*subscriber, 0, len(f.subs))
	for _, sub := range f.subs {
		if sub.matches(snapshot) {
			targets = append(targets, sub)
		}
	}
	f.mu.Unlock()

	for _, sub := range targets {
		sub.enqueue(snapshot.Clone())
	}
}

// Latest returns the last published snapshot for an order, or nil.
func (f *Feed) Latest(orderID uuid.UUID) *entity.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest[orderID].Clone()
}

func (s *subscriber) matches(order *entity.Order) bool {
	return s.filter == nil || s.filter(order)
}

func (s *subscriber) enqueue(order *entity.Order) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, order)
	s.cond.Signal()
	s.mu.Unlock()
}

// pump drains the subscriber queue in FIFO order. The handler runs without
// any lock held, so it may resubscribe or unsubscribe freely.
func (s *subscriber) pump() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.handler(next)
	}
}
