package order_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ordesk/ordesk/internal/config"
	"github.com/ordesk/ordesk/internal/entity"
	"github.com/ordesk/ordesk/internal/feed"
	"github.com/ordesk/ordesk/internal/guard"
	repo "github.com/ordesk/ordesk/internal/repository/order"
	ordersvc "github.com/ordesk/ordesk/internal/service/order"
)

// fakeStore is an in-memory Store with the same conditional-write semantics
// as the bun repository.
type fakeStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*entity.Order
	writes int
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: make(map[uuid.UUID]*entity.Order)}
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return order.Clone(), nil
}

func (s *fakeStore) Query(_ context.Context, _ repo.Filter) ([]*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entity.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o.Clone())
	}
	return out, nil
}

func (s *fakeStore) Active(_ context.Context) ([]*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Order
	for _, o := range s.orders {
		if !o.Status.Terminal() {
			out = append(out, o.Clone())
		}
	}
	return out, nil
}

func (s *fakeStore) Create(_ context.Context, order *entity.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order.Number = int64(len(s.orders) + 1)
	s.orders[order.ID] = order.Clone()
	s.writes++
	return nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, id uuid.UUID, to, expected entity.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return repo.ErrNotFound
	}
	if order.Status != expected {
		return repo.ErrStatusConflict
	}
	order.Status = to
	order.UpdatedAt = time.Now().UTC()
	s.writes++
	return nil
}

func (s *fakeStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []*entity.HistoryEntry
}

func (l *fakeLedger) Append(_ context.Context, entry *entity.HistoryEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	// Dedupe on (order_id, to_status, occurred_at) like the real ledger.
	for _, e := range l.entries {
		if e.OrderID == entry.OrderID && e.ToStatus == entry.ToStatus && e.OccurredAt.Equal(entry.OccurredAt) {
			return nil
		}
	}
	dup := *entry
	l.entries = append(l.entries, &dup)
	return nil
}

func (l *fakeLedger) QueryByOrder(_ context.Context, orderID uuid.UUID) ([]*entity.HistoryEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*entity.HistoryEntry
	for _, e := range l.entries {
		if e.OrderID == orderID {
			dup := *e
			out = append(out, &dup)
		}
	}
	return out, nil
}

func (l *fakeLedger) count(orderID uuid.UUID) int {
	entries, _ := l.QueryByOrder(context.Background(), orderID)
	return len(entries)
}

type harness struct {
	svc    *ordersvc.Service
	store  *fakeStore
	ledger *fakeLedger
	feed   *feed.Feed
	errors *errorRecorder
}

type errorRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *errorRecorder) record(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *errorRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func newHarness() *harness {
	store := newFakeStore()
	ledger := &fakeLedger{}
	f := feed.New(zap.NewNop())
	rec := &errorRecorder{}
	cfg := config.Config{}
	cfg.Cache.DefaultTTL = time.Minute

	svc := ordersvc.New(store, ledger, guard.New(), f, nil, cfg, zap.NewNop(), nil, rec.record)
	return &harness{svc: svc, store: store, ledger: ledger, feed: f, errors: rec}
}

func (h *harness) seed(t *testing.T, status entity.Status) uuid.UUID {
	t.Helper()
	order := &entity.Order{
		ID:          uuid.New(),
		Status:      status,
		Items:       []entity.LineItem{{Name: "Carbonara", Quantity: 1, UnitPrice: 1400}},
		Total:       1400,
		Fulfillment: entity.FulfillmentCounter,
		CreatedAt:   time.Now().UTC(),
	}
	h.store.mu.Lock()
	h.store.orders[order.ID] = order
	h.store.mu.Unlock()
	return order.ID
}

func TestRequestTransition_InvalidLeavesStoreAndLedgerUntouched(t *testing.T) {
	h := newHarness()
	id := h.seed(t, entity.StatusNew)
	before := h.store.writeCount()

	// new -> delivered is not in the table.
	_, err := h.svc.RequestTransition(context.Background(), id, entity.StatusDelivered, "")

	var invalid *entity.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, entity.StatusNew, invalid.From)
	assert.Equal(t, entity.StatusDelivered, invalid.To)

	assert.Equal(t, before, h.store.writeCount(), "store must not be mutated")
	assert.Equal(t, 0, h.ledger.count(id), "ledger must not be appended")
	assert.Equal(t, 1, h.errors.len(), "error must reach the sink")
}

func TestRequestTransition_TerminalStatusesRejectEverything(t *testing.T) {
	for _, terminal := range []entity.Status{entity.StatusDelivered, entity.StatusCanceled} {
		h := newHarness()
		id := h.seed(t, terminal)

		for _, to := range []entity.Status{
			entity.StatusNew, entity.StatusConfirmed, entity.StatusPreparing,
			entity.StatusOutForDelivery, entity.StatusDelivered, entity.StatusCanceled,
		} {
			_, err := h.svc.RequestTransition(context.Background(), id, to, "")
			var invalid *entity.InvalidTransitionError
			assert.ErrorAs(t, err, &invalid, "%s -> %s must be rejected", terminal, to)
		}
		assert.Equal(t, 0, h.ledger.count(id))
	}
}

func TestAccept_FromNew(t *testing.T) {
	h := newHarness()
	id := h.seed(t, entity.StatusNew)

	updated, err := h.svc.Accept(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPreparing, updated.Status)

	entries, err := h.svc.History(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entity.StatusNew, entries[0].FromStatus)
	assert.Equal(t, entity.StatusPreparing, entries[0].ToStatus)
}

func TestCancel_OnDeliveredFails(t *testing.T) {
	h := newHarness()
	id := h.seed(t, entity.StatusDelivered)

	_, err := h.svc.Cancel(context.Background(), id)
	var invalid *entity.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, 0, h.ledger.count(id), "history length unchanged")
}

func TestRequestTransition_HistoryCountMatchesTransitions(t *testing.T) {
	h := newHarness()
	id := h.seed(t, entity.StatusNew)
	ctx := context.Background()

	_, err := h.svc.Accept(ctx, id)
	require.NoError(t, err)
	_, err = h.svc.AdvanceToDelivery(ctx, id)
	require.NoError(t, err)
	_, err = h.svc.Complete(ctx, id)
	require.NoError(t, err)

	// A failed attempt must not add history.
	_, err = h.svc.Cancel(ctx, id)
	require.Error(t, err)

	entries, err := h.svc.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, entity.StatusPreparing, entries[0].ToStatus)
	assert.Equal(t, entity.StatusOutForDelivery, entries[1].ToStatus)
	assert.Equal(t, entity.StatusDelivered, entries[2].ToStatus)
}

func TestRequestTransition_ConcurrentConflict(t *testing.T) {
	h := newHarness()
	id := h.seed(t, entity.StatusNew)

	// Two operators act at once, both looking at a card that reads "new":
	// one accepts, one cancels. Exactly one may win.
	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, results[0] = h.svc.RequestTransition(context.Background(), id, entity.StatusPreparing, "",
			ordersvc.WithExpectedStatus(entity.StatusNew))
	}()
	go func() {
		defer wg.Done()
		_, results[1] = h.svc.RequestTransition(context.Background(), id, entity.StatusCanceled, "",
			ordersvc.WithExpectedStatus(entity.StatusNew))
	}()
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var conflict *ordersvc.ConcurrencyConflictError
		require.ErrorAs(t, err, &conflict)
		conflicted++
	}
	assert.Equal(t, 1, succeeded, "exactly one request succeeds")
	assert.Equal(t, 1, conflicted, "the other receives a concurrency conflict")
	assert.Equal(t, 1, h.ledger.count(id), "final history length is 1")
}

func TestRequestTransition_PublishesSnapshotInCommitOrder(t *testing.T) {
	h := newHarness()
	id := h.seed(t, entity.StatusNew)

	var mu sync.Mutex
	var statuses []entity.Status
	seen := make(chan struct{}, 8)
	defer h.svc.Subscribe(nil, func(o *entity.Order) {
		mu.Lock()
		statuses = append(statuses, o.Status)
		mu.Unlock()
		seen <- struct{}{}
	})()

	ctx := context.Background()
	_, err := h.svc.Accept(ctx, id)
	require.NoError(t, err)
	_, err = h.svc.AdvanceToDelivery(ctx, id)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		select {
		case <-seen:
		case <-time.After(2 * time.Second):
			t.Fatal("snapshot not delivered")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []entity.Status{entity.StatusPreparing, entity.StatusOutForDelivery}, statuses)
}

func TestCreate_ValidatesAndPublishes(t *testing.T) {
	h := newHarness()

	order := &entity.Order{
		Items:       []entity.LineItem{{Name: "Pad Thai", Quantity: 2, UnitPrice: 1100}},
		Fulfillment: entity.FulfillmentPickup,
		Channel:     "web",
	}
	require.NoError(t, h.svc.Create(context.Background(), order))
	assert.Equal(t, entity.StatusNew, order.Status)
	assert.Equal(t, int64(2200), order.Total)
	assert.NotEqual(t, uuid.Nil, order.ID)

	fetched, err := h.svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, fetched.ID)
}

func TestCreate_RejectsTotalMismatch(t *testing.T) {
	h := newHarness()

	order := &entity.Order{
		Items:       []entity.LineItem{{Name: "Pho", Quantity: 1, UnitPrice: 1300}},
		Total:       9999,
		Fulfillment: entity.FulfillmentCounter,
	}
	err := h.svc.Create(context.Background(), order)
	require.Error(t, err)
}

func TestAddNote_AllowedOnTerminalOrder(t *testing.T) {
	h := newHarness()
	id := h.seed(t, entity.StatusDelivered)

	require.NoError(t, h.svc.AddNote(context.Background(), id, "customer called to say thanks", "maria"))

	entries, err := h.svc.History(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entity.StatusDelivered, entries[0].FromStatus)
	assert.Equal(t, entity.StatusDelivered, entries[0].ToStatus)
	assert.Equal(t, "maria", entries[0].Actor)
}

func TestRequestTransition_UnknownOrder(t *testing.T) {
	h := newHarness()
	_, err := h.svc.Accept(context.Background(), uuid.New())
	require.Error(t, err)
	assert.False(t, errors.Is(err, repo.ErrStatusConflict))
}
