package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/ordesk/ordesk/internal/cache"
	"github.com/ordesk/ordesk/internal/config"
	"github.com/ordesk/ordesk/internal/entity"
	"github.com/ordesk/ordesk/internal/feed"
	"github.com/ordesk/ordesk/internal/guard"
	"github.com/ordesk/ordesk/internal/messaging"
	historyrepo "github.com/ordesk/ordesk/internal/repository/history"
	repo "github.com/ordesk/ordesk/internal/repository/order"
	"github.com/ordesk/ordesk/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/ordesk/ordesk/service/order")

// Store is the persistence surface the service depends on. The bun-backed
// repository is the production implementation; tests substitute fakes.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Order, error)
	Query(ctx context.Context, filter repo.Filter) ([]*entity.Order, error)
	Active(ctx context.Context) ([]*entity.Order, error)
	Create(ctx context.Context, order *entity.Order) error
	UpdateStatus(ctx context.Context, id uuid.UUID, to, expected entity.Status) error
}

// Ledger is the append-only transition history surface.
type Ledger interface {
	Append(ctx context.Context, entry *entity.HistoryEntry) error
	QueryByOrder(ctx context.Context, orderID uuid.UUID) ([]*entity.HistoryEntry, error)
}

// ErrorSink receives every error surfaced by the service, in addition to the
// error being returned to the caller. The core never renders UI itself.
type ErrorSink func(error)

// ConcurrencyConflictError signals that another actor mutated the order
// between the caller's read and this write. The service never retries it;
// the operator must re-view current state and re-decide.
type ConcurrencyConflictError struct {
	OrderID  uuid.UUID
	Expected entity.Status
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("order %s changed concurrently (expected status %s)", e.OrderID, e.Expected)
}

// Service orchestrates the order lifecycle: it validates transitions,
// serializes them per order, persists conditionally, appends history, and
// fans the result out through the change feed and the message bus.
type Service struct {
	store     Store
	ledger    Ledger
	guard     *guard.Guard
	feed      *feed.Feed
	cache     cache.Store
	cacheTTL  time.Duration
	logger    *zap.Logger
	publisher messaging.Client
	sink      ErrorSink
	messaging messagingConfig
}

type messagingConfig struct {
	enabled bool
	topic   string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	History    *historyrepo.Repository
	Guard      *guard.Guard
	Feed       *feed.Feed
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
	Publisher  messaging.Client
	Sink       ErrorSink `optional:"true"`
}

// NewService wires a new Service instance from the Fx graph.
func NewService(p Params) *Service {
	return New(p.Repository, p.History, p.Guard, p.Feed, p.Cache, p.Config, p.Logger, p.Publisher, p.Sink)
}

// New constructs a Service from explicit dependencies.
func New(store Store, ledger Ledger, g *guard.Guard, f *feed.Feed, c cache.Store, cfg config.Config, logger *zap.Logger, publisher messaging.Client, sink ErrorSink) *Service {
	return &Service{
		store:     store,
		ledger:    ledger,
		guard:     g,
		feed:      f,
		cache:     c,
		cacheTTL:  cfg.Cache.DefaultTTL,
		logger:    logger,
		publisher: publisher,
		sink:      sink,
		messaging: messagingConfig{
			enabled: cfg.Messaging.Enabled,
			topic:   cfg.Messaging.Kafka.Topic,
		},
	}
}

// TransitionOption tweaks a single transition request.
type TransitionOption func(*transitionOptions)

type transitionOptions struct {
	expected    entity.Status
	hasExpected bool
	actor       string
}

// WithExpectedStatus carries the status the operator saw when acting. If the
// fresh in-lock read shows the order already left that status, the request
// fails with ConcurrencyConflictError instead of applying a stale decision.
func WithExpectedStatus(status entity.Status) TransitionOption {
	return func(o *transitionOptions) {
		o.expected = status
		o.hasExpected = true
	}
}

// WithActor records who triggered the transition in the history entry.
func WithActor(actor string) TransitionOption {
	return func(o *transitionOptions) { o.actor = actor }
}

// RequestTransition applies one status change to an order. Steps: acquire
// the per-order lock, re-read current status inside it, validate against the
// transition table, write conditionally, append history, publish the full
// snapshot. Exactly one of two simultaneous conflicting requests succeeds.
func (s *Service) RequestTransition(ctx context.Context, orderID uuid.UUID, to entity.Status, note string, opts ...TransitionOption) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.RequestTransition", trace.WithAttributes(
		attribute.String("order.id", orderID.String()),
		attribute.String("order.status", string(to)),
	))
	defer span.End()

	if !to.Valid() {
		return nil, s.report(errorbank.BadRequest("unknown target status", errorbank.WithDetail("status", string(to))))
	}

	var options transitionOptions
	for _, opt := range opts {
		opt(&options)
	}

	var updated *entity.Order
	err := s.guard.WithOrderLock(ctx, orderID, func(ctx context.Context) error {
		current, err := s.store.GetByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return errorbank.NotFound("order not found")
			}
			span.RecordError(err)
			return errorbank.Internal("failed to load order", errorbank.WithCause(err))
		}

		from := current.Status
		if options.hasExpected && from != options.expected {
			return &ConcurrencyConflictError{OrderID: orderID, Expected: options.expected}
		}
		if !entity.CanTransition(from, to) {
			return &entity.InvalidTransitionError{From: from, To: to}
		}

		if err := s.store.UpdateStatus(ctx, orderID, to, from); err != nil {
			if errors.Is(err, repo.ErrStatusConflict) {
				return &ConcurrencyConflictError{OrderID: orderID, Expected: from}
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "conditional write failed")
			return errorbank.Internal("failed to update order status", errorbank.WithCause(err))
		}

		now := time.Now().UTC()
		current.Status = to
		current.UpdatedAt = now

		entry := &entity.HistoryEntry{
			OrderID:    orderID,
			FromStatus: from,
			ToStatus:   to,
			Note:       note,
			Actor:      options.actor,
			OccurredAt: now,
		}
		if err := s.ledger.Append(ctx, entry); err != nil {
			span.RecordError(err)
			return errorbank.Internal("failed to append order history", errorbank.WithCause(err))
		}

		// Publishing inside the lock keeps per-order feed deliveries in
		// commit order.
		s.refreshCache(ctx, current)
		s.feed.Publish(current)
		s.publishStatusChanged(ctx, current, from, note)

		updated = current
		return nil
	})
	if err != nil {
		return nil, s.report(err)
	}

	s.logger.Info("order transition applied",
		zap.String("order_id", orderID.String()),
		zap.String("to", string(to)),
	)
	return updated, nil
}

// Accept moves a fresh order into preparation.
func (s *Service) Accept(ctx context.Context, orderID uuid.UUID, opts ...TransitionOption) (*entity.Order, error) {
	return s.RequestTransition(ctx, orderID, entity.StatusPreparing, "accepted by operator", opts...)
}

// Cancel voids the order.
func (s *Service) Cancel(ctx context.Context, orderID uuid.UUID, opts ...TransitionOption) (*entity.Order, error) {
	return s.RequestTransition(ctx, orderID, entity.StatusCanceled, "canceled by operator", opts...)
}

// AdvanceToDelivery hands the order to the courier.
func (s *Service) AdvanceToDelivery(ctx context.Context, orderID uuid.UUID, opts ...TransitionOption) (*entity.Order, error) {
	return s.RequestTransition(ctx, orderID, entity.StatusOutForDelivery, "sent out for delivery", opts...)
}

// Complete marks the order delivered.
func (s *Service) Complete(ctx context.Context, orderID uuid.UUID, opts ...TransitionOption) (*entity.Order, error) {
	return s.RequestTransition(ctx, orderID, entity.StatusDelivered, "delivered to customer", opts...)
}

// Create validates and persists a new order in status new, then publishes
// its first snapshot. Line items are immutable afterwards.
func (s *Service) Create(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return s.report(errorbank.BadRequest("order payload is required"))
	}
	ctx, span := serviceTracer.Start(ctx, "OrderService.Create")
	defer span.End()

	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.Status = entity.StatusNew
	if order.Total == 0 {
		order.Total = order.ItemsTotal()
	}
	if err := order.ValidateNew(); err != nil {
		return s.report(errorbank.BadRequest(err.Error()))
	}
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	if err := s.store.Create(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return s.report(errorbank.Internal("failed to create order", errorbank.WithCause(err)))
	}

	s.refreshCache(ctx, order)
	s.feed.Publish(order)
	s.publishStatusChanged(ctx, order, entity.StatusNew, "order created")
	return nil
}

// Get retrieves an order by id, consulting cache when available.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.String("order.id", id.String())))
	defer span.End()

	if order, err := s.getFromCache(ctx, id); err == nil {
		return order, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("orders cache read failed", zap.String("id", id.String()), zap.Error(err))
	}

	order, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, s.report(errorbank.NotFound("order not found"))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, s.report(errorbank.Internal("failed to load order", errorbank.WithCause(err)))
	}

	s.refreshCache(ctx, order)
	return order, nil
}

// List queries orders with the supplied filter.
func (s *Service) List(ctx context.Context, filter repo.Filter) ([]*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.List")
	defer span.End()

	orders, err := s.store.Query(ctx, filter)
	if err != nil {
		span.RecordError(err)
		return nil, s.report(errorbank.Internal("failed to list orders", errorbank.WithCause(err)))
	}
	return orders, nil
}

// Active lists the non-terminal orders in creation order.
func (s *Service) Active(ctx context.Context) ([]*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Active")
	defer span.End()

	orders, err := s.store.Active(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, s.report(errorbank.Internal("failed to list active orders", errorbank.WithCause(err)))
	}
	return orders, nil
}

// History returns the canonical transition history for an order.
func (s *Service) History(ctx context.Context, orderID uuid.UUID) ([]*entity.HistoryEntry, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.History", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	entries, err := s.ledger.QueryByOrder(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, s.report(errorbank.Internal("failed to load order history", errorbank.WithCause(err)))
	}
	return entries, nil
}

// AddNote appends an informational history entry without changing status.
// Permitted on settled orders too; it is the only mutation allowed there.
func (s *Service) AddNote(ctx context.Context, orderID uuid.UUID, note, actor string) error {
	if note == "" {
		return s.report(errorbank.BadRequest("note is required"))
	}
	ctx, span := serviceTracer.Start(ctx, "OrderService.AddNote", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return s.report(errorbank.NotFound("order not found"))
		}
		return s.report(errorbank.Internal("failed to load order", errorbank.WithCause(err)))
	}

	entry := &entity.HistoryEntry{
		OrderID:    orderID,
		FromStatus: order.Status,
		ToStatus:   order.Status,
		Note:       note,
		Actor:      actor,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.ledger.Append(ctx, entry); err != nil {
		span.RecordError(err)
		return s.report(errorbank.Internal("failed to append order note", errorbank.WithCause(err)))
	}
	return nil
}

// Subscribe attaches a view to the change feed. Reconnecting views pass
// feed.WithReplay to start from current canonical state.
func (s *Service) Subscribe(filter feed.Filter, handler feed.Handler, opts ...feed.SubscribeOption) func() {
	return s.feed.Subscribe(filter, handler, opts...)
}

func (s *Service) report(err error) error {
	if err != nil && s.sink != nil {
		s.sink(err)
	}
	return err
}

func (s *Service) publishStatusChanged(ctx context.Context, order *entity.Order, from entity.Status, note string) {
	if !s.messaging.enabled || s.publisher == nil {
		return
	}
	event := StatusChangedEvent{
		ID:         order.ID,
		Number:     order.Number,
		FromStatus: from,
		ToStatus:   order.Status,
		Note:       note,
		OccurredAt: order.UpdatedAt,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal status changed", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, []byte(order.ID.String()), payload); err != nil {
		s.logger.Error("publish status changed", zap.Error(err))
	}
}

func (s *Service) cacheKey(id uuid.UUID) string {
	return fmt.Sprintf("orders:%s", id)
}

func (s *Service) getFromCache(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
	if s.cache == nil {
		return nil, cache.ErrCacheMiss
	}
	bytes, err := s.cache.Get(ctx, s.cacheKey(id))
	if err != nil {
		return nil, err
	}
	var order entity.Order
	if err := json.Unmarshal(bytes, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Service) refreshCache(ctx context.Context, order *entity.Order) {
	if s.cache == nil || order == nil {
		return
	}
	bytes, err := json.Marshal(order)
	if err != nil {
		s.logger.Warn("orders cache encode failed", zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey(order.ID), bytes, s.cacheTTL); err != nil {
		s.logger.Warn("orders cache write failed", zap.String("id", order.ID.String()), zap.Error(err))
	}
}

// StatusChangedEvent is emitted on the bus for every committed transition.
type StatusChangedEvent struct {
	ID         uuid.UUID     `json:"id"`
	Number     int64         `json:"number"`
	FromStatus entity.Status `json:"from_status"`
	ToStatus   entity.Status `json:"to_status"`
	Note       string        `json:"note,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}
