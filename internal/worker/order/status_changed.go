package order

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/ordesk/ordesk/internal/config"
	"github.com/ordesk/ordesk/internal/entity"
	"github.com/ordesk/ordesk/internal/messaging"
	ordersvc "github.com/ordesk/ordesk/internal/service/order"
	"github.com/ordesk/ordesk/internal/worker"
)

var workerTracer = otel.Tracer("github.com/ordesk/ordesk/worker/order")

// Module registers order-related worker handlers.
var Module = fx.Module("worker_order",
	fx.Provide(NewAggregates),
	fx.Provide(
		fx.Annotate(
			NewStatusChangedHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
	fx.Invoke(func(aggregates *Aggregates) error {
		return aggregates.Register(prometheus.DefaultRegisterer)
	}),
)

// Aggregates is the dashboard projection: order counts per status, rebuilt
// from the status-changed stream rather than queried from the store.
type Aggregates struct {
	mu     sync.Mutex
	counts map[entity.Status]int64
	gauge  *prometheus.GaugeVec
}

// NewAggregates constructs an empty projection.
func NewAggregates() *Aggregates {
	return &Aggregates{
		counts: make(map[entity.Status]int64),
		gauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ordesk",
			Name:      "orders_by_status",
			Help:      "Number of orders currently in each status.",
		}, []string{"status"}),
	}
}

// Register attaches the projection's gauge to a prometheus registry.
func (a *Aggregates) Register(r prometheus.Registerer) error {
	return r.Register(a.gauge)
}

// Apply folds one transition into the projection.
func (a *Aggregates) Apply(event ordersvc.StatusChangedEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if event.FromStatus != event.ToStatus {
		if a.counts[event.FromStatus] > 0 {
			a.counts[event.FromStatus]--
		}
		a.gauge.WithLabelValues(string(event.FromStatus)).Set(float64(a.counts[event.FromStatus]))
	}
	a.counts[event.ToStatus]++
	a.gauge.WithLabelValues(string(event.ToStatus)).Set(float64(a.counts[event.ToStatus]))
}

// Counts returns a copy of the per-status totals.
func (a *Aggregates) Counts() map[entity.Status]int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[entity.Status]int64, len(a.counts))
	for status, n := range a.counts {
		out[status] = n
	}
	return out
}

// NewStatusChangedHandler folds status-changed events into the dashboard
// aggregates.
func NewStatusChangedHandler(logger *zap.Logger, cfg config.Config, aggregates *Aggregates) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.orders.statusChanged", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var event ordersvc.StatusChangedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("failed to decode status changed", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}

		aggregates.Apply(event)

		logger.Info("status change projected",
			zap.String("id", event.ID.String()),
			zap.Int64("number", event.Number),
			zap.String("from", string(event.FromStatus)),
			zap.String("to", string(event.ToStatus)),
		)

		return nil
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: handler,
	}
}
