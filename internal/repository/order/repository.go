package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ordesk/ordesk/internal/database"
	"github.com/ordesk/ordesk/internal/entity"
)

var repoTracer = otel.Tracer("github.com/ordesk/ordesk/repository/order")

// ErrNotFound is returned when an order is missing.
var ErrNotFound = errors.New("order not found")

// ErrStatusConflict is returned when a conditional status update finds the
// stored status no longer matches the expected one.
var ErrStatusConflict = errors.New("order status changed concurrently")

// Filter narrows order queries.
type Filter struct {
	Statuses    []entity.Status
	Fulfillment entity.FulfillmentMethod
	Channel     string
	Limit       int
}

// Repository encapsulates read/write access for orders.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// Create persists a new order, assigning the next sequential display number.
func (r *Repository) Create(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create", trace.WithAttributes(attribute.String("order.id", order.ID.String())))
	defer span.End()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var next int64
		if err := tx.NewSelect().
			Model((*entity.Order)(nil)).
			ColumnExpr("coalesce(max(number), 0) + 1").
			Scan(ctx, &next); err != nil {
			return err
		}
		order.Number = next
		_, err := tx.NewInsert().Model(order).Exec(ctx)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// GetByID fetches an order by primary key using the read replica when available.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(attribute.String("order.id", id.String())))
	defer span.End()

	order := new(entity.Order)
	err := r.reader.NewSelect().Model(order).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}

// Query lists orders matching the filter, newest first.
func (r *Repository) Query(ctx context.Context, filter Filter) ([]*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Query")
	defer span.End()

	var orders []*entity.Order
	q := r.reader.NewSelect().Model(&orders)
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(filter.Statuses))
	}
	if filter.Fulfillment != "" {
		q = q.Where("fulfillment = ?", filter.Fulfillment)
	}
	if filter.Channel != "" {
		q = q.Where("channel = ?", filter.Channel)
	}
	q = q.Order("created_at DESC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	if err := q.Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return orders, nil
}

// Active lists non-terminal orders in creation order, which is the stable
// application order the kitchen display distributes over its columns.
func (r *Repository) Active(ctx context.Context) ([]*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Active")
	defer span.End()

	var orders []*entity.Order
	err := r.reader.NewSelect().
		Model(&orders).
		Where("status IN (?)", bun.In(entity.ActiveStatuses())).
		Order("created_at ASC").
		Order("number ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return orders, nil
}

// UpdateStatus performs a conditional write: the status only changes if the
// stored value still matches expected. ErrStatusConflict signals a lost race
// with another writer, which may live in a different process entirely.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, to, expected entity.Status) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.UpdateStatus", trace.WithAttributes(
		attribute.String("order.id", id.String()),
		attribute.String("order.status", string(to)),
	))
	defer span.End()

	res, err := r.writer.NewUpdate().
		Model((*entity.Order)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", expected).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		span.RecordError(err)
		return err
	}
	if affected == 0 {
		exists, err := r.writer.NewSelect().
			Model((*entity.Order)(nil)).
			Where("id = ?", id).
			Exists(ctx)
		if err != nil {
			span.RecordError(err)
			return err
		}
		if !exists {
			span.SetStatus(codes.Error, "not found")
			return ErrNotFound
		}
		span.SetStatus(codes.Error, "stale status")
		return ErrStatusConflict
	}
	return nil
}
