package history

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ordesk/ordesk/internal/database"
	"github.com/ordesk/ordesk/internal/entity"
)

var repoTracer = otel.Tracer("github.com/ordesk/ordesk/repository/history")

// Repository is the append-only transition ledger. No update or delete is
// exposed; entries are deduplicated on (order_id, to_status, occurred_at) so
// at-least-once retries never double-append.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires the ledger against the configured connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// Append records one accepted transition. Idempotent under retry.
func (r *Repository) Append(ctx context.Context, entry *entity.HistoryEntry) error {
	if entry == nil {
		return errors.New("nil history entry")
	}
	ctx, span := repoTracer.Start(ctx, "HistoryRepository.Append", trace.WithAttributes(
		attribute.String("order.id", entry.OrderID.String()),
		attribute.String("order.status", string(entry.ToStatus)),
	))
	defer span.End()

	_, err := r.writer.NewInsert().
		Model(entry).
		On("CONFLICT (order_id, to_status, occurred_at) DO NOTHING").
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// QueryByOrder returns the canonical transition history for an order,
// ordered by occurrence time ascending.
func (r *Repository) QueryByOrder(ctx context.Context, orderID uuid.UUID) ([]*entity.HistoryEntry, error) {
	ctx, span := repoTracer.Start(ctx, "HistoryRepository.QueryByOrder", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	var entries []*entity.HistoryEntry
	err := r.reader.NewSelect().
		Model(&entries).
		Where("order_id = ?", orderID).
		Order("occurred_at ASC").
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return entries, nil
}
