package backfill

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/ordesk/ordesk/internal/database"
)

// legacyPrefix names the tables holding the pre-migration layout.
const legacyPrefix = "legacy_"

// BunSource reads legacy-layout rows through Bun.
type BunSource struct {
	db *bun.DB
}

// NewBunSource reads from the reader pool; the legacy tables are never
// written during a backfill.
func NewBunSource(conns *database.Connections) *BunSource {
	return &BunSource{db: conns.Reader}
}

func (s *BunSource) Read(ctx context.Context, collection string) ([]Document, error) {
	var rows []map[string]any
	if err := s.db.NewSelect().
		Table(legacyPrefix+collection).
		OrderExpr("id ASC").
		Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("scan %s%s: %w", legacyPrefix, collection, err)
	}

	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, Document(row))
	}
	return docs, nil
}

func (s *BunSource) Count(ctx context.Context, collection string) (int, error) {
	return s.db.NewSelect().Table(legacyPrefix + collection).Count(ctx)
}

// BunTarget writes new-layout rows through Bun.
type BunTarget struct {
	db *bun.DB
}

// NewBunTarget writes through the writer pool.
func NewBunTarget(conns *database.Connections) *BunTarget {
	return &BunTarget{db: conns.Writer}
}

// BatchWrite upserts one batch in a single transaction. Conflicts on the
// original document id are skipped, so a re-run never duplicates rows.
func (t *BunTarget) BatchWrite(ctx context.Context, ops []WriteOp) error {
	return t.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, op := range ops {
			doc := map[string]any(op.Document)
			if _, err := tx.NewInsert().
				Model(&doc).
				Table(op.Collection).
				On("CONFLICT (id) DO NOTHING").
				Exec(ctx); err != nil {
				return fmt.Errorf("insert %s %s: %w", op.Collection, op.ID, err)
			}
		}
		return nil
	})
}

func (t *BunTarget) Count(ctx context.Context, collection string) (int, error) {
	return t.db.NewSelect().Table(collection).Count(ctx)
}
