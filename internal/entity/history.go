package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// HistoryEntry records one accepted status transition (or an informational
// note on a settled order). Entries are append-only and never mutated.
type HistoryEntry struct {
	bun.BaseModel `bun:"table:order_history"`

	ID         int64     `bun:",pk,autoincrement"`
	OrderID    uuid.UUID `bun:"order_id,type:uuid"`
	FromStatus Status    `bun:"from_status"`
	ToStatus   Status    `bun:"to_status"`
	Note       string    `bun:"note,nullzero"`
	Actor      string    `bun:"actor,nullzero"`
	OccurredAt time.Time `bun:"occurred_at,notnull"`
}
