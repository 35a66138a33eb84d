package kds

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/fx"

	"github.com/ordesk/ordesk/internal/config"
)

// Module provides the kitchen display board to Fx.
var Module = fx.Provide(NewBoard)

// Assign maps the i-th active order onto column i mod columnCount (0-based).
// The function is pure and idempotent: the same active list and column count
// always yield the same assignment. An empty list yields an empty map.
func Assign(activeOrderIDs []uuid.UUID, columnCount int) (map[uuid.UUID]int, error) {
	if columnCount <= 0 {
		return nil, fmt.Errorf("column count must be positive, got %d", columnCount)
	}
	assignment := make(map[uuid.UUID]int, len(activeOrderIDs))
	for i, id := range activeOrderIDs {
		assignment[id] = i % columnCount
	}
	return assignment, nil
}

// Board tracks the kitchen display layout: the deterministic assignment over
// the active order list plus manual drag overrides. Overrides survive until
// the next full recomputation, which deliberately discards them.
type Board struct {
	mu          sync.Mutex
	columnCount int
	assignment  map[uuid.UUID]int
	overrides   map[uuid.UUID]int
}

// NewBoard builds a Board with the configured column count.
func NewBoard(cfg config.Config) (*Board, error) {
	if cfg.Board.Columns <= 0 {
		return nil, fmt.Errorf("invalid KDS column count: %d", cfg.Board.Columns)
	}
	return &Board{
		columnCount: cfg.Board.Columns,
		assignment:  make(map[uuid.UUID]int),
		overrides:   make(map[uuid.UUID]int),
	}, nil
}

// Columns returns the current column count.
func (b *Board) Columns() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.columnCount
}

// Recompute redistributes all active orders from scratch and clears every
// manual override.
func (b *Board) Recompute(activeOrderIDs []uuid.UUID, columnCount int) error {
	assignment, err := Assign(activeOrderIDs, columnCount)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.columnCount = columnCount
	b.assignment = assignment
	b.overrides = make(map[uuid.UUID]int)
	return nil
}

// Move records a manual drag placement for a single order. It does not
// trigger a recomputation of the other orders.
func (b *Board) Move(orderID uuid.UUID, column int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if column < 0 || column >= b.columnCount {
		return fmt.Errorf("column %d out of range [0,%d)", column, b.columnCount)
	}
	b.overrides[orderID] = column
	return nil
}

// Forget drops any state held for an order, typically once it reaches a
// terminal status and leaves the grid.
func (b *Board) Forget(orderID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.overrides, orderID)
	delete(b.assignment, orderID)
}

// View resolves the column for each requested order, preferring manual
// overrides over the deterministic assignment. Orders unknown to the board
// (created after the last recompute) are placed by the mod formula over the
// supplied list.
func (b *Board) View(activeOrderIDs []uuid.UUID) map[uuid.UUID]int {
	b.mu.Lock()
	defer b.mu.Unlock()

	view := make(map[uuid.UUID]int, len(activeOrderIDs))
	for i, id := range activeOrderIDs {
		if col, ok := b.overrides[id]; ok {
			view[id] = col
			continue
		}
		if col, ok := b.assignment[id]; ok {
			view[id] = col
			continue
		}
		view[id] = i % b.columnCount
	}
	return view
}
