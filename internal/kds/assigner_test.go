package kds_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordesk/ordesk/internal/config"
	"github.com/ordesk/ordesk/internal/kds"
)

func ids(n int) []uuid.UUID {
	out := make([]uuid.UUID, n)
	for i := range out {
		out[i] = uuid.New()
	}
	return out
}

func newBoard(t *testing.T, columns int) *kds.Board {
	t.Helper()
	cfg := config.Config{}
	cfg.Board.Columns = columns
	board, err := kds.NewBoard(cfg)
	require.NoError(t, err)
	return board
}

func TestAssign_ModDistribution(t *testing.T) {
	active := ids(7)
	assignment, err := kds.Assign(active, 3)
	require.NoError(t, err)

	// 7 active orders over 3 columns: [1,2,3,1,2,3,1] in 1-based columns.
	want := []int{0, 1, 2, 0, 1, 2, 0}
	for i, id := range active {
		assert.Equal(t, want[i], assignment[id], "order index %d", i)
	}
}

func TestAssign_Idempotent(t *testing.T) {
	active := ids(11)
	first, err := kds.Assign(active, 4)
	require.NoError(t, err)
	second, err := kds.Assign(active, 4)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAssign_EmptyList(t *testing.T) {
	assignment, err := kds.Assign(nil, 3)
	require.NoError(t, err)
	assert.Empty(t, assignment)
}

func TestAssign_RejectsNonPositiveColumns(t *testing.T) {
	_, err := kds.Assign(ids(2), 0)
	require.Error(t, err)
	_, err = kds.Assign(ids(2), -1)
	require.Error(t, err)
}

func TestBoard_MoveOverridesSingleOrder(t *testing.T) {
	board := newBoard(t, 3)
	active := ids(4)
	require.NoError(t, board.Recompute(active, 3))

	require.NoError(t, board.Move(active[0], 2))

	view := board.View(active)
	assert.Equal(t, 2, view[active[0]], "dragged order uses its override")
	assert.Equal(t, 1, view[active[1]], "other orders keep their computed column")
	assert.Equal(t, 2, view[active[2]])
	assert.Equal(t, 0, view[active[3]])
}

func TestBoard_RecomputeDiscardsOverrides(t *testing.T) {
	board := newBoard(t, 3)
	active := ids(5)
	require.NoError(t, board.Recompute(active, 3))
	require.NoError(t, board.Move(active[4], 0))

	// Changing the column count redistributes everything from scratch.
	require.NoError(t, board.Recompute(active, 2))

	view := board.View(active)
	for i, id := range active {
		assert.Equal(t, i%2, view[id], "order index %d", i)
	}
	assert.Equal(t, 2, board.Columns())
}

func TestBoard_MoveRejectsOutOfRangeColumn(t *testing.T) {
	board := newBoard(t, 2)
	require.Error(t, board.Move(uuid.New(), 2))
	require.Error(t, board.Move(uuid.New(), -1))
}

func TestBoard_ViewPlacesUnknownOrders(t *testing.T) {
	board := newBoard(t, 3)
	seeded := ids(3)
	require.NoError(t, board.Recompute(seeded, 3))

	// A freshly created order not yet recomputed still lands in a lane.
	withNew := append(append([]uuid.UUID{}, seeded...), uuid.New())
	view := board.View(withNew)
	assert.Equal(t, 0, view[withNew[3]])
}

func TestNewBoard_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Config{}
	cfg.Board.Columns = 0
	_, err := kds.NewBoard(cfg)
	require.Error(t, err)
}
