package backfill_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ordesk/ordesk/internal/backfill"
	"github.com/ordesk/ordesk/internal/config"
)

type fakeSource struct {
	docs map[string][]backfill.Document
}

func (f *fakeSource) Read(_ context.Context, collection string) ([]backfill.Document, error) {
	return f.docs[collection], nil
}

func (f *fakeSource) Count(_ context.Context, collection string) (int, error) {
	return len(f.docs[collection]), nil
}

type fakeTarget struct {
	mu      sync.Mutex
	rows    map[string]map[string]backfill.Document
	batches [][]backfill.WriteOp

	// failRemaining makes the next N BatchWrite calls fail.
	failRemaining int
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{rows: make(map[string]map[string]backfill.Document)}
}

func (f *fakeTarget) BatchWrite(_ context.Context, ops []backfill.WriteOp) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failRemaining > 0 {
		f.failRemaining--
		return errors.New("write throttled")
	}

	f.batches = append(f.batches, ops)
	for _, op := range ops {
		if f.rows[op.Collection] == nil {
			f.rows[op.Collection] = make(map[string]backfill.Document)
		}
		// Keyed by original id; a rewrite of the same id is a no-op.
		if _, exists := f.rows[op.Collection][op.ID]; exists {
			continue
		}
		f.rows[op.Collection][op.ID] = op.Document
	}
	return nil
}

func (f *fakeTarget) Count(_ context.Context, collection string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows[collection]), nil
}

func legacyOrders(n int) []backfill.Document {
	docs := make([]backfill.Document, 0, n)
	for i := 0; i < n; i++ {
		docs = append(docs, backfill.Document{
			"id":            fmt.Sprintf("order-%03d", i),
			"partition_key": "restaurant-1",
			"total":         float64(10 + i),
		})
	}
	return docs
}

func newMigrator(source backfill.Source, target backfill.Target, batchSize, maxAttempts int) *backfill.Migrator {
	cfg := config.Config{
		Backfill: config.Backfill{
			BatchSize:   batchSize,
			BatchDelay:  time.Millisecond,
			MaxAttempts: maxAttempts,
		},
	}
	return backfill.NewMigrator(source, target, cfg, zap.NewNop())
}

func TestRun_BatchesAndRemaps(t *testing.T) {
	source := &fakeSource{docs: map[string][]backfill.Document{
		"orders": legacyOrders(25),
	}}
	target := newFakeTarget()

	report, err := newMigrator(source, target, 10, 3).Run(context.Background(), []string{"orders"})
	require.NoError(t, err)

	assert.Equal(t, 25, report.Written["orders"])
	assert.Empty(t, report.Failures)

	// 25 docs at batch size 10 means 10 + 10 + 5.
	require.Len(t, target.batches, 3)
	assert.Len(t, target.batches[0], 10)
	assert.Len(t, target.batches[2], 5)

	doc := target.rows["orders"]["order-000"]
	require.NotNil(t, doc)
	assert.NotContains(t, doc, "partition_key")
	assert.Equal(t, 2, doc["schema_version"])
	assert.Equal(t, "new", doc["status"])
	assert.Equal(t, "pos", doc["channel"])
	assert.Contains(t, doc, "migrated_at")
}

func TestRun_RemapKeepsExistingFields(t *testing.T) {
	source := &fakeSource{docs: map[string][]backfill.Document{
		"orders": {{
			"id":     "order-000",
			"status": "delivered",
			"items":  []any{map[string]any{"name": "Margherita"}},
		}},
	}}
	target := newFakeTarget()

	_, err := newMigrator(source, target, 10, 1).Run(context.Background(), []string{"orders"})
	require.NoError(t, err)

	doc := target.rows["orders"]["order-000"]
	assert.Equal(t, "delivered", doc["status"])
	assert.Len(t, doc["items"], 1)
}

func TestRun_RetriesThenSucceeds(t *testing.T) {
	source := &fakeSource{docs: map[string][]backfill.Document{
		"orders": legacyOrders(5),
	}}
	target := newFakeTarget()
	target.failRemaining = 2

	report, err := newMigrator(source, target, 10, 3).Run(context.Background(), []string{"orders"})
	require.NoError(t, err)

	assert.Equal(t, 5, report.Written["orders"])
	assert.Empty(t, report.Failures)
	require.Len(t, target.batches, 1)
}

func TestRun_RecordsExhaustedBatch(t *testing.T) {
	source := &fakeSource{docs: map[string][]backfill.Document{
		"orders": legacyOrders(15),
	}}
	target := newFakeTarget()
	// First batch burns all three attempts; the second batch goes through.
	target.failRemaining = 3

	report, err := newMigrator(source, target, 10, 3).Run(context.Background(), []string{"orders"})
	require.NoError(t, err)

	assert.Equal(t, 5, report.Written["orders"])
	require.Len(t, report.Failures, 1)
	failure := report.Failures[0]
	assert.Equal(t, "orders", failure.Collection)
	assert.Equal(t, 0, failure.Start)
	assert.Equal(t, 10, failure.End)
	assert.Equal(t, 3, failure.Attempts)
	assert.Error(t, failure.Err)
}

func TestRun_RerunIsIdempotent(t *testing.T) {
	source := &fakeSource{docs: map[string][]backfill.Document{
		"orders":        legacyOrders(8),
		"order_history": {{"id": "h-1", "order_id": "order-000"}},
	}}
	target := newFakeTarget()
	migrator := newMigrator(source, target, 4, 2)
	collections := []string{"orders", "order_history"}

	_, err := migrator.Run(context.Background(), collections)
	require.NoError(t, err)
	_, err = migrator.Run(context.Background(), collections)
	require.NoError(t, err)

	count, err := target.Count(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, 8, count)

	mismatches, err := migrator.Verify(context.Background(), collections)
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

func TestVerify_ReportsMismatch(t *testing.T) {
	source := &fakeSource{docs: map[string][]backfill.Document{
		"orders": legacyOrders(6),
	}}
	target := newFakeTarget()

	mismatches, err := newMigrator(source, target, 10, 1).Verify(context.Background(), []string{"orders"})
	require.NoError(t, err)

	require.Len(t, mismatches, 1)
	assert.Equal(t, "orders", mismatches[0].Collection)
	assert.Equal(t, 6, mismatches[0].SourceCount)
	assert.Equal(t, 0, mismatches[0].TargetCount)
}
