package backfill

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/ordesk/ordesk/internal/config"
)

// Module provides the backfill migrator and its Bun-backed stores to Fx.
var Module = fx.Options(
	fx.Provide(fx.Annotate(NewBunSource, fx.As(new(Source)))),
	fx.Provide(fx.Annotate(NewBunTarget, fx.As(new(Target)))),
	fx.Provide(NewMigrator),
)

// Document is a loosely-typed record in either layout. Every document
// carries an "id" field; the target write is keyed on it, which is what
// makes re-running the backfill idempotent.
type Document map[string]any

// WriteOp is one upsert against the new layout.
type WriteOp struct {
	Collection string
	ID         string
	Document   Document
}

// Source reads documents laid out under the legacy schema.
type Source interface {
	Read(ctx context.Context, collection string) ([]Document, error)
	Count(ctx context.Context, collection string) (int, error)
}

// Target writes documents into the new layout in batches.
type Target interface {
	BatchWrite(ctx context.Context, ops []WriteOp) error
	Count(ctx context.Context, collection string) (int, error)
}

// BatchFailure records a batch that kept failing after all retry attempts.
type BatchFailure struct {
	Collection string
	Start      int
	End        int
	Attempts   int
	Err        error
}

// Mismatch is a per-collection document count divergence found by Verify.
type Mismatch struct {
	Collection  string
	SourceCount int
	TargetCount int
}

// Report summarizes one backfill run.
type Report struct {
	Written  map[string]int
	Failures []BatchFailure
}

// schemaVersion stamps migrated documents so a later pass can tell the
// layouts apart.
const schemaVersion = 2

// Migrator copies legacy-layout documents into the new layout in fixed-size
// batches with a fixed inter-batch delay, respecting store-side throughput
// limits. It is a pure client of the persistence interface.
type Migrator struct {
	source Source
	target Target
	cfg    config.Backfill
	logger *zap.Logger
	now    func() time.Time
}

// NewMigrator wires a Migrator from configuration.
func NewMigrator(source Source, target Target, cfg config.Config, logger *zap.Logger) *Migrator {
	return &Migrator{
		source: source,
		target: target,
		cfg:    cfg.Backfill,
		logger: logger,
		now:    time.Now,
	}
}

// Run migrates the named collections. A batch that fails MaxAttempts times
// is recorded in the report's failure list and the rest of the run
// continues; the caller decides whether a partial run is acceptable.
func (m *Migrator) Run(ctx context.Context, collections []string) (*Report, error) {
	report := &Report{Written: make(map[string]int)}

	for _, collection := range collections {
		docs, err := m.source.Read(ctx, collection)
		if err != nil {
			return report, fmt.Errorf("read legacy %s: %w", collection, err)
		}

		for start := 0; start < len(docs); start += m.cfg.BatchSize {
			end := start + m.cfg.BatchSize
			if end > len(docs) {
				end = len(docs)
			}

			ops := make([]WriteOp, 0, end-start)
			for _, doc := range docs[start:end] {
				id, _ := doc["id"].(string)
				ops = append(ops, WriteOp{
					Collection: collection,
					ID:         id,
					Document:   m.remap(collection, doc),
				})
			}

			attempts, err := m.writeWithRetry(ctx, ops)
			if err != nil {
				m.logger.Error("backfill batch failed",
					zap.String("collection", collection),
					zap.Int("start", start),
					zap.Int("attempts", attempts),
					zap.Error(err),
				)
				report.Failures = append(report.Failures, BatchFailure{
					Collection: collection,
					Start:      start,
					End:        end,
					Attempts:   attempts,
					Err:        err,
				})
				continue
			}

			report.Written[collection] += len(ops)

			if end < len(docs) && m.cfg.BatchDelay > 0 {
				select {
				case <-time.After(m.cfg.BatchDelay):
				case <-ctx.Done():
					return report, ctx.Err()
				}
			}
		}

		m.logger.Info("collection backfilled",
			zap.String("collection", collection),
			zap.Int("written", report.Written[collection]),
			zap.Int("failures", len(report.Failures)),
		)
	}

	return report, nil
}

func (m *Migrator) writeWithRetry(ctx context.Context, ops []WriteOp) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		if err := m.target.BatchWrite(ctx, ops); err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return attempt, ctx.Err()
			}
			continue
		}
		return attempt, nil
	}
	return m.cfg.MaxAttempts, lastErr
}

// remap converts one legacy document into the new layout: the legacy
// partition key is dropped, the migration is stamped, and required fields
// missing per collection type are defaulted.
func (m *Migrator) remap(collection string, doc Document) Document {
	out := make(Document, len(doc)+2)
	for key, value := range doc {
		if key == "partition_key" {
			continue
		}
		out[key] = value
	}
	out["schema_version"] = schemaVersion
	out["migrated_at"] = m.now().UTC()

	switch collection {
	case "orders":
		if _, ok := out["status"]; !ok {
			out["status"] = "new"
		}
		if _, ok := out["items"]; !ok {
			out["items"] = []any{}
		}
		if _, ok := out["channel"]; !ok {
			out["channel"] = "pos"
		}
	case "order_history":
		if _, ok := out["note"]; !ok {
			out["note"] = ""
		}
	}
	return out
}

// Verify compares per-collection document counts between the old and new
// layouts. This count comparison is the only correctness check performed.
func (m *Migrator) Verify(ctx context.Context, collections []string) ([]Mismatch, error) {
	var mismatches []Mismatch
	for _, collection := range collections {
		sourceCount, err := m.source.Count(ctx, collection)
		if err != nil {
			return nil, fmt.Errorf("count legacy %s: %w", collection, err)
		}
		targetCount, err := m.target.Count(ctx, collection)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", collection, err)
		}
		if sourceCount != targetCount {
			mismatches = append(mismatches, Mismatch{
				Collection:  collection,
				SourceCount: sourceCount,
				TargetCount: targetCount,
			})
		}
	}
	return mismatches, nil
}
