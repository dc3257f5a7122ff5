package graphload

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"graphload/internal/dbexec"
	"graphload/internal/demux"
	"graphload/internal/planner"
)

// executeBatch plans and runs every captured request, then settles all
// of their futures at once. Fingerprints are evicted at settlement, so
// a later identical load re-queries instead of reusing a stale future.
// Any planning or execution failure rejects the entire captured batch.
func (l *Loader) executeBatch(batch []*loadRequest) {
	batchID := uuid.NewString()
	tracer := otel.Tracer("graphload")
	ctx, span := tracer.Start(context.Background(), "loader.flush",
		trace.WithAttributes(
			attribute.String("loader.batch.id", batchID),
			attribute.Int("loader.batch.size", len(batch)),
		))
	defer span.End()
	start := time.Now()

	results := make([]any, len(batch))
	err := l.runChunks(ctx, batch, results)

	l.mu.Lock()
	l.stats.Batches++
	if err != nil {
		l.stats.BatchFailures++
	}
	for _, req := range batch {
		delete(l.cache, req.fingerprint)
	}
	l.mu.Unlock()

	if err != nil {
		err = normalizeQueryError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		for _, req := range batch {
			req.thunk.settle(nil, err)
		}
		l.metrics.RecordBatch(ctx, len(batch), true)
		l.log.Error("flush failed",
			"batch_id", batchID,
			"size", len(batch),
			"error", err,
		)
		return
	}

	for i, req := range batch {
		req.thunk.settle(results[i], nil)
	}
	l.metrics.RecordBatch(ctx, len(batch), false)
	l.log.Debug("flush executed",
		"batch_id", batchID,
		"size", len(batch),
		"duration", time.Since(start),
	)
}

// runChunks runs the batch in MaxBatchSize chunks, each inside its own
// transaction so a single flush cannot hold an unbounded snapshot.
// Results are stashed rather than settled per chunk: a failure in any
// chunk must reject the whole captured batch.
func (l *Loader) runChunks(ctx context.Context, batch []*loadRequest, results []any) error {
	size := l.maxBatch
	if size <= 0 {
		size = len(batch)
	}
	for startIdx := 0; startIdx < len(batch); startIdx += size {
		end := startIdx + size
		if end > len(batch) {
			end = len(batch)
		}
		chunk := batch[startIdx:end]
		offset := startIdx
		err := dbexec.InTx(ctx, l.db, func(exec dbexec.QueryExecutor) error {
			for i, req := range chunk {
				result, err := l.runRequest(ctx, exec, req)
				if err != nil {
					return err
				}
				results[offset+i] = result
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// runRequest plans one request, executes it, and demultiplexes its raw
// rows into the request's result shape.
func (l *Loader) runRequest(ctx context.Context, exec dbexec.QueryExecutor, req *loadRequest) (any, error) {
	q, err := planner.Plan(l.reg, req.entity, req.sel, req.alias, req.condition)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", req.entity, err)
	}

	rows, err := exec.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", req.entity, err)
	}
	raw, scanErr := demux.ScanRows(rows, q.Columns)
	closeErr := rows.Close()
	if scanErr != nil {
		return nil, fmt.Errorf("scan %s: %w", req.entity, scanErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close %s rows: %w", req.entity, closeErr)
	}

	if req.isMany {
		entities, err := demux.Many(raw, q.Columns, req.alias, req.entity, l.reg)
		if err != nil {
			return nil, err
		}
		return entities, nil
	}

	entity, ok, err := demux.One(raw, q.Columns, req.alias, req.entity, l.reg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return entity, nil
}
