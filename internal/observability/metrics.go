package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// LoaderMetrics holds custom metrics for loader operations.
type LoaderMetrics struct {
	loadCounter   metric.Int64Counter
	cacheHits     metric.Int64Counter
	cacheMisses   metric.Int64Counter
	batchCounter  metric.Int64Counter
	batchFailures metric.Int64Counter
	batchSize     metric.Int64Histogram
}

// InitLoaderMetrics initializes loader-specific metrics on the global
// meter provider.
func InitLoaderMetrics() (*LoaderMetrics, error) {
	meter := otel.Meter("graphload")

	loadCounter, err := meter.Int64Counter(
		"loader.requests",
		metric.WithDescription("Number of load requests issued"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	cacheHits, err := meter.Int64Counter(
		"loader.cache.hits",
		metric.WithDescription("Load requests served from the request-scoped cache"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache hit counter: %w", err)
	}

	cacheMisses, err := meter.Int64Counter(
		"loader.cache.misses",
		metric.WithDescription("Load requests that enqueued a new fetch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache miss counter: %w", err)
	}

	batchCounter, err := meter.Int64Counter(
		"loader.batches",
		metric.WithDescription("Number of executed flush batches"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch counter: %w", err)
	}

	batchFailures, err := meter.Int64Counter(
		"loader.batch.failures",
		metric.WithDescription("Number of flush batches rejected as a whole"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch failure counter: %w", err)
	}

	batchSize, err := meter.Int64Histogram(
		"loader.batch.size",
		metric.WithDescription("Number of coalesced requests per flush batch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch size histogram: %w", err)
	}

	return &LoaderMetrics{
		loadCounter:   loadCounter,
		cacheHits:     cacheHits,
		cacheMisses:   cacheMisses,
		batchCounter:  batchCounter,
		batchFailures: batchFailures,
		batchSize:     batchSize,
	}, nil
}

// RecordLoad counts one issued load request.
func (m *LoaderMetrics) RecordLoad(ctx context.Context, entity string) {
	if m == nil {
		return
	}
	m.loadCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("loader.entity", entity)))
}

// RecordCacheHit counts a single-flight cache hit.
func (m *LoaderMetrics) RecordCacheHit(ctx context.Context) {
	if m == nil {
		return
	}
	m.cacheHits.Add(ctx, 1)
}

// RecordCacheMiss counts a newly enqueued fetch.
func (m *LoaderMetrics) RecordCacheMiss(ctx context.Context) {
	if m == nil {
		return
	}
	m.cacheMisses.Add(ctx, 1)
}

// RecordBatch records one executed flush and its coalesced size.
func (m *LoaderMetrics) RecordBatch(ctx context.Context, size int, failed bool) {
	if m == nil {
		return
	}
	m.batchCounter.Add(ctx, 1)
	m.batchSize.Record(ctx, int64(size))
	if failed {
		m.batchFailures.Add(ctx, 1)
	}
}
