// Package graphload is a request-coalescing, caching data-loader that
// sits between a GraphQL resolution layer and a relational store. Load
// requests issued within one coalescing window are folded into a single
// flush: each distinct request plans one minimal projected query, every
// query of the flush runs inside one transaction, and the flat result
// rows are demultiplexed back into nested entities per request.
//
// A Loader owns a request-scoped cache with no tenant isolation.
// Create one per logical session (one GraphQL request, one job) and
// never share it across unrelated callers.
package graphload

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"

	"graphload/internal/fingerprint"
	"graphload/internal/logging"
	"graphload/internal/observability"
	"graphload/schema"
	"graphload/selection"
)

// Entity is a loaded entity value: scalar columns keyed by property
// name, with nested Entity ([]Entity for to-many) relation values.
type Entity = map[string]any

// DefaultFlushWindow is the coalescing window used when Options does
// not set one: long enough for a resolver burst to enqueue its loads,
// short enough to be invisible next to a database round-trip.
const DefaultFlushWindow = 500 * time.Microsecond

// Options configures a Loader.
type Options struct {
	// DB is the database handle batches run against.
	DB *sql.DB
	// Registry supplies entity metadata. It must be validated and is
	// never mutated by the loader.
	Registry *schema.Registry
	// FlushWindow overrides DefaultFlushWindow.
	FlushWindow time.Duration
	// MaxBatchSize splits oversized flushes into successive
	// transactions. Zero means unbounded.
	MaxBatchSize int
	// Logger defaults to the process-wide slog default.
	Logger *logging.Logger
	// Metrics is optional; nil disables instrumentation.
	Metrics *observability.LoaderMetrics
}

// Stats is a snapshot of loader counters.
type Stats struct {
	CacheHits     uint64
	CacheMisses   uint64
	Batches       uint64
	BatchFailures uint64
}

// loadRequest is one enqueued fetch. It is owned by the scheduler
// until a flush captures it, and is immutable afterwards.
type loadRequest struct {
	isMany      bool
	fingerprint string
	alias       string
	entity      string
	condition   map[string]any
	sel         *selection.Tree
	thunk       *thunk
	order       int
}

// Loader accumulates load requests, deduplicates them by fingerprint,
// and drains them in coalesced batches.
type Loader struct {
	db       *sql.DB
	reg      *schema.Registry
	window   time.Duration
	maxBatch int
	log      *logging.Logger
	metrics  *observability.LoaderMetrics

	mu      sync.Mutex
	cache   map[string]*thunk
	pending []*loadRequest
	timer   *time.Timer
	seq     int
	closed  bool
	stats   Stats
	flushWG sync.WaitGroup
}

// New creates a loader for one logical session.
func New(opts Options) *Loader {
	window := opts.FlushWindow
	if window <= 0 {
		window = DefaultFlushWindow
	}
	log := opts.Logger
	if log == nil {
		log = logging.FromContext(context.Background())
	}
	return &Loader{
		db:       opts.DB,
		reg:      opts.Registry,
		window:   window,
		maxBatch: opts.MaxBatchSize,
		log:      log.WithFields("loader_session", uuid.NewString()),
		metrics:  opts.Metrics,
		cache:    make(map[string]*thunk),
	}
}

// LoadOne requests the first entity matching the equality condition,
// shaped by sel (nil sel selects all columns and relations). Identical
// requests issued before the flush share one future and one query.
func (l *Loader) LoadOne(ctx context.Context, entity string, condition map[string]any, sel *selection.Tree) *OneResult {
	return &OneResult{t: l.enqueue(ctx, entity, condition, sel, false)}
}

// LoadMany requests every entity matching the equality condition.
func (l *Loader) LoadMany(ctx context.Context, entity string, condition map[string]any, sel *selection.Tree) *ManyResult {
	return &ManyResult{t: l.enqueue(ctx, entity, condition, sel, true)}
}

// BatchLoadMany fans LoadOne out over each condition; coalescing takes
// care of batching them into one flush. Results align element-wise
// with the input conditions.
func (l *Loader) BatchLoadMany(ctx context.Context, entity string, conditions []map[string]any, sel *selection.Tree) *BatchResult {
	results := make([]*OneResult, len(conditions))
	for i, condition := range conditions {
		results[i] = l.LoadOne(ctx, entity, condition, sel)
	}
	return &BatchResult{results: results}
}

// Clear evicts every cache entry unconditionally. Batches already
// handed to the executor still settle their own requests.
func (l *Loader) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[string]*thunk)
}

// Stats returns a snapshot of the loader counters.
func (l *Loader) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Close stops the flush timer and rejects still-pending requests with
// ErrLoaderClosed. It waits for flushes already running. Loads issued
// after Close fail fast.
func (l *Loader) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	pending := l.pending
	l.pending = nil
	for _, req := range pending {
		delete(l.cache, req.fingerprint)
	}
	l.mu.Unlock()

	for _, req := range pending {
		req.thunk.settle(nil, ErrLoaderClosed)
	}
	l.flushWG.Wait()
}

func (l *Loader) enqueue(ctx context.Context, entity string, condition map[string]any, sel *selection.Tree, isMany bool) *thunk {
	l.metrics.RecordLoad(ctx, entity)

	kind := "one"
	if isMany {
		kind = "many"
	}
	// The result shape is part of request identity, so a LoadOne and a
	// LoadMany with equal condition and selection never collide.
	fp := fingerprint.Compute(kind+":"+entity, condition, sel)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return settledThunk(nil, ErrLoaderClosed)
	}

	if t, ok := l.cache[fp]; ok {
		l.stats.CacheHits++
		l.metrics.RecordCacheHit(ctx)
		return t
	}
	l.stats.CacheMisses++
	l.metrics.RecordCacheMiss(ctx)

	t := newThunk()
	l.cache[fp] = t
	l.pending = append(l.pending, &loadRequest{
		isMany:      isMany,
		fingerprint: fp,
		alias:       fingerprint.Alias(fp),
		entity:      entity,
		condition:   condition,
		sel:         sel,
		thunk:       t,
		order:       l.seq,
	})
	l.seq++
	l.armFlush()
	return t
}

// armFlush cancels any armed flush timer and arms a new one: the
// single-slot debounce that makes the whole enqueue burst land in the
// same flush.
func (l *Loader) armFlush() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer.Reset(l.window)
		return
	}
	l.timer = time.AfterFunc(l.window, l.flush)
}

// flush atomically captures the pending queue; requests enqueued while
// the batch executes start a fresh queue and flush cycle.
func (l *Loader) flush() {
	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	l.timer = nil
	if len(batch) == 0 || l.closed {
		l.mu.Unlock()
		return
	}
	l.flushWG.Add(1)
	l.mu.Unlock()

	defer l.flushWG.Done()
	l.executeBatch(batch)
}
