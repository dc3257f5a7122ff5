package graphload

import (
	"context"
	"sync"
)

// thunk is the pending-or-settled future stored in the cache. It is
// settled exactly once; all single-flight callers share it.
type thunk struct {
	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

func newThunk() *thunk {
	return &thunk{done: make(chan struct{})}
}

func settledThunk(value any, err error) *thunk {
	t := newThunk()
	t.settle(value, err)
	return t
}

func (t *thunk) settle(value any, err error) {
	t.once.Do(func() {
		t.value = value
		t.err = err
		close(t.done)
	})
}

func (t *thunk) wait(ctx context.Context) (any, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// OneResult is the future returned by LoadOne. Absence resolves to a
// nil Entity with no error.
type OneResult struct {
	t *thunk
}

// Get blocks until the flush settles the request. The context only
// bounds the wait; an enqueued request cannot be withdrawn.
func (r *OneResult) Get(ctx context.Context) (Entity, error) {
	value, err := r.t.wait(ctx)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}
	return value.(Entity), nil
}

// ManyResult is the future returned by LoadMany. A condition matching
// zero rows resolves to an empty slice.
type ManyResult struct {
	t *thunk
}

// Get blocks until the flush settles the request.
func (r *ManyResult) Get(ctx context.Context) ([]Entity, error) {
	value, err := r.t.wait(ctx)
	if err != nil {
		return nil, err
	}
	entities, _ := value.([]Entity)
	if entities == nil {
		entities = []Entity{}
	}
	return entities, nil
}

// BatchResult is the future returned by BatchLoadMany: the element-wise
// fan-out of LoadOne over the input conditions.
type BatchResult struct {
	results []*OneResult
}

// Get blocks until every fanned-out request settles and returns the
// entities aligned with the input conditions, nil for no match. Any
// rejected element rejects the whole result.
func (r *BatchResult) Get(ctx context.Context) ([]Entity, error) {
	entities := make([]Entity, len(r.results))
	for i, result := range r.results {
		entity, err := result.Get(ctx)
		if err != nil {
			return nil, err
		}
		entities[i] = entity
	}
	return entities, nil
}
