package query

import (
	"context"
	"sync"
)

// Getter is the detail operation of a resource service.
type Getter[T any] interface {
	Resource() string
	Get(ctx context.Context, id string) (T, error)
}

// DetailQuery keeps one record subscribed in the cache. It always fetches
// when it subscribes, so callers see the latest server state even when the
// entry was seeded from a list page. An empty id suspends it.
type DetailQuery[T any] struct {
	svc Getter[T]
	obs *observer[T]

	mu      sync.Mutex
	id      string
	enabled bool
}

// NewDetailQuery subscribes to record id.
func NewDetailQuery[T any](c *Cache, svc Getter[T], id string, opts ...Option) *DetailQuery[T] {
	st := settings{enabled: true}
	for _, o := range opts {
		o.apply(&st)
	}
	q := &DetailQuery[T]{svc: svc, id: id, enabled: st.enabled}
	opts = append(opts, Enabled(st.enabled && id != ""))
	q.obs = newObserver[T](c, DetailKey(svc.Resource(), id), q.fetcher(id), true, opts)
	return q
}

func (q *DetailQuery[T]) fetcher(id string) Fetcher {
	return func(ctx context.Context) (any, error) {
		v, err := q.svc.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// ID returns the current record id.
func (q *DetailQuery[T]) ID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.id
}

// SetID switches to another record.
func (q *DetailQuery[T]) SetID(id string) bool {
	q.mu.Lock()
	q.id = id
	enabled := q.enabled && id != ""
	q.mu.Unlock()

	if !enabled {
		q.obs.setEnabled(false)
	}
	changed := q.obs.setKey(DetailKey(q.svc.Resource(), id), q.fetcher(id))
	q.obs.setEnabled(enabled)
	return changed
}

// SetEnabled suspends or resumes fetching.
func (q *DetailQuery[T]) SetEnabled(b bool) {
	q.mu.Lock()
	q.enabled = b
	enabled := b && q.id != ""
	q.mu.Unlock()
	q.obs.setEnabled(enabled)
}

// Result returns the latest result.
func (q *DetailQuery[T]) Result() Result[T] { return q.obs.result() }

// Refetch fetches the record now.
func (q *DetailQuery[T]) Refetch(ctx context.Context) error { return q.obs.refetch(ctx) }

// Wait blocks until the record is settled.
func (q *DetailQuery[T]) Wait(ctx context.Context) (Result[T], error) { return q.obs.wait(ctx) }

// Close unsubscribes. It waits for a running OnChange call, so it must not
// be called from one; no OnChange call starts after it returns.
func (q *DetailQuery[T]) Close() { q.obs.close() }
