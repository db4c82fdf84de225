package query

import (
	"context"

	"github.com/tbourn/restaurant-backoffice/internal/api"
)

// Lister is the list operation of a resource service.
type Lister[T any] interface {
	Resource() string
	List(ctx context.Context, p api.ListParams) (api.ListResponse[T], error)
}

// ListQuery keeps one list page of a resource subscribed in the cache.
// Successful fetches seed the detail entries of their rows.
type ListQuery[T Record] struct {
	cache *Cache
	svc   Lister[T]
	obs   *observer[api.ListResponse[T]]
}

// NewListQuery subscribes to the page described by params.
func NewListQuery[T Record](c *Cache, svc Lister[T], params api.ListParams, opts ...Option) *ListQuery[T] {
	q := &ListQuery[T]{cache: c, svc: svc}
	p := params.Clone()
	q.obs = newObserver[api.ListResponse[T]](c, ListKey(svc.Resource(), p), q.fetcher(p), false, opts)
	return q
}

func (q *ListQuery[T]) fetcher(p api.ListParams) Fetcher {
	resource := q.svc.Resource()
	return func(ctx context.Context) (any, error) {
		resp, err := q.svc.List(ctx, p)
		if err != nil {
			return nil, err
		}
		seeds := make(map[Key]any, len(resp.Data))
		for _, row := range resp.Data {
			seeds[DetailKey(resource, row.EntityID())] = row
		}
		return WithSeeds(resp, seeds), nil
	}
}

// SetParams switches to another page. Params equal to the current ones keep
// the subscription; it reports whether the key changed.
func (q *ListQuery[T]) SetParams(p api.ListParams) bool {
	p = p.Clone()
	return q.obs.setKey(ListKey(q.svc.Resource(), p), q.fetcher(p))
}

// Key returns the current cache key.
func (q *ListQuery[T]) Key() Key { return q.obs.currentKey() }

// Result returns the latest result.
func (q *ListQuery[T]) Result() Result[api.ListResponse[T]] { return q.obs.result() }

// Refetch fetches the current page now.
func (q *ListQuery[T]) Refetch(ctx context.Context) error { return q.obs.refetch(ctx) }

// SetEnabled suspends or resumes fetching.
func (q *ListQuery[T]) SetEnabled(b bool) { q.obs.setEnabled(b) }

// Wait blocks until the current page is settled and returns it together
// with its fetch error, if any.
func (q *ListQuery[T]) Wait(ctx context.Context) (Result[api.ListResponse[T]], error) {
	return q.obs.wait(ctx)
}

// Close unsubscribes. It waits for a running OnChange call, so it must not
// be called from one; no OnChange call starts after it returns.
func (q *ListQuery[T]) Close() { q.obs.close() }
