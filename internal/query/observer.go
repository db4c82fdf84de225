package query

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Record is a value with an identity.
type Record interface {
	EntityID() string
}

// Result is what a query exposes to its caller.
type Result[D any] struct {
	Data       D
	HasData    bool
	IsLoading  bool // fetching with nothing to show yet
	IsFetching bool
	IsStale    bool
	Err        error // last fetch error; Data still holds the last good value
	UpdatedAt  time.Time
}

func resultOf[D any](e Entry) Result[D] {
	r := Result[D]{
		HasData:    e.HasData,
		IsFetching: e.IsFetching,
		IsLoading:  e.IsFetching && !e.HasData,
		IsStale:    e.Stale,
		UpdatedAt:  e.UpdatedAt,
	}
	if e.Status == StatusError {
		r.Err = e.Err
	}
	if e.HasData {
		if d, ok := e.Data.(D); ok {
			r.Data = d
		}
	}
	return r
}

// Option configures a list or detail query.
type Option interface {
	apply(*settings)
}

type settings struct {
	enabled  bool
	onChange any
}

type optionFunc func(*settings)

func (f optionFunc) apply(s *settings) { f(s) }

// Enabled suspends fetching when false. Default true.
func Enabled(b bool) Option {
	return optionFunc(func(s *settings) { s.enabled = b })
}

// OnChange is called with every new result. fn must match the query:
// func(Result[api.ListResponse[T]]) for lists, func(Result[T]) for details.
func OnChange[D any](fn func(Result[D])) Option {
	return optionFunc(func(s *settings) { s.onChange = fn })
}

// observer binds one subscriber to the cache under a key that can change.
type observer[D any] struct {
	cache *Cache
	force bool

	mu       sync.Mutex
	key      Key
	fetch    Fetcher
	enabled  bool
	closed   bool
	sub      *Subscription
	res      Result[D]
	ver      uint64
	changed  chan struct{}
	onChange func(Result[D])

	// One goroutine at a time runs onChange; results arriving meanwhile,
	// including from inside the callback, are delivered by that goroutine.
	delivering bool
	pending    bool
	idle       *sync.Cond
}

func newObserver[D any](c *Cache, key Key, fetch Fetcher, force bool, opts []Option) *observer[D] {
	st := settings{enabled: true}
	for _, o := range opts {
		o.apply(&st)
	}
	o := &observer[D]{
		cache:   c,
		force:   force,
		key:     key,
		fetch:   fetch,
		enabled: st.enabled,
		changed: make(chan struct{}),
	}
	o.idle = sync.NewCond(&o.mu)
	if st.onChange != nil {
		fn, ok := st.onChange.(func(Result[D]))
		if !ok {
			var zero D
			panic(fmt.Sprintf("query: OnChange callback must be func(query.Result[%T])", zero))
		}
		o.onChange = fn
	}
	if o.enabled {
		o.subscribe()
	}
	return o
}

func (o *observer[D]) subscribe() {
	o.mu.Lock()
	key, fetch := o.key, o.fetch
	o.mu.Unlock()

	var opts []SubscribeOption
	if o.force {
		opts = append(opts, ForceFetch())
	}
	sub := o.cache.Subscribe(key, fetch, func(e Entry) { o.apply(key, e) }, opts...)

	o.mu.Lock()
	if o.closed || !o.enabled || o.key != key || o.sub != nil {
		o.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	o.sub = sub
	o.mu.Unlock()
}

func (o *observer[D]) apply(key Key, e Entry) {
	o.mu.Lock()
	if o.closed || key != o.key || e.Version <= o.ver {
		o.mu.Unlock()
		return
	}
	o.ver = e.Version
	o.res = resultOf[D](e)
	close(o.changed)
	o.changed = make(chan struct{})
	if o.onChange == nil {
		o.mu.Unlock()
		return
	}
	if o.delivering {
		o.pending = true
		o.mu.Unlock()
		return
	}

	o.delivering = true
	for {
		fn, r := o.onChange, o.res
		o.mu.Unlock()
		fn(r)
		o.mu.Lock()
		if o.closed || !o.pending {
			break
		}
		o.pending = false
	}
	o.delivering = false
	o.idle.Broadcast()
	o.mu.Unlock()
}

// setKey moves the observer to key. It reports whether the key changed.
func (o *observer[D]) setKey(key Key, fetch Fetcher) bool {
	o.mu.Lock()
	if o.closed || key == o.key {
		o.mu.Unlock()
		return false
	}
	old := o.sub
	o.sub = nil
	o.key, o.fetch = key, fetch
	o.ver = 0
	o.res = Result[D]{}
	resubscribe := o.enabled
	o.mu.Unlock()

	if old != nil {
		old.Unsubscribe()
	}
	if resubscribe {
		o.subscribe()
	}
	return true
}

func (o *observer[D]) setEnabled(b bool) {
	o.mu.Lock()
	if o.closed || o.enabled == b {
		o.mu.Unlock()
		return
	}
	o.enabled = b
	sub := o.sub
	if !b {
		o.sub = nil
	}
	o.mu.Unlock()

	if !b && sub != nil {
		sub.Unsubscribe()
	}
	if b {
		o.subscribe()
	}
}

func (o *observer[D]) result() Result[D] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.res
}

func (o *observer[D]) currentKey() Key {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.key
}

func (o *observer[D]) refetch(ctx context.Context) error {
	o.mu.Lock()
	key, fetch := o.key, o.fetch
	o.mu.Unlock()
	_, err := o.cache.Refetch(ctx, key, fetch)
	return err
}

// wait blocks until the result is not fetching. A disabled or closed
// observer returns its current result at once.
func (o *observer[D]) wait(ctx context.Context) (Result[D], error) {
	for {
		o.mu.Lock()
		r, ch, active := o.res, o.changed, o.sub != nil
		o.mu.Unlock()

		if !active || !r.IsFetching {
			return r, r.Err
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return r, ctx.Err()
		}
	}
}

func (o *observer[D]) close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	sub := o.sub
	o.sub = nil
	for o.delivering {
		o.idle.Wait()
	}
	o.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}
