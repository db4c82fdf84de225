package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tbourn/restaurant-backoffice/internal/api"
	"github.com/tbourn/restaurant-backoffice/internal/resource"
)

type item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (i item) EntityID() string { return i.ID }

// fakeService is an in-memory resource service. listGate, when set, blocks
// each List until a value is received.
type fakeService struct {
	name string

	mu       sync.Mutex
	items    []item
	nextID   int
	failNext error

	listGate  chan struct{}
	listCalls atomic.Int32
	getCalls  atomic.Int32
}

func newFake(name string, items ...item) *fakeService {
	return &fakeService{name: name, items: items, nextID: len(items)}
}

func (f *fakeService) Resource() string { return f.name }

func (f *fakeService) takeFailure() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *fakeService) List(ctx context.Context, p api.ListParams) (api.ListResponse[item], error) {
	f.listCalls.Add(1)
	if f.listGate != nil {
		select {
		case <-f.listGate:
		case <-ctx.Done():
			return api.ListResponse[item]{}, ctx.Err()
		}
	}
	if err := f.takeFailure(); err != nil {
		return api.ListResponse[item]{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]item, len(f.items))
	copy(out, f.items)
	return api.ListResponse[item]{Data: out, Meta: api.Meta{Total: int64(len(out)), Page: p.Page, Limit: p.Limit}}, nil
}

func (f *fakeService) Get(ctx context.Context, id string) (item, error) {
	f.getCalls.Add(1)
	if err := f.takeFailure(); err != nil {
		return item{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.items {
		if it.ID == id {
			return it, nil
		}
	}
	return item{}, &resource.Error{Kind: resource.KindNotFound, Message: "not found"}
}

func (f *fakeService) Create(ctx context.Context, payload any, _ ...resource.CallOption) (item, error) {
	if err := f.takeFailure(); err != nil {
		return item{}, err
	}
	in, ok := payload.(item)
	if !ok {
		return item{}, errors.New("unexpected payload")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	in.ID = fmt.Sprintf("id-%d", f.nextID)
	f.items = append(f.items, in)
	return in, nil
}

func (f *fakeService) Update(ctx context.Context, id string, payload any) (item, error) {
	if err := f.takeFailure(); err != nil {
		return item{}, err
	}
	in, _ := payload.(item)
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i].Name = in.Name
			return f.items[i], nil
		}
	}
	return item{}, &resource.Error{Kind: resource.KindNotFound, Message: "not found"}
}

func (f *fakeService) Delete(ctx context.Context, id string) error {
	if err := f.takeFailure(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return nil
		}
	}
	return &resource.Error{Kind: resource.KindNotFound, Message: "not found"}
}

type notice struct {
	Resource string
	Op       Op
	ID       string
	Err      error
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
	onEvent func(notice)
}

func (r *recordingNotifier) add(n notice) {
	if r.onEvent != nil {
		r.onEvent(n)
	}
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

func (r *recordingNotifier) Success(res string, op Op, id string) {
	r.add(notice{Resource: res, Op: op, ID: id})
}

func (r *recordingNotifier) Error(res string, op Op, err error) {
	r.add(notice{Resource: res, Op: op, Err: err})
}

func (r *recordingNotifier) all() []notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notice(nil), r.notices...)
}

// gatedFetcher counts calls and concurrency; each call announces itself on
// started and then waits for release.
type gatedFetcher struct {
	started  chan struct{}
	release  chan any
	calls    atomic.Int32
	inflight atomic.Int32
	maxConc  atomic.Int32
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{started: make(chan struct{}, 16), release: make(chan any)}
}

func (g *gatedFetcher) fetch(ctx context.Context) (any, error) {
	g.calls.Add(1)
	n := g.inflight.Add(1)
	defer g.inflight.Add(-1)
	for {
		m := g.maxConc.Load()
		if n <= m || g.maxConc.CompareAndSwap(m, n) {
			break
		}
	}
	g.started <- struct{}{}
	select {
	case v := <-g.release:
		if err, ok := v.(error); ok {
			return nil, err
		}
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// latestEntry keeps the highest-versioned entry a listener has seen;
// listener calls from different goroutines may interleave.
type latestEntry struct {
	mu sync.Mutex
	e  Entry
}

func (l *latestEntry) put(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e.Version > l.e.Version {
		l.e = e
	}
}

func (l *latestEntry) get() Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.e
}
