// Package screen assembles one resource page: a table controller driving a
// list query, row actions, the create/edit dialog and the mutations behind
// it. Every table change moves the list query to the derived parameters; a
// page that ends up past the last row after a delete is clamped back.
package screen

import (
	"context"
	"fmt"

	"github.com/tbourn/restaurant-backoffice/internal/api"
	"github.com/tbourn/restaurant-backoffice/internal/domain"
	"github.com/tbourn/restaurant-backoffice/internal/modal"
	"github.com/tbourn/restaurant-backoffice/internal/query"
	"github.com/tbourn/restaurant-backoffice/internal/stable"
	"github.com/tbourn/restaurant-backoffice/internal/table"
)

// ListResult is the list query result of a screen.
type ListResult[T any] = query.Result[api.ListResponse[T]]

// Option configures a Screen.
type Option func(*settings)

type settings struct {
	pageSize int
	ctx      context.Context
	enabled  bool
}

// WithPageSize sets the initial page size.
func WithPageSize(n int) Option {
	return func(s *settings) { s.pageSize = n }
}

// WithContext sets the context used by row actions. Default Background.
func WithContext(ctx context.Context) Option {
	return func(s *settings) { s.ctx = ctx }
}

// Suspended builds the screen without fetching until Resume.
func Suspended() Option {
	return func(s *settings) { s.enabled = false }
}

// Screen is one mounted resource page.
type Screen[T query.Record] struct {
	Table     *table.Controller
	List      *query.ListQuery[T]
	Modal     *modal.Controller[T]
	Mutations *query.Mutations[T]

	cache *query.Cache
	svc   query.Service[T]
	desc  domain.Descriptor

	ctx       *stable.Cell[context.Context]
	edit      *stable.Dispatcher[T]
	remove    *stable.Dispatcher[string]
	listeners *stable.Dispatcher[ListResult[T]]
	stopTable func()
}

// New mounts a screen for desc over svc.
func New[T query.Record](c *query.Cache, svc query.Service[T], desc domain.Descriptor, n query.Notifier, opts ...Option) *Screen[T] {
	st := settings{ctx: context.Background(), enabled: true}
	for _, o := range opts {
		o(&st)
	}

	s := &Screen[T]{
		cache:     c,
		svc:       svc,
		desc:      desc,
		ctx:       stable.NewCell(st.ctx),
		listeners: stable.NewDispatcher[ListResult[T]](nil),
	}
	s.Table = table.New(TableConfig(desc, st.pageSize))
	s.Mutations = query.NewMutations[T](c, svc, n)
	s.Modal = modal.New(modal.Config[T]{
		Mutations: s.Mutations,
		Detail:    modal.DetailQueries[T](c, svc),
	})

	s.edit = stable.NewDispatcher(func(row T) { s.Modal.OpenEdit(row) })
	s.remove = stable.NewDispatcher(func(id string) {
		// Failures reach the notifier.
		_ = s.Mutations.Delete(s.ctx.Load(), id)
	})

	s.List = query.NewListQuery[T](c, svc, *s.Table.Params(),
		query.Enabled(st.enabled),
		query.OnChange(s.listChanged),
	)
	s.stopTable = s.Table.OnChange(func(table.State) {
		s.List.SetParams(*s.Table.Params())
	})
	// A cached first page may have clamped the table before the listener
	// was registered.
	s.List.SetParams(*s.Table.Params())
	return s
}

// TableConfig derives the table configuration of desc. Every sortable and
// filterable wire field is exposed under its own name; the status filter
// drives domain.StatusParam.
func TableConfig(desc domain.Descriptor, pageSize int) table.Config {
	cfg := table.Config{
		PageSize:     pageSize,
		SortFields:   map[string]string{},
		FilterFields: map[string]string{},
	}
	for _, f := range desc.SortFields() {
		cfg.SortFields[f] = f
	}
	for _, f := range desc.FilterParams() {
		if f == domain.StatusParam {
			cfg.StatusParam = f
			continue
		}
		cfg.FilterFields[f] = f
	}
	return cfg
}

func (s *Screen[T]) listChanged(r ListResult[T]) {
	if r.HasData && r.Err == nil && !r.IsFetching {
		s.Table.Clamp(r.Data.Meta.Total)
	}
	s.listeners.Dispatch(r)
}

// Resource returns the resource name.
func (s *Screen[T]) Resource() string { return s.desc.Name }

// OnChange replaces the list result callback.
func (s *Screen[T]) OnChange(fn func(ListResult[T])) {
	s.listeners.Set(fn)
}

// SetContext replaces the context used by row actions.
func (s *Screen[T]) SetContext(ctx context.Context) {
	s.ctx.Store(ctx)
}

// EditAction returns the row edit action. The same function value is
// returned for the life of the screen.
func (s *Screen[T]) EditAction() func(T) { return s.edit.Func() }

// DeleteAction returns the row delete action. The same function value is
// returned for the life of the screen.
func (s *Screen[T]) DeleteAction() func(string) { return s.remove.Func() }

// Resume starts fetching a screen built with Suspended.
func (s *Screen[T]) Resume() { s.List.SetEnabled(true) }

// Result returns the latest list result.
func (s *Screen[T]) Result() ListResult[T] { return s.List.Result() }

// Wait blocks until the current page is settled.
func (s *Screen[T]) Wait(ctx context.Context) (ListResult[T], error) {
	return s.List.Wait(ctx)
}

// Get returns record id, from the cache when it is fresh.
func (s *Screen[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	e, err := s.cache.GetOrFetch(ctx, query.DetailKey(s.desc.Name, id), func(ctx context.Context) (any, error) {
		return s.svc.Get(ctx, id)
	})
	if err != nil {
		return zero, err
	}
	v, ok := e.Data.(T)
	if !ok {
		return zero, fmt.Errorf("screen: %s %s: cached value is %T", s.desc.Name, id, e.Data)
	}
	return v, nil
}

// Delete removes record id and returns the error the row action would only
// report to the notifier.
func (s *Screen[T]) Delete(ctx context.Context, id string) error {
	return s.Mutations.Delete(ctx, id)
}

// Close unmounts the screen. No callback runs afterwards.
func (s *Screen[T]) Close() {
	s.stopTable()
	s.listeners.Set(nil)
	s.List.Close()
	s.Modal.Close()
}
