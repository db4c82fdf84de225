package query

import (
	"context"

	"github.com/tbourn/restaurant-backoffice/internal/resource"
)

// Writer is the write side of a resource service.
type Writer[T any] interface {
	Resource() string
	Create(ctx context.Context, payload any, opts ...resource.CallOption) (T, error)
	Update(ctx context.Context, id string, payload any) (T, error)
	Delete(ctx context.Context, id string) error
}

// Service is a complete resource service. *resource.Service satisfies it.
type Service[T any] interface {
	Lister[T]
	Getter[T]
	Writer[T]
}

// Mutations performs writes and keeps the cache consistent with them.
//
// On success the effects run in order: every list page of the resource is
// invalidated, the detail entry of the record is written (or removed), then
// the notifier is told. On failure only the notifier runs.
type Mutations[T Record] struct {
	cache    *Cache
	svc      Writer[T]
	notifier Notifier
}

// NewMutations returns the mutations of svc. A nil notifier logs.
func NewMutations[T Record](c *Cache, svc Writer[T], n Notifier) *Mutations[T] {
	if n == nil {
		n = LogNotifier{}
	}
	return &Mutations[T]{cache: c, svc: svc, notifier: n}
}

// Resource returns the resource name.
func (m *Mutations[T]) Resource() string { return m.svc.Resource() }

// Create writes a new record.
func (m *Mutations[T]) Create(ctx context.Context, payload any, opts ...resource.CallOption) (T, error) {
	v, err := m.svc.Create(ctx, payload, opts...)
	if err != nil {
		m.notifier.Error(m.svc.Resource(), OpCreate, err)
		var zero T
		return zero, err
	}
	m.written(OpCreate, v)
	return v, nil
}

// Update merges payload onto record id.
func (m *Mutations[T]) Update(ctx context.Context, id string, payload any) (T, error) {
	v, err := m.svc.Update(ctx, id, payload)
	if err != nil {
		m.notifier.Error(m.svc.Resource(), OpUpdate, err)
		var zero T
		return zero, err
	}
	m.written(OpUpdate, v)
	return v, nil
}

// Delete removes record id.
func (m *Mutations[T]) Delete(ctx context.Context, id string) error {
	if err := m.svc.Delete(ctx, id); err != nil {
		m.notifier.Error(m.svc.Resource(), OpDelete, err)
		return err
	}
	r := m.svc.Resource()
	m.cache.Invalidate(MatchResourceKind(r, KindList))
	m.cache.Remove(DetailKey(r, id))
	m.notifier.Success(r, OpDelete, id)
	return nil
}

func (m *Mutations[T]) written(op Op, v T) {
	r := m.svc.Resource()
	id := v.EntityID()
	m.cache.Invalidate(MatchResourceKind(r, KindList))
	m.cache.SetEntry(DetailKey(r, id), v)
	m.notifier.Success(r, op, id)
}
