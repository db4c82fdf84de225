// Package modal is the create/edit dialog controller: which record is being
// edited, the form values, and submission through the mutations.
//
// An edit dialog first shows the row it was opened with and switches to the
// fresher server copy when it arrives, unless the user has already started
// editing. Results that arrive for a closed dialog or for another record are
// dropped.
package modal

import (
	"context"
	"errors"
	"sync"

	"github.com/tbourn/restaurant-backoffice/internal/query"
	"github.com/tbourn/restaurant-backoffice/internal/resource"
)

// Mode is the dialog state.
type Mode int

const (
	Closed Mode = iota
	Creating
	Editing
)

func (m Mode) String() string {
	switch m {
	case Creating:
		return "creating"
	case Editing:
		return "editing"
	default:
		return "closed"
	}
}

// ErrClosed is returned by Edit and Submit on a closed dialog.
var ErrClosed = errors.New("modal: closed")

// Submitter performs the writes. *query.Mutations satisfies it.
type Submitter[T any] interface {
	Create(ctx context.Context, payload any, opts ...resource.CallOption) (T, error)
	Update(ctx context.Context, id string, payload any) (T, error)
}

// DetailFunc starts watching record id and returns a function that stops it.
type DetailFunc[T any] func(id string, onChange func(query.Result[T])) (stop func())

// DetailQueries returns a DetailFunc backed by query.DetailQuery.
func DetailQueries[T any](c *query.Cache, svc query.Getter[T]) DetailFunc[T] {
	return func(id string, onChange func(query.Result[T])) func() {
		q := query.NewDetailQuery[T](c, svc, id, query.OnChange(onChange))
		return q.Close
	}
}

// Config wires a Controller.
type Config[T any] struct {
	Mutations Submitter[T]
	// Detail refreshes the edited record. Nil disables the refresh.
	Detail DetailFunc[T]
}

// Controller is one dialog. It is safe for concurrent use.
type Controller[T query.Record] struct {
	cfg Config[T]

	mu         sync.Mutex
	mode       Mode
	values     T
	id         string
	dirty      bool
	submitting bool
	err        error
	gen        uint64 // increases on every open and close
	stop       func()
}

// New returns a closed dialog.
func New[T query.Record](cfg Config[T]) *Controller[T] {
	return &Controller[T]{cfg: cfg}
}

// OpenCreate opens the dialog for a new record prefilled with initial.
func (m *Controller[T]) OpenCreate(initial T) {
	m.mu.Lock()
	stop := m.resetLocked(Creating)
	m.values = initial
	m.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// OpenEdit opens the dialog for record and starts refreshing it.
func (m *Controller[T]) OpenEdit(record T) {
	m.mu.Lock()
	stop := m.resetLocked(Editing)
	m.values = record
	m.id = record.EntityID()
	gen, id := m.gen, m.id
	m.mu.Unlock()
	if stop != nil {
		stop()
	}

	if m.cfg.Detail == nil {
		return
	}
	newStop := m.cfg.Detail(id, func(r query.Result[T]) { m.onDetail(gen, r) })

	m.mu.Lock()
	if m.gen == gen {
		m.stop = newStop
		newStop = nil
	}
	m.mu.Unlock()
	if newStop != nil {
		newStop()
	}
}

func (m *Controller[T]) onDetail(gen uint64, r query.Result[T]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.mode != Editing || !r.HasData || m.dirty {
		return
	}
	if r.Data.EntityID() != m.id {
		return
	}
	m.values = r.Data
}

// Close closes the dialog from any state and forgets the edited record.
func (m *Controller[T]) Close() {
	m.mu.Lock()
	stop := m.resetLocked(Closed)
	m.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// resetLocked enters mode with a clean form and returns the stop function of
// the previous detail refresh.
func (m *Controller[T]) resetLocked(mode Mode) func() {
	var zero T
	stop := m.stop
	m.stop = nil
	m.gen++
	m.mode = mode
	m.values = zero
	m.id = ""
	m.dirty = false
	m.submitting = false
	m.err = nil
	return stop
}

// Mode returns the dialog state.
func (m *Controller[T]) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// EditingID returns the id of the edited record, or "".
func (m *Controller[T]) EditingID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

// Values returns the form values.
func (m *Controller[T]) Values() T {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values
}

// Dirty reports whether the user has edited the form.
func (m *Controller[T]) Dirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty
}

// Err returns the error of the last failed submission.
func (m *Controller[T]) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Edit changes the form values and marks the form dirty.
func (m *Controller[T]) Edit(fn func(*T)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == Closed {
		return ErrClosed
	}
	fn(&m.values)
	m.dirty = true
	return nil
}

// Submit writes the form. On success the dialog closes and the stored
// record is returned. On failure the dialog stays open with its values and
// the error is kept in Err. opts apply to creates only.
func (m *Controller[T]) Submit(ctx context.Context, opts ...resource.CallOption) (T, error) {
	var zero T
	m.mu.Lock()
	if m.mode == Closed {
		m.mu.Unlock()
		return zero, ErrClosed
	}
	mode, values, id, gen := m.mode, m.values, m.id, m.gen
	m.submitting = true
	m.err = nil
	m.mu.Unlock()

	var (
		v   T
		err error
	)
	if mode == Creating {
		v, err = m.cfg.Mutations.Create(ctx, values, opts...)
	} else {
		v, err = m.cfg.Mutations.Update(ctx, id, values)
	}

	m.mu.Lock()
	current := m.gen == gen
	if current {
		m.submitting = false
	}
	if err != nil {
		if current {
			m.err = err
		}
		m.mu.Unlock()
		return zero, err
	}
	var stop func()
	if current {
		stop = m.resetLocked(Closed)
	}
	m.mu.Unlock()
	if stop != nil {
		stop()
	}
	return v, nil
}

// Submitting reports whether a submission is running.
func (m *Controller[T]) Submitting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitting
}
