// Package stable provides callbacks whose identity stays fixed while the
// behavior behind them changes: a Cell holds the current context and a
// Dispatcher hands out one function value that always runs the latest logic.
package stable

import "sync/atomic"

// Cell is a concurrency-safe mutable value. The zero value holds the zero T.
type Cell[T any] struct {
	p atomic.Pointer[T]
}

// NewCell returns a cell holding v.
func NewCell[T any](v T) *Cell[T] {
	c := &Cell[T]{}
	c.Store(v)
	return c
}

// Load returns the current value.
func (c *Cell[T]) Load() T {
	if p := c.p.Load(); p != nil {
		return *p
	}
	var zero T
	return zero
}

// Store replaces the value.
func (c *Cell[T]) Store(v T) {
	c.p.Store(&v)
}

// Dispatcher forwards calls to the most recently Set handler.
type Dispatcher[A any] struct {
	handler Cell[func(A)]
	fn      func(A)
}

// NewDispatcher returns a dispatcher running fn. A nil fn ignores calls.
func NewDispatcher[A any](fn func(A)) *Dispatcher[A] {
	d := &Dispatcher[A]{}
	d.handler.Store(fn)
	d.fn = d.Dispatch
	return d
}

// Set replaces the handler. Function values handed out by Func pick it up.
func (d *Dispatcher[A]) Set(fn func(A)) {
	d.handler.Store(fn)
}

// Dispatch runs the current handler.
func (d *Dispatcher[A]) Dispatch(arg A) {
	if fn := d.handler.Load(); fn != nil {
		fn(arg)
	}
}

// Func returns the dispatcher's function value. Every call returns the same
// value, so it can be handed to consumers once.
func (d *Dispatcher[A]) Func() func(A) {
	return d.fn
}
