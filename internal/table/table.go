// Package table holds the state of one server-driven table (pagination,
// sorting, search and column filters) and derives the list parameters sent
// to the server from it.
//
// Any change to sorting, search, filters or status resets the page index to
// 0 in the same update, so no observer ever sees the old page index against
// the new result set.
package table

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/tbourn/restaurant-backoffice/internal/api"
	"github.com/tbourn/restaurant-backoffice/internal/utils"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = api.SortAsc
	Desc Direction = api.SortDesc
)

// StatusFilter narrows rows by their active flag.
type StatusFilter string

const (
	StatusAll      StatusFilter = ""
	StatusActive   StatusFilter = "active"
	StatusInactive StatusFilter = "inactive"
)

// ParseStatus accepts "", "all", "active" and "inactive".
func ParseStatus(s string) (StatusFilter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return StatusAll, nil
	case "active":
		return StatusActive, nil
	case "inactive":
		return StatusInactive, nil
	}
	return StatusAll, fmt.Errorf("unknown status %q", s)
}

// ColumnFilter is one column filter value.
type ColumnFilter struct {
	Field string
	Value string
}

// State is the table state. PageIndex is 0-based.
type State struct {
	PageIndex     int
	PageSize      int
	SortField     string
	SortDirection Direction
	SearchTerm    string
	ColumnFilters []ColumnFilter
	Status        StatusFilter
}

// Config maps table fields onto server parameters.
type Config struct {
	PageSize int
	// SortFields maps a sortable table field to its sortBy value.
	SortFields map[string]string
	// FilterFields maps a filterable table field to its query parameter.
	FilterFields map[string]string
	// StatusParam is the boolean query parameter the status filter drives.
	// Empty disables the status filter.
	StatusParam string
	// DefaultSortOrder is sent when no sort field is set. Default desc.
	DefaultSortOrder Direction
}

var (
	ErrUnknownSortField   = errors.New("table: unknown sort field")
	ErrUnknownFilterField = errors.New("table: unknown filter field")
	ErrNoStatusFilter     = errors.New("table: status filter not supported")
)

// Controller owns a table's State. It is safe for concurrent use.
type Controller struct {
	cfg     Config
	initial State

	mu        sync.Mutex
	state     State
	params    *api.ListParams
	listeners map[int]func(State)
	nextID    int
}

// New returns a controller at page 0 with no sort, search or filters.
func New(cfg Config) *Controller {
	if cfg.PageSize < 1 {
		cfg.PageSize = 10
	}
	if cfg.DefaultSortOrder == "" {
		cfg.DefaultSortOrder = Desc
	}
	start := State{PageSize: cfg.PageSize, SortDirection: cfg.DefaultSortOrder}
	return &Controller{
		cfg:       cfg,
		initial:   start,
		state:     start,
		listeners: map[int]func(State){},
	}
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyState(c.state)
}

// OnChange registers fn for every state change and returns a function that
// removes it.
func (c *Controller) OnChange(fn func(State)) (remove func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Params returns the list parameters of the current state. The same pointer
// is returned until the state changes; callers must not modify it.
func (c *Controller) Params() *api.ListParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.params == nil {
		p := c.derive(c.state)
		c.params = &p
	}
	return c.params
}

func (c *Controller) derive(s State) api.ListParams {
	p := api.ListParams{
		Page:      s.PageIndex + 1,
		Limit:     s.PageSize,
		SortOrder: string(c.cfg.DefaultSortOrder),
		Term:      strings.TrimSpace(s.SearchTerm),
	}
	if s.SortField != "" {
		p.SortBy = c.cfg.SortFields[s.SortField]
		p.SortOrder = string(s.SortDirection)
	}
	for _, f := range s.ColumnFilters {
		if p.Filters == nil {
			p.Filters = map[string]string{}
		}
		p.Filters[c.cfg.FilterFields[f.Field]] = f.Value
	}
	if c.cfg.StatusParam != "" && s.Status != StatusAll {
		if p.Filters == nil {
			p.Filters = map[string]string{}
		}
		p.Filters[c.cfg.StatusParam] = fmt.Sprint(s.Status == StatusActive)
	}
	return p
}

// update applies fn to a copy of the state and commits it when it differs.
// resetPage sets PageIndex to 0 in the same commit.
func (c *Controller) update(resetPage bool, fn func(*State)) bool {
	c.mu.Lock()
	next := copyState(c.state)
	fn(&next)
	if resetPage {
		next.PageIndex = 0
	}
	if reflect.DeepEqual(next, c.state) {
		c.mu.Unlock()
		return false
	}
	c.state = next
	c.params = nil
	fns := make([]func(State), 0, len(c.listeners))
	ids := make([]int, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, c.listeners[id])
	}
	c.mu.Unlock()

	for _, f := range fns {
		f(copyState(next))
	}
	return true
}

// SetPageIndex moves to page i (0-based). Negative values mean 0.
func (c *Controller) SetPageIndex(i int) bool {
	if i < 0 {
		i = 0
	}
	return c.update(false, func(s *State) { s.PageIndex = i })
}

// SetPageSize changes the page size. Values below 1 are ignored.
func (c *Controller) SetPageSize(n int) bool {
	if n < 1 {
		return false
	}
	return c.update(false, func(s *State) { s.PageSize = n })
}

// SetSort sorts by field. An empty dir means the default order.
func (c *Controller) SetSort(field string, dir Direction) error {
	if _, ok := c.cfg.SortFields[field]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSortField, field)
	}
	switch dir {
	case "":
		dir = c.cfg.DefaultSortOrder
	case Asc, Desc:
	default:
		return fmt.Errorf("table: unknown sort direction %q", dir)
	}
	c.update(true, func(s *State) {
		s.SortField = field
		s.SortDirection = dir
	})
	return nil
}

// ClearSort returns to the server's default order.
func (c *Controller) ClearSort() bool {
	return c.update(true, func(s *State) {
		s.SortField = ""
		s.SortDirection = c.cfg.DefaultSortOrder
	})
}

// SetSearch changes the search term.
func (c *Controller) SetSearch(term string) bool {
	return c.update(true, func(s *State) { s.SearchTerm = term })
}

// SetColumnFilter sets one column filter. An empty value removes it.
func (c *Controller) SetColumnFilter(field, value string) error {
	if _, ok := c.cfg.FilterFields[field]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFilterField, field)
	}
	c.update(true, func(s *State) {
		out := make([]ColumnFilter, 0, len(s.ColumnFilters)+1)
		for _, f := range s.ColumnFilters {
			if f.Field != field {
				out = append(out, f)
			}
		}
		if value != "" {
			out = append(out, ColumnFilter{Field: field, Value: value})
		}
		s.ColumnFilters = normalizeFilters(out)
	})
	return nil
}

// SetColumnFilters replaces every column filter. When a field appears more
// than once the last value wins.
func (c *Controller) SetColumnFilters(filters []ColumnFilter) error {
	last := make(map[string]string, len(filters))
	for _, f := range filters {
		if _, ok := c.cfg.FilterFields[f.Field]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownFilterField, f.Field)
		}
		last[f.Field] = f.Value
	}
	out := make([]ColumnFilter, 0, len(last))
	for field, value := range last {
		if value != "" {
			out = append(out, ColumnFilter{Field: field, Value: value})
		}
	}
	c.update(true, func(s *State) { s.ColumnFilters = normalizeFilters(out) })
	return nil
}

// SetStatus changes the status filter.
func (c *Controller) SetStatus(st StatusFilter) error {
	if c.cfg.StatusParam == "" && st != StatusAll {
		return ErrNoStatusFilter
	}
	c.update(true, func(s *State) { s.Status = st })
	return nil
}

// Reset returns to the initial state.
func (c *Controller) Reset() bool {
	return c.update(false, func(s *State) { *s = copyState(c.initial) })
}

// PageCount returns the number of pages for total rows, at least 1.
func (c *Controller) PageCount(total int64) int {
	c.mu.Lock()
	size := c.state.PageSize
	c.mu.Unlock()
	if n := utils.PageCount(total, size); n > 0 {
		return n
	}
	return 1
}

// Clamp moves to the last page when the page index is past the end of
// total rows, e.g. after the last row of the final page was deleted. It
// reports whether the state changed.
func (c *Controller) Clamp(total int64) bool {
	last := c.PageCount(total) - 1
	return c.update(false, func(s *State) {
		if s.PageIndex > last {
			s.PageIndex = last
		}
	})
}

func copyState(s State) State {
	out := s
	if s.ColumnFilters != nil {
		out.ColumnFilters = append([]ColumnFilter(nil), s.ColumnFilters...)
	}
	return out
}

// normalizeFilters orders filters by field so equal sets compare equal. Fields
// are unique. An empty set is nil.
func normalizeFilters(fs []ColumnFilter) []ColumnFilter {
	if len(fs) == 0 {
		return nil
	}
	sort.Slice(fs, func(i, j int) bool { return fs[i].Field < fs[j].Field })
	return fs
}
