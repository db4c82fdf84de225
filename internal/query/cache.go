// Package query is the client-side coordination layer of the back-office:
// a shared cache of server responses with request deduplication, list and
// detail queries bound to it, and mutations that invalidate it.
//
// A Cache is created once per application root and passed by reference. It is
// only changed through GetOrFetch, Refetch, Invalidate, SetEntry, SeedEntry
// and Remove, all of which are safe for concurrent use.
//
// Every fetch and write takes a sequence number when it starts. Data is only
// stored when its sequence is newer than the data already held, so a slow
// response never replaces a later write, and a removed key keeps its sequence
// until every fetch that started before the removal has settled.
package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Status of a cache entry.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusError
	StatusSuccess
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusError:
		return "error"
	case StatusSuccess:
		return "success"
	default:
		return "idle"
	}
}

var (
	// ErrNoFetcher is returned when a read needs a fetch but no fetcher was
	// ever given for the key.
	ErrNoFetcher = errors.New("query: no fetcher for key")
	// ErrClosed is returned by reads after Close.
	ErrClosed = errors.New("query: cache closed")
)

// Entry is a snapshot of one cache slot.
type Entry struct {
	Key        Key
	Data       any
	HasData    bool
	Status     Status
	Err        error // last fetch error; Data is kept
	UpdatedAt  time.Time
	Stale      bool // invalidated or older than the stale time
	IsFetching bool
	Version    uint64 // increases on every change of any entry
}

// Fetcher loads the value of a key. It runs on the cache's own context, not
// the context of the caller that triggered it.
type Fetcher func(ctx context.Context) (any, error)

// seeded is a fetch result carrying data for other keys.
type seeded struct {
	data  any
	seeds map[Key]any
}

// WithSeeds wraps the result of a Fetcher. When the fetch settles, data is
// stored under the fetched key and every seed under its own key, provided
// that key has no data and nothing was written to it after the fetch started.
func WithSeeds(data any, seeds map[Key]any) any {
	return seeded{data: data, seeds: seeds}
}

// Listener observes an entry.
type Listener func(Entry)

type call struct {
	seq   uint64
	done  chan struct{}
	entry Entry
	err   error
}

type slot struct {
	key       Key
	data      any
	hasData   bool
	status    Status
	err       error
	updatedAt time.Time
	dataSeq   uint64 // seq of the write that produced data
	invalid   bool
	refetch   bool // invalidated while a fetch was in flight
	removed   bool // kept only to fence fetches older than dataSeq
	inflight  *call
	fetcher   Fetcher
	subs      map[*Subscription]struct{}
	version   uint64
	touched   time.Time
}

// Cache is the shared query cache.
type Cache struct {
	mu     sync.Mutex
	slots  map[Key]*slot
	seq    uint64 // orders writes
	ver    uint64 // orders snapshots
	closed bool

	staleTime    time.Duration
	gcTime       time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	logger       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// CacheOption configures New.
type CacheOption func(*Cache)

// WithStaleTime sets how long data stays fresh. 0 keeps data fresh until it
// is invalidated.
func WithStaleTime(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d >= 0 {
			c.staleTime = d
		}
	}
}

// WithGCTime sets how long an unobserved entry is kept. Default 5m.
func WithGCTime(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.gcTime = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithFetchTimeout bounds each fetch. 0 means no bound.
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(c *Cache) { c.fetchTimeout = d }
}

// WithLogger sets the logger. Default is the global zerolog logger.
func WithLogger(l zerolog.Logger) CacheOption {
	return func(c *Cache) { c.logger = l }
}

// New returns an empty cache. Call Close to stop in-flight fetches.
func New(opts ...CacheOption) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		slots:  map[Key]*slot{},
		gcTime: 5 * time.Minute,
		now:    time.Now,
		logger: log.Logger,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Close cancels in-flight fetches and waits for them and the janitor.
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

// GetOrFetch returns fresh cached data without calling fetch. Otherwise it
// joins the in-flight fetch of key or starts one, and waits for it. Listeners
// of key have been notified by the time it returns. If ctx ends first the
// caller gets ctx.Err() while the fetch continues.
//
// A failed fetch returns the entry (with any previous data) and the error.
func (c *Cache) GetOrFetch(ctx context.Context, key Key, fetch Fetcher) (Entry, error) {
	c.mu.Lock()
	s := c.slotLocked(key)
	now := c.now()
	s.touched = now
	if fetch != nil {
		s.fetcher = fetch
	}
	if c.freshLocked(s, now) {
		e := c.snapshotLocked(s)
		c.mu.Unlock()
		cacheHits.WithLabelValues(key.Resource, string(key.Kind)).Inc()
		return e, nil
	}
	cacheMisses.WithLabelValues(key.Resource, string(key.Kind)).Inc()
	return c.startAndWait(ctx, s)
}

// Refetch fetches key regardless of freshness. An in-flight fetch is joined
// rather than duplicated.
func (c *Cache) Refetch(ctx context.Context, key Key, fetch Fetcher) (Entry, error) {
	c.mu.Lock()
	s := c.slotLocked(key)
	s.touched = c.now()
	if fetch != nil {
		s.fetcher = fetch
	}
	return c.startAndWait(ctx, s)
}

// startAndWait is called with c.mu held and releases it.
func (c *Cache) startAndWait(ctx context.Context, s *slot) (Entry, error) {
	cl, notify, err := c.startLocked(s)
	if err != nil {
		e := c.snapshotLocked(s)
		c.mu.Unlock()
		return e, err
	}
	c.mu.Unlock()
	notify()

	select {
	case <-cl.done:
		return cl.entry, cl.err
	case <-ctx.Done():
		return Entry{Key: s.key}, ctx.Err()
	}
}

// Invalidate marks every matching entry stale and returns how many matched.
// Observed entries refetch now; an entry with a fetch in flight refetches
// once after it settles; unobserved entries refetch on their next read.
func (c *Cache) Invalidate(match Predicate) int {
	c.mu.Lock()
	var notes []func()
	n := 0
	for k, s := range c.slots {
		if !match(k) {
			continue
		}
		n++
		cacheInvalidations.WithLabelValues(k.Resource, string(k.Kind)).Inc()
		s.invalid = true
		if s.inflight != nil {
			s.refetch = true
		} else if len(s.subs) > 0 && s.fetcher != nil {
			if _, notify, err := c.startLocked(s); err == nil {
				notes = append(notes, notify)
				continue
			}
		}
		notes = append(notes, c.bumpLocked(s))
	}
	c.mu.Unlock()

	for _, fn := range notes {
		fn()
	}
	return n
}

// SetEntry stores data for key as fresh. A fetch that started earlier can no
// longer overwrite it.
func (c *Cache) SetEntry(key Key, data any) {
	c.mu.Lock()
	s := c.slotLocked(key)
	c.seq++
	c.storeLocked(s, data, c.seq)
	s.invalid = false
	notify := c.bumpLocked(s)
	c.mu.Unlock()
	notify()
}

// SeedEntry stores data only when key has no data yet. Any later fetch
// replaces it. It reports whether data was stored.
func (c *Cache) SeedEntry(key Key, data any) bool {
	c.mu.Lock()
	notify, ok := c.seedLocked(key, data, 0)
	c.mu.Unlock()
	if ok {
		notify()
	}
	return ok
}

// seedLocked stores data for key when the key is empty. A non-zero seq must
// be newer than the key's last write; zero seeds below any fetch.
func (c *Cache) seedLocked(key Key, data any, seq uint64) (func(), bool) {
	s := c.slotLocked(key)
	if s.hasData || (seq != 0 && seq <= s.dataSeq) {
		return nil, false
	}
	if seq == 0 {
		seq = s.dataSeq
	}
	c.storeLocked(s, data, seq)
	return c.bumpLocked(s), true
}

// Remove drops the data of key. Fetches and seeds that started earlier are
// discarded.
func (c *Cache) Remove(key Key) {
	c.mu.Lock()
	s := c.slotLocked(key)
	c.seq++
	s.data, s.hasData, s.err = nil, false, nil
	s.dataSeq = c.seq
	s.status = StatusIdle
	s.invalid, s.refetch = false, false
	s.removed = true
	s.touched = c.now()
	notify := c.bumpLocked(s)
	c.mu.Unlock()
	notify()
}

// Peek returns the entry of key without fetching.
func (c *Cache) Peek(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[key]
	if !ok || s.tombstone() {
		return Entry{Key: key}, false
	}
	return c.snapshotLocked(s), true
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}

// Collect removes entries that have had no subscriber and no fetch for the
// GC time and returns how many were removed. An entry written after the
// oldest fetch still in flight is kept until that fetch settles.
func (c *Cache) Collect() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	oldest := c.seq + 1
	for _, s := range c.slots {
		if s.inflight != nil && s.inflight.seq < oldest {
			oldest = s.inflight.seq
		}
	}
	n := 0
	for _, s := range c.slots {
		if s.dataSeq > oldest {
			continue
		}
		if len(s.subs) == 0 && s.inflight == nil && now.Sub(s.touched) >= c.gcTime {
			c.dropLocked(s)
			n++
		}
	}
	return n
}

// Start runs Collect periodically until ctx ends or the cache is closed.
func (c *Cache) Start(ctx context.Context) {
	interval := c.gcTime / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.ctx.Done():
				return
			case <-t.C:
				if n := c.Collect(); n > 0 {
					c.logger.Debug().Int("removed", n).Msg("query cache gc")
				}
			}
		}
	}()
}

// SubscribeOption configures Subscribe.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct{ force bool }

// ForceFetch fetches on subscribe even when the data is fresh.
func ForceFetch() SubscribeOption {
	return func(sc *subscribeConfig) { sc.force = true }
}

// Subscription is a registered observer of one key.
type Subscription struct {
	c      *Cache
	key    Key
	fn     Listener
	mu     sync.Mutex
	last   uint64
	closed atomic.Bool
}

// Subscribe registers fn for key and fetches when the entry has no fresh
// data. fn receives the current snapshot before Subscribe returns, then every
// change. Snapshots older than one already delivered are dropped.
func (c *Cache) Subscribe(key Key, fetch Fetcher, fn Listener, opts ...SubscribeOption) *Subscription {
	var sc subscribeConfig
	for _, o := range opts {
		o(&sc)
	}
	sub := &Subscription{c: c, key: key, fn: fn}

	c.mu.Lock()
	s := c.slotLocked(key)
	s.subs[sub] = struct{}{}
	now := c.now()
	s.touched = now
	if fetch != nil {
		s.fetcher = fetch
	}
	notify := func() {}
	if sc.force || !c.freshLocked(s, now) {
		if _, start, err := c.startLocked(s); err == nil {
			notify = start
		}
	}
	e := c.snapshotLocked(s)
	c.mu.Unlock()

	sub.deliver(e)
	notify()
	return sub
}

// Unsubscribe stops deliveries. No invocation of the listener begins after
// it returns; one already running may still complete.
func (s *Subscription) Unsubscribe() {
	if s.closed.Swap(true) {
		return
	}
	s.mu.Lock()
	s.mu.Unlock()

	c := s.c
	c.mu.Lock()
	if sl, ok := c.slots[s.key]; ok {
		delete(sl.subs, s)
		sl.touched = c.now()
	}
	c.mu.Unlock()
}

func (s *Subscription) deliver(e Entry) {
	s.mu.Lock()
	if s.closed.Load() || e.Version <= s.last {
		s.mu.Unlock()
		return
	}
	s.last = e.Version
	s.mu.Unlock()
	s.fn(e)
}

func (c *Cache) slotLocked(key Key) *slot {
	s, ok := c.slots[key]
	if !ok {
		s = &slot{key: key, subs: map[*Subscription]struct{}{}}
		c.slots[key] = s
		cacheEntries.WithLabelValues(key.Resource, string(key.Kind)).Inc()
	}
	return s
}

func (c *Cache) dropLocked(s *slot) {
	delete(c.slots, s.key)
	cacheEntries.WithLabelValues(s.key.Resource, string(s.key.Kind)).Dec()
}

func (c *Cache) freshLocked(s *slot, now time.Time) bool {
	if !s.hasData || s.invalid || s.status == StatusError {
		return false
	}
	return c.staleTime == 0 || now.Sub(s.updatedAt) < c.staleTime
}

func (s *slot) tombstone() bool {
	return s.removed && !s.hasData && s.inflight == nil && len(s.subs) == 0
}

func (c *Cache) storeLocked(s *slot, data any, seq uint64) {
	s.removed = false
	s.data, s.hasData = data, true
	s.dataSeq = seq
	s.status = StatusSuccess
	s.err = nil
	s.updatedAt = c.now()
	s.touched = s.updatedAt
}

func (c *Cache) snapshotLocked(s *slot) Entry {
	stale := s.invalid
	if !stale && s.hasData && c.staleTime > 0 && c.now().Sub(s.updatedAt) >= c.staleTime {
		stale = true
	}
	return Entry{
		Key:        s.key,
		Data:       s.data,
		HasData:    s.hasData,
		Status:     s.status,
		Err:        s.err,
		UpdatedAt:  s.updatedAt,
		Stale:      stale,
		IsFetching: s.inflight != nil,
		Version:    s.version,
	}
}

// bumpLocked versions the slot and returns a func that notifies its
// subscribers; call it after releasing c.mu.
func (c *Cache) bumpLocked(s *slot) func() {
	c.ver++
	s.version = c.ver
	e := c.snapshotLocked(s)
	subs := make([]*Subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	return func() {
		for _, sub := range subs {
			sub.deliver(e)
		}
	}
}

// startLocked joins the in-flight fetch of s or starts one.
func (c *Cache) startLocked(s *slot) (*call, func(), error) {
	if s.inflight != nil {
		cacheDedup.WithLabelValues(s.key.Resource, string(s.key.Kind)).Inc()
		return s.inflight, func() {}, nil
	}
	if c.closed {
		return nil, nil, ErrClosed
	}
	if s.fetcher == nil {
		return nil, nil, ErrNoFetcher
	}
	c.seq++
	cl := &call{seq: c.seq, done: make(chan struct{})}
	s.inflight = cl
	s.removed = false
	if !s.hasData {
		s.status = StatusLoading
	}
	c.wg.Add(1)
	go c.run(s, cl, s.fetcher)
	return cl, c.bumpLocked(s), nil
}

func (c *Cache) run(s *slot, cl *call, fetch Fetcher) {
	defer c.wg.Done()
	ctx, cancel := c.ctx, context.CancelFunc(func() {})
	if c.fetchTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.fetchTimeout)
	}
	data, err := safeFetch(ctx, fetch)
	cancel()
	c.settle(s, cl, data, err)
}

func safeFetch(ctx context.Context, fetch Fetcher) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("query: fetcher panicked: %v", r)
		}
	}()
	return fetch(ctx)
}

func (c *Cache) settle(s *slot, cl *call, data any, err error) {
	var seeds map[Key]any
	if sd, ok := data.(seeded); ok {
		data, seeds = sd.data, sd.seeds
	}

	c.mu.Lock()
	if s.inflight == cl {
		s.inflight = nil
	}
	var notes []func()
	if err == nil {
		for k, v := range seeds {
			if fn, ok := c.seedLocked(k, v, cl.seq); ok {
				notes = append(notes, fn)
			}
		}
	}

	result := "ok"
	switch {
	case cl.seq <= s.dataSeq:
		// Newer data was written while this fetch ran.
		result = "discarded"
		err = nil
	case err != nil:
		result = "error"
		s.status = StatusError
		s.err = err
	default:
		c.storeLocked(s, data, cl.seq)
		if !s.refetch {
			s.invalid = false
		}
	}

	if s.refetch {
		s.refetch = false
		if len(s.subs) > 0 {
			// Its own notification is superseded by the bump below.
			_, _, _ = c.startLocked(s)
		}
	}
	notify := c.bumpLocked(s)
	cl.entry = c.snapshotLocked(s)
	cl.err = err
	c.mu.Unlock()

	for _, fn := range notes {
		fn()
	}
	notify()
	close(cl.done)

	cacheFetches.WithLabelValues(s.key.Resource, string(s.key.Kind), result).Inc()
	if err != nil {
		c.logger.Warn().Err(err).Str("key", s.key.String()).Msg("query fetch failed")
	}
}
