// Package cache is the client-side query/mutation cache. Reads return the
// last known value at once and refresh it in the background; writes are
// applied optimistically, then reconciled with the server response or
// rolled back.
//
// Concurrent mutations on the same todo are not serialized: each one
// snapshots, applies and settles on its own, so whichever response arrives
// last decides the final cached state.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/Makepad-fr/tada/internal/logging"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/telemetry"
)

const (
	// DefaultStaleTime is how long a fetched or reconciled entry stays fresh.
	DefaultStaleTime = 5 * time.Minute
	// DefaultRetryDelay is how long a failed entry waits before a read may
	// start another background fetch.
	DefaultRetryDelay = 10 * time.Second
)

// ErrClosed is returned by blocking reads after Close.
var ErrClosed = errors.New("cache: closed")

// API is the server surface the cache reads and writes through.
type API interface {
	ListTodos(ctx context.Context, filter model.TodoFilter) ([]model.Todo, error)
	GetTodo(ctx context.Context, id string) (model.Todo, error)
	CreateTodo(ctx context.Context, n model.NewTodo) (model.Todo, error)
	UpdateTodo(ctx context.Context, id string, patch model.TodoPatch) (model.Todo, error)
	DeleteTodo(ctx context.Context, id string) error
}

// Result is a synchronous read of one entry.
type Result[T any] struct {
	Value T
	// HasValue is false until the first successful fetch.
	HasValue bool
	// IsLoading means no value yet and a fetch is running.
	IsLoading bool
	// IsFetching means a fetch is running, with or without a value.
	IsFetching bool
	IsError    bool
	Err        error
	Stale      bool
	FetchedAt  time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithStaleTime sets the freshness window.
func WithStaleTime(d time.Duration) Option { return func(c *Cache) { c.staleTime = d } }

// WithRetryDelay sets the pause after a failed fetch before reads retry it.
func WithRetryDelay(d time.Duration) Option { return func(c *Cache) { c.retryDelay = d } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

// WithLogger sets the logger for fetch and mutation lifecycle messages.
func WithLogger(l *log.Logger) Option { return func(c *Cache) { c.logger = l } }

// WithTracer sets the tracer used for mutation spans.
func WithTracer(t trace.Tracer) Option { return func(c *Cache) { c.tracer = t } }

// Cache holds server snapshots keyed by Key. It is safe for concurrent use;
// network calls never run under its lock.
type Cache struct {
	api        API
	staleTime  time.Duration
	retryDelay time.Duration
	now        func() time.Time
	logger     *log.Logger
	tracer     trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	group  singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
	subs    map[int]chan Key
	nextSub int
	// placeholders holds the refs of creates that have not settled.
	placeholders map[Ref]bool
}

// New returns a cache over api. Call Close when done.
func New(api API, opts ...Option) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		api:        api,
		staleTime:  DefaultStaleTime,
		retryDelay: DefaultRetryDelay,
		now:        time.Now,
		logger:     logging.Discard(),
		tracer:     telemetry.Tracer("cache"),
		ctx:        ctx,
		cancel:     cancel,
		entries:    make(map[string]*entry),
		subs:       make(map[int]chan Key),

		placeholders: make(map[Ref]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close cancels background fetches and waits for them and for any
// asynchronous mutation to finish.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, e := range c.entries {
		if e.cancel != nil {
			e.cancel()
		}
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.mu.Unlock()
}

// Todos returns the cached list for filter and starts a background refresh
// when it is missing or stale.
func (c *Cache) Todos(filter model.TodoFilter) Result[[]Item] {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.ensureLocked(TodosKey(filter))
	c.refreshLocked(e)
	return listResult(e)
}

// Todo returns the cached single item and starts a background refresh when
// it is missing or stale.
func (c *Cache) Todo(id string) Result[Item] {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.ensureLocked(TodoKey(id))
	c.refreshLocked(e)
	return itemResult(e)
}

// FetchTodos returns a fresh list, fetching it if needed. While a mutation
// on the list is pending the optimistic value is returned as is.
func (c *Cache) FetchTodos(ctx context.Context, filter model.TodoFilter) ([]Item, error) {
	v, err := c.fetch(ctx, TodosKey(filter))
	if err != nil {
		return nil, err
	}
	return v.list, nil
}

// FetchTodo returns a fresh single item, fetching it if needed.
func (c *Cache) FetchTodo(ctx context.Context, id string) (Item, error) {
	v, err := c.fetch(ctx, TodoKey(id))
	if err != nil {
		return Item{}, err
	}
	return v.item, nil
}

// Peek returns the cached list for filter without triggering a fetch.
func (c *Cache) Peek(filter model.TodoFilter) Result[[]Item] {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[TodosKey(filter).String()]
	if !ok {
		return Result[[]Item]{}
	}
	return listResult(e)
}

// Invalidate marks k stale. It reports false, and does nothing, when k is
// absent or already stale.
func (c *Cache) Invalidate(k Key) bool {
	c.mu.Lock()
	changed := c.invalidateLocked(k.String())
	c.mu.Unlock()
	if changed {
		c.notify(k)
	}
	return changed
}

// InvalidateTodos marks every collection entry stale and returns how many
// changed.
func (c *Cache) InvalidateTodos() int {
	c.mu.Lock()
	keys := c.invalidateTodosLocked()
	c.mu.Unlock()
	c.notify(keys...)
	return len(keys)
}

// Subscribe returns a channel of changed keys. Sends never block; a slow
// subscriber misses notifications rather than stalling the cache. The
// channel is closed by cancel or by Close.
func (c *Cache) Subscribe() (<-chan Key, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan Key, 64)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				close(sub)
				delete(c.subs, id)
			}
		})
	}
}

func (c *Cache) notify(keys ...Key) {
	if len(keys) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		for _, k := range keys {
			select {
			case ch <- k:
			default:
			}
		}
	}
}

func (c *Cache) ensureLocked(k Key) *entry {
	ks := k.String()
	e, ok := c.entries[ks]
	if !ok {
		e = &entry{key: k}
		c.entries[ks] = e
	}
	return e
}

func (c *Cache) freshLocked(e *entry) bool {
	return e.hasValue && !e.stale && c.now().Sub(e.fetchedAt) < c.staleTime
}

func (c *Cache) invalidateLocked(ks string) bool {
	e, ok := c.entries[ks]
	if !ok || e.stale || !e.hasValue {
		return false
	}
	e.stale = true
	e.invalidations++
	return true
}

func (c *Cache) invalidateTodosLocked() []Key {
	var keys []Key
	for ks, e := range c.entries {
		if e.key.IsCollection() && c.invalidateLocked(ks) {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// collectionsLocked returns every collection entry that holds a value.
func (c *Cache) collectionsLocked() []*entry {
	var out []*entry
	for _, e := range c.entries {
		if e.key.IsCollection() && e.hasValue {
			out = append(out, e)
		}
	}
	return out
}

// refreshLocked starts a background fetch for e unless it is fresh, already
// loading, held by a pending mutation or recently failed. A failure only
// waits out the retry delay when nothing invalidated the entry since.
func (c *Cache) refreshLocked(e *entry) {
	if c.closed || e.loading || e.pending > 0 || c.freshLocked(e) {
		return
	}
	if e.err != nil && !e.invalidatedSinceError() && c.now().Sub(e.errAt) < c.retryDelay {
		return
	}
	e.loading = true
	gen := e.gen
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		<-c.group.DoChan(flightKey(e.key, gen), func() (any, error) {
			return c.load(e.key, gen)
		})
		c.endFlight(e, gen)
	}()
}

// endFlight clears the loading mark set before joining a flight. Joining a
// flight whose load already finished would otherwise leave it set.
func (c *Cache) endFlight(e *entry, gen uint64) {
	c.mu.Lock()
	if e.gen == gen && e.cancel == nil {
		e.loading = false
	}
	c.mu.Unlock()
}

func flightKey(k Key, gen uint64) string {
	return fmt.Sprintf("%s@%d", k, gen)
}

func (c *Cache) fetch(ctx context.Context, k Key) (entryState, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return entryState{}, ErrClosed
	}
	e := c.ensureLocked(k)
	if c.freshLocked(e) || (e.pending > 0 && e.hasValue) {
		v := e.entryState.clone()
		c.mu.Unlock()
		return v, nil
	}
	e.loading = true
	gen := e.gen
	out := make(chan singleflight.Result, 1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		res := <-c.group.DoChan(flightKey(k, gen), func() (any, error) {
			return c.load(k, gen)
		})
		c.endFlight(e, gen)
		out <- res
	}()
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return entryState{}, ctx.Err()
	case res := <-out:
		if res.Err != nil {
			return entryState{}, res.Err
		}
		return res.Val.(entryState).clone(), nil
	}
}

// load runs one fetch for k under generation gen and stores the result
// unless a mutation claimed the entry in the meantime. It returns the value
// the cache holds afterwards.
func (c *Cache) load(k Key, gen uint64) (entryState, error) {
	ks := k.String()
	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	c.mu.Lock()
	e, ok := c.entries[ks]
	if !ok || e.gen != gen {
		c.mu.Unlock()
		return c.current(ks)
	}
	e.cancel = cancel
	e.loading = true
	c.mu.Unlock()
	c.notify(k)

	var (
		list []model.Todo
		one  model.Todo
		err  error
	)
	if k.IsCollection() {
		list, err = c.api.ListTodos(ctx, k.filter)
	} else {
		one, err = c.api.GetTodo(ctx, k.id)
	}

	c.mu.Lock()
	if c.entries[ks] != e || e.gen != gen {
		c.mu.Unlock()
		c.logger.Debug("dropped superseded fetch", "key", ks)
		return c.current(ks)
	}
	e.cancel = nil
	e.loading = false
	if err != nil {
		e.fail(err, c.now())
		c.mu.Unlock()
		c.logger.Debug("fetch failed", "key", ks, "err", err)
		c.notify(k)
		return entryState{}, err
	}
	if k.IsCollection() {
		e.setList(itemsOf(list), c.now())
	} else {
		e.setItem(confirmedItem(one), c.now())
	}
	v := e.entryState.clone()
	c.mu.Unlock()
	c.notify(k)
	return v, nil
}

// current returns the cached value of ks after a fetch was superseded.
func (c *Cache) current(ks string) (entryState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return entryState{}, ErrClosed
	}
	e, ok := c.entries[ks]
	if !ok || !e.hasValue {
		return entryState{}, context.Canceled
	}
	return e.entryState.clone(), nil
}

func listResult(e *entry) Result[[]Item] {
	return Result[[]Item]{
		Value:      cloneItems(e.list),
		HasValue:   e.hasValue,
		IsLoading:  e.loading && !e.hasValue,
		IsFetching: e.loading,
		IsError:    e.err != nil,
		Err:        e.err,
		Stale:      e.stale,
		FetchedAt:  e.fetchedAt,
	}
}

func itemResult(e *entry) Result[Item] {
	return Result[Item]{
		Value:      e.item.clone(),
		HasValue:   e.hasValue,
		IsLoading:  e.loading && !e.hasValue,
		IsFetching: e.loading,
		IsError:    e.err != nil,
		Err:        e.err,
		Stale:      e.stale,
		FetchedAt:  e.fetchedAt,
	}
}
