package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrMutationFinished is returned when a mutation instance is run again.
// Retries need a new instance, which takes a fresh snapshot.
var ErrMutationFinished = errors.New("cache: mutation already run")

// State is a mutation's position in its lifecycle.
type State int32

const (
	StateIdle State = iota
	StateOptimisticApplied
	StateReconciled
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOptimisticApplied:
		return "optimistic-applied"
	case StateReconciled:
		return "reconciled"
	case StateRolledBack:
		return "rolled-back"
	}
	return "unknown"
}

// Final reports whether s is a terminal state.
func (s State) Final() bool { return s == StateReconciled || s == StateRolledBack }

// plan is what differs between mutation kinds. Every method except call
// runs with the cache lock held.
type plan[T any] interface {
	name() string
	// prepare checks the input against the cache before anything is touched.
	prepare(c *Cache) error
	// touched lists the entries the optimistic edit will change.
	touched(c *Cache) []*entry
	apply(c *Cache)
	call(ctx context.Context, api API) (T, error)
	// reconcile writes the server result and returns any extra keys it
	// changed beyond the touched entries.
	reconcile(c *Cache, v T) []Key
	invalidates() bool
	// release runs once the call has returned, before success or rollback.
	release(c *Cache)
}

// Mutation is one run of a write against the cache and the server.
type Mutation[T any] struct {
	c     *Cache
	plan  plan[T]
	state atomic.Int32

	async bool
	ctx   context.Context
	span  trace.Span
	snaps []snapshot

	done chan struct{}
	once sync.Once
	val  T
	err  error
}

func newMutation[T any](c *Cache, p plan[T]) *Mutation[T] {
	return &Mutation[T]{c: c, plan: p, done: make(chan struct{})}
}

// State returns the current lifecycle state.
func (m *Mutation[T]) State() State { return State(m.state.Load()) }

// Run applies the optimistic edit, calls the server and then reconciles or
// rolls back. The server call is not cancelled with ctx.
func (m *Mutation[T]) Run(ctx context.Context) (T, error) {
	if err := m.begin(ctx); err != nil {
		var zero T
		return zero, err
	}
	m.settle()
	return m.val, m.err
}

// begin runs the optimistic phase.
func (m *Mutation[T]) begin(ctx context.Context) error {
	if !m.state.CompareAndSwap(int32(StateIdle), int32(StateOptimisticApplied)) {
		return ErrMutationFinished
	}
	c := m.c
	m.ctx, m.span = c.tracer.Start(context.WithoutCancel(ctx), "cache."+m.plan.name())

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		m.finish(StateRolledBack, ErrClosed)
		return ErrClosed
	}
	if err := m.plan.prepare(c); err != nil {
		c.mu.Unlock()
		m.finish(StateRolledBack, err)
		return err
	}
	if m.async {
		c.wg.Add(1)
	}
	entries := m.plan.touched(c)
	m.snaps = make([]snapshot, 0, len(entries))
	keys := make([]Key, 0, len(entries))
	for _, e := range entries {
		e.supersede()
		e.pending++
		m.snaps = append(m.snaps, snapshot{
			e:       e,
			present: c.entries[e.key.String()] == e,
			state:   e.entryState.clone(),

			invalidations: e.invalidations,
		})
		keys = append(keys, e.key)
	}
	m.plan.apply(c)
	c.mu.Unlock()

	m.span.SetAttributes(attribute.Int("cache.touched", len(keys)))
	c.logger.Debug("optimistic update applied", "mutation", m.plan.name(), "entries", len(keys))
	c.notify(keys...)
	return nil
}

// settle runs the network phase and then the success or failure phase.
func (m *Mutation[T]) settle() {
	c := m.c
	v, err := m.plan.call(m.ctx, c.api)

	c.mu.Lock()
	keys := make([]Key, 0, len(m.snaps))
	for _, s := range m.snaps {
		s.e.pending--
		keys = append(keys, s.e.key)
	}
	m.plan.release(c)
	state := StateReconciled
	if err != nil {
		state = StateRolledBack
		for _, s := range m.snaps {
			s.restore(c)
		}
	} else {
		now := c.now()
		for _, s := range m.snaps {
			if c.entries[s.e.key.String()] == s.e {
				s.e.markFresh(now)
			}
		}
		keys = append(keys, m.plan.reconcile(c, v)...)
		if m.plan.invalidates() {
			keys = append(keys, c.invalidateTodosLocked()...)
		}
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Debug("mutation rolled back", "mutation", m.plan.name(), "err", err)
	} else {
		c.logger.Debug("mutation reconciled", "mutation", m.plan.name())
	}
	c.notify(keys...)
	m.val = v
	m.finish(state, err)
}

func (m *Mutation[T]) finish(state State, err error) {
	m.once.Do(func() {
		m.err = err
		if err != nil {
			m.span.RecordError(err)
			m.span.SetStatus(codes.Error, err.Error())
		}
		m.span.SetAttributes(attribute.String("cache.state", state.String()))
		m.span.End()
		m.state.Store(int32(state))
		close(m.done)
	})
}

// Pending is the handle of a mutation running in the background. The
// optimistic edit is already visible when the handle is returned.
type Pending[T any] struct {
	m   *Mutation[T]
	ref Ref
}

// Done is closed once the mutation has reconciled or rolled back.
func (p *Pending[T]) Done() <-chan struct{} { return p.m.done }

// State returns the mutation's lifecycle state.
func (p *Pending[T]) State() State { return p.m.State() }

// Ref is the placeholder ref of an asynchronous create; zero otherwise.
func (p *Pending[T]) Ref() Ref { return p.ref }

// Wait blocks until the mutation settles or ctx ends. Giving up on ctx does
// not cancel the mutation.
func (p *Pending[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.m.done:
		return p.m.val, p.m.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// start runs m's optimistic phase now and the rest in the background.
func start[T any](ctx context.Context, m *Mutation[T]) *Pending[T] {
	p := &Pending[T]{m: m}
	m.async = true
	if err := m.begin(ctx); err != nil {
		return p
	}
	go func() {
		defer m.c.wg.Done()
		m.settle()
	}()
	return p
}
