package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Makepad-fr/tada/internal/apperr"
	"github.com/Makepad-fr/tada/internal/model"
)

func newTestCache(t *testing.T, opts ...Option) (*Cache, *fakeAPI, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	api := newFakeAPI(clock)
	c := New(api, append([]Option{WithClock(clock.Now)}, opts...)...)
	t.Cleanup(c.Close)
	return c, api, clock
}

// eventually polls cond until it holds or a second passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func ptr[T any](v T) *T { return &v }

func TestKeyString(t *testing.T) {
	high := model.PriorityHigh
	tests := []struct {
		key  Key
		want string
	}{
		{TodosKey(model.TodoFilter{}), "todos"},
		{TodosKey(model.TodoFilter{Priority: &high}), "todos?priority=HIGH"},
		{TodosKey(model.TodoFilter{Priority: &high, Completed: ptr(true)}), "todos?completed=true&priority=HIGH"},
		{TodoKey("abc"), "todo/abc"},
	}
	for _, tc := range tests {
		if got := tc.key.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
	if !TodosKey(model.TodoFilter{}).IsCollection() || TodoKey("x").IsCollection() {
		t.Fatal("IsCollection mismatch")
	}
}

func TestRefsAreTagged(t *testing.T) {
	p, c := PendingRef("same"), ConfirmedRef("same")
	if p == c {
		t.Fatal("pending and confirmed refs with the same id must differ")
	}
	if !p.IsPending() || p.ServerID() != "" || p.LocalID() != "same" {
		t.Fatalf("pending ref accessors: %+v", p)
	}
	if c.IsPending() || c.ServerID() != "same" || c.LocalID() != "" {
		t.Fatalf("confirmed ref accessors: %+v", c)
	}
}

func TestFirstReadLoadsInBackground(t *testing.T) {
	c, api, _ := newTestCache(t)
	api.seed("a", "b")
	release := api.hold("list")

	res := c.Todos(model.TodoFilter{})
	if res.HasValue || !res.IsLoading {
		t.Fatalf("first read: %+v", res)
	}
	release()

	eventually(t, "list to load", func() bool { return c.Todos(model.TodoFilter{}).HasValue })
	got := c.Todos(model.TodoFilter{}).Value
	if len(got) != 2 || got[0].Todo.Title != "b" || got[0].Ref != ConfirmedRef(got[0].Todo.ID) {
		t.Fatalf("loaded list: %+v", got)
	}
	if n := api.count("list"); n != 1 {
		t.Fatalf("list calls = %d, want 1", n)
	}
}

func TestConcurrentReadsShareOneRequest(t *testing.T) {
	c, api, _ := newTestCache(t)
	api.seed("a")
	release := api.hold("list")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.FetchTodos(context.Background(), model.TodoFilter{})
			errs <- err
		}()
	}
	for i := 0; i < 8; i++ {
		c.Todos(model.TodoFilter{})
	}
	eventually(t, "first list call", func() bool { return api.count("list") == 1 })
	release()
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
	}
	if n := api.count("list"); n != 1 {
		t.Fatalf("list calls = %d, want 1", n)
	}
}

func TestSingleItemFetchedOnce(t *testing.T) {
	c, api, _ := newTestCache(t)
	seeded := api.seed("a")
	id := seeded[0].ID

	it, err := c.FetchTodo(context.Background(), id)
	if err != nil || it.Todo.Title != "a" {
		t.Fatalf("FetchTodo: %+v %v", it, err)
	}
	if res := c.Todo(id); !res.HasValue || res.IsFetching {
		t.Fatalf("fresh item should not refetch: %+v", res)
	}
	if _, err := c.FetchTodo(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	if n := api.count("get"); n != 1 {
		t.Fatalf("get calls = %d, want 1", n)
	}
}

func TestStaleWindow(t *testing.T) {
	c, api, clock := newTestCache(t, WithStaleTime(time.Minute))
	api.seed("a")
	ctx := context.Background()

	if _, err := c.FetchTodos(ctx, model.TodoFilter{}); err != nil {
		t.Fatal(err)
	}
	clock.Advance(30 * time.Second)
	if _, err := c.FetchTodos(ctx, model.TodoFilter{}); err != nil {
		t.Fatal(err)
	}
	if n := api.count("list"); n != 1 {
		t.Fatalf("fresh entry refetched: %d calls", n)
	}

	clock.Advance(time.Minute)
	res := c.Todos(model.TodoFilter{})
	if !res.HasValue || len(res.Value) != 1 {
		t.Fatalf("stale read must still return the cached value: %+v", res)
	}
	eventually(t, "background refetch", func() bool { return api.count("list") == 2 })
}

func TestReadFailureKeepsLastValue(t *testing.T) {
	c, api, clock := newTestCache(t)
	api.seed("a")
	ctx := context.Background()
	if _, err := c.FetchTodos(ctx, model.TodoFilter{}); err != nil {
		t.Fatal(err)
	}

	clock.Advance(DefaultStaleTime + time.Second)
	boom := apperr.New(apperr.KindTransient, "Cannot reach server")
	api.failNext("list", boom)
	if _, err := c.FetchTodos(ctx, model.TodoFilter{}); !errors.Is(err, apperr.ErrTransient) {
		t.Fatalf("fetch error = %v", err)
	}

	res := c.Todos(model.TodoFilter{})
	if !res.HasValue || len(res.Value) != 1 || res.Value[0].Todo.Title != "a" {
		t.Fatalf("last known value lost: %+v", res)
	}
	if !res.IsError || !errors.Is(res.Err, apperr.ErrTransient) {
		t.Fatalf("error not recorded: %+v", res)
	}
	if res.IsFetching {
		t.Fatal("a just-failed entry should not retry on every read")
	}
}

func TestRetryDelayAfterInvalidatedFailure(t *testing.T) {
	c, api, clock := newTestCache(t)
	api.seed("a")
	all := model.TodoFilter{}
	if _, err := c.FetchTodos(context.Background(), all); err != nil {
		t.Fatal(err)
	}

	c.Invalidate(TodosKey(all))
	api.failNext("list", errServer)
	c.Todos(all)
	eventually(t, "failed refetch", func() bool {
		res := c.Peek(all)
		return res.IsError && !res.IsFetching
	})

	for i := 0; i < 5; i++ {
		if res := c.Todos(all); res.IsFetching {
			t.Fatalf("read %d refetched inside the retry delay", i)
		}
	}
	if n := api.count("list"); n != 2 {
		t.Fatalf("list calls = %d, want 2", n)
	}

	clock.Advance(DefaultRetryDelay + time.Second)
	if res := c.Todos(all); !res.IsFetching {
		t.Fatal("read after the retry delay should refetch")
	}
	eventually(t, "retry", func() bool { return api.count("list") == 3 })
}

func TestJoiningFinishedFlightClearsLoading(t *testing.T) {
	c, _, _ := newTestCache(t)
	all := model.TodoFilter{}
	started, gate := make(chan struct{}), make(chan struct{})
	go c.group.Do(flightKey(TodosKey(all), 0), func() (any, error) {
		close(started)
		<-gate
		return entryState{}, errServer
	})
	<-started

	done := make(chan error, 1)
	go func() {
		_, err := c.FetchTodos(context.Background(), all)
		done <- err
	}()
	eventually(t, "fetch to start", func() bool { return c.Peek(all).IsFetching })
	time.Sleep(10 * time.Millisecond)
	close(gate)
	<-done

	if c.Peek(all).IsFetching {
		t.Fatal("loading left set after the joined flight returned")
	}
	if res := c.Todos(all); !res.IsFetching {
		t.Fatal("a later read should be able to start a fetch")
	}
}

func TestInvalidateIsIdempotent(t *testing.T) {
	c, api, _ := newTestCache(t)
	api.seed("a")
	ctx := context.Background()
	if _, err := c.FetchTodos(ctx, model.TodoFilter{}); err != nil {
		t.Fatal(err)
	}
	k := TodosKey(model.TodoFilter{})

	if !c.Invalidate(k) {
		t.Fatal("first invalidate should change the entry")
	}
	if c.Invalidate(k) {
		t.Fatal("second invalidate must be a no-op")
	}
	if n := c.InvalidateTodos(); n != 0 {
		t.Fatalf("InvalidateTodos on stale entries changed %d", n)
	}
	if c.Invalidate(TodoKey("never-read")) {
		t.Fatal("invalidating an absent key must be a no-op")
	}

	release := api.hold("list")
	c.Todos(model.TodoFilter{})
	c.Todos(model.TodoFilter{})
	c.Invalidate(k)
	c.Todos(model.TodoFilter{})
	release()
	eventually(t, "refetch", func() bool { return !c.Todos(model.TodoFilter{}).Stale })
	if n := api.count("list"); n != 2 {
		t.Fatalf("list calls = %d, want 2 (initial + one refetch)", n)
	}
}

func TestSubscribeSeesFetch(t *testing.T) {
	c, api, _ := newTestCache(t)
	api.seed("a")
	ch, cancel := c.Subscribe()
	defer cancel()

	if _, err := c.FetchTodos(context.Background(), model.TodoFilter{}); err != nil {
		t.Fatal(err)
	}
	select {
	case k := <-ch:
		if k.String() != "todos" {
			t.Fatalf("notified %q", k)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}

	cancel()
	for range ch {
	}
}

func TestClosedCache(t *testing.T) {
	clock := newFakeClock()
	c := New(newFakeAPI(clock), WithClock(clock.Now))
	c.Close()
	c.Close()

	if _, err := c.FetchTodos(context.Background(), model.TodoFilter{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("fetch after close: %v", err)
	}
	p := c.CreateAsync(context.Background(), model.NewTodo{Title: "x"})
	if _, err := p.Wait(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("mutation after close: %v", err)
	}
	if p.State() != StateRolledBack {
		t.Fatalf("state = %v", p.State())
	}
}
