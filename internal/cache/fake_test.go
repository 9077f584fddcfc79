package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Makepad-fr/tada/internal/apperr"
	"github.com/Makepad-fr/tada/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// fakeAPI is an in-memory server. Calls can be held on a gate and made to
// fail once.
type fakeAPI struct {
	mu    sync.Mutex
	clock *fakeClock
	todos []model.Todo // newest first
	seq   int
	calls map[string]int
	fail  map[string]error
	gates map[string]chan struct{}
}

func newFakeAPI(clock *fakeClock) *fakeAPI {
	return &fakeAPI{
		clock: clock,
		calls: map[string]int{},
		fail:  map[string]error{},
		gates: map[string]chan struct{}{},
	}
}

// seed stores todos directly, newest first.
func (f *fakeAPI) seed(titles ...string) []model.Todo {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Todo
	for _, title := range titles {
		f.seq++
		now := f.clock.Now()
		t := model.Todo{
			ID: fmt.Sprintf("srv-%d", f.seq), Title: title, Priority: model.PriorityMedium,
			CreatedAt: now, UpdatedAt: now, UserID: "u1",
		}
		f.todos = append([]model.Todo{t}, f.todos...)
		out = append(out, t)
	}
	return out
}

// hold makes calls named op block until the returned release is called.
func (f *fakeAPI) hold(op string) (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[op] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (f *fakeAPI) failNext(op string, err error) {
	f.mu.Lock()
	f.fail[op] = err
	f.mu.Unlock()
}

func (f *fakeAPI) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// enter records the call and returns its gate and injected error. The
// caller computes its response before waiting so a held read returns data
// from before any later write.
func (f *fakeAPI) enter(op string) (chan struct{}, error) {
	f.calls[op]++
	err := f.fail[op]
	delete(f.fail, op)
	return f.gates[op], err
}

func wait(gate chan struct{}) {
	if gate != nil {
		<-gate
	}
}

func (f *fakeAPI) ListTodos(_ context.Context, filter model.TodoFilter) ([]model.Todo, error) {
	f.mu.Lock()
	gate, err := f.enter("list")
	out := []model.Todo{}
	for _, t := range f.todos {
		if filter.Matches(t) {
			out = append(out, t.Clone())
		}
	}
	f.mu.Unlock()
	wait(gate)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *fakeAPI) GetTodo(_ context.Context, id string) (model.Todo, error) {
	f.mu.Lock()
	gate, err := f.enter("get")
	var (
		found model.Todo
		ok    bool
	)
	for _, t := range f.todos {
		if t.ID == id {
			found, ok = t.Clone(), true
		}
	}
	f.mu.Unlock()
	wait(gate)
	if err != nil {
		return model.Todo{}, err
	}
	if !ok {
		return model.Todo{}, apperr.NotFound("Todo not found")
	}
	return found, nil
}

func (f *fakeAPI) CreateTodo(_ context.Context, n model.NewTodo) (model.Todo, error) {
	f.mu.Lock()
	gate, err := f.enter("create")
	if g, ok := f.gates["create:"+n.Title]; ok {
		gate = g
	}
	f.mu.Unlock()
	wait(gate)
	if err != nil {
		return model.Todo{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := n.Todo("u1")
	t.ID = fmt.Sprintf("srv-%d", f.seq)
	t.CreatedAt = f.clock.Now()
	t.UpdatedAt = t.CreatedAt
	f.todos = append([]model.Todo{t}, f.todos...)
	return t.Clone(), nil
}

func (f *fakeAPI) UpdateTodo(_ context.Context, id string, patch model.TodoPatch) (model.Todo, error) {
	f.mu.Lock()
	gate, err := f.enter("update")
	f.mu.Unlock()
	wait(gate)
	if err != nil {
		return model.Todo{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.todos {
		if t.ID == id {
			next := t.Apply(patch)
			next.UpdatedAt = f.clock.Now().Add(time.Millisecond)
			f.todos[i] = next
			return next.Clone(), nil
		}
	}
	return model.Todo{}, apperr.NotFound("Todo not found")
}

func (f *fakeAPI) DeleteTodo(_ context.Context, id string) error {
	f.mu.Lock()
	gate, err := f.enter("delete")
	f.mu.Unlock()
	wait(gate)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.todos {
		if t.ID == id {
			f.todos = append(f.todos[:i], f.todos[i+1:]...)
			return nil
		}
	}
	return apperr.NotFound("Todo not found")
}
