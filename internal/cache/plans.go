package cache

import (
	"context"

	"github.com/google/uuid"

	"github.com/Makepad-fr/tada/internal/apperr"
	"github.com/Makepad-fr/tada/internal/model"
)

// ErrPendingTodo is returned for writes against a placeholder that has no
// server id yet.
var ErrPendingTodo = apperr.Validation("Todo is still being saved")

// NewCreate prepares a create mutation.
func (c *Cache) NewCreate(n model.NewTodo) *Mutation[model.Todo] {
	return newMutation[model.Todo](c, &createPlan{in: n, ref: PendingRef(uuid.NewString())})
}

// NewUpdate prepares an update mutation that changes only the fields
// present in patch.
func (c *Cache) NewUpdate(id string, patch model.TodoPatch) *Mutation[model.Todo] {
	return newMutation[model.Todo](c, &updatePlan{id: id, patch: patch})
}

// NewToggle prepares an update that flips completed on the cached value.
func (c *Cache) NewToggle(id string) *Mutation[model.Todo] {
	return newMutation[model.Todo](c, &updatePlan{id: id, toggle: true})
}

// NewDelete prepares a delete mutation.
func (c *Cache) NewDelete(id string) *Mutation[struct{}] {
	return newMutation[struct{}](c, &deletePlan{id: id})
}

func (c *Cache) Create(ctx context.Context, n model.NewTodo) (model.Todo, error) {
	return c.NewCreate(n).Run(ctx)
}

func (c *Cache) Update(ctx context.Context, id string, patch model.TodoPatch) (model.Todo, error) {
	return c.NewUpdate(id, patch).Run(ctx)
}

func (c *Cache) Toggle(ctx context.Context, id string) (model.Todo, error) {
	return c.NewToggle(id).Run(ctx)
}

func (c *Cache) Delete(ctx context.Context, id string) error {
	_, err := c.NewDelete(id).Run(ctx)
	return err
}

// CreateAsync applies the placeholder and returns without waiting for the
// server. The handle's Ref identifies the placeholder in cached lists.
func (c *Cache) CreateAsync(ctx context.Context, n model.NewTodo) *Pending[model.Todo] {
	m := c.NewCreate(n)
	p := start(ctx, m)
	p.ref = m.plan.(*createPlan).ref
	return p
}

func (c *Cache) UpdateAsync(ctx context.Context, id string, patch model.TodoPatch) *Pending[model.Todo] {
	return start(ctx, c.NewUpdate(id, patch))
}

func (c *Cache) ToggleAsync(ctx context.Context, id string) *Pending[model.Todo] {
	return start(ctx, c.NewToggle(id))
}

func (c *Cache) DeleteAsync(ctx context.Context, id string) *Pending[struct{}] {
	return start(ctx, c.NewDelete(id))
}

// listsContaining returns the collection entries that hold ref.
func (c *Cache) listsContaining(ref Ref) []*entry {
	var out []*entry
	for _, e := range c.collectionsLocked() {
		if indexOf(e.list, ref) >= 0 {
			out = append(out, e)
		}
	}
	return out
}

// cachedTodo finds the current cached value of a server id, preferring the
// single-item entry.
func (c *Cache) cachedTodo(id string) (model.Todo, bool) {
	if e, ok := c.entries[TodoKey(id).String()]; ok && e.hasValue {
		return e.item.Todo.Clone(), true
	}
	ref := ConfirmedRef(id)
	for _, e := range c.collectionsLocked() {
		if i := indexOf(e.list, ref); i >= 0 {
			return e.list[i].Todo.Clone(), true
		}
	}
	return model.Todo{}, false
}

// putRecord writes a server record into every list that holds it, dropping
// it where the list filter no longer matches, and into its item entry.
func (c *Cache) putRecord(t model.Todo) []Key {
	ref := ConfirmedRef(t.ID)
	var keys []Key
	for _, e := range c.listsContaining(ref) {
		replaceOrDrop(e, ref, confirmedItem(t))
		keys = append(keys, e.key)
	}
	ie := c.ensureLocked(TodoKey(t.ID))
	ie.supersede()
	ie.setItem(confirmedItem(t), c.now())
	return append(keys, ie.key)
}

// replaceOrDrop puts it at ref's position in e, or removes ref when e's
// filter rejects it.
func replaceOrDrop(e *entry, ref Ref, it Item) {
	i := indexOf(e.list, ref)
	if i < 0 {
		return
	}
	if e.key.filter.Matches(it.Todo) {
		e.list[i] = it
		return
	}
	e.list = append(e.list[:i:i], e.list[i+1:]...)
}

func removeRef(e *entry, ref Ref) bool {
	i := indexOf(e.list, ref)
	if i < 0 {
		return false
	}
	e.list = append(e.list[:i:i], e.list[i+1:]...)
	return true
}

type createPlan struct {
	in          model.NewTodo
	ref         Ref
	placeholder model.Todo
	lists       []*entry
}

func (p *createPlan) name() string { return "create" }

func (p *createPlan) prepare(c *Cache) error {
	now := c.now().UTC()
	p.placeholder = p.in.Todo("")
	p.placeholder.CreatedAt = now
	p.placeholder.UpdatedAt = now
	return nil
}

func (p *createPlan) touched(c *Cache) []*entry {
	for _, e := range c.collectionsLocked() {
		if e.key.filter.Matches(p.placeholder) {
			p.lists = append(p.lists, e)
		}
	}
	return p.lists
}

func (p *createPlan) apply(c *Cache) {
	c.placeholders[p.ref] = true
	for _, e := range p.lists {
		list := make([]Item, 0, len(e.list)+1)
		list = append(list, Item{Ref: p.ref, Todo: p.placeholder.Clone()})
		e.list = append(list, e.list...)
	}
}

func (p *createPlan) call(ctx context.Context, api API) (model.Todo, error) {
	return api.CreateTodo(ctx, p.in)
}

// reconcile swaps this mutation's own placeholder for the server record;
// placeholders of other creates are left alone.
func (p *createPlan) reconcile(c *Cache, t model.Todo) []Key {
	it := confirmedItem(t)
	for _, e := range p.lists {
		replaceOrDrop(e, p.ref, it)
	}
	ie := c.ensureLocked(TodoKey(t.ID))
	ie.supersede()
	ie.setItem(it, c.now())
	return []Key{ie.key}
}

func (p *createPlan) invalidates() bool { return true }

func (p *createPlan) release(c *Cache) { delete(c.placeholders, p.ref) }

type updatePlan struct {
	id     string
	patch  model.TodoPatch
	toggle bool
}

func (p *updatePlan) name() string {
	if p.toggle {
		return "toggle"
	}
	return "update"
}

func (p *updatePlan) prepare(c *Cache) error {
	if p.id == "" {
		return ErrPendingTodo
	}
	if p.toggle {
		cur, ok := c.cachedTodo(p.id)
		if !ok {
			return apperr.NotFound("Todo not found")
		}
		flipped := !cur.Completed
		p.patch = model.TodoPatch{Completed: &flipped}
	}
	if p.patch.Empty() {
		return apperr.Validation("Nothing to update")
	}
	return nil
}

func (p *updatePlan) touched(c *Cache) []*entry {
	entries := c.listsContaining(ConfirmedRef(p.id))
	if e, ok := c.entries[TodoKey(p.id).String()]; ok && e.hasValue {
		entries = append(entries, e)
	}
	return entries
}

func (p *updatePlan) apply(c *Cache) {
	ref := ConfirmedRef(p.id)
	now := c.now().UTC()
	edit := func(t model.Todo) model.Todo {
		t = t.Apply(p.patch)
		t.UpdatedAt = now
		return t
	}
	for _, e := range c.listsContaining(ref) {
		i := indexOf(e.list, ref)
		replaceOrDrop(e, ref, Item{Ref: ref, Todo: edit(e.list[i].Todo)})
	}
	if e, ok := c.entries[TodoKey(p.id).String()]; ok && e.hasValue {
		e.item.Todo = edit(e.item.Todo)
	}
}

func (p *updatePlan) call(ctx context.Context, api API) (model.Todo, error) {
	return api.UpdateTodo(ctx, p.id, p.patch)
}

func (p *updatePlan) reconcile(c *Cache, t model.Todo) []Key {
	return c.putRecord(t)
}

// invalidates is true when the patch can move the todo between filtered
// lists.
func (p *updatePlan) invalidates() bool { return p.patch.TouchesFilter() }

func (p *updatePlan) release(*Cache) {}

type deletePlan struct {
	id string
}

func (p *deletePlan) name() string { return "delete" }

func (p *deletePlan) prepare(*Cache) error {
	if p.id == "" {
		return ErrPendingTodo
	}
	return nil
}

func (p *deletePlan) touched(c *Cache) []*entry {
	entries := c.listsContaining(ConfirmedRef(p.id))
	if e, ok := c.entries[TodoKey(p.id).String()]; ok {
		entries = append(entries, e)
	}
	return entries
}

func (p *deletePlan) apply(c *Cache) {
	ref := ConfirmedRef(p.id)
	for _, e := range c.listsContaining(ref) {
		removeRef(e, ref)
	}
	delete(c.entries, TodoKey(p.id).String())
}

func (p *deletePlan) call(ctx context.Context, api API) (struct{}, error) {
	return struct{}{}, api.DeleteTodo(ctx, p.id)
}

// reconcile drops anything a read brought back while the delete was in
// flight.
func (p *deletePlan) reconcile(c *Cache, _ struct{}) []Key {
	ref := ConfirmedRef(p.id)
	var keys []Key
	for _, e := range c.listsContaining(ref) {
		removeRef(e, ref)
		keys = append(keys, e.key)
	}
	ik := TodoKey(p.id)
	if e, ok := c.entries[ik.String()]; ok {
		e.supersede()
		delete(c.entries, ik.String())
		keys = append(keys, ik)
	}
	return keys
}

func (p *deletePlan) invalidates() bool { return true }

func (p *deletePlan) release(*Cache) {}
