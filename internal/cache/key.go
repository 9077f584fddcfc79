package cache

import (
	"github.com/Makepad-fr/tada/internal/model"
)

// Resource is the kind of server resource a Key names.
type Resource uint8

const (
	// ResourceTodos is a filtered todo collection.
	ResourceTodos Resource = iota + 1
	// ResourceTodo is a single todo by server id.
	ResourceTodo
)

const todosPrefix = "todos"

// Key names one cache entry. Two keys are equal when their String forms are.
type Key struct {
	resource Resource
	id       string
	filter   model.TodoFilter
}

// TodosKey is the collection key for filter.
func TodosKey(filter model.TodoFilter) Key {
	return Key{resource: ResourceTodos, filter: filter}
}

// TodoKey is the single-item key for a server id.
func TodoKey(id string) Key {
	return Key{resource: ResourceTodo, id: id}
}

func (k Key) Resource() Resource { return k.resource }
func (k Key) ID() string { return k.id }
func (k Key) Filter() model.TodoFilter { return k.filter }
func (k Key) IsCollection() bool { return k.resource == ResourceTodos }

// String is the canonical form: "todos", "todos?completed=true&priority=HIGH"
// or "todo/<id>". Filter parameters are sorted by name.
func (k Key) String() string {
	if k.resource == ResourceTodo {
		return "todo/" + k.id
	}
	if q := k.filter.Query().Encode(); q != "" {
		return todosPrefix + "?" + q
	}
	return todosPrefix
}
