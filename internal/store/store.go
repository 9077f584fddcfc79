// Package store defines the single-record persistence boundary the server
// talks to. Implementations live in sub-packages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Makepad-fr/tada/internal/model"
)

var (
	// ErrNotFound is returned when no record has the requested key.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a unique key is already taken.
	ErrConflict = errors.New("record already exists")
)

// Todos is single-record CRUD over todos. Ownership is the caller's concern.
type Todos interface {
	// ListTodos returns the user's todos matching filter, newest first.
	ListTodos(ctx context.Context, userID string, filter model.TodoFilter) ([]model.Todo, error)
	GetTodo(ctx context.Context, id string) (model.Todo, error)
	// CreateTodo assigns ID, CreatedAt and UpdatedAt.
	CreateTodo(ctx context.Context, t model.Todo) (model.Todo, error)
	// UpdateTodo applies patch and advances UpdatedAt.
	UpdateTodo(ctx context.Context, id string, patch model.TodoPatch) (model.Todo, error)
	DeleteTodo(ctx context.Context, id string) error
}

// Users persists accounts. Emails are unique.
type Users interface {
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	UserByEmail(ctx context.Context, email string) (model.User, error)
	UserByID(ctx context.Context, id string) (model.User, error)
}

// Store is everything the server needs.
type Store interface {
	Todos
	Users
	Close() error
}

// NextUpdatedAt returns now, or prev plus one millisecond when the clock has
// not moved past prev at storage precision.
func NextUpdatedAt(prev, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Millisecond)
	if !now.After(prev) {
		return prev.Add(time.Millisecond)
	}
	return now
}
