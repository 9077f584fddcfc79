package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/store"
)

// JSON-backed storage. Single file, human-readable, portable.
// One process owns the file; the mutex covers concurrent handlers.

// LegacyFileName is where the old local CLI kept its items.
const LegacyFileName = "todos.json"

type document struct {
	Users []userRecord `json:"users"`
	Todos []model.Todo `json:"todos"`
}

// userRecord keeps the password hash, which model.User hides from JSON.
type userRecord struct {
	model.User
	PasswordHash string `json:"passwordHash"`
}

// Store implements store.Store over a JSON file.
type Store struct {
	path string
	now  func() time.Time

	mu  sync.Mutex
	doc document
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// Open loads path, creating an empty store when the file does not exist yet.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	s := &Store{path: filepath.Clean(path), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	if err := json.Unmarshal(b, &s.doc); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}
	return s, nil
}

// Close is a no-op; every write is flushed immediately.
func (s *Store) Close() error { return nil }

// save must be called with mu held.
func (s *Store) save() error {
	b, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, b, 0o600); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func (s *Store) stamp() time.Time { return s.now().UTC().Truncate(time.Millisecond) }

func (s *Store) ListTodos(_ context.Context, userID string, filter model.TodoFilter) ([]model.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []model.Todo{}
	// Walk backwards so equal CreatedAt keeps the latest insert first.
	for i := len(s.doc.Todos) - 1; i >= 0; i-- {
		t := s.doc.Todos[i]
		if t.UserID == userID && filter.Matches(t) {
			out = append(out, t.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetTodo(_ context.Context, id string) (model.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return model.Todo{}, store.ErrNotFound
	}
	return s.doc.Todos[i].Clone(), nil
}

func (s *Store) CreateTodo(_ context.Context, t model.Todo) (model.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t = t.Clone()
	t.ID = uuid.NewString()
	t.CreatedAt = s.stamp()
	t.UpdatedAt = t.CreatedAt
	s.doc.Todos = append(s.doc.Todos, t)
	if err := s.save(); err != nil {
		s.doc.Todos = s.doc.Todos[:len(s.doc.Todos)-1]
		return model.Todo{}, err
	}
	return t.Clone(), nil
}

func (s *Store) UpdateTodo(_ context.Context, id string, patch model.TodoPatch) (model.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return model.Todo{}, store.ErrNotFound
	}
	prev := s.doc.Todos[i]
	next := prev.Apply(patch)
	next.UpdatedAt = store.NextUpdatedAt(prev.UpdatedAt, s.now())
	s.doc.Todos[i] = next
	if err := s.save(); err != nil {
		s.doc.Todos[i] = prev
		return model.Todo{}, err
	}
	return next.Clone(), nil
}

func (s *Store) DeleteTodo(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return store.ErrNotFound
	}
	prev := s.doc.Todos
	s.doc.Todos = append(append([]model.Todo{}, prev[:i]...), prev[i+1:]...)
	if err := s.save(); err != nil {
		s.doc.Todos = prev
		return err
	}
	return nil
}

func (s *Store) indexOf(id string) int {
	for i, t := range s.doc.Todos {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) CreateUser(_ context.Context, u model.User) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.doc.Users {
		if strings.EqualFold(r.Email, u.Email) {
			return model.User{}, store.ErrConflict
		}
	}
	u.ID = uuid.NewString()
	u.CreatedAt = s.stamp()
	u.UpdatedAt = u.CreatedAt
	s.doc.Users = append(s.doc.Users, userRecord{User: u, PasswordHash: u.PasswordHash})
	if err := s.save(); err != nil {
		s.doc.Users = s.doc.Users[:len(s.doc.Users)-1]
		return model.User{}, err
	}
	return u, nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.doc.Users {
		if strings.EqualFold(r.Email, email) {
			return r.toUser(), nil
		}
	}
	return model.User{}, store.ErrNotFound
}

func (s *Store) UserByID(_ context.Context, id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.doc.Users {
		if r.ID == id {
			return r.toUser(), nil
		}
	}
	return model.User{}, store.ErrNotFound
}

func (r userRecord) toUser() model.User {
	u := r.User
	u.PasswordHash = r.PasswordHash
	return u
}
