package sqlitestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/store"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ticking(start time.Time) func() time.Time {
	cur := start
	return func() time.Time {
		cur = cur.Add(time.Second)
		return cur
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	_ = s.Close()
	s, err = Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s.Close()

	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM " + migrationTable).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("applied migrations = %d, want 1", n)
	}
}

func TestTodoCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, WithClock(ticking(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))

	desc := "two litres"
	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	created, err := s.CreateTodo(ctx, model.Todo{
		Title: "Buy milk", Description: &desc, Priority: model.PriorityHigh, DueDate: &due, UserID: "u1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.CreatedAt.IsZero() || !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("store did not assign id/timestamps: %+v", created)
	}

	got, err := s.GetTodo(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Buy milk" || got.Description == nil || *got.Description != desc || !got.DueDate.Equal(due) {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	title := "Buy oat milk"
	updated, err := s.UpdateTodo(ctx, created.ID, model.TodoPatch{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.DueDate == nil || !updated.DueDate.Equal(due) {
		t.Fatalf("absent dueDate must be left alone, got %v", updated.DueDate)
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Fatalf("updatedAt did not advance")
	}

	cleared, err := s.UpdateTodo(ctx, created.ID, model.TodoPatch{DueDate: model.Null[time.Time](), Description: model.Null[string]()})
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if cleared.DueDate != nil || cleared.Description != nil {
		t.Fatalf("null patch should clear: %+v", cleared)
	}
	reread, _ := s.GetTodo(ctx, created.ID)
	if reread.DueDate != nil || reread.Title != title {
		t.Fatalf("cleared state not persisted: %+v", reread)
	}

	if err := s.DeleteTodo(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetTodo(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("get after delete: %v", err)
	}
	if _, err := s.UpdateTodo(ctx, created.ID, model.TodoPatch{Title: &title}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("update after delete: %v", err)
	}
	if err := s.DeleteTodo(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("delete twice: %v", err)
	}
}

func TestListFiltersNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, WithClock(ticking(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))

	for i, p := range []model.Priority{model.PriorityLow, model.PriorityHigh, model.PriorityMedium, model.PriorityHigh} {
		if _, err := s.CreateTodo(ctx, model.Todo{Title: string(p), Priority: p, Completed: i%2 == 0, UserID: "u1"}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.CreateTodo(ctx, model.Todo{Title: "x", Priority: model.PriorityHigh, UserID: "u2"}); err != nil {
		t.Fatal(err)
	}

	high := model.PriorityHigh
	got, err := s.ListTodos(ctx, "u1", model.TodoFilter{Priority: &high})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || !got[0].CreatedAt.After(got[1].CreatedAt) {
		t.Fatalf("unexpected HIGH list: %+v", got)
	}

	done := true
	got, err = s.ListTodos(ctx, "u1", model.TodoFilter{Completed: &done})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("completed filter returned %d, want 2", len(got))
	}
	for _, td := range got {
		if !td.Completed {
			t.Fatalf("incomplete todo in completed list: %+v", td)
		}
	}

	all, _ := s.ListTodos(ctx, "u3", model.TodoFilter{})
	if all == nil || len(all) != 0 {
		t.Fatalf("empty list should be non-nil and empty, got %#v", all)
	}
}

func TestListTiesUseInsertOrder(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestStore(t, WithClock(func() time.Time { return frozen }))
	for _, title := range []string{"first", "second"} {
		if _, err := s.CreateTodo(ctx, model.Todo{Title: title, Priority: model.PriorityLow, UserID: "u1"}); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := s.ListTodos(ctx, "u1", model.TodoFilter{})
	if got[0].Title != "second" {
		t.Fatalf("newest insert should come first on a tie, got %q", got[0].Title)
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u, err := s.CreateUser(ctx, model.User{Email: "a@example.com", FirstName: "a", PasswordHash: "hash"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := s.CreateUser(ctx, model.User{Email: "A@EXAMPLE.com", PasswordHash: "x"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	byEmail, err := s.UserByEmail(ctx, "a@example.com")
	if err != nil || byEmail.ID != u.ID || byEmail.PasswordHash != "hash" {
		t.Fatalf("by email: %+v %v", byEmail, err)
	}
	if _, err := s.UserByID(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing user: %v", err)
	}
}
