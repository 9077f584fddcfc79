// Package sqlitestore persists users and todos in SQLite.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/store"
	"github.com/Makepad-fr/tada/internal/store/sqlitestore/migrations"
)

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store implements store.Store over SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// Open opens the database at path and applies bundled migrations.
func Open(path string, opts ...Option) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps the per-connection PRAGMAs in force and
	// serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := applyMigrations(context.Background(), db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const todoColumns = `id, user_id, title, description, completed, priority, due_date, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanTodo(row scanner) (model.Todo, error) {
	var (
		t         model.Todo
		desc      sql.NullString
		completed int
		priority  string
		due       sql.NullInt64
		created   int64
		updated   int64
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Title, &desc, &completed, &priority, &due, &created, &updated); err != nil {
		return model.Todo{}, err
	}
	if desc.Valid {
		d := desc.String
		t.Description = &d
	}
	t.Completed = completed != 0
	t.Priority = model.Priority(priority)
	if due.Valid {
		d := fromMillis(due.Int64)
		t.DueDate = &d
	}
	t.CreatedAt = fromMillis(created)
	t.UpdatedAt = fromMillis(updated)
	return t, nil
}

func nullableString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullableMillis(p *time.Time) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*p), Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *Store) ListTodos(ctx context.Context, userID string, filter model.TodoFilter) ([]model.Todo, error) {
	query := `SELECT ` + todoColumns + ` FROM todos WHERE user_id = ?`
	args := []any{userID}
	if filter.Completed != nil {
		query += ` AND completed = ?`
		args = append(args, boolInt(*filter.Completed))
	}
	if filter.Priority != nil {
		query += ` AND priority = ?`
		args = append(args, string(*filter.Priority))
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	out := []model.Todo{}
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	return out, nil
}

func (s *Store) GetTodo(ctx context.Context, id string) (model.Todo, error) {
	return s.getTodo(ctx, s.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getTodo(ctx context.Context, q queryRower, id string) (model.Todo, error) {
	t, err := scanTodo(q.QueryRowContext(ctx, `SELECT `+todoColumns+` FROM todos WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Todo{}, store.ErrNotFound
	}
	if err != nil {
		return model.Todo{}, fmt.Errorf("get todo: %w", err)
	}
	return t, nil
}

func (s *Store) CreateTodo(ctx context.Context, t model.Todo) (model.Todo, error) {
	t = t.Clone()
	t.ID = uuid.NewString()
	t.CreatedAt = s.now().UTC().Truncate(time.Millisecond)
	t.UpdatedAt = t.CreatedAt
	if t.DueDate != nil {
		d := t.DueDate.UTC().Truncate(time.Millisecond)
		t.DueDate = &d
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO todos (`+todoColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Title, nullableString(t.Description), boolInt(t.Completed),
		string(t.Priority), nullableMillis(t.DueDate), toMillis(t.CreatedAt), toMillis(t.UpdatedAt),
	)
	if err != nil {
		return model.Todo{}, fmt.Errorf("insert todo: %w", err)
	}
	return t, nil
}

func (s *Store) UpdateTodo(ctx context.Context, id string, patch model.TodoPatch) (model.Todo, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Todo{}, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	prev, err := s.getTodo(ctx, tx, id)
	if err != nil {
		return model.Todo{}, err
	}
	next := prev.Apply(patch)
	next.UpdatedAt = store.NextUpdatedAt(prev.UpdatedAt, s.now())
	if next.DueDate != nil {
		d := next.DueDate.UTC().Truncate(time.Millisecond)
		next.DueDate = &d
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE todos SET title = ?, description = ?, completed = ?, priority = ?, due_date = ?, updated_at = ? WHERE id = ?`,
		next.Title, nullableString(next.Description), boolInt(next.Completed), string(next.Priority),
		nullableMillis(next.DueDate), toMillis(next.UpdatedAt), id,
	); err != nil {
		return model.Todo{}, fmt.Errorf("update todo: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Todo{}, fmt.Errorf("commit update: %w", err)
	}
	return next, nil
}

func (s *Store) DeleteTodo(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

const userColumns = `id, email, first_name, last_name, password_hash, created_at, updated_at`

func scanUser(row scanner) (model.User, error) {
	var (
		u       model.User
		created int64
		updated int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &created, &updated); err != nil {
		return model.User{}, err
	}
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	u.ID = uuid.NewString()
	u.CreatedAt = s.now().UTC().Truncate(time.Millisecond)
	u.UpdatedAt = u.CreatedAt
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.FirstName, u.LastName, u.PasswordHash, toMillis(u.CreatedAt), toMillis(u.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return model.User{}, store.ErrConflict
	}
	if err != nil {
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (model.User, error) {
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (s *Store) UserByID(ctx context.Context, id string) (model.User, error) {
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (s *Store) queryUser(ctx context.Context, query string, arg string) (model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, store.ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
