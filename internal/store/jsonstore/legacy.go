package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/store"
)

// legacyItem is the flat format written by the original local-only CLI.
type legacyItem struct {
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

// ImportLegacy copies the items of a legacy todos.json into userID's list,
// oldest first so the resulting newest-first order matches the file's tail.
// A missing file imports nothing.
func ImportLegacy(ctx context.Context, dst store.Todos, path, userID string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read file: %w", err)
	}
	var items []legacyItem
	if err := json.Unmarshal(b, &items); err != nil {
		return 0, fmt.Errorf("json unmarshal: %w", err)
	}

	n := 0
	for _, it := range items {
		title := strings.TrimSpace(it.Title)
		if title == "" {
			continue
		}
		td := model.NewTodo{Title: title, Completed: it.Done}.Todo(userID)
		if _, err := dst.CreateTodo(ctx, td); err != nil {
			return n, fmt.Errorf("import %q: %w", title, err)
		}
		n++
	}
	return n, nil
}
