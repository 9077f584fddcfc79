package model

import (
	"strings"
	"time"
)

// Priority ranks a todo. The zero value means "not set".
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Priorities lists the valid values in ascending order.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// Valid reports whether p is one of LOW, MEDIUM or HIGH.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ParsePriority is case-insensitive; ok is false for anything unknown.
func ParsePriority(s string) (Priority, bool) {
	p := Priority(strings.ToUpper(strings.TrimSpace(s)))
	return p, p.Valid()
}

// Next cycles LOW -> MEDIUM -> HIGH -> LOW.
func (p Priority) Next() Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium:
		return PriorityHigh
	default:
		return PriorityLow
	}
}

// Todo is the server-owned record, mirrored into the client cache by value.
type Todo struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Completed   bool       `json:"completed"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"dueDate"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	UserID      string     `json:"userId"`
}

// Clone returns a copy that shares no pointers with t.
func (t Todo) Clone() Todo {
	if t.Description != nil {
		d := *t.Description
		t.Description = &d
	}
	if t.DueDate != nil {
		d := *t.DueDate
		t.DueDate = &d
	}
	return t
}

// Apply returns t with every present patch field written over it.
// Timestamps are left to the caller.
func (t Todo) Apply(p TodoPatch) Todo {
	t = t.Clone()
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description.Set {
		t.Description = p.Description.Ptr()
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.DueDate.Set {
		t.DueDate = p.DueDate.Ptr()
	}
	return t
}

// NewTodo is the create payload.
type NewTodo struct {
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Completed   bool       `json:"completed,omitempty"`
	Priority    Priority   `json:"priority,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// Todo builds the record a store should persist for n, before the store
// assigns id and timestamps.
func (n NewTodo) Todo(userID string) Todo {
	t := Todo{
		Title:     n.Title,
		Completed: n.Completed,
		Priority:  n.Priority,
		UserID:    userID,
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if n.Description != nil && *n.Description != "" {
		d := *n.Description
		t.Description = &d
	}
	if n.DueDate != nil {
		d := n.DueDate.UTC()
		t.DueDate = &d
	}
	return t
}

var dueDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDueDate accepts RFC 3339, a zone-less timestamp (read as UTC) or a
// bare date (UTC midnight).
func ParseDueDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
