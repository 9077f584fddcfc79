package model

import (
	"encoding/json"
	"net/url"
	"strconv"
	"time"
)

// Nullable is a patch field with three states: absent (Set false),
// explicit null (Set true, Valid false) and a value.
type Nullable[T any] struct {
	Set   bool
	Valid bool
	Value T
}

// Some returns a present, non-null field.
func Some[T any](v T) Nullable[T] { return Nullable[T]{Set: true, Valid: true, Value: v} }

// Null returns an explicit null.
func Null[T any]() Nullable[T] { return Nullable[T]{Set: true} }

// Ptr returns nil for absent or null fields.
func (n Nullable[T]) Ptr() *T {
	if !n.Set || !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}

// TodoPatch is the update payload. Only present fields are changed.
type TodoPatch struct {
	Title       *string
	Description Nullable[string]
	Completed   *bool
	Priority    *Priority
	DueDate     Nullable[time.Time]
}

// Empty reports whether no field is present.
func (p TodoPatch) Empty() bool {
	return p.Title == nil && !p.Description.Set && p.Completed == nil &&
		p.Priority == nil && !p.DueDate.Set
}

// TouchesFilter reports whether the patch changes a field a TodoFilter can
// select on.
func (p TodoPatch) TouchesFilter() bool {
	return p.Completed != nil || p.Priority != nil
}

// MarshalJSON emits only present keys; cleared nullable fields become null.
func (p TodoPatch) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 5)
	if p.Title != nil {
		m["title"] = *p.Title
	}
	if p.Description.Set {
		m["description"] = p.Description.Ptr()
	}
	if p.Completed != nil {
		m["completed"] = *p.Completed
	}
	if p.Priority != nil {
		m["priority"] = *p.Priority
	}
	if p.DueDate.Set {
		if d := p.DueDate.Ptr(); d != nil {
			m["dueDate"] = d.UTC().Format(time.RFC3339Nano)
		} else {
			m["dueDate"] = nil
		}
	}
	return json.Marshal(m)
}

// TodoFilter narrows a list. Nil fields do not filter.
type TodoFilter struct {
	Completed *bool
	Priority  *Priority
}

// Matches reports whether t would be returned by a list with this filter.
func (f TodoFilter) Matches(t Todo) bool {
	if f.Completed != nil && t.Completed != *f.Completed {
		return false
	}
	if f.Priority != nil && t.Priority != *f.Priority {
		return false
	}
	return true
}

// Query encodes the filter as URL parameters, sorted by key.
func (f TodoFilter) Query() url.Values {
	v := url.Values{}
	if f.Completed != nil {
		v.Set("completed", strconv.FormatBool(*f.Completed))
	}
	if f.Priority != nil {
		v.Set("priority", string(*f.Priority))
	}
	return v
}

// FilterFromQuery parses list parameters the way the server reads them:
// completed is true only for the literal "true", unknown priorities are dropped.
func FilterFromQuery(q url.Values) TodoFilter {
	var f TodoFilter
	if q.Has("completed") {
		c := q.Get("completed") == "true"
		f.Completed = &c
	}
	if p := Priority(q.Get("priority")); p.Valid() {
		f.Priority = &p
	}
	return f
}
