package cache

import (
	"github.com/Makepad-fr/tada/internal/model"
)

type refKind uint8

const (
	refConfirmed refKind = iota + 1
	refPending
)

// Ref identifies a cached todo. A pending ref marks an optimistic
// placeholder that has no server id yet; a confirmed ref carries the server
// id. The two never compare equal, whatever their id strings.
type Ref struct {
	kind refKind
	id   string
}

// PendingRef returns the ref of a placeholder created locally.
func PendingRef(localID string) Ref { return Ref{kind: refPending, id: localID} }

// ConfirmedRef returns the ref of a server record.
func ConfirmedRef(serverID string) Ref { return Ref{kind: refConfirmed, id: serverID} }

func (r Ref) IsPending() bool { return r.kind == refPending }

// ServerID returns the server id, or "" for a placeholder.
func (r Ref) ServerID() string {
	if r.kind != refConfirmed {
		return ""
	}
	return r.id
}

// LocalID returns the placeholder id, or "" for a server record.
func (r Ref) LocalID() string {
	if r.kind != refPending {
		return ""
	}
	return r.id
}

func (r Ref) String() string {
	switch r.kind {
	case refPending:
		return "pending:" + r.id
	case refConfirmed:
		return r.id
	}
	return ""
}

// Item is a todo as the cache holds it.
type Item struct {
	Ref  Ref
	Todo model.Todo
}

func confirmedItem(t model.Todo) Item {
	return Item{Ref: ConfirmedRef(t.ID), Todo: t.Clone()}
}

func (it Item) clone() Item {
	it.Todo = it.Todo.Clone()
	return it
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it.clone()
	}
	return out
}

func itemsOf(todos []model.Todo) []Item {
	out := make([]Item, len(todos))
	for i, t := range todos {
		out[i] = confirmedItem(t)
	}
	return out
}

// indexOf returns the position of ref in items, or -1.
func indexOf(items []Item, ref Ref) int {
	for i, it := range items {
		if it.Ref == ref {
			return i
		}
	}
	return -1
}
