package cache

import (
	"context"
	"time"
)

// entryState is the part of an entry a mutation snapshots and restores.
type entryState struct {
	list      []Item
	item      Item
	hasValue  bool
	fetchedAt time.Time
	stale     bool
	err       error
	errAt     time.Time
	// errSeq is the entry's invalidation count when err was recorded.
	errSeq uint64
}

func (s entryState) clone() entryState {
	s.list = cloneItems(s.list)
	s.item = s.item.clone()
	return s
}

type entry struct {
	key Key
	entryState

	// pending counts mutations between their optimistic and final phase.
	pending int
	// gen advances whenever a mutation claims the entry; fetches started
	// under an older gen are discarded.
	gen     uint64
	loading bool
	cancel  context.CancelFunc
	// invalidations counts explicit invalidations; it never goes back.
	invalidations uint64
}

func (e *entry) setList(items []Item, now time.Time) {
	e.list = items
	e.hasValue = true
	e.markFresh(now)
}

func (e *entry) setItem(it Item, now time.Time) {
	e.item = it
	e.hasValue = true
	e.markFresh(now)
}

func (e *entry) markFresh(now time.Time) {
	e.fetchedAt = now
	e.stale = false
	e.err = nil
	e.errAt = time.Time{}
	e.errSeq = 0
}

func (e *entry) fail(err error, now time.Time) {
	e.err = err
	e.errAt = now
	e.errSeq = e.invalidations
}

// invalidatedSinceError reports whether the entry was invalidated after its
// last read failure.
func (e *entry) invalidatedSinceError() bool {
	return e.invalidations != e.errSeq
}

// supersede cancels any in-flight fetch and makes its result unusable.
func (e *entry) supersede() {
	e.gen++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.loading = false
}

// snapshot is a mutation's rollback point for one entry.
type snapshot struct {
	e *entry
	// present is whether the entry was reachable in the cache at phase one.
	present bool
	state   entryState
	// invalidations at snapshot time
	invalidations uint64
}

// restore puts the snapshot back. An invalidation that happened after the
// snapshot is kept, and placeholders whose create has settled are dropped.
func (s snapshot) restore(c *Cache) {
	e := s.e
	e.entryState = s.state.clone()
	if e.invalidations != s.invalidations && e.hasValue {
		e.stale = true
	}
	if e.key.IsCollection() {
		kept := e.list[:0]
		for _, it := range e.list {
			if it.Ref.IsPending() && !c.placeholders[it.Ref] {
				continue
			}
			kept = append(kept, it)
		}
		e.list = kept
	}
	if s.present {
		c.entries[e.key.String()] = e
	}
}
