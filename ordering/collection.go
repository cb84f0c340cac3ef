package ordering

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/vaulted/rankkey"
)

// Collection is the sorted view of one scope. Entries are ordered by their
// effective rank (the stored rank, or the unranked sentinel when empty) and
// then by item ID, so the order is stable across reloads even when several
// items are unranked or share a key.
//
// A Collection is safe for concurrent use. Write callbacks roll entries back
// from other goroutines.
type Collection struct {
	mu       sync.RWMutex
	scope    Scope
	unranked string
	entries  []Entry
	// persisted holds the last rank known to be in the store per item.
	// Failed writes restore it.
	persisted map[string]string
	// inflight counts the unsettled writes per item. orphaned holds a change
	// that never reached the store while older writes for its item were still
	// in flight; it is rolled back once the last of them settles.
	inflight map[string]int
	orphaned map[string]change
}

// NewCollection builds a sorted view from entries. Entries are re-scoped to
// scope; a zero unranked key means rankkey.DefaultUnranked.
func NewCollection(scope Scope, entries []Entry, unranked rankkey.Key) *Collection {
	if unranked.IsZero() {
		unranked = rankkey.DefaultUnranked
	}
	c := &Collection{
		scope:     scope,
		unranked:  unranked.String(),
		entries:   make([]Entry, 0, len(entries)),
		persisted: make(map[string]string, len(entries)),
		inflight:  make(map[string]int),
		orphaned:  make(map[string]change),
	}
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.ItemID] {
			continue
		}
		seen[e.ItemID] = true
		e.ContextID, e.UserID = scope.ContextID, scope.UserID
		c.entries = append(c.entries, e)
		if e.Ranked() {
			c.persisted[e.ItemID] = e.Rank
		}
	}
	c.sortLocked()
	return c
}

// Scope returns the scope of the collection.
func (c *Collection) Scope() Scope { return c.scope }

// Len returns the number of items.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns a copy of the entries in display order.
func (c *Collection) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.entries)
}

// ItemIDs returns the item IDs in display order.
func (c *Collection) ItemIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, len(c.entries))
	for i, e := range c.entries {
		ids[i] = e.ItemID
	}
	return ids
}

// IndexOf returns the position of itemID, or -1.
func (c *Collection) IndexOf(itemID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.indexLocked(itemID)
}

// Entry returns the entry for itemID.
func (c *Collection) Entry(itemID string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexLocked(itemID); i >= 0 {
		return c.entries[i], true
	}
	return Entry{}, false
}

// Neighbors returns the effective ranks around position to once the item at
// from has been moved there. The neighbors are taken from the sequence after
// the move, not before it.
func (c *Collection) Neighbors(from, to int) (Neighbors, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.neighborsLocked(from, to)
}

func (c *Collection) neighborsLocked(from, to int) (Neighbors, error) {
	n := len(c.entries)
	if from < 0 || from >= n || to < 0 || to >= n {
		return Neighbors{}, fmt.Errorf("%w: move %d -> %d in %d items", ErrIndexOutOfRange, from, to, n)
	}
	rest := make([]int, 0, n-1)
	for i := range n {
		if i != from {
			rest = append(rest, i)
		}
	}
	var nb Neighbors
	if to > 0 {
		nb.Lower, nb.HasLower = c.effective(c.entries[rest[to-1]]), true
	}
	if to < len(rest) {
		nb.Upper, nb.HasUpper = c.effective(c.entries[rest[to]]), true
	}
	return nb, nil
}

// tailLocked returns the neighbors for placing itemID after every other item.
func (c *Collection) tailLocked(itemID string) Neighbors {
	for i := len(c.entries) - 1; i >= 0; i-- {
		if c.entries[i].ItemID != itemID {
			return Neighbors{Lower: c.effective(c.entries[i]), HasLower: true}
		}
	}
	return Neighbors{}
}

func (c *Collection) effective(e Entry) string {
	if e.Rank == "" {
		return c.unranked
	}
	return e.Rank
}

func (c *Collection) indexLocked(itemID string) int {
	for i, e := range c.entries {
		if e.ItemID == itemID {
			return i
		}
	}
	return -1
}

func (c *Collection) sortLocked() {
	slices.SortStableFunc(c.entries, func(a, b Entry) int {
		if r := strings.Compare(c.effective(a), c.effective(b)); r != 0 {
			return r
		}
		return strings.Compare(a.ItemID, b.ItemID)
	})
}

// setLocked assigns rank to itemID, adding the item when missing, and
// returns the change needed to undo it.
func (c *Collection) setLocked(itemID, rank string) change {
	ch := change{entry: Entry{ContextID: c.scope.ContextID, UserID: c.scope.UserID, ItemID: itemID, Rank: rank}}
	if i := c.indexLocked(itemID); i >= 0 {
		ch.prev, ch.existed = c.entries[i], true
		c.entries[i].Rank = rank
	} else {
		c.entries = append(c.entries, ch.entry)
	}
	c.sortLocked()
	return ch
}

func (c *Collection) removeLocked(itemID string) (change, bool) {
	i := c.indexLocked(itemID)
	if i < 0 {
		return change{}, false
	}
	e := c.entries[i]
	c.entries = slices.Delete(c.entries, i, i+1)
	return change{entry: e, prev: e, existed: true, deleted: true}, true
}

// track registers ch as a write about to be persisted.
func (c *Collection) track(ch change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight[ch.entry.ItemID]++
	delete(c.orphaned, ch.entry.ItemID)
}

// confirm records that ch reached the store.
func (c *Collection) confirm(ch change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch.deleted {
		delete(c.persisted, ch.entry.ItemID)
	} else {
		c.persisted[ch.entry.ItemID] = ch.entry.Rank
	}
	c.releaseLocked(ch.entry.ItemID)
}

// skip settles ch without touching the view; a newer write owns the entry.
func (c *Collection) skip(ch change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked(ch.entry.ItemID)
}

// revert undoes a failed ch by restoring the last persisted rank, unless the
// entry has changed again since, in which case a newer write owns it. It
// reports whether anything was restored.
func (c *Collection) revert(ch change) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	reverted := c.revertLocked(ch)
	c.releaseLocked(ch.entry.ItemID)
	return reverted
}

// abandon undoes ch, which was never accepted for writing. While older
// writes for the item are in flight the store may still change, so the
// rollback waits for the last of them to settle.
func (c *Collection) abandon(ch change) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	itemID := ch.entry.ItemID
	if c.inflight[itemID] > 1 {
		c.inflight[itemID]--
		c.orphaned[itemID] = ch
		return false
	}
	c.releaseLocked(itemID)
	return c.revertLocked(ch)
}

func (c *Collection) releaseLocked(itemID string) {
	if c.inflight[itemID]--; c.inflight[itemID] > 0 {
		return
	}
	delete(c.inflight, itemID)
	if ch, ok := c.orphaned[itemID]; ok {
		delete(c.orphaned, itemID)
		c.revertLocked(ch)
	}
}

func (c *Collection) revertLocked(ch change) bool {
	itemID := ch.entry.ItemID
	i := c.indexLocked(itemID)
	persisted, wasPersisted := c.persisted[itemID]

	if ch.deleted {
		if i >= 0 {
			return false
		}
		e := ch.prev
		e.Rank = persisted
		c.entries = append(c.entries, e)
		c.sortLocked()
		return true
	}
	if i < 0 || c.entries[i].Rank != ch.entry.Rank {
		return false
	}
	switch {
	case wasPersisted:
		c.entries[i].Rank = persisted
	case ch.existed:
		// known item that never had a stored rank
		c.entries[i].Rank = ""
	default:
		c.entries = slices.Delete(c.entries, i, i+1)
	}
	c.sortLocked()
	return true
}

// change records one optimistic mutation of a Collection.
type change struct {
	entry   Entry
	prev    Entry
	existed bool
	deleted bool
}

func (ch change) write() Write {
	return Write{Entry: ch.entry, Delete: ch.deleted}
}
