// Package memstore is an in-process ordering.Store.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/vaulted/rankkey/ordering"
)

type key struct {
	contextID, userID, itemID string
}

// Store keeps entries in a map. The zero value is not usable; use New.
type Store struct {
	mu      sync.RWMutex
	entries map[key]ordering.Entry
}

var _ ordering.Store = (*Store)(nil)

func New() *Store {
	return &Store{entries: make(map[key]ordering.Entry)}
}

func (s *Store) Upsert(ctx context.Context, e ordering.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key{e.ContextID, e.UserID, e.ItemID}] = e
	return nil
}

// ListEntries returns the entries of one scope sorted by item ID.
func (s *Store) ListEntries(ctx context.Context, contextID, userID string) ([]ordering.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ordering.Entry
	for k, e := range s.entries {
		if k.contextID == contextID && k.userID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (s *Store) Delete(ctx context.Context, contextID, itemID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key{contextID, userID, itemID})
	return nil
}

// Len returns the number of entries across all scopes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
