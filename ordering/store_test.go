package ordering

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errStore = errors.New("store unavailable")

// fakeStore is an in-memory Store that can be told to fail the next writes
// for an item.
type fakeStore struct {
	mu      sync.Mutex
	entries map[entryKey]Entry
	fail    map[string]int
	writes  []Write
}

func newFakeStore(entries ...Entry) *fakeStore {
	s := &fakeStore{entries: make(map[entryKey]Entry), fail: make(map[string]int)}
	for _, e := range entries {
		s.entries[keyOf(e)] = e
	}
	return s
}

func (s *fakeStore) failNext(itemID string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[itemID] = n
}

func (s *fakeStore) shouldFail(itemID string) bool {
	if s.fail[itemID] > 0 {
		s.fail[itemID]--
		return true
	}
	return false
}

func (s *fakeStore) Upsert(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shouldFail(e.ItemID) {
		return errStore
	}
	s.entries[keyOf(e)] = e
	s.writes = append(s.writes, Write{Entry: e})
	return nil
}

func (s *fakeStore) ListEntries(_ context.Context, contextID, userID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for _, e := range s.entries {
		if e.ContextID == contextID && e.UserID == userID {
			out = append(out, e)
		}
	}
	// map order is random; callers must not depend on it
	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(b.ItemID, a.ItemID) })
	return out, nil
}

func (s *fakeStore) Delete(_ context.Context, contextID, itemID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shouldFail(itemID) {
		return errStore
	}
	e := Entry{ContextID: contextID, ItemID: itemID, UserID: userID}
	delete(s.entries, keyOf(e))
	s.writes = append(s.writes, Write{Entry: e, Delete: true})
	return nil
}

func (s *fakeStore) rank(scope Scope, itemID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryKey{contextID: scope.ContextID, userID: scope.UserID, itemID: itemID}]
	return e.Rank, ok
}

func (s *fakeStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

type event struct {
	itemID  string
	rank    string
	deleted bool
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []event
}

func (n *recordingNotifier) RankChanged(_ context.Context, e Entry, deleted bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event{itemID: e.ItemID, rank: e.Rank, deleted: deleted})
	return nil
}

func (n *recordingNotifier) recorded() []event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.events)
}
