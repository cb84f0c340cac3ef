// Package storetest holds the behaviour every ordering.Store must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaulted/rankkey"
	"github.com/vaulted/rankkey/ordering"
)

// Run exercises a fresh store returned by newStore for every subtest.
func Run(t *testing.T, newStore func(t *testing.T) ordering.Store) {
	t.Run("UpsertIsIdempotent", func(t *testing.T) { testUpsertIsIdempotent(t, newStore(t)) })
	t.Run("ScopesAreIndependent", func(t *testing.T) { testScopesAreIndependent(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("ConcurrentUpserts", func(t *testing.T) { testConcurrentUpserts(t, newStore(t)) })
	t.Run("Orderer", func(t *testing.T) { testOrderer(t, newStore(t)) })
}

func entry(contextID, itemID, userID, rank string) ordering.Entry {
	return ordering.Entry{ContextID: contextID, ItemID: itemID, UserID: userID, Rank: rank}
}

var byItem = cmpopts.SortSlices(func(a, b ordering.Entry) bool { return a.ItemID < b.ItemID })

func testUpsertIsIdempotent(t *testing.T, s ordering.Store) {
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, entry("c1", "i1", "u1", "0|100000:")))
	require.NoError(t, s.Upsert(ctx, entry("c1", "i1", "u1", "0|100000:")))
	require.NoError(t, s.Upsert(ctx, entry("c1", "i1", "u1", "0|200000:")))

	got, err := s.ListEntries(ctx, "c1", "u1")
	require.NoError(t, err)
	want := []ordering.Entry{entry("c1", "i1", "u1", "0|200000:")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("entries (-want +got):\n%s", diff)
	}
}

func testScopesAreIndependent(t *testing.T, s ordering.Store) {
	ctx := context.Background()
	all := []ordering.Entry{
		entry("c1", "i1", "u1", "0|100000:"),
		entry("c1", "i2", "u1", "0|200000:"),
		entry("c2", "i1", "u1", "0|300000:"),
		entry("c1", "i1", "u2", "0|400000:"),
	}
	for _, e := range all {
		require.NoError(t, s.Upsert(ctx, e))
	}

	got, err := s.ListEntries(ctx, "c1", "u1")
	require.NoError(t, err)
	if diff := cmp.Diff(all[:2], got, byItem); diff != "" {
		t.Errorf("c1/u1 (-want +got):\n%s", diff)
	}

	got, err = s.ListEntries(ctx, "c2", "u1")
	require.NoError(t, err)
	if diff := cmp.Diff(all[2:3], got, byItem); diff != "" {
		t.Errorf("c2/u1 (-want +got):\n%s", diff)
	}

	got, err = s.ListEntries(ctx, "c3", "u1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testDelete(t *testing.T, s ordering.Store) {
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, entry("c1", "i1", "u1", "0|100000:")))
	require.NoError(t, s.Upsert(ctx, entry("c1", "i2", "u1", "0|200000:")))

	require.NoError(t, s.Delete(ctx, "c1", "i1", "u1"))
	require.NoError(t, s.Delete(ctx, "c1", "i1", "u1"), "deleting a missing entry")
	require.NoError(t, s.Delete(ctx, "nope", "i1", "u1"))

	got, err := s.ListEntries(ctx, "c1", "u1")
	require.NoError(t, err)
	if diff := cmp.Diff([]ordering.Entry{entry("c1", "i2", "u1", "0|200000:")}, got); diff != "" {
		t.Errorf("entries (-want +got):\n%s", diff)
	}
}

func testConcurrentUpserts(t *testing.T, s ordering.Store) {
	ctx := context.Background()
	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.Upsert(ctx, entry("c1", fmt.Sprintf("i%02d", i), "u1", "0|100000:"))
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	got, err := s.ListEntries(ctx, "c1", "u1")
	require.NoError(t, err)
	assert.Len(t, got, n)
}

// testOrderer runs a short session through the Orderer and checks that a
// reload from the store shows the same order.
func testOrderer(t *testing.T, s ordering.Store) {
	ctx := context.Background()
	scope := ordering.Scope{ContextID: "list", UserID: "owner"}
	o := ordering.New(s)

	coll, err := o.Load(ctx, scope)
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := o.Add(ctx, coll, id)
		require.NoError(t, err)
	}
	_, err = o.Move(ctx, coll, 3, 0)
	require.NoError(t, err)
	_, err = o.MoveRelative(ctx, coll, "a", "c", ordering.After)
	require.NoError(t, err)
	require.NoError(t, o.Remove(ctx, coll, "b"))
	require.Equal(t, []string{"d", "c", "a"}, coll.ItemIDs())

	reloaded, err := o.Load(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, coll.ItemIDs(), reloaded.ItemIDs())
	for _, e := range reloaded.Entries() {
		_, err := rankkey.Parse(e.Rank)
		assert.NoError(t, err, e.Rank)
	}
}
