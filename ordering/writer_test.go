package ordering

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gateStore blocks the first upsert until release is closed.
type gateStore struct {
	*fakeStore
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func newGateStore(entries ...Entry) *gateStore {
	return &gateStore{fakeStore: newFakeStore(entries...), started: make(chan struct{}), release: make(chan struct{})}
}

func (s *gateStore) Upsert(ctx context.Context, e Entry) error {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.started)
		<-s.release
	}
	return s.fakeStore.Upsert(ctx, e)
}

type results struct {
	mu  sync.Mutex
	got map[string]Result
}

func (r *results) record(name string) func(Result) {
	return func(res Result) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.got == nil {
			r.got = make(map[string]Result)
		}
		r.got[name] = res
	}
}

func (r *results) get(name string) Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.got[name]
}

func entryWithRank(itemID, rank string) Entry {
	return Entry{ContextID: testScope.ContextID, UserID: testScope.UserID, ItemID: itemID, Rank: rank}
}

func TestWriterSkipsSupersededWrites(t *testing.T) {
	ctx := context.Background()
	store := newGateStore()
	w := newTestWriter(t, store, 0)
	var res results

	id1, err := w.Submit(ctx, Write{Entry: entryWithRank("a", "0|100000:")}, res.record("first"))
	require.NoError(t, err)
	<-store.started

	_, err = w.Submit(ctx, Write{Entry: entryWithRank("a", "0|200000:")}, res.record("second"))
	require.NoError(t, err)
	_, err = w.Submit(ctx, Write{Entry: entryWithRank("a", "0|300000:")}, res.record("third"))
	require.NoError(t, err)

	close(store.release)
	w.Wait()

	first := res.get("first")
	assert.Equal(t, id1, first.WriteID)
	assert.NoError(t, first.Err)
	assert.False(t, first.Superseded)
	assert.Equal(t, 1, first.Attempts)

	assert.True(t, res.get("second").Superseded)
	assert.Zero(t, res.get("second").Attempts)

	third := res.get("third")
	assert.False(t, third.Superseded)
	assert.NoError(t, third.Err)

	rank, ok := store.rank(testScope, "a")
	require.True(t, ok)
	assert.Equal(t, "0|300000:", rank)
	assert.Equal(t, 2, store.writeCount())
}

func TestWriterRefusedSubmitKeepsQueuedWrite(t *testing.T) {
	ctx := context.Background()
	store := newGateStore()
	w := NewWriter(store, WriterConfig{Concurrency: 2}, nil)
	var res results

	_, err := w.Submit(ctx, Write{Entry: entryWithRank("a", "0|100000:")}, res.record("first"))
	require.NoError(t, err)
	<-store.started
	_, err = w.Submit(ctx, Write{Entry: entryWithRank("a", "0|200000:")}, res.record("second"))
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	id, err := w.Submit(short, Write{Entry: entryWithRank("a", "0|300000:")}, res.record("third"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, uuid.Nil, id)

	close(store.release)
	require.NoError(t, w.Close(ctx))

	second := res.get("second")
	assert.False(t, second.Superseded, "a refused write does not supersede queued ones")
	assert.NoError(t, second.Err)
	assert.Zero(t, res.get("third").Attempts)

	rank, ok := store.rank(testScope, "a")
	require.True(t, ok)
	assert.Equal(t, "0|200000:", rank)
	assert.Equal(t, 2, store.writeCount())
}

func TestOrdererRefusedWriteWaitsForQueuedWrite(t *testing.T) {
	ctx := context.Background()
	store := newGateStore(seed(t, "a", "b", "c")...)
	w := NewWriter(store, WriterConfig{Concurrency: 1}, nil)
	o := New(store, WithWriter(w))

	coll, err := o.Load(ctx, testScope)
	require.NoError(t, err)
	moved, err := o.Move(ctx, coll, 0, 2)
	require.NoError(t, err)
	<-store.started

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = o.Move(short, coll, 2, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(store.release)
	require.NoError(t, w.Close(ctx))

	stored, ok := store.rank(testScope, "a")
	require.True(t, ok)
	assert.Equal(t, moved.Rank, stored)
	assert.Equal(t, moved.Rank, rankOf(t, coll, "a"))
	assert.Equal(t, []string{"b", "c", "a"}, coll.ItemIDs())

	reloaded, err := o.Load(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, coll.ItemIDs(), reloaded.ItemIDs())
}

func TestOrdererRefusedWriteRollsBackAfterQueuedFailure(t *testing.T) {
	ctx := context.Background()
	store := newGateStore(seed(t, "a", "b", "c")...)
	store.failNext("a", 1)
	w := NewWriter(store, WriterConfig{Concurrency: 1}, nil)
	o := New(store, WithWriter(w))

	coll, err := o.Load(ctx, testScope)
	require.NoError(t, err)
	original := rankOf(t, coll, "a")
	_, err = o.Move(ctx, coll, 0, 2)
	require.NoError(t, err)
	<-store.started

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = o.Move(short, coll, 2, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(store.release)
	require.NoError(t, w.Close(ctx))

	assert.Equal(t, original, rankOf(t, coll, "a"))
	assert.Equal(t, []string{"a", "b", "c"}, coll.ItemIDs())
	stored, ok := store.rank(testScope, "a")
	require.True(t, ok)
	assert.Equal(t, original, stored)
}

func TestWriterLastSubmissionWins(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	w := newTestWriter(t, store, 0)

	const items, writes = 5, 50
	for i := range writes {
		for item := range items {
			e := entryWithRank(fmt.Sprintf("item-%d", item), fmt.Sprintf("0|%06d:", i+1))
			_, err := w.Submit(ctx, Write{Entry: e}, nil)
			require.NoError(t, err)
		}
	}
	w.Wait()

	for item := range items {
		rank, ok := store.rank(testScope, fmt.Sprintf("item-%d", item))
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("0|%06d:", writes), rank)
	}

	// applied writes per item are a subsequence of the submission order
	last := map[string]string{}
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, wr := range store.writes {
		assert.Less(t, last[wr.Entry.ItemID], wr.Entry.Rank)
		last[wr.Entry.ItemID] = wr.Entry.Rank
	}
}

func TestWriterRetriesThenFails(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	w := newTestWriter(t, store, 2)
	var res results

	store.failNext("a", 10)
	_, err := w.Submit(ctx, Write{Entry: entryWithRank("a", "0|100000:")}, res.record("a"))
	require.NoError(t, err)
	w.Wait()

	got := res.get("a")
	assert.ErrorIs(t, got.Err, errStore)
	assert.Equal(t, 3, got.Attempts)
	assert.NotEqual(t, uuid.Nil, got.WriteID)
}

func TestWriterDelete(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(entryWithRank("a", "0|100000:"))
	w := newTestWriter(t, store, 0)

	_, err := w.Submit(ctx, Write{Entry: entryWithRank("a", ""), Delete: true}, nil)
	require.NoError(t, err)
	w.Wait()

	_, ok := store.rank(testScope, "a")
	assert.False(t, ok)
}

func TestWriterClosed(t *testing.T) {
	w := NewWriter(newFakeStore(), DefaultWriterConfig(), nil)
	require.NoError(t, w.Close(context.Background()))

	_, err := w.Submit(context.Background(), Write{Entry: entryWithRank("a", "0|100000:")}, nil)
	assert.ErrorIs(t, err, ErrWriterClosed)
}

func TestWriterCloseCancelsRetries(t *testing.T) {
	store := newFakeStore()
	w := NewWriter(store, WriterConfig{MaxRetries: 100, Backoff: time.Hour}, nil)
	var res results

	store.failNext("a", 1)
	_, err := w.Submit(context.Background(), Write{Entry: entryWithRank("a", "0|100000:")}, res.record("a"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Close(ctx), context.DeadlineExceeded)

	got := res.get("a")
	assert.ErrorIs(t, got.Err, errStore)
	assert.Equal(t, 1, got.Attempts)
}

func TestWriterBackoff(t *testing.T) {
	w := &Writer{cfg: WriterConfig{Backoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond}}
	assert.Equal(t, 10*time.Millisecond, w.backoff(0))
	assert.Equal(t, 20*time.Millisecond, w.backoff(1))
	assert.Equal(t, 40*time.Millisecond, w.backoff(2))
	assert.Equal(t, 50*time.Millisecond, w.backoff(3))
	assert.Equal(t, 50*time.Millisecond, w.backoff(62))
}
