package sequence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestPartialOrderChainsPerKey(t *testing.T) {
	var o PartialOrder[string]

	a1 := o.After("a")
	a2 := o.After("a")
	b1 := o.After("b")

	assert.True(t, isClosed(a1.Ready()))
	assert.False(t, isClosed(a2.Ready()))
	assert.True(t, isClosed(b1.Ready()), "other keys are independent")
	assert.Equal(t, 2, o.Len())

	a1.Complete()
	assert.True(t, isClosed(a1.Completed()))
	assert.True(t, isClosed(a2.Ready()))

	a1.Complete() // no-op
	a2.Complete()
	b1.Complete()
	assert.Equal(t, 0, o.Len())
}

func TestPartialOrderKeepsChainWhileLaterOpPending(t *testing.T) {
	var o PartialOrder[int]

	first := o.After(1)
	second := o.After(1)
	first.Complete()
	assert.Equal(t, 1, o.Len(), "second op still pending")

	third := o.After(1)
	assert.False(t, isClosed(third.Ready()))
	second.Complete()
	assert.True(t, isClosed(third.Ready()))
	third.Complete()
	assert.Equal(t, 0, o.Len())
}

func TestTopicRunsInSubmissionOrderPerKey(t *testing.T) {
	topic := NewTopic[string](4)
	ctx := context.Background()

	var mu sync.Mutex
	got := map[string][]int{}
	for i := range 50 {
		key := "even"
		if i%2 == 1 {
			key = "odd"
		}
		require.NoError(t, topic.Go(ctx, key, func() {
			// later submissions must not overtake earlier ones
			time.Sleep(time.Duration(50-i) * 10 * time.Microsecond)
			mu.Lock()
			got[key] = append(got[key], i)
			mu.Unlock()
		}))
	}
	topic.Wait()

	var wantEven, wantOdd []int
	for i := range 50 {
		if i%2 == 0 {
			wantEven = append(wantEven, i)
		} else {
			wantOdd = append(wantOdd, i)
		}
	}
	if diff := cmp.Diff(wantEven, got["even"]); diff != "" {
		t.Errorf("even order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantOdd, got["odd"]); diff != "" {
		t.Errorf("odd order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 0, topic.Pending())
}

func TestTopicGoHonoursContext(t *testing.T) {
	topic := NewTopic[string](1)
	release := make(chan struct{})
	require.NoError(t, topic.Go(context.Background(), "k", func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ran := false
	err := topic.Go(ctx, "k", func() { ran = true })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	topic.Wait()
	assert.False(t, ran)
}

func TestZeroTopicIsUnlimited(t *testing.T) {
	var topic Topic[int]
	var wg sync.WaitGroup
	wg.Add(3)
	for i := range 3 {
		// all three must be running at once for wg to drain
		require.NoError(t, topic.Go(context.Background(), i, func() {
			wg.Done()
			wg.Wait()
		}))
	}
	topic.Wait()
}
