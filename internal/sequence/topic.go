package sequence

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Topic runs functions in goroutines, one chain per partition key.
// A zero Topic has no limit on the number of active goroutines.
type Topic[K comparable] struct {
	wg    sync.WaitGroup
	sem   *semaphore.Weighted
	order PartialOrder[K]
}

// NewTopic returns a Topic allowing at most limit active goroutines.
// A non-positive limit means unlimited.
func NewTopic[K comparable](limit int) *Topic[K] {
	t := &Topic[K]{}
	if limit > 0 {
		t.sem = semaphore.NewWeighted(int64(limit))
	}
	return t
}

// Go runs f in a new goroutine once every function previously submitted for
// partition has returned. It blocks while the goroutine limit is reached and
// returns ctx.Err() if ctx ends first, in which case f never runs.
//
// Slots are acquired in submission order, so a waiting function never holds
// a slot its predecessor needs.
func (t *Topic[K]) Go(ctx context.Context, partition K, f func()) error {
	if t.sem != nil {
		if err := t.sem.Acquire(ctx, 1); err != nil {
			return err
		}
	}
	op := t.order.After(partition)
	t.wg.Add(1)
	go func() {
		defer t.done(op)
		<-op.Ready()
		f()
	}()
	return nil
}

func (t *Topic[K]) done(op Operation) {
	op.Complete()
	if t.sem != nil {
		t.sem.Release(1)
	}
	t.wg.Done()
}

// Wait blocks until all functions submitted with Go have returned.
func (t *Topic[K]) Wait() {
	t.wg.Wait()
}

// Pending returns the number of partitions with work in flight.
func (t *Topic[K]) Pending() int {
	return t.order.Len()
}
