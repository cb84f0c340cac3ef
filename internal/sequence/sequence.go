// Package sequence orders concurrent work per key. Work submitted under the
// same key runs strictly in submission order; work under different keys runs
// concurrently.
//
// The zero values of PartialOrder and Topic are ready to use:
//
//	var t sequence.Topic[string]
//	_ = t.Go(ctx, "list-1/item-9", func() { persist(...) })
//	t.Wait()
package sequence

import (
	"sync"
)

// Operation is one unit of work in a per-key chain.
type Operation interface {
	// Ready is closed once every earlier operation on the same key has
	// completed.
	Ready() <-chan struct{}

	// Completed is closed once Complete has been called.
	Completed() <-chan struct{}

	// Complete marks the operation finished and releases the next one on the
	// same key. It must be called exactly once per operation, even when the
	// work failed or was cancelled; further calls are no-ops.
	Complete()
}

// PartialOrder hands out per-key chained operations.
type PartialOrder[K comparable] struct {
	mu sync.Mutex
	// heads holds the completion channel of the most recently issued
	// operation per key. A key is dropped once its last operation completes.
	heads map[K]chan struct{}
}

// After returns an operation that becomes ready when all operations
// previously issued for key have completed. The first operation for a key is
// ready immediately.
func (o *PartialOrder[K]) After(key K) Operation {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.heads == nil {
		o.heads = make(map[K]chan struct{})
	}
	wait, ok := o.heads[key]
	if !ok {
		wait = make(chan struct{})
		close(wait)
	}
	done := make(chan struct{})
	o.heads[key] = done
	return &operation[K]{wait: wait, done: done, key: key, order: o}
}

// Len returns the number of keys with operations still pending.
func (o *PartialOrder[K]) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.heads)
}

func (o *PartialOrder[K]) release(key K, done chan struct{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.heads[key] == done {
		delete(o.heads, key)
	}
}

type operation[K comparable] struct {
	wait     <-chan struct{}
	done     chan struct{}
	doneOnce sync.Once
	key      K
	order    *PartialOrder[K]
}

func (op *operation[K]) Ready() <-chan struct{}     { return op.wait }
func (op *operation[K]) Completed() <-chan struct{} { return op.done }

func (op *operation[K]) Complete() {
	op.doneOnce.Do(func() {
		close(op.done)
		op.order.release(op.key, op.done)
	})
}
