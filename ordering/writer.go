package ordering

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vaulted/rankkey/internal/sequence"
)

// WriterConfig tunes a Writer.
type WriterConfig struct {
	// Concurrency bounds the number of writes in flight across all items.
	// Non-positive means unlimited.
	Concurrency int
	// MaxRetries is the number of retries after the first failed attempt.
	MaxRetries int
	// Backoff is the delay before the first retry; it doubles per retry.
	Backoff time.Duration
	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration
}

// DefaultWriterConfig returns the default writer configuration.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		Concurrency: 8,
		MaxRetries:  3,
		Backoff:     100 * time.Millisecond,
		MaxBackoff:  2 * time.Second,
	}
}

// Write is one persistence operation for a single entry.
type Write struct {
	Entry  Entry
	Delete bool
}

// Result reports how a submitted write ended.
type Result struct {
	WriteID  uuid.UUID
	Write    Write
	Attempts int
	// Superseded is set when a newer write for the same entry was submitted
	// before this one could be applied; the write was skipped and Err is nil.
	Superseded bool
	Err        error
}

type entryKey struct {
	contextID, userID, itemID string
}

func keyOf(e Entry) entryKey {
	return entryKey{contextID: e.ContextID, userID: e.UserID, itemID: e.ItemID}
}

// Writer applies writes asynchronously. Writes for the same entry are applied
// in submission order and a write that has been overtaken by a newer one for
// the same entry is skipped, so a slow write can never revert a later move.
// Failed writes are retried with exponential backoff.
type Writer struct {
	store Store
	cfg   WriterConfig
	log   *zap.Logger
	topic *sequence.Topic[entryKey]

	// ctx bounds store calls and retry delays; it is cancelled when Close
	// gives up waiting.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	gen      uint64
	keys     map[entryKey]*keyState
	inflight sync.WaitGroup
}

// keyState tracks the newest generation submitted for an entry and how many
// of its writes have not finished. It lives until the last one finishes, so
// an older write scheduled after a newer one still sees that it is stale.
type keyState struct {
	latest  uint64
	pending int
}

// NewWriter returns a Writer persisting to store. A nil log disables logging.
func NewWriter(store Store, cfg WriterConfig, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Writer{
		store:  store,
		cfg:    cfg,
		log:    log,
		topic:  sequence.NewTopic[entryKey](cfg.Concurrency),
		ctx:    ctx,
		cancel: cancel,
		keys:   make(map[entryKey]*keyState),
	}
}

// Submit queues wr and returns its write ID. done, if not nil, is called
// from the writer's goroutine once the write has been applied, skipped or
// has failed for good. Submit blocks only while the concurrency limit is
// reached; ctx bounds that wait and nothing else.
func (w *Writer) Submit(ctx context.Context, wr Write, done func(Result)) (uuid.UUID, error) {
	key := keyOf(wr.Entry)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return uuid.Nil, ErrWriterClosed
	}
	w.gen++
	gen := w.gen
	st, ok := w.keys[key]
	if !ok {
		st = &keyState{}
		w.keys[key] = st
	}
	prev := st.latest
	st.latest = gen
	st.pending++
	w.inflight.Add(1)
	w.mu.Unlock()

	id := uuid.New()
	err := w.topic.Go(ctx, key, func() {
		defer w.inflight.Done()
		res := w.run(id, key, gen, wr)
		w.forget(key)
		if done != nil {
			done(res)
		}
	})
	if err != nil {
		w.mu.Lock()
		// a write that never ran must not mark queued ones as superseded
		if st.latest == gen {
			st.latest = prev
		}
		w.mu.Unlock()
		w.forget(key)
		w.inflight.Done()
		return uuid.Nil, err
	}
	return id, nil
}

// Wait blocks until every submitted write has finished.
func (w *Writer) Wait() {
	w.inflight.Wait()
}

// Close stops accepting writes and waits for pending ones. If ctx ends first,
// retries and store calls in progress are cancelled and Close returns
// ctx.Err() once they have unwound.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		w.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		w.cancel()
		return nil
	case <-ctx.Done():
		w.cancel()
		<-drained
		return ctx.Err()
	}
}

func (w *Writer) run(id uuid.UUID, key entryKey, gen uint64, wr Write) Result {
	res := Result{WriteID: id, Write: wr}
	log := w.log.With(
		zap.String("write_id", id.String()),
		zap.String("context_id", key.contextID),
		zap.String("item_id", key.itemID),
	)

	for attempt := 0; ; attempt++ {
		if w.superseded(key, gen) {
			log.Debug("Write superseded", zap.Int("attempt", attempt))
			res.Superseded, res.Err = true, nil
			return res
		}
		res.Attempts = attempt + 1
		res.Err = w.apply(wr)
		if res.Err == nil {
			return res
		}
		if attempt >= w.cfg.MaxRetries || w.ctx.Err() != nil {
			log.Error("Write failed", zap.Int("attempts", res.Attempts), zap.Error(res.Err))
			return res
		}
		delay := w.backoff(attempt)
		log.Warn("Write failed, retrying", zap.Int("attempt", res.Attempts), zap.Duration("delay", delay), zap.Error(res.Err))
		if err := w.sleep(delay); err != nil {
			log.Error("Write abandoned", zap.Int("attempts", res.Attempts), zap.Error(res.Err))
			return res
		}
	}
}

func (w *Writer) apply(wr Write) error {
	e := wr.Entry
	if wr.Delete {
		return w.store.Delete(w.ctx, e.ContextID, e.ItemID, e.UserID)
	}
	return w.store.Upsert(w.ctx, e)
}

func (w *Writer) backoff(attempt int) time.Duration {
	d := w.cfg.Backoff << attempt
	if w.cfg.MaxBackoff > 0 && (d > w.cfg.MaxBackoff || d <= 0) {
		d = w.cfg.MaxBackoff
	}
	return d
}

func (w *Writer) sleep(d time.Duration) error {
	if d <= 0 {
		return w.ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-w.ctx.Done():
		return w.ctx.Err()
	}
}

func (w *Writer) superseded(key entryKey, gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	st, ok := w.keys[key]
	return ok && st.latest > gen
}

func (w *Writer) forget(key entryKey) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if st, ok := w.keys[key]; ok {
		st.pending--
		if st.pending <= 0 {
			delete(w.keys, key)
		}
	}
}
