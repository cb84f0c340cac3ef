package ordering

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vaulted/rankkey"
)

// Position places an item relative to a target item.
type Position int

const (
	Before Position = iota
	After
)

// Option configures an Orderer.
type Option func(*Orderer)

// WithRanker sets the key generator. The default is rankkey.NewRanker(nil, nil).
func WithRanker(r *rankkey.Ranker) Option {
	return func(o *Orderer) { o.ranker = r }
}

// WithUnranked sets the sentinel for items without a rank entry. Every view
// of a context must use the same value.
func WithUnranked(k rankkey.Key) Option {
	return func(o *Orderer) { o.unranked = k }
}

// WithWriter makes persistence asynchronous through w. Without a writer,
// writes are applied inline and their errors returned.
func WithWriter(w *Writer) Option {
	return func(o *Orderer) { o.writer = w }
}

// WithNotifier publishes every persisted change to n.
func WithNotifier(n Notifier) Option {
	return func(o *Orderer) { o.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orderer) { o.log = l }
}

// WithConcurrency bounds inline batch writes (rebalance, clone).
func WithConcurrency(n int) Option {
	return func(o *Orderer) { o.concurrency = n }
}

// Orderer computes and persists rank keys for moves and insertions.
type Orderer struct {
	store       Store
	ranker      *rankkey.Ranker
	unranked    rankkey.Key
	writer      *Writer
	notifier    Notifier
	log         *zap.Logger
	concurrency int
}

// New returns an Orderer over store.
func New(store Store, opts ...Option) *Orderer {
	o := &Orderer{
		store:       store,
		ranker:      rankkey.NewRanker(nil, nil),
		unranked:    rankkey.DefaultUnranked,
		log:         zap.NewNop(),
		concurrency: 8,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Unranked returns the sentinel used for items without a rank entry.
func (o *Orderer) Unranked() rankkey.Key { return o.unranked }

// Load reads the entries of scope into a Collection. When itemIDs is given,
// the view holds exactly those items: items without a stored entry appear
// unranked, and stored entries for other items are left out.
func (o *Orderer) Load(ctx context.Context, scope Scope, itemIDs ...string) (*Collection, error) {
	entries, err := o.store.ListEntries(ctx, scope.ContextID, scope.UserID)
	if err != nil {
		return nil, fmt.Errorf("list entries of %q: %w", scope.ContextID, err)
	}
	if len(itemIDs) > 0 {
		byItem := make(map[string]Entry, len(entries))
		for _, e := range entries {
			byItem[e.ItemID] = e
		}
		view := make([]Entry, 0, len(itemIDs))
		for _, id := range itemIDs {
			e, ok := byItem[id]
			if !ok {
				e = Entry{ItemID: id}
			}
			view = append(view, e)
		}
		entries = view
	}
	return NewCollection(scope, entries, o.unranked), nil
}

// Move drags the item at index from to index to. The collection is updated
// before the write is persisted.
func (o *Orderer) Move(ctx context.Context, coll *Collection, from, to int) (Entry, error) {
	return o.move(ctx, coll, func() (int, int, error) { return from, to, nil })
}

// MoveRelative places itemID directly before or after targetID.
func (o *Orderer) MoveRelative(ctx context.Context, coll *Collection, itemID, targetID string, pos Position) (Entry, error) {
	if itemID == targetID {
		return Entry{}, fmt.Errorf("%w: %q", ErrInvalidMove, itemID)
	}
	return o.move(ctx, coll, func() (int, int, error) {
		from := coll.indexLocked(itemID)
		if from < 0 {
			return 0, 0, fmt.Errorf("%w: %q", ErrItemNotFound, itemID)
		}
		to := coll.indexLocked(targetID)
		if to < 0 {
			return 0, 0, fmt.Errorf("%w: %q", ErrItemNotFound, targetID)
		}
		if to > from {
			to--
		}
		if pos == After {
			to++
		}
		return from, to, nil
	})
}

func (o *Orderer) move(ctx context.Context, coll *Collection, resolve func() (int, int, error)) (Entry, error) {
	coll.mu.Lock()
	from, to, err := resolve()
	if err != nil {
		coll.mu.Unlock()
		return Entry{}, err
	}
	nb, err := coll.neighborsLocked(from, to)
	if err != nil {
		coll.mu.Unlock()
		return Entry{}, err
	}
	moving := coll.entries[from]
	if from == to {
		coll.mu.Unlock()
		return moving, nil
	}
	key := o.keyFor(coll.scope, moving.ItemID, nb, Generate)
	ch := coll.setLocked(moving.ItemID, key.String())
	coll.mu.Unlock()

	return o.commit(ctx, coll, ch, key)
}

// Add places itemID after the last item of the collection. An item that
// already has a rank is returned unchanged.
func (o *Orderer) Add(ctx context.Context, coll *Collection, itemID string) (Entry, error) {
	coll.mu.Lock()
	if i := coll.indexLocked(itemID); i >= 0 && coll.entries[i].Ranked() {
		e := coll.entries[i]
		coll.mu.Unlock()
		return e, nil
	}
	key := o.keyFor(coll.scope, itemID, coll.tailLocked(itemID), appendKey)
	ch := coll.setLocked(itemID, key.String())
	coll.mu.Unlock()

	return o.commit(ctx, coll, ch, key)
}

// Remove drops itemID from the collection and deletes its entry.
func (o *Orderer) Remove(ctx context.Context, coll *Collection, itemID string) error {
	coll.mu.Lock()
	ch, ok := coll.removeLocked(itemID)
	coll.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrItemNotFound, itemID)
	}
	return o.persist(ctx, coll, []change{ch})
}

// Rebalance rewrites every entry of the collection with evenly spaced keys,
// keeping the current order. Unranked items receive real keys.
func (o *Orderer) Rebalance(ctx context.Context, coll *Collection) ([]Entry, error) {
	coll.mu.Lock()
	keys, err := rankkey.Spread(rankkey.Middle().Bucket(), len(coll.entries))
	if err != nil {
		coll.mu.Unlock()
		return nil, fmt.Errorf("rebalance %q: %w", coll.scope.ContextID, err)
	}
	var changes []change
	for i, e := range coll.entries {
		rank := keys[i].String()
		if e.Rank == rank {
			continue
		}
		next := e
		next.Rank = rank
		changes = append(changes, change{entry: next, prev: e, existed: true})
		coll.entries[i].Rank = rank
	}
	coll.sortLocked()
	coll.mu.Unlock()

	o.log.Info("Rebalancing context",
		zap.String("context_id", coll.scope.ContextID),
		zap.String("user_id", coll.scope.UserID),
		zap.Int("entries", len(keys)),
		zap.Int("changed", len(changes)),
	)
	err = o.persist(ctx, coll, changes)
	return coll.Entries(), err
}

// Clone copies the ranked entries of src into dst, preserving their keys and
// therefore their order. mapItem translates source item IDs to the items of
// the copy; returning false skips an item. A nil mapItem keeps item IDs.
// When a write fails, the entries already written to dst are restored to
// what dst held before.
func (o *Orderer) Clone(ctx context.Context, src, dst Scope, mapItem func(itemID string) (string, bool)) ([]Entry, error) {
	entries, err := o.store.ListEntries(ctx, src.ContextID, src.UserID)
	if err != nil {
		return nil, fmt.Errorf("list entries of %q: %w", src.ContextID, err)
	}
	existing, err := o.store.ListEntries(ctx, dst.ContextID, dst.UserID)
	if err != nil {
		return nil, fmt.Errorf("list entries of %q: %w", dst.ContextID, err)
	}
	sorted := NewCollection(src, entries, o.unranked).Entries()

	cloned := make([]Entry, 0, len(sorted))
	for _, e := range sorted {
		if !e.Ranked() {
			continue
		}
		itemID := e.ItemID
		if mapItem != nil {
			var ok bool
			if itemID, ok = mapItem(e.ItemID); !ok {
				continue
			}
		}
		cloned = append(cloned, Entry{ContextID: dst.ContextID, UserID: dst.UserID, ItemID: itemID, Rank: e.Rank})
	}

	written := make([]bool, len(cloned))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, e := range cloned {
		g.Go(func() error {
			if err := o.store.Upsert(gctx, e); err != nil {
				return fmt.Errorf("clone %q into %q: %w", e.ItemID, dst.ContextID, err)
			}
			written[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Join(err, o.undoClone(context.WithoutCancel(ctx), cloned, written, existing))
	}
	for _, e := range cloned {
		o.notify(ctx, e, false)
	}
	o.log.Info("Cloned context",
		zap.String("from_context_id", src.ContextID),
		zap.String("to_context_id", dst.ContextID),
		zap.String("to_user_id", dst.UserID),
		zap.Int("entries", len(cloned)),
	)
	return cloned, nil
}

// undoClone puts the written entries of a failed clone back to their state
// in existing, deleting the ones dst did not hold.
func (o *Orderer) undoClone(ctx context.Context, cloned []Entry, written []bool, existing []Entry) error {
	before := make(map[string]Entry, len(existing))
	for _, e := range existing {
		before[e.ItemID] = e
	}
	var errs []error
	for i, e := range cloned {
		if !written[i] {
			continue
		}
		var err error
		if prev, ok := before[e.ItemID]; ok {
			err = o.store.Upsert(ctx, prev)
		} else {
			err = o.store.Delete(ctx, e.ContextID, e.ItemID, e.UserID)
		}
		if err != nil {
			o.log.Error("Undoing clone failed",
				zap.String("context_id", e.ContextID),
				zap.String("item_id", e.ItemID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("undo clone of %q: %w", e.ItemID, err))
		}
	}
	return errors.Join(errs...)
}

// Prune deletes the stored entries of scope whose items are not in keep and
// returns them. It is the orphan cleanup for items removed from a context by
// other means.
func (o *Orderer) Prune(ctx context.Context, scope Scope, keep []string) ([]Entry, error) {
	entries, err := o.store.ListEntries(ctx, scope.ContextID, scope.UserID)
	if err != nil {
		return nil, fmt.Errorf("list entries of %q: %w", scope.ContextID, err)
	}
	wanted := make(map[string]bool, len(keep))
	for _, id := range keep {
		wanted[id] = true
	}
	var pruned []Entry
	for _, e := range entries {
		if wanted[e.ItemID] {
			continue
		}
		if err := o.store.Delete(ctx, e.ContextID, e.ItemID, e.UserID); err != nil {
			return pruned, fmt.Errorf("prune %q: %w", e.ItemID, err)
		}
		o.notify(ctx, e, true)
		pruned = append(pruned, e)
	}
	return pruned, nil
}

// keyFor generates a key with gen and never fails: a malformed neighbor or
// an exhausted interval falls back to the canonical middle key.
func (o *Orderer) keyFor(scope Scope, itemID string, nb Neighbors, gen func(*rankkey.Ranker, Neighbors) (rankkey.Key, error)) rankkey.Key {
	key, err := gen(o.ranker, nb)
	if err != nil {
		o.log.Warn("Rank key generation failed, using middle key",
			zap.String("context_id", scope.ContextID),
			zap.String("user_id", scope.UserID),
			zap.String("item_id", itemID),
			zap.String("lower", nb.Lower),
			zap.String("upper", nb.Upper),
			zap.Error(err),
		)
		return rankkey.Middle()
	}
	return key
}

func (o *Orderer) commit(ctx context.Context, coll *Collection, ch change, key rankkey.Key) (Entry, error) {
	if err := o.persist(ctx, coll, []change{ch}); err != nil {
		return ch.entry, err
	}
	if o.ranker.TooLong(key) {
		if _, err := o.Rebalance(ctx, coll); err != nil {
			o.log.Warn("Rebalance failed", zap.String("context_id", coll.scope.ContextID), zap.Error(err))
		}
	}
	if e, ok := coll.Entry(ch.entry.ItemID); ok {
		return e, nil
	}
	return ch.entry, nil
}

// persist writes changes through the writer, or inline when there is none.
// Inline failures are rolled back before persist returns; writer failures
// are rolled back when the writer gives up. A change the writer refuses is
// rolled back once the writes already queued for its item have settled.
func (o *Orderer) persist(ctx context.Context, coll *Collection, changes []change) error {
	if len(changes) == 0 {
		return nil
	}
	if o.writer != nil {
		notifyCtx := context.WithoutCancel(ctx)
		var errs []error
		for _, ch := range changes {
			coll.track(ch)
			_, err := o.writer.Submit(ctx, ch.write(), func(res Result) {
				o.settle(notifyCtx, coll, ch, res)
			})
			if err != nil {
				coll.abandon(ch)
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	errs := make([]error, len(changes))
	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, ch := range changes {
		coll.track(ch)
		g.Go(func() error {
			res := Result{Write: ch.write(), Attempts: 1, Err: o.apply(ctx, ch.write())}
			o.settle(ctx, coll, ch, res)
			errs[i] = res.Err
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (o *Orderer) apply(ctx context.Context, wr Write) error {
	e := wr.Entry
	if wr.Delete {
		return o.store.Delete(ctx, e.ContextID, e.ItemID, e.UserID)
	}
	return o.store.Upsert(ctx, e)
}

func (o *Orderer) settle(ctx context.Context, coll *Collection, ch change, res Result) {
	if res.Superseded {
		coll.skip(ch)
		return
	}
	if res.Err != nil {
		if coll.revert(ch) {
			o.log.Warn("Rolled back rank change",
				zap.String("context_id", ch.entry.ContextID),
				zap.String("item_id", ch.entry.ItemID),
				zap.String("rank", ch.entry.Rank),
				zap.Bool("delete", ch.deleted),
				zap.Error(res.Err),
			)
		}
		return
	}
	coll.confirm(ch)
	o.notify(ctx, ch.entry, ch.deleted)
}

func (o *Orderer) notify(ctx context.Context, e Entry, deleted bool) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.RankChanged(ctx, e, deleted); err != nil {
		o.log.Warn("Rank change notification failed",
			zap.String("context_id", e.ContextID),
			zap.String("item_id", e.ItemID),
			zap.Error(err),
		)
	}
}
