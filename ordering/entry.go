// Package ordering keeps per-context item orders on top of rank keys.
//
// A Collection is the caller's optimistic, sorted view of one context. The
// Orderer computes new keys for moves and insertions, applies them to the
// Collection immediately and persists them through a Store, either inline or
// through a Writer that sequences, retries and rolls back failed writes.
//
// Every view of a context goes through the same neighbor selection and the
// same unranked sentinel, so two views can never disagree about where an
// item without a rank entry belongs.
package ordering

import (
	"context"
	"errors"
)

var (
	// ErrIndexOutOfRange is returned for positions outside a collection.
	ErrIndexOutOfRange = errors.New("position out of range")

	// ErrItemNotFound is returned when an item is not part of a collection.
	ErrItemNotFound = errors.New("item not found in collection")

	// ErrInvalidMove is returned when an item is moved relative to itself.
	ErrInvalidMove = errors.New("item cannot be moved relative to itself")

	// ErrWriterClosed is returned when submitting to a closed Writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// Scope identifies one ordering: a context as seen by one user.
type Scope struct {
	ContextID string
	UserID    string
}

// Entry is the persisted rank of one item within a scope. An empty Rank
// means the item has no rank entry and sorts by the unranked sentinel.
type Entry struct {
	ContextID string `json:"context_id"`
	ItemID    string `json:"item_id"`
	UserID    string `json:"user_id"`
	Rank      string `json:"rank"`
}

// Scope returns the scope the entry belongs to.
func (e Entry) Scope() Scope {
	return Scope{ContextID: e.ContextID, UserID: e.UserID}
}

// Ranked reports whether the entry carries a rank key.
func (e Entry) Ranked() bool { return e.Rank != "" }

// Store persists entries. Upsert and Delete are idempotent on
// (ContextID, ItemID, UserID); deleting a missing entry is not an error.
// ListEntries returns the entries of one scope in any order.
type Store interface {
	Upsert(ctx context.Context, e Entry) error
	ListEntries(ctx context.Context, contextID, userID string) ([]Entry, error)
	Delete(ctx context.Context, contextID, itemID, userID string) error
}

// Notifier is told about every rank change that reached the store.
type Notifier interface {
	RankChanged(ctx context.Context, e Entry, deleted bool) error
}
