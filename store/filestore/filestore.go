// Package filestore keeps rank entries as JSON files, one per scope, written
// atomically with github.com/natefinch/atomic.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/vaulted/rankkey/ordering"
)

const (
	dirPerms  = 0o755
	filePerms = 0o644
)

var errCorruptFile = errors.New("corrupt entry file")

// scopeFile is the on-disk layout of one scope.
type scopeFile struct {
	ContextID string            `json:"context_id"`
	UserID    string            `json:"user_id"`
	Ranks     map[string]string `json:"ranks"`
}

// Store implements ordering.Store under a directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

var _ ordering.Store = (*Store)(nil)

// Open returns a store rooted at dir, creating it if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(contextID, userID string) string {
	return filepath.Join(s.dir, escape(contextID), escape(userID)+".json")
}

// escape maps a name to a single path element that cannot leave the store
// directory. Escaped names never start with a literal '.' and are never empty.
func escape(name string) string {
	e := url.PathEscape(name)
	switch {
	case e == "":
		return "%"
	case strings.HasPrefix(e, "."):
		return "%2E" + e[1:]
	}
	return e
}

func (s *Store) Upsert(ctx context.Context, e ordering.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read(e.ContextID, e.UserID)
	if err != nil {
		return err
	}
	if rank, ok := f.Ranks[e.ItemID]; ok && rank == e.Rank {
		return nil
	}
	f.Ranks[e.ItemID] = e.Rank
	return s.write(f)
}

// ListEntries returns the entries of one scope in rank order.
func (s *Store) ListEntries(ctx context.Context, contextID, userID string) ([]ordering.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	f, err := s.read(contextID, userID)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	entries := make([]ordering.Entry, 0, len(f.Ranks))
	for itemID, rank := range f.Ranks {
		entries = append(entries, ordering.Entry{ContextID: contextID, ItemID: itemID, UserID: userID, Rank: rank})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Rank != entries[j].Rank {
			return entries[i].Rank < entries[j].Rank
		}
		return entries[i].ItemID < entries[j].ItemID
	})
	return entries, nil
}

func (s *Store) Delete(ctx context.Context, contextID, itemID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read(contextID, userID)
	if err != nil {
		return err
	}
	if _, ok := f.Ranks[itemID]; !ok {
		return nil
	}
	delete(f.Ranks, itemID)
	if len(f.Ranks) == 0 {
		if err := os.Remove(s.path(contextID, userID)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove entry file: %w", err)
		}
		return nil
	}
	return s.write(f)
}

func (s *Store) read(contextID, userID string) (scopeFile, error) {
	f := scopeFile{ContextID: contextID, UserID: userID, Ranks: map[string]string{}}
	path := s.path(contextID, userID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return f, fmt.Errorf("failed to read entry file: %w", err)
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("%w %s: %w", errCorruptFile, path, err)
	}
	if f.Ranks == nil {
		f.Ranks = map[string]string{}
	}
	return f, nil
}

func (s *Store) write(f scopeFile) error {
	path := s.path(f.ContextID, f.UserID)
	if err := os.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
		return fmt.Errorf("failed to create context directory: %w", err)
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode entry file: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write entry file: %w", err)
	}
	// atomic.WriteFile doesn't set permissions for new files
	if err := os.Chmod(path, filePerms); err != nil {
		return fmt.Errorf("failed to set file permissions: %w", err)
	}
	return nil
}
