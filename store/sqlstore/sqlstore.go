// Package sqlstore persists rank entries in SQLite through modernc.org/sqlite.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/vaulted/rankkey/ordering"
)

// Memory opens a private in-memory database.
const Memory = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS rank_entries (
	context_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	item_id TEXT NOT NULL,
	rank_key TEXT NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (context_id, user_id, item_id)
);
CREATE INDEX IF NOT EXISTS idx_rank_entries_scope ON rank_entries(context_id, user_id, rank_key);
`

// Store implements ordering.Store on a SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

var _ ordering.Store = (*Store)(nil)

// Open opens or creates the database at path and its schema. Memory opens
// a database that lives as long as the Store.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path != Memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == Memory {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, path: path}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string { return s.path }

func (s *Store) Upsert(ctx context.Context, e ordering.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rank_entries (context_id, user_id, item_id, rank_key)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (context_id, user_id, item_id)
		DO UPDATE SET rank_key = excluded.rank_key, updated_at = CURRENT_TIMESTAMP`,
		e.ContextID, e.UserID, e.ItemID, e.Rank)
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", e.ContextID, e.ItemID, err)
	}
	return nil
}

// ListEntries returns the entries of one scope in rank order.
func (s *Store) ListEntries(ctx context.Context, contextID, userID string) ([]ordering.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, rank_key FROM rank_entries
		WHERE context_id = ? AND user_id = ?
		ORDER BY rank_key, item_id`,
		contextID, userID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", contextID, err)
	}
	defer rows.Close()

	var entries []ordering.Entry
	for rows.Next() {
		e := ordering.Entry{ContextID: contextID, UserID: userID}
		if err := rows.Scan(&e.ItemID, &e.Rank); err != nil {
			return nil, fmt.Errorf("scan %s: %w", contextID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) Delete(ctx context.Context, contextID, itemID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM rank_entries WHERE context_id = ? AND user_id = ? AND item_id = ?`,
		contextID, userID, itemID)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", contextID, itemID, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
