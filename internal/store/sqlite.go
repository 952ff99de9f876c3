package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLiteStore implements Store on the kv_entries table.
//
// Each document is one row keyed by its full path. The path primary key
// makes SetIfAbsent a single INSERT OR IGNORE, so duplicate suppression
// holds even when two syncs race on the same reading.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed document store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get returns the document stored at exactly path.
func (s *SQLiteStore) Get(ctx context.Context, path string) (json.RawMessage, bool, error) {
	if !ValidPath(path) {
		return nil, false, ErrInvalidPath
	}

	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv_entries WHERE path = ?", path).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", path, err)
	}

	return json.RawMessage(value), true, nil
}

// Children returns the documents stored directly under path.
func (s *SQLiteStore) Children(ctx context.Context, path string) (map[string]json.RawMessage, error) {
	if !ValidPath(path) {
		return nil, ErrInvalidPath
	}

	prefix := path + "/"
	rows, err := s.db.QueryContext(ctx,
		"SELECT path, value FROM kv_entries WHERE path LIKE ? ESCAPE '\\'",
		likePattern(prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", path, err)
	}
	defer rows.Close()

	children := make(map[string]json.RawMessage)
	for rows.Next() {
		var childPath, value string
		if err := rows.Scan(&childPath, &value); err != nil {
			return nil, fmt.Errorf("scanning %s child: %w", path, err)
		}

		key := strings.TrimPrefix(childPath, prefix)
		if key == "" || strings.Contains(key, "/") {
			// Grandchildren are not direct children.
			continue
		}
		children[key] = json.RawMessage(value)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s children: %w", path, err)
	}

	return children, nil
}

// Set stores value at path, overwriting any existing document.
func (s *SQLiteStore) Set(ctx context.Context, path string, value any) error {
	if !ValidPath(path) {
		return ErrInvalidPath
	}

	encoded, err := marshalValue(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv_entries (path, value, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		path, encoded, now, now,
	)
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}

// SetIfAbsent stores value at path only when no document exists there.
func (s *SQLiteStore) SetIfAbsent(ctx context.Context, path string, value any) (bool, error) {
	if !ValidPath(path) {
		return false, ErrInvalidPath
	}

	encoded, err := marshalValue(value)
	if err != nil {
		return false, fmt.Errorf("encoding %s: %w", path, err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO kv_entries (path, value, created_at, updated_at) VALUES (?, ?, ?, ?)",
		path, encoded, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("writing %s: %w", path, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}

	return affected > 0, nil
}

// likePattern escapes LIKE metacharacters in prefix and appends a wildcard.
func likePattern(prefix string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return escaped + "%"
}
