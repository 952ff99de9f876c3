package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// ErrInvalidPath is returned when a path is empty or malformed.
var ErrInvalidPath = errors.New("store: invalid path")

// Store is a path-addressed JSON document store.
//
// Paths are slash-separated segments (e.g. "history/tanks/tank-01/1700_2-5").
// The store has no transactions and no range queries; callers fetch a whole
// subtree with Children and filter in-process.
//
// Implementations must be thread-safe.
type Store interface {
	// Get returns the document stored at exactly path.
	// The boolean reports whether the path exists.
	Get(ctx context.Context, path string) (json.RawMessage, bool, error)

	// Children returns the documents stored directly under path, keyed by
	// the final path segment. A path with no children yields an empty map.
	Children(ctx context.Context, path string) (map[string]json.RawMessage, error)

	// Set marshals value and stores it at path, overwriting any existing
	// document.
	Set(ctx context.Context, path string, value any) error

	// SetIfAbsent stores value at path only when no document exists there.
	// It reports whether the write happened. This is the atomic
	// insert-if-absent primitive the sync engine relies on for duplicate
	// suppression under concurrent syncs.
	SetIfAbsent(ctx context.Context, path string, value any) (bool, error)
}

// Join builds a store path from segments. Empty segments are rejected by
// ValidPath at call sites; Join itself only concatenates.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// ValidPath reports whether a path is non-empty with non-empty segments.
func ValidPath(path string) bool {
	if path == "" {
		return false
	}
	for _, segment := range strings.Split(path, "/") {
		if segment == "" {
			return false
		}
	}
	return true
}

// marshalValue encodes a document for storage.
func marshalValue(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
