package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// MemoryStore implements Store with an in-process map.
//
// It mirrors SQLiteStore semantics exactly and is the test double for the
// sync and query engines.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]string
}

// NewMemoryStore creates an empty in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]string)}
}

// Get returns the document stored at exactly path.
func (s *MemoryStore) Get(_ context.Context, path string) (json.RawMessage, bool, error) {
	if !ValidPath(path) {
		return nil, false, ErrInvalidPath
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.docs[path]
	if !ok {
		return nil, false, nil
	}
	return json.RawMessage(value), true, nil
}

// Children returns the documents stored directly under path.
func (s *MemoryStore) Children(_ context.Context, path string) (map[string]json.RawMessage, error) {
	if !ValidPath(path) {
		return nil, ErrInvalidPath
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := path + "/"
	children := make(map[string]json.RawMessage)
	for docPath, value := range s.docs {
		if !strings.HasPrefix(docPath, prefix) {
			continue
		}
		key := strings.TrimPrefix(docPath, prefix)
		if key == "" || strings.Contains(key, "/") {
			continue
		}
		children[key] = json.RawMessage(value)
	}

	return children, nil
}

// Set stores value at path, overwriting any existing document.
func (s *MemoryStore) Set(_ context.Context, path string, value any) error {
	if !ValidPath(path) {
		return ErrInvalidPath
	}

	encoded, err := marshalValue(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[path] = encoded
	return nil
}

// SetIfAbsent stores value at path only when no document exists there.
func (s *MemoryStore) SetIfAbsent(_ context.Context, path string, value any) (bool, error) {
	if !ValidPath(path) {
		return false, ErrInvalidPath
	}

	encoded, err := marshalValue(value)
	if err != nil {
		return false, fmt.Errorf("encoding %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[path]; exists {
		return false, nil
	}
	s.docs[path] = encoded
	return true, nil
}

// Len returns the number of stored documents. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
