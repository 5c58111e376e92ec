// Package memory provides an in-process cache backend for tests and dry runs.
package memory

import (
	"context"
	"sort"
	"sync"
)

// BlobStore keeps values in a map guarded by a mutex.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewBlobStore creates an empty in-memory backend.
func NewBlobStore() *BlobStore {
	return &BlobStore{data: make(map[string][]byte)}
}

// Get returns a copy of the stored value.
func (s *BlobStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

// Set stores a copy of value.
func (s *BlobStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes key.
func (s *BlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// URLForKey returns a memory:// pseudo URI.
func (s *BlobStore) URLForKey(key string) (string, bool) {
	return "memory://" + key, true
}

// Description names the backend for logs.
func (s *BlobStore) Description() string {
	return "in-memory cache"
}

// Keys lists stored keys in sorted order.
func (s *BlobStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
