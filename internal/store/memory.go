package store

import (
	"context"
	"sync"
)

// MemoryStore keeps the document in process memory. It is the dev and test
// backend; contents are lost when the process exits.
type MemoryStore struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the stored document.
func (s *MemoryStore) Load(ctx context.Context) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data == nil {
		return nil, false, nil
	}
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out, true, nil
}

// Save replaces the stored document.
func (s *MemoryStore) Save(ctx context.Context, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	s.mu.Lock()
	s.data = cp
	s.mu.Unlock()
	return nil
}

// Close is a no-op for the in-memory backend.
func (s *MemoryStore) Close() error { return nil }
