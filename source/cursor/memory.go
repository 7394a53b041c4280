package cursor

import (
	"context"
	"sync"
)

// MemoryStore keeps the cursor in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	version uint64
	ok      bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(context.Context) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version, s.ok, nil
}

func (s *MemoryStore) Save(_ context.Context, stateVersion uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = stateVersion
	s.ok = true
	return nil
}

func (s *MemoryStore) Close() error { return nil }
