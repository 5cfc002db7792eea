package answercache

import (
	"context"
	"sync"
)

// MemoryStore keeps the learned snapshot in process memory. Used in tests
// and when no durable backend is configured.
type MemoryStore struct {
	mu      sync.Mutex
	learned []Entry
	saves   int
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) LoadLearned(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.learned))
	copy(out, s.learned)
	return out, nil
}

func (s *MemoryStore) SaveLearned(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.learned = make([]Entry, len(entries))
	copy(s.learned, entries)
	s.saves++
	return nil
}

// Saves reports how many snapshots have been written, for tests asserting
// flush coalescing.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *MemoryStore) Close() error { return nil }
