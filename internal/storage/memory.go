package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps the dataset on the heap.
type MemoryStore struct {
	mu      sync.RWMutex
	current *Dataset
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Replace(_ context.Context, ds Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &ds
	return nil
}

func (s *MemoryStore) Current(_ context.Context) (Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Dataset{}, ErrNoDataset
	}
	return *s.current, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	return nil
}

func (s *MemoryStore) Close() error { return nil }
