// Package memory provides in-memory storage implementations for tests and
// dry runs. Semantics mirror the postgres implementations.
package memory

import (
	"context"
	"sync"

	"curve-indexer/internal/storage"
)

// CursorStore is an in-memory implementation of storage.CursorStore.
type CursorStore struct {
	mu        sync.RWMutex
	positions map[string]uint64
}

// NewCursorStore creates a new in-memory cursor store.
func NewCursorStore() *CursorStore {
	return &CursorStore{
		positions: make(map[string]uint64),
	}
}

var _ storage.CursorStore = (*CursorStore)(nil)

// Get returns the last processed position for a network.
func (s *CursorStore) Get(_ context.Context, network string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[network]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return pos, nil
}

// Set saves the last processed position, never moving it backward.
func (s *CursorStore) Set(_ context.Context, network string, position uint64) error {
	if network == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.positions[network]; ok && prev > position {
		return nil
	}
	s.positions[network] = position
	return nil
}
