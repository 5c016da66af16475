package memory

import (
	"context"
	"sync"

	"curve-indexer/internal/domain"
	"curve-indexer/internal/storage"
)

// TickStore is an in-memory implementation of storage.TickStore.
type TickStore struct {
	mu    sync.RWMutex
	ticks []*domain.TradeTick
}

// NewTickStore creates a new in-memory tick store.
func NewTickStore() *TickStore {
	return &TickStore{}
}

var _ storage.TickStore = (*TickStore)(nil)

// InsertBulk appends tick points. Duplicates are tolerated, matching the
// ReplacingMergeTree semantics of the real archive.
func (s *TickStore) InsertBulk(_ context.Context, ticks []*domain.TradeTick) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range ticks {
		copy := *t
		s.ticks = append(s.ticks, &copy)
	}
	return nil
}

// All returns every stored tick, for test assertions.
func (s *TickStore) All() []*domain.TradeTick {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.TradeTick, 0, len(s.ticks))
	for _, t := range s.ticks {
		copy := *t
		out = append(out, &copy)
	}
	return out
}
