package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"curve-indexer/internal/domain"
	"curve-indexer/internal/storage"
)

// PoolStore is an in-memory implementation of storage.PoolStore.
type PoolStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TokenPool
}

// NewPoolStore creates a new in-memory pool store.
func NewPoolStore() *PoolStore {
	return &PoolStore{
		data: make(map[string]*domain.TokenPool),
	}
}

var _ storage.PoolStore = (*PoolStore)(nil)

func poolKey(network, tokenAddress string) string {
	return fmt.Sprintf("%s|%s", network, tokenAddress)
}

// Get retrieves a pool. Returns ErrNotFound if not exists.
func (s *PoolStore) Get(_ context.Context, network, tokenAddress string) (*domain.TokenPool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[poolKey(network, tokenAddress)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *p
	return &copy, nil
}

// Upsert writes the full pool row.
func (s *PoolStore) Upsert(_ context.Context, p *domain.TokenPool) error {
	if p == nil || p.TokenAddress == "" || p.Network == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *p
	s.data[poolKey(p.Network, p.TokenAddress)] = &copy
	return nil
}

// ListByScore retrieves up to limit pools ordered by score descending.
func (s *PoolStore) ListByScore(_ context.Context, network string, limit int) ([]*domain.TokenPool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pools []*domain.TokenPool
	for _, p := range s.data {
		if p.Network != network {
			continue
		}
		copy := *p
		pools = append(pools, &copy)
	}

	sort.Slice(pools, func(i, j int) bool {
		if !pools[i].Score.Equal(pools[j].Score) {
			return pools[i].Score.GreaterThan(pools[j].Score)
		}
		return pools[i].TokenAddress < pools[j].TokenAddress
	})

	if limit > 0 && len(pools) > limit {
		pools = pools[:limit]
	}
	return pools, nil
}
