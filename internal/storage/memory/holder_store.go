package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"curve-indexer/internal/domain"
	"curve-indexer/internal/storage"
)

// HolderStore is an in-memory implementation of storage.HolderStore.
type HolderStore struct {
	mu   sync.RWMutex
	data map[string]*domain.HolderBalance
}

// NewHolderStore creates a new in-memory holder store.
func NewHolderStore() *HolderStore {
	return &HolderStore{
		data: make(map[string]*domain.HolderBalance),
	}
}

var _ storage.HolderStore = (*HolderStore)(nil)

func holderKey(network, tokenAddress, holderAddress string) string {
	return fmt.Sprintf("%s|%s|%s", network, tokenAddress, holderAddress)
}

// ApplyDelta adjusts a holder's balance atomically, floored at zero.
func (s *HolderStore) ApplyDelta(_ context.Context, network, tokenAddress, holderAddress string, delta decimal.Decimal, at int64) error {
	if network == "" || tokenAddress == "" || holderAddress == "" {
		return storage.ErrInvalidInput
	}

	key := holderKey(network, tokenAddress, holderAddress)

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.data[key]
	if !ok {
		h = &domain.HolderBalance{
			Network:       network,
			TokenAddress:  tokenAddress,
			HolderAddress: holderAddress,
			TokenAmount:   decimal.Zero,
		}
		s.data[key] = h
	}

	next := h.TokenAmount.Add(delta)
	if next.IsNegative() {
		next = decimal.Zero
	}
	h.TokenAmount = next
	h.UpdatedAt = at
	return nil
}

// Get retrieves one balance.
func (s *HolderStore) Get(_ context.Context, network, tokenAddress, holderAddress string) (*domain.HolderBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.data[holderKey(network, tokenAddress, holderAddress)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *h
	return &copy, nil
}

// ListByToken retrieves all balances for a token, largest first.
func (s *HolderStore) ListByToken(_ context.Context, network, tokenAddress string) ([]*domain.HolderBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var holders []*domain.HolderBalance
	for _, h := range s.data {
		if h.Network == network && h.TokenAddress == tokenAddress {
			copy := *h
			holders = append(holders, &copy)
		}
	}

	sort.Slice(holders, func(i, j int) bool {
		if !holders[i].TokenAmount.Equal(holders[j].TokenAmount) {
			return holders[i].TokenAmount.GreaterThan(holders[j].TokenAmount)
		}
		return holders[i].HolderAddress < holders[j].HolderAddress
	})
	return holders, nil
}
