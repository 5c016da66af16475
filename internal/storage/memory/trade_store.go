package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"curve-indexer/internal/domain"
	"curve-indexer/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Trade // keyed by network|tx_hash
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[string]*domain.Trade),
	}
}

var _ storage.TradeStore = (*TradeStore)(nil)

func tradeKey(network, txHash string) string {
	return fmt.Sprintf("%s|%s", network, txHash)
}

// Insert adds a new trade. Returns ErrDuplicateKey if (network, tx_hash) exists.
func (s *TradeStore) Insert(_ context.Context, t *domain.Trade) error {
	if t == nil || t.TxHash == "" || t.Network == "" {
		return storage.ErrInvalidInput
	}

	key := tradeKey(t.Network, t.TxHash)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *t
	s.data[key] = &copy
	return nil
}

// GetByToken retrieves all trades for a token, ordered by position ASC.
func (s *TradeStore) GetByToken(_ context.Context, network, tokenAddress string) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var trades []*domain.Trade
	for _, t := range s.data {
		if t.Network == network && t.TokenAddress == tokenAddress {
			copy := *t
			trades = append(trades, &copy)
		}
	}

	sort.Slice(trades, func(i, j int) bool {
		if trades[i].Position != trades[j].Position {
			return trades[i].Position < trades[j].Position
		}
		return trades[i].TxHash < trades[j].TxHash
	})
	return trades, nil
}

// CountByToken returns the number of recorded trades for a token.
func (s *TradeStore) CountByToken(_ context.Context, network, tokenAddress string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, t := range s.data {
		if t.Network == network && t.TokenAddress == tokenAddress {
			count++
		}
	}
	return count, nil
}
