package chain

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// PriceSource supplies the USD price of a network's native currency at
// normalization time. Implementations must be safe for concurrent use.
type PriceSource interface {
	PriceUSD(ctx context.Context) (decimal.Decimal, error)
}

// StaticPriceSource returns a fixed price. Used for networks without a
// configured feed and in tests.
type StaticPriceSource struct {
	mu    sync.RWMutex
	price decimal.Decimal
}

var _ PriceSource = (*StaticPriceSource)(nil)

// NewStaticPriceSource creates a price source pinned to the given value.
func NewStaticPriceSource(price decimal.Decimal) *StaticPriceSource {
	return &StaticPriceSource{price: price}
}

// PriceUSD returns the current pinned price.
func (s *StaticPriceSource) PriceUSD(_ context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.price, nil
}

// Set replaces the pinned price.
func (s *StaticPriceSource) Set(price decimal.Decimal) {
	s.mu.Lock()
	s.price = price
	s.mu.Unlock()
}
