package memory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"curve-indexer/internal/domain"
	"curve-indexer/internal/storage"
)

// TradeWriter is an in-memory implementation of storage.TradeWriter. One
// mutex serializes the whole write set; the trade insert runs first, so a
// duplicate tx hash rejects the trade before the pool or holder change.
type TradeWriter struct {
	mu      sync.Mutex
	trades  *TradeStore
	pools   *PoolStore
	holders *HolderStore
}

// NewTradeWriter creates a TradeWriter over the given in-memory stores.
func NewTradeWriter(trades *TradeStore, pools *PoolStore, holders *HolderStore) *TradeWriter {
	return &TradeWriter{
		trades:  trades,
		pools:   pools,
		holders: holders,
	}
}

var _ storage.TradeWriter = (*TradeWriter)(nil)

// ApplyTrade writes the trade, the updated pool and the holder delta.
// Returns ErrDuplicateKey, with nothing written, if (network, tx_hash)
// already exists.
func (w *TradeWriter) ApplyTrade(ctx context.Context, t *domain.Trade, pool *domain.TokenPool, holderAddress string, holderDelta decimal.Decimal) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.trades.Insert(ctx, t); err != nil {
		return err
	}
	if err := w.pools.Upsert(ctx, pool); err != nil {
		return err
	}
	return w.holders.ApplyDelta(ctx, t.Network, t.TokenAddress, holderAddress, holderDelta, t.Timestamp)
}
