package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"curve-indexer/internal/domain"
	"curve-indexer/internal/observability"
	"curve-indexer/internal/storage"
)

// TradeWriter implements storage.TradeWriter using a single pgx transaction.
// The trade insert, the pool upsert and the holder delta commit together, so
// a chunk that fails mid-trade leaves no partial state behind and its replay
// starts from a clean row set.
type TradeWriter struct {
	pool *Pool
}

// NewTradeWriter creates a new TradeWriter.
func NewTradeWriter(pool *Pool) *TradeWriter {
	return &TradeWriter{pool: pool}
}

var _ storage.TradeWriter = (*TradeWriter)(nil)

// ApplyTrade writes the trade row, the pool snapshot and the holder delta in
// one transaction. Returns ErrDuplicateKey, with nothing committed, when
// (network, tx_hash) already exists.
func (w *TradeWriter) ApplyTrade(ctx context.Context, t *domain.Trade, pool *domain.TokenPool, holderAddress string, holderDelta decimal.Decimal) error {
	start := time.Now()
	err := w.applyTradeTx(ctx, t, pool, holderAddress, holderDelta)
	observability.RecordDBQuery("postgres", "apply_trade", time.Since(start).Seconds(), err)
	return err
}

func (w *TradeWriter) applyTradeTx(ctx context.Context, t *domain.Trade, pool *domain.TokenPool, holderAddress string, holderDelta decimal.Decimal) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin apply trade: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := execInsertTrade(ctx, tx, t); err != nil {
		// ErrDuplicateKey passes through untouched so the ledger can
		// classify the replay.
		return err
	}
	if err := execUpsertPool(ctx, tx, pool); err != nil {
		return err
	}
	if err := execApplyHolderDelta(ctx, tx, t.Network, t.TokenAddress, holderAddress, holderDelta, t.Timestamp); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit apply trade: %w", err)
	}
	return nil
}
