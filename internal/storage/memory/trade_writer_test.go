package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curve-indexer/internal/storage"
)

func TestTradeWriter_AppliesAllThreeWrites(t *testing.T) {
	trades := NewTradeStore()
	pools := NewPoolStore()
	holders := NewHolderStore()
	w := NewTradeWriter(trades, pools, holders)
	ctx := context.Background()

	trade := testTrade("0xaaa", 1)
	pool := testPool("0xtoken", 10)
	pool.VirtualEthReserve = decimal.NewFromInt(6)

	require.NoError(t, w.ApplyTrade(ctx, trade, pool, "0xtrader", trade.TokenAmount))

	count, err := trades.CountByToken(ctx, "base", "0xtoken")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := pools.Get(ctx, "base", "0xtoken")
	require.NoError(t, err)
	assert.True(t, got.VirtualEthReserve.Equal(decimal.NewFromInt(6)))

	holder, err := holders.Get(ctx, "base", "0xtoken", "0xtrader")
	require.NoError(t, err)
	assert.True(t, holder.TokenAmount.Equal(trade.TokenAmount))
}

func TestTradeWriter_DuplicateWritesNothing(t *testing.T) {
	trades := NewTradeStore()
	pools := NewPoolStore()
	holders := NewHolderStore()
	w := NewTradeWriter(trades, pools, holders)
	ctx := context.Background()

	trade := testTrade("0xaaa", 1)
	pool := testPool("0xtoken", 10)
	require.NoError(t, w.ApplyTrade(ctx, trade, pool, "0xtrader", trade.TokenAmount))

	replayPool := testPool("0xtoken", 10)
	replayPool.VirtualEthReserve = decimal.NewFromInt(99)
	err := w.ApplyTrade(ctx, trade, replayPool, "0xtrader", trade.TokenAmount)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// The rejected replay must not have touched the pool or the balance.
	got, err := pools.Get(ctx, "base", "0xtoken")
	require.NoError(t, err)
	assert.False(t, got.VirtualEthReserve.Equal(decimal.NewFromInt(99)))

	holder, err := holders.Get(ctx, "base", "0xtoken", "0xtrader")
	require.NoError(t, err)
	assert.True(t, holder.TokenAmount.Equal(trade.TokenAmount))
}
