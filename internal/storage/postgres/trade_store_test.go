package postgres

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curve-indexer/internal/domain"
	"curve-indexer/internal/storage"
)

func testTrade(txHash string, position uint64) *domain.Trade {
	return &domain.Trade{
		TxHash:       txHash,
		TokenAddress: "0xtoken1",
		Network:      "base",
		Side:         domain.TradeBuy,
		EthAmount:    decimal.NewFromInt(1),
		TokenAmount:  decimal.NewFromInt(100_000_000),
		EthPriceUSD:  decimal.NewFromInt(3000),
		TokenPrice:   decimal.RequireFromString("0.000000012"),
		Position:     position,
		Timestamp:    int64(position) * 1000,
	}
}

func TestTradeStore_InsertAndGetByToken(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	require.NoError(t, store.Insert(ctx, testTrade("0xtx2", 20)))
	require.NoError(t, store.Insert(ctx, testTrade("0xtx1", 10)))

	trades, err := store.GetByToken(ctx, "base", "0xtoken1")
	require.NoError(t, err)

	require.Len(t, trades, 2)
	assert.Equal(t, "0xtx1", trades[0].TxHash)
	assert.Equal(t, "0xtx2", trades[1].TxHash)
	assert.Equal(t, domain.TradeBuy, trades[0].Side)
	assert.True(t, trades[0].EthAmount.Equal(decimal.NewFromInt(1)))
	assert.True(t, trades[0].TokenPrice.Equal(decimal.RequireFromString("0.000000012")))
	assert.Equal(t, uint64(10), trades[0].Position)
}

func TestTradeStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	tr := testTrade("0xtx1", 10)
	require.NoError(t, store.Insert(ctx, tr))

	// Same (network, tx_hash): the replay gate.
	err := store.Insert(ctx, tr)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	count, err := store.CountByToken(ctx, "base", "0xtoken1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestTradeStore_CountByToken(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	require.NoError(t, store.Insert(ctx, testTrade("0xtx1", 10)))
	require.NoError(t, store.Insert(ctx, testTrade("0xtx2", 20)))

	other := testTrade("0xtx3", 30)
	other.TokenAddress = "0xtoken2"
	require.NoError(t, store.Insert(ctx, other))

	count, err := store.CountByToken(ctx, "base", "0xtoken1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = store.CountByToken(ctx, "base", "0xnothing")
	require.NoError(t, err)
	assert.Zero(t, count)
}
