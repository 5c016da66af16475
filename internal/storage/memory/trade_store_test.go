package memory

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
		TokenAddress: "0xtoken",
		Network:      "base",
		Side:         domain.TradeBuy,
		EthAmount:    decimal.NewFromInt(1),
		TokenAmount:  decimal.NewFromInt(1000),
		EthPriceUSD:  decimal.NewFromInt(3000),
		TokenPrice:   decimal.NewFromFloat(0.000001),
		Position:     position,
		Timestamp:    1700000000000,
	}
}

func TestTradeStore_InsertDuplicate(t *testing.T) {
	s := NewTradeStore()
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, testTrade("0xaaa", 1)))

	err := s.Insert(ctx, testTrade("0xaaa", 1))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	count, err := s.CountByToken(ctx, "base", "0xtoken")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestTradeStore_SameHashDifferentNetwork(t *testing.T) {
	s := NewTradeStore()
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, testTrade("0xaaa", 1)))

	other := testTrade("0xaaa", 1)
	other.Network = "solana"
	require.NoError(t, s.Insert(ctx, other))
}

func TestTradeStore_GetByTokenOrdered(t *testing.T) {
	s := NewTradeStore()
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, testTrade("0xccc", 30)))
	require.NoError(t, s.Insert(ctx, testTrade("0xaaa", 10)))
	require.NoError(t, s.Insert(ctx, testTrade("0xbbb", 20)))

	trades, err := s.GetByToken(ctx, "base", "0xtoken")
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, "0xaaa", trades[0].TxHash)
	assert.Equal(t, "0xbbb", trades[1].TxHash)
	assert.Equal(t, "0xccc", trades[2].TxHash)
}

func TestTradeStore_InvalidInput(t *testing.T) {
	s := NewTradeStore()

	assert.ErrorIs(t, s.Insert(context.Background(), nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, s.Insert(context.Background(), &domain.Trade{Network: "base"}), storage.ErrInvalidInput)
}
