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

func testPool(token string, score int64) *domain.TokenPool {
	return &domain.TokenPool{
		TokenAddress:        token,
		Network:             "base",
		VirtualEthReserve:   decimal.NewFromInt(5),
		VirtualTokenReserve: decimal.NewFromInt(600000000),
		Score:               decimal.NewFromInt(score),
		CreatedAt:           1700000000000,
		UpdatedAt:           1700000000000,
	}
}

func TestPoolStore_UpsertReplaces(t *testing.T) {
	s := NewPoolStore()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, testPool("0xaaa", 10)))

	updated := testPool("0xaaa", 10)
	updated.VirtualEthReserve = decimal.NewFromInt(6)
	updated.Launched = true
	require.NoError(t, s.Upsert(ctx, updated))

	p, err := s.Get(ctx, "base", "0xaaa")
	require.NoError(t, err)
	assert.True(t, p.VirtualEthReserve.Equal(decimal.NewFromInt(6)))
	assert.True(t, p.Launched)
}

func TestPoolStore_GetReturnsCopy(t *testing.T) {
	s := NewPoolStore()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, testPool("0xaaa", 10)))

	p1, err := s.Get(ctx, "base", "0xaaa")
	require.NoError(t, err)
	p1.Score = decimal.NewFromInt(999)

	p2, err := s.Get(ctx, "base", "0xaaa")
	require.NoError(t, err)
	assert.True(t, p2.Score.Equal(decimal.NewFromInt(10)), "mutating a returned pool must not leak into the store")
}

func TestPoolStore_ListByScore(t *testing.T) {
	s := NewPoolStore()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, testPool("0xaaa", 10)))
	require.NoError(t, s.Upsert(ctx, testPool("0xbbb", 30)))
	require.NoError(t, s.Upsert(ctx, testPool("0xccc", 20)))

	pools, err := s.ListByScore(ctx, "base", 2)
	require.NoError(t, err)
	require.Len(t, pools, 2)
	assert.Equal(t, "0xbbb", pools[0].TokenAddress)
	assert.Equal(t, "0xccc", pools[1].TokenAddress)
}

func TestPoolStore_NotFound(t *testing.T) {
	s := NewPoolStore()

	_, err := s.Get(context.Background(), "base", "0xmissing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
