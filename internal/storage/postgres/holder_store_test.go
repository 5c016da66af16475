package postgres

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curve-indexer/internal/storage"
)

func TestHolderStore_ApplyDeltaCreatesAndAccumulates(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewHolderStore(pool)

	require.NoError(t, store.ApplyDelta(ctx, "base", "0xtoken1", "0xholder1", decimal.NewFromInt(100), 1000))
	require.NoError(t, store.ApplyDelta(ctx, "base", "0xtoken1", "0xholder1", decimal.NewFromInt(50), 2000))

	h, err := store.Get(ctx, "base", "0xtoken1", "0xholder1")
	require.NoError(t, err)
	assert.True(t, h.TokenAmount.Equal(decimal.NewFromInt(150)), "amount %s", h.TokenAmount)
	assert.Equal(t, int64(2000), h.UpdatedAt)
}

func TestHolderStore_ApplyDeltaFloorsAtZero(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewHolderStore(pool)

	require.NoError(t, store.ApplyDelta(ctx, "base", "0xtoken1", "0xholder1", decimal.NewFromInt(100), 1000))
	require.NoError(t, store.ApplyDelta(ctx, "base", "0xtoken1", "0xholder1", decimal.NewFromInt(-250), 2000))

	h, err := store.Get(ctx, "base", "0xtoken1", "0xholder1")
	require.NoError(t, err)
	assert.True(t, h.TokenAmount.IsZero(), "amount %s", h.TokenAmount)
}

func TestHolderStore_GetNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := NewHolderStore(pool).Get(context.Background(), "base", "0xtoken1", "0xnobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHolderStore_ListByTokenOrdersByAmount(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewHolderStore(pool)

	require.NoError(t, store.ApplyDelta(ctx, "base", "0xtoken1", "0xsmall", decimal.NewFromInt(10), 1000))
	require.NoError(t, store.ApplyDelta(ctx, "base", "0xtoken1", "0xwhale", decimal.NewFromInt(9000), 1000))
	require.NoError(t, store.ApplyDelta(ctx, "base", "0xtoken2", "0xelsewhere", decimal.NewFromInt(500), 1000))

	holders, err := store.ListByToken(ctx, "base", "0xtoken1")
	require.NoError(t, err)

	require.Len(t, holders, 2)
	assert.Equal(t, "0xwhale", holders[0].HolderAddress)
	assert.Equal(t, "0xsmall", holders[1].HolderAddress)
}
