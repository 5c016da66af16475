package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curve-indexer/internal/storage"
)

func TestCursorStore_GetNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := NewCursorStore(pool).Get(context.Background(), "base")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCursorStore_SetAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCursorStore(pool)

	require.NoError(t, store.Set(ctx, "base", 1000))

	pos, err := store.Get(ctx, "base")
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), pos)

	require.NoError(t, store.Set(ctx, "base", 2000))

	pos, err = store.Get(ctx, "base")
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), pos)
}

func TestCursorStore_NeverMovesBackward(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCursorStore(pool)

	require.NoError(t, store.Set(ctx, "base", 2000))
	require.NoError(t, store.Set(ctx, "base", 500))

	pos, err := store.Get(ctx, "base")
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), pos)
}

func TestCursorStore_NetworksAreIndependent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCursorStore(pool)

	require.NoError(t, store.Set(ctx, "base", 100))
	require.NoError(t, store.Set(ctx, "solana-mainnet", 9000))

	pos, err := store.Get(ctx, "base")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), pos)
}
