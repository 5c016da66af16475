package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curve-indexer/internal/domain"
	"curve-indexer/internal/storage"
)

func TestCreationRequestStore_PutAndTake(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCreationRequestStore(pool)

	req := &domain.CreationRequest{
		TokenAddress: "0xtoken1",
		Network:      "base",
		MetadataRef:  "ipfs://QmMeta",
		CreatedAt:    1000,
	}
	require.NoError(t, store.Put(ctx, req))

	got, err := store.Take(ctx, "base", "0xtoken1")
	require.NoError(t, err)
	assert.Equal(t, req.MetadataRef, got.MetadataRef)
	assert.Equal(t, req.CreatedAt, got.CreatedAt)

	// Take deletes: the second attempt finds nothing.
	_, err = store.Take(ctx, "base", "0xtoken1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreationRequestStore_PutDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCreationRequestStore(pool)

	req := &domain.CreationRequest{
		TokenAddress: "0xtoken1",
		Network:      "base",
		MetadataRef:  "ipfs://QmMeta",
		CreatedAt:    1000,
	}
	require.NoError(t, store.Put(ctx, req))

	err := store.Put(ctx, req)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestCreationRequestStore_TakeMissing(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := NewCreationRequestStore(pool).Take(context.Background(), "base", "0xnothing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
