package postgres

import (
	"context"
	"fmt"

	"curve-indexer/internal/storage"
)

// CursorStore implements storage.CursorStore using PostgreSQL.
type CursorStore struct {
	pool *Pool
}

// NewCursorStore creates a new CursorStore.
func NewCursorStore(pool *Pool) *CursorStore {
	return &CursorStore{pool: pool}
}

var _ storage.CursorStore = (*CursorStore)(nil)

// Get returns the last processed position for a network.
func (s *CursorStore) Get(ctx context.Context, network string) (uint64, error) {
	query := `SELECT position FROM cursors WHERE network = $1`

	var position uint64
	err := s.pool.QueryRow(ctx, query, network).Scan(&position)
	if err != nil {
		if isNotFoundError(err) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("get cursor: %w", err)
	}
	return position, nil
}

// Set saves the last processed position. The GREATEST guard keeps the cursor
// monotonic even if a lagging worker commits out of order.
func (s *CursorStore) Set(ctx context.Context, network string, position uint64) error {
	query := `
		INSERT INTO cursors (network, position, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (network) DO UPDATE
		SET position = GREATEST(cursors.position, EXCLUDED.position),
		    updated_at = NOW()
	`

	if _, err := s.pool.Exec(ctx, query, network, position); err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}
