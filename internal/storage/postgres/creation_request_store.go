package postgres

import (
	"context"
	"fmt"

	"curve-indexer/internal/domain"
	"curve-indexer/internal/storage"
)

// CreationRequestStore implements storage.CreationRequestStore using PostgreSQL.
type CreationRequestStore struct {
	pool *Pool
}

// NewCreationRequestStore creates a new CreationRequestStore.
func NewCreationRequestStore(pool *Pool) *CreationRequestStore {
	return &CreationRequestStore{pool: pool}
}

var _ storage.CreationRequestStore = (*CreationRequestStore)(nil)

// Put stores a pending creation request.
func (s *CreationRequestStore) Put(ctx context.Context, req *domain.CreationRequest) error {
	query := `
		INSERT INTO creation_requests (network, token_address, metadata_ref, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := s.pool.Exec(ctx, query, req.Network, req.TokenAddress, req.MetadataRef, req.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("put creation request: %w", err)
	}
	return nil
}

// Take retrieves and deletes the request for an address in a single statement,
// so two concurrent TokenCreated deliveries cannot both correlate it.
func (s *CreationRequestStore) Take(ctx context.Context, network, tokenAddress string) (*domain.CreationRequest, error) {
	query := `
		DELETE FROM creation_requests
		WHERE network = $1 AND token_address = $2
		RETURNING network, token_address, metadata_ref, created_at
	`

	var req domain.CreationRequest
	err := s.pool.QueryRow(ctx, query, network, tokenAddress).Scan(
		&req.Network, &req.TokenAddress, &req.MetadataRef, &req.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("take creation request: %w", err)
	}
	return &req, nil
}
