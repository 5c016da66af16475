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

// HolderStore implements storage.HolderStore using PostgreSQL.
type HolderStore struct {
	pool *Pool
}

// NewHolderStore creates a new HolderStore.
func NewHolderStore(pool *Pool) *HolderStore {
	return &HolderStore{pool: pool}
}

var _ storage.HolderStore = (*HolderStore)(nil)

// ApplyDelta adjusts a holder's balance in one atomic statement, so the
// backfill workers and the live runner cannot race into a lost update.
// The result is floored at zero.
func (s *HolderStore) ApplyDelta(ctx context.Context, network, tokenAddress, holderAddress string, delta decimal.Decimal, at int64) error {
	return execApplyHolderDelta(ctx, s.pool, network, tokenAddress, holderAddress, delta, at)
}

func execApplyHolderDelta(ctx context.Context, db execer, network, tokenAddress, holderAddress string, delta decimal.Decimal, at int64) error {
	query := `
		INSERT INTO holder_balances (network, token_address, holder_address, token_amount, updated_at)
		VALUES ($1, $2, $3, GREATEST($4::numeric, 0), $5)
		ON CONFLICT (network, token_address, holder_address) DO UPDATE
		SET token_amount = GREATEST(holder_balances.token_amount + $4::numeric, 0),
		    updated_at = EXCLUDED.updated_at
	`

	start := time.Now()
	_, err := db.Exec(ctx, query, network, tokenAddress, holderAddress, delta, at)
	observability.RecordDBQuery("postgres", "apply_holder_delta", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("apply holder delta: %w", err)
	}
	return nil
}

// Get retrieves one balance.
func (s *HolderStore) Get(ctx context.Context, network, tokenAddress, holderAddress string) (*domain.HolderBalance, error) {
	query := `
		SELECT network, token_address, holder_address, token_amount, updated_at
		FROM holder_balances
		WHERE network = $1 AND token_address = $2 AND holder_address = $3
	`

	var h domain.HolderBalance
	err := s.pool.QueryRow(ctx, query, network, tokenAddress, holderAddress).Scan(
		&h.Network, &h.TokenAddress, &h.HolderAddress, &h.TokenAmount, &h.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get holder balance: %w", err)
	}
	return &h, nil
}

// ListByToken retrieves all balances for a token, largest first.
func (s *HolderStore) ListByToken(ctx context.Context, network, tokenAddress string) ([]*domain.HolderBalance, error) {
	query := `
		SELECT network, token_address, holder_address, token_amount, updated_at
		FROM holder_balances
		WHERE network = $1 AND token_address = $2
		ORDER BY token_amount DESC, holder_address ASC
	`

	rows, err := s.pool.Query(ctx, query, network, tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("list holder balances: %w", err)
	}
	defer rows.Close()

	var holders []*domain.HolderBalance
	for rows.Next() {
		var h domain.HolderBalance
		if err := rows.Scan(&h.Network, &h.TokenAddress, &h.HolderAddress, &h.TokenAmount, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan holder balance: %w", err)
		}
		holders = append(holders, &h)
	}
	return holders, rows.Err()
}
