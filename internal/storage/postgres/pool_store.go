package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"curve-indexer/internal/domain"
	"curve-indexer/internal/observability"
	"curve-indexer/internal/storage"
)

// PoolStore implements storage.PoolStore using PostgreSQL.
type PoolStore struct {
	pool *Pool
}

// NewPoolStore creates a new PoolStore.
func NewPoolStore(pool *Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

var _ storage.PoolStore = (*PoolStore)(nil)

const poolColumns = `
	token_address, network,
	real_eth_reserve, real_token_reserve,
	virtual_eth_reserve, virtual_token_reserve,
	cumulative_volume, score, score_updated_at,
	launched, launched_at, external_pool_ref,
	created_at, updated_at
`

// Get retrieves a pool by (network, token_address).
func (s *PoolStore) Get(ctx context.Context, network, tokenAddress string) (*domain.TokenPool, error) {
	query := `SELECT ` + poolColumns + ` FROM token_pools WHERE network = $1 AND token_address = $2`

	row := s.pool.QueryRow(ctx, query, network, tokenAddress)
	p, err := scanPool(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pool: %w", err)
	}
	return p, nil
}

// Upsert writes the full pool row. Absolute-value write: replaying the same
// ledger state is harmless.
func (s *PoolStore) Upsert(ctx context.Context, p *domain.TokenPool) error {
	return execUpsertPool(ctx, s.pool, p)
}

func execUpsertPool(ctx context.Context, db execer, p *domain.TokenPool) error {
	query := `
		INSERT INTO token_pools (` + poolColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (network, token_address) DO UPDATE SET
			real_eth_reserve = EXCLUDED.real_eth_reserve,
			real_token_reserve = EXCLUDED.real_token_reserve,
			virtual_eth_reserve = EXCLUDED.virtual_eth_reserve,
			virtual_token_reserve = EXCLUDED.virtual_token_reserve,
			cumulative_volume = EXCLUDED.cumulative_volume,
			score = EXCLUDED.score,
			score_updated_at = EXCLUDED.score_updated_at,
			launched = EXCLUDED.launched,
			launched_at = EXCLUDED.launched_at,
			external_pool_ref = EXCLUDED.external_pool_ref,
			updated_at = EXCLUDED.updated_at
	`

	start := time.Now()
	_, err := db.Exec(ctx, query,
		p.TokenAddress,
		p.Network,
		p.RealEthReserve,
		p.RealTokenReserve,
		p.VirtualEthReserve,
		p.VirtualTokenReserve,
		p.CumulativeVolume,
		p.Score,
		p.ScoreUpdatedAt,
		p.Launched,
		p.LaunchedAt,
		p.ExternalPoolRef,
		p.CreatedAt,
		p.UpdatedAt,
	)
	observability.RecordDBQuery("postgres", "upsert_pool", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("upsert pool: %w", err)
	}
	return nil
}

// ListByScore retrieves up to limit pools ordered by score descending.
func (s *PoolStore) ListByScore(ctx context.Context, network string, limit int) ([]*domain.TokenPool, error) {
	query := `
		SELECT ` + poolColumns + `
		FROM token_pools
		WHERE network = $1
		ORDER BY score DESC, token_address ASC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, network, limit)
	if err != nil {
		return nil, fmt.Errorf("list pools by score: %w", err)
	}
	defer rows.Close()

	var pools []*domain.TokenPool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pool: %w", err)
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}

func scanPool(row pgx.Row) (*domain.TokenPool, error) {
	var p domain.TokenPool
	err := row.Scan(
		&p.TokenAddress,
		&p.Network,
		&p.RealEthReserve,
		&p.RealTokenReserve,
		&p.VirtualEthReserve,
		&p.VirtualTokenReserve,
		&p.CumulativeVolume,
		&p.Score,
		&p.ScoreUpdatedAt,
		&p.Launched,
		&p.LaunchedAt,
		&p.ExternalPoolRef,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
