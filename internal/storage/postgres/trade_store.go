package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"curve-indexer/internal/domain"
	"curve-indexer/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
// trades is append-only; the unique (network, tx_hash) index is what makes
// replayed chunks safe without any pre-check query.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `
	tx_hash, token_address, network, side,
	eth_amount, token_amount, eth_price_usd, token_price,
	position, timestamp
`

// Insert adds a new trade. Returns ErrDuplicateKey on replay.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) error {
	return execInsertTrade(ctx, s.pool, t)
}

func execInsertTrade(ctx context.Context, db execer, t *domain.Trade) error {
	query := `
		INSERT INTO trades (` + tradeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := db.Exec(ctx, query,
		t.TxHash,
		t.TokenAddress,
		t.Network,
		t.Side,
		t.EthAmount,
		t.TokenAmount,
		t.EthPriceUSD,
		t.TokenPrice,
		t.Position,
		t.Timestamp,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// GetByToken retrieves all trades for a token, ordered by position ASC.
func (s *TradeStore) GetByToken(ctx context.Context, network, tokenAddress string) ([]*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE network = $1 AND token_address = $2
		ORDER BY position ASC, tx_hash ASC
	`

	rows, err := s.pool.Query(ctx, query, network, tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("get trades by token: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// CountByToken returns the number of recorded trades for a token.
func (s *TradeStore) CountByToken(ctx context.Context, network, tokenAddress string) (int64, error) {
	query := `SELECT COUNT(*) FROM trades WHERE network = $1 AND token_address = $2`

	var count int64
	if err := s.pool.QueryRow(ctx, query, network, tokenAddress).Scan(&count); err != nil {
		return 0, fmt.Errorf("count trades: %w", err)
	}
	return count, nil
}

func scanTrades(rows pgx.Rows) ([]*domain.Trade, error) {
	var trades []*domain.Trade
	for rows.Next() {
		var t domain.Trade
		err := rows.Scan(
			&t.TxHash,
			&t.TokenAddress,
			&t.Network,
			&t.Side,
			&t.EthAmount,
			&t.TokenAmount,
			&t.EthPriceUSD,
			&t.TokenPrice,
			&t.Position,
			&t.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}
