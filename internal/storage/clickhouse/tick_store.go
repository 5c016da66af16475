package clickhouse

import (
	"context"
	"fmt"
	"time"

	"curve-indexer/internal/domain"
	"curve-indexer/internal/observability"
	"curve-indexer/internal/storage"
)

// TickStore implements storage.TickStore using ClickHouse.
// ReplacingMergeTree absorbs duplicate ticks from replayed chunks, so there
// is no duplicate pre-check here.
type TickStore struct {
	conn *Conn
}

// NewTickStore creates a new TickStore.
func NewTickStore(conn *Conn) *TickStore {
	return &TickStore{conn: conn}
}

var _ storage.TickStore = (*TickStore)(nil)

// InsertBulk appends tick points in one batch.
func (s *TickStore) InsertBulk(ctx context.Context, ticks []*domain.TradeTick) error {
	if len(ticks) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trade_ticks (
			token_address, network, timestamp_ms, price, eth_volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range ticks {
		if err := batch.Append(t.TokenAddress, t.Network, t.Timestamp, t.Price, t.EthVolume); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	start := time.Now()
	err = batch.Send()
	observability.RecordDBQuery("clickhouse", "insert_ticks", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByToken retrieves ticks for a token within [start, end), ordered by time.
func (s *TickStore) GetByToken(ctx context.Context, network, tokenAddress string, start, end int64) ([]*domain.TradeTick, error) {
	query := `
		SELECT token_address, network, timestamp_ms, price, eth_volume
		FROM trade_ticks
		WHERE network = ? AND token_address = ? AND timestamp_ms >= ? AND timestamp_ms < ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, network, tokenAddress, start, end)
	if err != nil {
		return nil, fmt.Errorf("get ticks by token: %w", err)
	}
	defer rows.Close()

	var ticks []*domain.TradeTick
	for rows.Next() {
		var t domain.TradeTick
		if err := rows.Scan(&t.TokenAddress, &t.Network, &t.Timestamp, &t.Price, &t.EthVolume); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		ticks = append(ticks, &t)
	}
	return ticks, rows.Err()
}
