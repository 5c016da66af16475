package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"curve-indexer/internal/domain"
)

// CursorStore persists the last fully-processed chain position per network.
// Positions are monotonically non-decreasing: Set with a smaller position
// than the stored one is a no-op.
type CursorStore interface {
	// Get returns the last processed position. Returns ErrNotFound if no
	// cursor has been saved yet for the network.
	Get(ctx context.Context, network string) (uint64, error)

	// Set saves the last processed position. Never moves the cursor backward.
	Set(ctx context.Context, network string, position uint64) error
}

// PoolStore provides access to token_pools storage.
type PoolStore interface {
	// Get retrieves a pool. Returns ErrNotFound if not exists.
	Get(ctx context.Context, network, tokenAddress string) (*domain.TokenPool, error)

	// Upsert writes the full pool row, inserting or replacing by
	// (network, token_address). Absolute-value write, safe to replay.
	Upsert(ctx context.Context, pool *domain.TokenPool) error

	// ListByScore retrieves up to limit pools for a network ordered by
	// score descending. Used by the ranking read path.
	ListByScore(ctx context.Context, network string, limit int) ([]*domain.TokenPool, error)
}

// TradeStore provides access to append-only trades storage.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if (network, tx_hash)
	// exists; callers treat that as a successful no-op.
	Insert(ctx context.Context, t *domain.Trade) error

	// GetByToken retrieves all trades for a token, ordered by position ASC.
	GetByToken(ctx context.Context, network, tokenAddress string) ([]*domain.Trade, error)

	// CountByToken returns the number of recorded trades for a token.
	CountByToken(ctx context.Context, network, tokenAddress string) (int64, error)
}

// TradeWriter applies one trade's full write set in a single atomic unit:
// the trade row, the pool snapshot and the holder delta all land or none do,
// so a replayed chunk can never observe a half-applied trade.
type TradeWriter interface {
	// ApplyTrade writes the trade, the updated pool and the holder delta.
	// Returns ErrDuplicateKey, with nothing written, if (network, tx_hash)
	// already exists.
	ApplyTrade(ctx context.Context, t *domain.Trade, pool *domain.TokenPool, holderAddress string, holderDelta decimal.Decimal) error
}

// HolderStore provides access to holder_balances storage.
type HolderStore interface {
	// ApplyDelta atomically adjusts a holder's balance, creating the row on
	// first touch. The result is floored at zero so an out-of-order sell
	// cannot drive a balance negative.
	ApplyDelta(ctx context.Context, network, tokenAddress, holderAddress string, delta decimal.Decimal, at int64) error

	// Get retrieves one balance. Returns ErrNotFound if the holder has never
	// traded the token.
	Get(ctx context.Context, network, tokenAddress, holderAddress string) (*domain.HolderBalance, error)

	// ListByToken retrieves all balances for a token, ordered by amount DESC.
	ListByToken(ctx context.Context, network, tokenAddress string) ([]*domain.HolderBalance, error)
}

// CreationRequestStore holds off-chain creation requests awaiting their
// on-chain counterpart. Owned by the API layer; this subsystem consumes.
type CreationRequestStore interface {
	// Put stores a request. Returns ErrDuplicateKey if the address is taken.
	Put(ctx context.Context, req *domain.CreationRequest) error

	// Take retrieves and deletes the request for an address in one step.
	// Returns ErrNotFound if no request was submitted for the address.
	Take(ctx context.Context, network, tokenAddress string) (*domain.CreationRequest, error)
}

// TickStore archives compact price/volume points for chart rendering.
// Best-effort: implementations must never block ledger application.
type TickStore interface {
	// InsertBulk appends timeseries points. Duplicates are tolerated.
	InsertBulk(ctx context.Context, ticks []*domain.TradeTick) error
}
