// Package chain defines the adapter boundary between network-specific event
// representations and the normalized domain events the rest of the system
// consumes. Two families exist: log-topic chains (EVM) and balance-delta
// chains (Solana). All family branching stays behind this interface.
package chain

import (
	"context"

	"curve-indexer/internal/domain"
)

// Adapter normalizes one network's native event stream.
type Adapter interface {
	// Network returns the network identifier this adapter serves.
	Network() string

	// Head returns the current chain head position (block number or slot).
	Head(ctx context.Context) (uint64, error)

	// FetchRange returns all domain events in (from, to], ordered by
	// position ascending. An empty range yields an empty slice and nil
	// error. Any partial failure aborts the whole range so the caller
	// never advances its cursor past unprocessed data.
	FetchRange(ctx context.Context, from, to uint64) ([]domain.Event, error)

	// Subscribe delivers live domain events until ctx is cancelled. The
	// adapter reconnects with backoff on transport failure; the channel
	// closes only when the subscription is permanently torn down.
	Subscribe(ctx context.Context) (<-chan domain.Event, error)

	// Close releases network resources.
	Close() error
}
