// Package ingestion drives chain adapters through the two-phase pipeline:
// a chunked backfill from the durable cursor to the chain head, then a live
// subscription. The cursor only advances after a chunk's events are applied,
// so a crash reprocesses instead of skipping.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"curve-indexer/internal/chain"
	"curve-indexer/internal/ledger"
	"curve-indexer/internal/observability"
	"curve-indexer/internal/storage"
)

// Backfiller replays historical ranges for one network.
type Backfiller struct {
	adapter chain.Adapter
	ledger  *ledger.Ledger
	cursors storage.CursorStore

	chunkSize     uint64
	startPosition uint64
	retryDelay    time.Duration
	maxRetryDelay time.Duration
	logger        *log.Logger
}

// BackfillOptions contains configuration for creating a Backfiller.
type BackfillOptions struct {
	Adapter chain.Adapter
	Ledger  *ledger.Ledger
	Cursors storage.CursorStore

	// ChunkSize bounds one fetch range. Default: 1000 positions.
	ChunkSize uint64
	// StartPosition is used when no cursor exists yet, typically the
	// contract's deployment position.
	StartPosition uint64
	// RetryDelay is the initial delay after a failed chunk. Default: 2s.
	RetryDelay time.Duration
	Logger     *log.Logger
}

// NewBackfiller creates a backfiller for one network.
func NewBackfiller(opts BackfillOptions) *Backfiller {
	chunkSize := opts.ChunkSize
	if chunkSize == 0 {
		chunkSize = 1000
	}
	retryDelay := opts.RetryDelay
	if retryDelay == 0 {
		retryDelay = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Backfiller{
		adapter:       opts.Adapter,
		ledger:        opts.Ledger,
		cursors:       opts.Cursors,
		chunkSize:     chunkSize,
		startPosition: opts.StartPosition,
		retryDelay:    retryDelay,
		maxRetryDelay: 60 * time.Second,
		logger:        logger,
	}
}

// BackfillResult contains statistics from a backfill run.
type BackfillResult struct {
	FromPosition    uint64
	ToPosition      uint64
	ChunksProcessed int
	EventsApplied   int
	Duration        time.Duration
}

// Run replays ranges until the cursor reaches the chain head observed at the
// final iteration. The head is refreshed between passes so blocks produced
// during a long backfill are included before handing over to live mode.
func (b *Backfiller) Run(ctx context.Context) (*BackfillResult, error) {
	start := time.Now()
	network := b.adapter.Network()

	cursor, err := b.currentCursor(ctx, network)
	if err != nil {
		return nil, err
	}
	result := &BackfillResult{FromPosition: cursor}

	for {
		head, err := b.adapter.Head(ctx)
		if err != nil {
			return nil, fmt.Errorf("head: %w", err)
		}
		if cursor >= head {
			result.ToPosition = cursor
			result.Duration = time.Since(start)
			b.logger.Printf("[%s] backfill complete: %d chunks, %d events, position %d",
				network, result.ChunksProcessed, result.EventsApplied, cursor)
			return result, nil
		}

		b.logger.Printf("[%s] backfilling (%d, %d]", network, cursor, head)
		for cursor < head {
			to := cursor + b.chunkSize
			if to > head {
				to = head
			}

			applied, err := b.processChunk(ctx, network, cursor, to)
			if err != nil {
				return nil, err
			}
			result.ChunksProcessed++
			result.EventsApplied += applied
			cursor = to
			observability.UpdateCursor(network, cursor, head)
		}
	}
}

// processChunk fetches and applies one range, retrying with backoff until it
// succeeds. A range is never skipped; only context cancellation stops the
// retry loop.
func (b *Backfiller) processChunk(ctx context.Context, network string, from, to uint64) (int, error) {
	delay := b.retryDelay
	for {
		applied, err := b.tryChunk(ctx, network, from, to)
		if err == nil {
			observability.RecordChunk(network, "ok")
			return applied, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		observability.RecordChunk(network, "retry")
		b.logger.Printf("[%s] chunk (%d, %d] failed, retrying in %s: %v", network, from, to, delay, err)
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > b.maxRetryDelay {
			delay = b.maxRetryDelay
		}
	}
}

func (b *Backfiller) tryChunk(ctx context.Context, network string, from, to uint64) (int, error) {
	fetchStart := time.Now()
	events, err := b.adapter.FetchRange(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("fetch range: %w", err)
	}
	observability.DefaultMetrics.RangeFetchLatency.WithLabelValues(network).Observe(time.Since(fetchStart).Seconds())

	applyStart := time.Now()
	if err := b.ledger.ApplyBatch(ctx, events); err != nil {
		return 0, fmt.Errorf("apply batch: %w", err)
	}
	observability.DefaultMetrics.ApplyLatency.WithLabelValues(network).Observe(time.Since(applyStart).Seconds())

	// The cursor moves only after every event in the chunk is durable.
	if err := b.cursors.Set(ctx, network, to); err != nil {
		return 0, fmt.Errorf("advance cursor: %w", err)
	}
	return len(events), nil
}

func (b *Backfiller) currentCursor(ctx context.Context, network string) (uint64, error) {
	cursor, err := b.cursors.Get(ctx, network)
	if err == nil {
		return cursor, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		b.logger.Printf("[%s] no cursor, starting from %d", network, b.startPosition)
		return b.startPosition, nil
	}
	return 0, fmt.Errorf("load cursor: %w", err)
}
