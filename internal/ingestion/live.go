package ingestion

import (
	"context"
	"log"
	"time"

	"curve-indexer/internal/chain"
	"curve-indexer/internal/domain"
	"curve-indexer/internal/ledger"
	"curve-indexer/internal/observability"
	"curve-indexer/internal/storage"
)

// LiveFollower applies a network's live subscription stream. Every event
// goes through the same idempotent ledger path as backfill, so overlap
// between the two phases is harmless.
type LiveFollower struct {
	adapter chain.Adapter
	ledger  *ledger.Ledger
	cursors storage.CursorStore

	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	logger            *log.Logger
}

// LiveOptions contains configuration for creating a LiveFollower.
type LiveOptions struct {
	Adapter chain.Adapter
	Ledger  *ledger.Ledger
	Cursors storage.CursorStore

	// ReconnectDelay is the initial delay after a dropped stream. Default: 1s.
	ReconnectDelay time.Duration
	Logger         *log.Logger
}

// NewLiveFollower creates a live follower for one network.
func NewLiveFollower(opts LiveOptions) *LiveFollower {
	reconnectDelay := opts.ReconnectDelay
	if reconnectDelay == 0 {
		reconnectDelay = 1 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &LiveFollower{
		adapter:           opts.Adapter,
		ledger:            opts.Ledger,
		cursors:           opts.Cursors,
		reconnectDelay:    reconnectDelay,
		maxReconnectDelay: 30 * time.Second,
		logger:            logger,
	}
}

// Run consumes the live stream until ctx is cancelled, resubscribing with
// exponential backoff when the stream ends.
func (f *LiveFollower) Run(ctx context.Context) error {
	network := f.adapter.Network()
	delay := f.reconnectDelay

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		ch, err := f.adapter.Subscribe(ctx)
		if err != nil {
			observability.DefaultMetrics.LiveReconnects.WithLabelValues(network).Inc()
			f.logger.Printf("[%s] subscribe failed, retrying in %s: %v", network, delay, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > f.maxReconnectDelay {
				delay = f.maxReconnectDelay
			}
			continue
		}

		f.logger.Printf("[%s] live subscription established", network)
		delay = f.reconnectDelay
		if err := f.consume(ctx, network, ch); err != nil {
			return err
		}
		// Channel closed: the adapter's own reconnect gave up, or the
		// transport tore down. Resubscribe from scratch.
		observability.DefaultMetrics.LiveReconnects.WithLabelValues(network).Inc()
	}
}

func (f *LiveFollower) consume(ctx context.Context, network string, ch <-chan domain.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := f.applyEvent(ctx, network, ev); err != nil {
				return err
			}
			// Monotonic store ignores positions behind the cursor.
			if err := f.cursors.Set(ctx, network, ev.Position); err != nil {
				f.logger.Printf("[%s] cursor advance failed: %v", network, err)
			}
		}
	}
}

// applyEvent retries a failed apply with backoff until it lands or ctx ends.
// The cursor must not advance past an unapplied event, so giving up here
// would lose the trade for good.
func (f *LiveFollower) applyEvent(ctx context.Context, network string, ev domain.Event) error {
	delay := f.reconnectDelay
	for {
		// Single-event batches keep the pending-token retry window.
		err := f.ledger.ApplyBatch(ctx, []domain.Event{ev})
		if err == nil {
			return nil
		}
		f.logger.Printf("[%s] live apply failed for %s, retrying in %s: %v", network, ev.TxHash, delay, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > f.maxReconnectDelay {
			delay = f.maxReconnectDelay
		}
	}
}
