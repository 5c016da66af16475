package ledger

import (
	"context"
	"log"
	"time"

	"curve-indexer/internal/domain"
	"curve-indexer/internal/observability"
	"curve-indexer/internal/storage"
)

const (
	archiverBufferSize    = 8192
	archiverFlushSize     = 500
	archiverFlushInterval = 2 * time.Second
)

// TickArchiver batches trade ticks into the timeseries store. Enqueue never
// blocks; under backpressure ticks are dropped, losing only chart resolution,
// never ledger state.
type TickArchiver struct {
	store  storage.TickStore
	logger *log.Logger
	ch     chan *domain.TradeTick
	done   chan struct{}
}

var _ TickSink = (*TickArchiver)(nil)

// NewTickArchiver creates an archiver; call Run to start flushing.
func NewTickArchiver(store storage.TickStore, logger *log.Logger) *TickArchiver {
	if logger == nil {
		logger = log.Default()
	}
	return &TickArchiver{
		store:  store,
		logger: logger,
		ch:     make(chan *domain.TradeTick, archiverBufferSize),
		done:   make(chan struct{}),
	}
}

// Enqueue queues one tick without blocking.
func (a *TickArchiver) Enqueue(tick *domain.TradeTick) {
	select {
	case a.ch <- tick:
	default:
		observability.DefaultMetrics.TicksDropped.Inc()
	}
}

// Run flushes batches until ctx is cancelled, then drains the buffer.
func (a *TickArchiver) Run(ctx context.Context) {
	defer close(a.done)

	ticker := time.NewTicker(archiverFlushInterval)
	defer ticker.Stop()

	batch := make([]*domain.TradeTick, 0, archiverFlushSize)
	for {
		select {
		case <-ctx.Done():
			a.flush(batch)
			a.drain()
			return
		case tick := <-a.ch:
			batch = append(batch, tick)
			if len(batch) >= archiverFlushSize {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			a.flush(batch)
			batch = batch[:0]
		}
	}
}

// Wait blocks until Run has finished its final drain.
func (a *TickArchiver) Wait() {
	<-a.done
}

func (a *TickArchiver) drain() {
	batch := make([]*domain.TradeTick, 0, archiverFlushSize)
	for {
		select {
		case tick := <-a.ch:
			batch = append(batch, tick)
		default:
			a.flush(batch)
			return
		}
	}
}

func (a *TickArchiver) flush(batch []*domain.TradeTick) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.store.InsertBulk(ctx, batch); err != nil {
		a.logger.Printf("[archiver] flush of %d ticks failed: %v", len(batch), err)
		return
	}
	observability.DefaultMetrics.TicksArchived.Add(float64(len(batch)))
}
