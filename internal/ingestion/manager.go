package ingestion

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
)

// Ingestor runs one network's full pipeline: backfill to head, then live.
type Ingestor struct {
	Network    string
	Backfiller *Backfiller
	Live       *LiveFollower
}

// Run executes both phases, blocking until ctx is cancelled or the live
// phase fails.
func (i *Ingestor) Run(ctx context.Context) error {
	if _, err := i.Backfiller.Run(ctx); err != nil {
		return err
	}
	return i.Live.Run(ctx)
}

// Manager runs one ingestor per network. Networks are isolated: one
// network's failure is logged and does not stop the others.
type Manager struct {
	ingestors []*Ingestor
	logger    *log.Logger
}

// NewManager creates a manager over per-network ingestors.
func NewManager(ingestors []*Ingestor, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{ingestors: ingestors, logger: logger}
}

// Run starts every network and blocks until all of them stop. The returned
// error is nil when every network ended by context cancellation.
func (m *Manager) Run(ctx context.Context) error {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []string
	)

	for _, ing := range m.ingestors {
		wg.Add(1)
		go func(ing *Ingestor) {
			defer wg.Done()
			m.logger.Printf("[%s] ingestion starting", ing.Network)
			err := ing.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Printf("[%s] ingestion stopped: %v", ing.Network, err)
				mu.Lock()
				failed = append(failed, ing.Network)
				mu.Unlock()
				return
			}
			m.logger.Printf("[%s] ingestion stopped", ing.Network)
		}(ing)
	}
	wg.Wait()

	if len(failed) > 0 {
		return errors.New("ingestion failed for: " + strings.Join(failed, ", "))
	}
	return nil
}
