package ingestion

import (
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curve-indexer/internal/domain"
	"curve-indexer/internal/storage"
)

func newLiveFollower(f *fixture, adapter *mockAdapter) *LiveFollower {
	return NewLiveFollower(LiveOptions{
		Adapter:        adapter,
		Ledger:         f.ledger,
		Cursors:        f.cursors,
		ReconnectDelay: time.Millisecond,
		Logger:         log.Default(),
	})
}

func waitForTrades(t *testing.T, f *fixture, token string, want int64) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		count, err := f.trades.CountByToken(context.Background(), testNetwork, token)
		require.NoError(t, err)
		if count == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d trades, have %d", want, count)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestLiveFollower_AppliesStreamAndAdvancesCursor(t *testing.T) {
	f := newFixture(t)
	f.declareToken(t, "tok-a")
	adapter := newMockAdapter(0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = newLiveFollower(f, adapter).Run(ctx)
	}()

	adapter.live <- createdAt("tok-a", "tx-c", 100)
	adapter.live <- buyAt("tok-a", "tx-b1", 101)
	waitForTrades(t, f, "tok-a", 1)

	assert.Eventually(t, func() bool {
		cursor, err := f.cursors.Get(context.Background(), testNetwork)
		return err == nil && cursor == 101
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestLiveFollower_DuplicateDeliveryConverges(t *testing.T) {
	f := newFixture(t)
	f.declareToken(t, "tok-a")
	adapter := newMockAdapter(0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = newLiveFollower(f, adapter).Run(ctx)
	}()

	adapter.live <- createdAt("tok-a", "tx-c", 100)
	ev := buyAt("tok-a", "tx-b1", 101)
	adapter.live <- ev
	adapter.live <- ev
	waitForTrades(t, f, "tok-a", 1)

	// Give the second delivery time to land; it must stay a no-op.
	time.Sleep(20 * time.Millisecond)
	waitForTrades(t, f, "tok-a", 1)

	cancel()
	<-done
}

// faultyWriter fails the next n trade writes, then delegates.
type faultyWriter struct {
	inner storage.TradeWriter

	mu       sync.Mutex
	failures int
}

func (w *faultyWriter) ApplyTrade(ctx context.Context, tr *domain.Trade, pool *domain.TokenPool, holderAddress string, holderDelta decimal.Decimal) error {
	w.mu.Lock()
	if w.failures > 0 {
		w.failures--
		w.mu.Unlock()
		return errors.New("storage unavailable")
	}
	w.mu.Unlock()
	return w.inner.ApplyTrade(ctx, tr, pool, holderAddress, holderDelta)
}

func TestLiveFollower_RetriesFailedApplyBeforeAdvancingCursor(t *testing.T) {
	w := &faultyWriter{failures: 2}
	f := newFixtureWriter(t, func(inner storage.TradeWriter) storage.TradeWriter {
		w.inner = inner
		return w
	})
	f.declareToken(t, "tok-a")
	adapter := newMockAdapter(0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = newLiveFollower(f, adapter).Run(ctx)
	}()

	adapter.live <- createdAt("tok-a", "tx-c", 40)
	// The first trade's write fails twice; the follower must keep retrying
	// it instead of losing it and moving on to the next event.
	adapter.live <- buyAt("tok-a", "tx-b1", 50)
	adapter.live <- buyAt("tok-a", "tx-b2", 60)
	waitForTrades(t, f, "tok-a", 2)

	assert.Eventually(t, func() bool {
		cursor, err := f.cursors.Get(context.Background(), testNetwork)
		return err == nil && cursor == 60
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestIngestor_BackfillThenLive(t *testing.T) {
	f := newFixture(t)
	f.declareToken(t, "tok-a")

	adapter := newMockAdapter(200,
		createdAt("tok-a", "tx-c", 10),
		buyAt("tok-a", "tx-b1", 150),
	)

	ing := &Ingestor{
		Network:    testNetwork,
		Backfiller: newBackfiller(f, adapter, 1000),
		Live:       newLiveFollower(f, adapter),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ing.Run(ctx)
	}()

	// Backfill lands the historical trade before live events flow.
	waitForTrades(t, f, "tok-a", 1)
	adapter.live <- buyAt("tok-a", "tx-b2", 201)
	waitForTrades(t, f, "tok-a", 2)

	assert.Eventually(t, func() bool {
		cursor, err := f.cursors.Get(context.Background(), testNetwork)
		return err == nil && cursor == 201
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestManager_NetworksAreIsolated(t *testing.T) {
	healthy := newFixture(t)
	healthy.declareToken(t, "tok-a")
	healthyAdapter := newMockAdapter(100, createdAt("tok-a", "tx-c", 10))

	// The broken network fails its whole backfill via context timeout on a
	// range that never succeeds.
	broken := newFixture(t)
	brokenAdapter := newMockAdapter(100)
	brokenAdapter.failRanges["0-100"] = 1 << 30

	mgr := NewManager([]*Ingestor{
		{
			Network:    "healthy",
			Backfiller: newBackfiller(healthy, healthyAdapter, 1000),
			Live:       newLiveFollower(healthy, healthyAdapter),
		},
		{
			Network:    "broken",
			Backfiller: newBackfiller(broken, brokenAdapter, 1000),
			Live:       newLiveFollower(broken, brokenAdapter),
		},
	}, log.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Run(ctx) }()

	// The healthy network reaches live mode despite the broken sibling.
	deadline := time.After(2 * time.Second)
	for {
		_, err := healthy.pools.Get(context.Background(), testNetwork, "tok-a")
		if err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("healthy network never processed its backfill")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	err := <-done
	assert.NoError(t, err, "context cancellation is a clean stop")
}
