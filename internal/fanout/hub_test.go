package fanout

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curve-indexer/internal/domain"
	"curve-indexer/internal/ledger"
)

func update(network, token string, ts int64) ledger.Update {
	return ledger.Update{
		Kind:         domain.EventBuy,
		Network:      network,
		TokenAddress: token,
		Timestamp:    ts,
		Price:        decimal.NewFromFloat(0.000000012),
		EthVolume:    decimal.NewFromInt(1),
		Side:         domain.TradeBuy,
	}
}

func TestHub_RoutesByToken(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	chA, cancelA := h.Subscribe("devnet", "tok-a")
	defer cancelA()
	chB, cancelB := h.Subscribe("devnet", "tok-b")
	defer cancelB()

	h.Publish(update("devnet", "tok-a", 1))
	h.Publish(update("devnet", "tok-b", 2))
	h.Publish(update("mainnet", "tok-a", 3))

	got := <-chA
	assert.Equal(t, "tok-a", got.TokenAddress)
	assert.Equal(t, int64(1), got.Timestamp)

	got = <-chB
	assert.Equal(t, "tok-b", got.TokenAddress)

	select {
	case extra := <-chA:
		t.Fatalf("unexpected cross-network delivery: %+v", extra)
	default:
	}
}

func TestHub_FanOutToMultipleSubscribers(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	ch1, cancel1 := h.Subscribe("devnet", "tok-a")
	defer cancel1()
	ch2, cancel2 := h.Subscribe("devnet", "tok-a")
	defer cancel2()

	h.Publish(update("devnet", "tok-a", 1))

	assert.Equal(t, int64(1), (<-ch1).Timestamp)
	assert.Equal(t, int64(1), (<-ch2).Timestamp)
}

func TestHub_CancelRemovesTopicWhenEmpty(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	ch1, cancel1 := h.Subscribe("devnet", "tok-a")
	_, cancel2 := h.Subscribe("devnet", "tok-a")
	require.Equal(t, 2, h.SubscriberCount("devnet", "tok-a"))

	cancel1()
	assert.Equal(t, 1, h.SubscriberCount("devnet", "tok-a"))
	_, open := <-ch1
	assert.False(t, open, "cancelled subscriber channel closes")

	cancel2()
	assert.Equal(t, 0, h.SubscriberCount("devnet", "tok-a"))

	// Cancel is idempotent.
	cancel1()
	cancel2()
}

func TestHub_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	ch, cancel := h.Subscribe("devnet", "tok-a")
	defer cancel()

	// Overflow the buffer; Publish must never block.
	for i := 0; i < subscriberBuffer+10; i++ {
		h.Publish(update("devnet", "tok-a", int64(i)))
	}

	// The first buffered updates are intact, the overflow was dropped.
	first := <-ch
	assert.Equal(t, int64(0), first.Timestamp)
	assert.Len(t, ch, subscriberBuffer-1)
}

func TestHub_CloseShutsDownSubscribers(t *testing.T) {
	h := NewHub(nil)

	ch, cancel := h.Subscribe("devnet", "tok-a")
	defer cancel()

	h.Close()
	_, open := <-ch
	assert.False(t, open)

	// Publish and Subscribe after close are safe no-ops.
	h.Publish(update("devnet", "tok-a", 1))
	closedCh, cancel2 := h.Subscribe("devnet", "tok-b")
	defer cancel2()
	_, open = <-closedCh
	assert.False(t, open)
}
