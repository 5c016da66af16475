// Package fanout delivers applied-trade updates to live consumers: an
// in-process hub for per-token subscriptions and a Redis bridge for external
// processes. Delivery is best-effort; a slow consumer loses updates, never
// ledger state.
package fanout

import (
	"log"
	"sync"

	"curve-indexer/internal/ledger"
	"curve-indexer/internal/observability"
)

const subscriberBuffer = 64

// Hub routes updates to per-token subscribers. Topics are created on first
// subscribe and removed when the last subscriber leaves.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[int]chan ledger.Update
	nextID int
	closed bool
	logger *log.Logger
}

var _ ledger.Publisher = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		topics: make(map[string]map[int]chan ledger.Update),
		logger: logger,
	}
}

func topicKey(network, tokenAddress string) string {
	return network + "/" + tokenAddress
}

// Subscribe registers for one token's updates. The returned cancel func
// must be called to release the subscription; the channel closes then.
func (h *Hub) Subscribe(network, tokenAddress string) (<-chan ledger.Update, func()) {
	key := topicKey(network, tokenAddress)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		ch := make(chan ledger.Update)
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++

	topic, ok := h.topics[key]
	if !ok {
		topic = make(map[int]chan ledger.Update)
		h.topics[key] = topic
	}
	ch := make(chan ledger.Update, subscriberBuffer)
	topic[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		topic, ok := h.topics[key]
		if !ok {
			return
		}
		sub, ok := topic[id]
		if !ok {
			return
		}
		delete(topic, id)
		if len(topic) == 0 {
			delete(h.topics, key)
		}
		close(sub)
	}
	return ch, cancel
}

// Publish delivers an update to the token's subscribers without blocking.
// Full subscriber buffers drop the update.
func (h *Hub) Publish(u ledger.Update) {
	key := topicKey(u.Network, u.TokenAddress)

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}
	for _, ch := range h.topics[key] {
		select {
		case ch <- u:
			observability.DefaultMetrics.FanoutPublished.Inc()
		default:
			observability.DefaultMetrics.FanoutDropped.Inc()
		}
	}
}

// SubscriberCount reports the number of subscribers for a token.
func (h *Hub) SubscriberCount(network, tokenAddress string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topicKey(network, tokenAddress)])
}

// Close closes every subscriber channel. Publish becomes a no-op.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for key, topic := range h.topics {
		for _, ch := range topic {
			close(ch)
		}
		delete(h.topics, key)
	}
}
