package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"curve-indexer/internal/ledger"
	"curve-indexer/internal/observability"
)

const redisPublishBuffer = 4096

// RedisBridge mirrors updates onto Redis Pub/Sub so processes outside the
// indexer (the query API, websocket gateways) can follow trades. Publishing
// is asynchronous; the ledger never waits on Redis.
type RedisBridge struct {
	client redis.UniversalClient
	prefix string
	logger *log.Logger
	ch     chan ledger.Update
	done   chan struct{}
}

var _ ledger.Publisher = (*RedisBridge)(nil)

// RedisBridgeOptions configures a RedisBridge.
type RedisBridgeOptions struct {
	// Addr is the Redis address, host:port.
	Addr     string
	Password string
	DB       int
	// ChannelPrefix prefixes every Pub/Sub channel. Default: "curve".
	ChannelPrefix string
	Logger        *log.Logger
}

// NewRedisBridge connects to Redis and verifies the connection.
func NewRedisBridge(ctx context.Context, opts RedisBridgeOptions) (*RedisBridge, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	prefix := opts.ChannelPrefix
	if prefix == "" {
		prefix = "curve"
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisBridge{
		client: client,
		prefix: prefix,
		logger: logger,
		ch:     make(chan ledger.Update, redisPublishBuffer),
		done:   make(chan struct{}),
	}, nil
}

// Publish queues one update without blocking. Under backpressure the update
// is dropped; Redis consumers are a mirror, not the source of truth.
func (b *RedisBridge) Publish(u ledger.Update) {
	select {
	case b.ch <- u:
	default:
		observability.DefaultMetrics.FanoutDropped.Inc()
	}
}

// Run drains the queue until ctx is cancelled, then closes the client.
func (b *RedisBridge) Run(ctx context.Context) {
	defer close(b.done)
	defer b.client.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case u := <-b.ch:
			b.send(u)
		}
	}
}

// Wait blocks until Run has exited.
func (b *RedisBridge) Wait() {
	<-b.done
}

func (b *RedisBridge) send(u ledger.Update) {
	payload, err := json.Marshal(u)
	if err != nil {
		b.logger.Printf("[redis] marshal update: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Per-token channel for focused consumers, per-network for firehoses.
	channels := []string{
		fmt.Sprintf("%s:%s:%s", b.prefix, u.Network, u.TokenAddress),
		fmt.Sprintf("%s:%s", b.prefix, u.Network),
	}
	for _, channel := range channels {
		if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
			b.logger.Printf("[redis] publish to %s: %v", channel, err)
			return
		}
	}
	observability.DefaultMetrics.FanoutPublished.Inc()
}
