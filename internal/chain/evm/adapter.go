package evm

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"curve-indexer/internal/chain"
	"curve-indexer/internal/domain"
)

const (
	subscribeRetryDelay    = 1 * time.Second
	subscribeRetryDelayMax = 30 * time.Second
	headerCacheLimit       = 4096
)

// AdapterOptions configures an EVM adapter instance.
type AdapterOptions struct {
	Network     string
	RPCEndpoint string
	WSEndpoint  string

	// Contract is the curve contract whose logs are indexed.
	Contract string

	RatePerSec float64
	Price      chain.PriceSource
	Logger     *log.Logger

	// Client overrides the dialed HTTP client, used in tests.
	Client *Client
}

// Adapter implements chain.Adapter for log-topic chains. Ranges are block
// ranges; records come from eth_getLogs, live records from eth_subscribe.
type Adapter struct {
	network    string
	contract   common.Address
	client     *Client
	wsEndpoint string
	ratePerSec float64
	normalizer *Normalizer
	price      chain.PriceSource
	logger     *log.Logger

	ws *Client

	headerMu    sync.Mutex
	headerTimes map[uint64]int64
}

var _ chain.Adapter = (*Adapter)(nil)

// NewAdapter dials the HTTP endpoint and prepares the log decoder. The
// WebSocket connection is deferred until Subscribe.
func NewAdapter(ctx context.Context, opts AdapterOptions) (*Adapter, error) {
	if opts.Network == "" {
		return nil, fmt.Errorf("network is required")
	}
	if !common.IsHexAddress(opts.Contract) {
		return nil, fmt.Errorf("invalid contract address %q", opts.Contract)
	}
	if opts.Price == nil {
		return nil, fmt.Errorf("price source is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	normalizer, err := NewNormalizer(opts.Network, logger)
	if err != nil {
		return nil, err
	}

	client := opts.Client
	if client == nil {
		client, err = NewClient(ctx, ClientOptions{
			Endpoint:   opts.RPCEndpoint,
			RatePerSec: opts.RatePerSec,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
	}

	return &Adapter{
		network:     opts.Network,
		contract:    common.HexToAddress(opts.Contract),
		client:      client,
		wsEndpoint:  opts.WSEndpoint,
		ratePerSec:  opts.RatePerSec,
		normalizer:  normalizer,
		price:       opts.Price,
		logger:      logger,
		headerTimes: make(map[uint64]int64),
	}, nil
}

// Network returns the network identifier.
func (a *Adapter) Network() string {
	return a.network
}

// Head returns the latest block number.
func (a *Adapter) Head(ctx context.Context) (uint64, error) {
	return a.client.BlockNumber(ctx)
}

// FetchRange returns all curve-contract events with block number in
// (from, to], ordered by block then log index. A failed header or log fetch
// aborts the whole range.
func (a *Adapter) FetchRange(ctx context.Context, from, to uint64) ([]domain.Event, error) {
	if from >= to {
		return []domain.Event{}, nil
	}

	logs, err := a.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from + 1),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{a.contract},
	})
	if err != nil {
		return nil, fmt.Errorf("get logs (%d, %d]: %w", from, to, err)
	}
	if len(logs) == 0 {
		return []domain.Event{}, nil
	}

	price, err := a.price.PriceUSD(ctx)
	if err != nil {
		return nil, fmt.Errorf("price lookup: %w", err)
	}

	events := make([]domain.Event, 0, len(logs))
	for _, lg := range logs {
		ts, err := a.blockTimestamp(ctx, lg.BlockNumber)
		if err != nil {
			return nil, err
		}
		if ev, ok := a.normalizer.Normalize(lg, ts, price); ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

// blockTimestamp returns the block's timestamp in milliseconds, cached per
// block so one range fetches each header at most once.
func (a *Adapter) blockTimestamp(ctx context.Context, number uint64) (int64, error) {
	a.headerMu.Lock()
	ts, ok := a.headerTimes[number]
	a.headerMu.Unlock()
	if ok {
		return ts, nil
	}

	header, err := a.client.HeaderByNumber(ctx, number)
	if err != nil {
		return 0, fmt.Errorf("get header %d: %w", number, err)
	}
	ts = int64(header.Time) * 1000

	a.headerMu.Lock()
	if len(a.headerTimes) >= headerCacheLimit {
		a.headerTimes = make(map[uint64]int64)
	}
	a.headerTimes[number] = ts
	a.headerMu.Unlock()
	return ts, nil
}

// Subscribe streams curve-contract logs over eth_subscribe, reconnecting
// with exponential backoff when the subscription drops.
func (a *Adapter) Subscribe(ctx context.Context) (<-chan domain.Event, error) {
	if a.wsEndpoint == "" {
		return nil, fmt.Errorf("ws endpoint is required")
	}

	ws, err := NewClient(ctx, ClientOptions{
		Endpoint:   a.wsEndpoint,
		RatePerSec: a.ratePerSec,
		Logger:     a.logger,
	})
	if err != nil {
		return nil, err
	}
	a.ws = ws

	out := make(chan domain.Event, 256)
	go a.subscribeLoop(ctx, ws, out)
	return out, nil
}

func (a *Adapter) subscribeLoop(ctx context.Context, ws *Client, out chan<- domain.Event) {
	defer close(out)

	query := ethereum.FilterQuery{Addresses: []common.Address{a.contract}}
	delay := subscribeRetryDelay

	for {
		logCh := make(chan types.Log, 256)
		sub, err := ws.SubscribeFilterLogs(ctx, query, logCh)
		if err != nil {
			a.logger.Printf("[evm] %s: subscribe failed, retrying in %s: %v", a.network, delay, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > subscribeRetryDelayMax {
				delay = subscribeRetryDelayMax
			}
			continue
		}
		delay = subscribeRetryDelay

		if !a.pump(ctx, sub, logCh, out) {
			return
		}
	}
}

// pump forwards one subscription's logs until it errors. Returns false when
// the context ended and the loop should stop.
func (a *Adapter) pump(ctx context.Context, sub ethereum.Subscription, logCh <-chan types.Log, out chan<- domain.Event) bool {
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return false
		case err := <-sub.Err():
			a.logger.Printf("[evm] %s: subscription dropped: %v", a.network, err)
			return true
		case lg := <-logCh:
			ev, ok := a.resolveLog(ctx, lg)
			if !ok {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return false
			}
		}
	}
}

func (a *Adapter) resolveLog(ctx context.Context, lg types.Log) (domain.Event, bool) {
	price, err := a.price.PriceUSD(ctx)
	if err != nil {
		a.logger.Printf("[evm] price lookup failed, dropping %s: %v", lg.TxHash.Hex(), err)
		return domain.Event{}, false
	}
	ts, err := a.blockTimestamp(ctx, lg.BlockNumber)
	if err != nil {
		// Backfill reprocesses the block later, so dropping here is safe.
		a.logger.Printf("[evm] header fetch failed, dropping %s: %v", lg.TxHash.Hex(), err)
		return domain.Event{}, false
	}
	return a.normalizer.Normalize(lg, ts, price)
}

// Close tears down both RPC connections.
func (a *Adapter) Close() error {
	a.client.Close()
	if a.ws != nil {
		a.ws.Close()
	}
	return nil
}
