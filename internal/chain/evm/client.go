package evm

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"curve-indexer/internal/observability"
)

// ClientOptions configures the EVM RPC client.
type ClientOptions struct {
	Endpoint    string
	DialTimeout time.Duration
	// RatePerSec caps outgoing RPC calls, zero means unlimited.
	RatePerSec float64
	Logger     *log.Logger
}

// Client wraps an Ethereum JSON-RPC connection behind a shared rate limiter
// so backfill and live paths cannot starve each other's quota.
type Client struct {
	eth     *ethclient.Client
	rpc     *rpc.Client
	limiter *rate.Limiter
	logger  *log.Logger
}

// NewClient dials the endpoint and verifies the connection.
func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	rpcClient, err := rpc.DialContext(dialCtx, opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.Endpoint, err)
	}
	ethClient := ethclient.NewClient(rpcClient)

	if _, err := ethClient.ChainID(dialCtx); err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("ping %s: %w", opts.Endpoint, err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), int(opts.RatePerSec)+1)
	}

	return &Client{
		eth:     ethClient,
		rpc:     rpcClient,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	defer observeRPC("eth_blockNumber", time.Now())
	return c.eth.BlockNumber(ctx)
}

// FilterLogs runs eth_getLogs for the query.
func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	defer observeRPC("eth_getLogs", time.Now())
	return c.eth.FilterLogs(ctx, q)
}

// SubscribeFilterLogs opens an eth_subscribe log stream. Requires a
// WebSocket endpoint.
func (c *Client) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.eth.SubscribeFilterLogs(ctx, q, ch)
}

// HeaderByNumber fetches one block header.
func (c *Client) HeaderByNumber(ctx context.Context, number uint64) (*types.Header, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	defer observeRPC("eth_getBlockByNumber", time.Now())
	return c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
}

func observeRPC(method string, start time.Time) {
	observability.DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// Close tears down the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}
