package solana

import (
	"context"
	"fmt"
	"log"
	"sort"

	"curve-indexer/internal/chain"
	"curve-indexer/internal/domain"
)

// signaturePageLimit bounds one getSignaturesForAddress page.
const signaturePageLimit = 1000

// AdapterOptions configures a Solana adapter instance.
type AdapterOptions struct {
	Network     string
	RPCEndpoint string
	WSEndpoint  string

	// ProgramID is the curve program; Vault is its SOL custody account.
	ProgramID string
	Vault     string

	Price  chain.PriceSource
	Logger *log.Logger

	// RPC overrides the HTTP client, used in tests.
	RPC *HTTPClient
}

// Adapter implements chain.Adapter for the balance-delta family. Ranges are
// slot ranges; records inside a range come from the program's signature
// history, live records from a logsSubscribe stream.
type Adapter struct {
	network    string
	programID  string
	rpc        *HTTPClient
	ws         *WSClient
	wsEndpoint string
	normalizer *Normalizer
	price      chain.PriceSource
	logger     *log.Logger
}

var _ chain.Adapter = (*Adapter)(nil)

// NewAdapter creates a Solana adapter. The WebSocket connection is deferred
// until Subscribe.
func NewAdapter(opts AdapterOptions) (*Adapter, error) {
	if opts.Network == "" {
		return nil, fmt.Errorf("network is required")
	}
	if err := ValidateAddress(opts.ProgramID); err != nil {
		return nil, fmt.Errorf("invalid program id: %w", err)
	}
	if err := ValidateAddress(opts.Vault); err != nil {
		return nil, fmt.Errorf("invalid vault: %w", err)
	}
	if opts.Price == nil {
		return nil, fmt.Errorf("price source is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	rpc := opts.RPC
	if rpc == nil {
		if opts.RPCEndpoint == "" {
			return nil, fmt.Errorf("rpc endpoint is required")
		}
		rpc = NewHTTPClient(opts.RPCEndpoint)
	}

	return &Adapter{
		network:    opts.Network,
		programID:  opts.ProgramID,
		rpc:        rpc,
		wsEndpoint: opts.WSEndpoint,
		normalizer: NewNormalizer(opts.Network, opts.ProgramID, opts.Vault, logger),
		price:      opts.Price,
		logger:     logger,
	}, nil
}

// Network returns the network identifier.
func (a *Adapter) Network() string {
	return a.network
}

// Head returns the current confirmed slot.
func (a *Adapter) Head(ctx context.Context) (uint64, error) {
	return a.rpc.GetSlot(ctx)
}

// FetchRange returns all program events with slot in (from, to], oldest
// first. Signature history is paged backwards from the newest entry; any
// transaction fetch failure aborts the whole range.
func (a *Adapter) FetchRange(ctx context.Context, from, to uint64) ([]domain.Event, error) {
	if from >= to {
		return []domain.Event{}, nil
	}

	sigs, err := a.collectSignatures(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if len(sigs) == 0 {
		return []domain.Event{}, nil
	}

	price, err := a.price.PriceUSD(ctx)
	if err != nil {
		return nil, fmt.Errorf("price lookup: %w", err)
	}

	events := make([]domain.Event, 0, len(sigs))
	for _, sig := range sigs {
		tx, err := a.rpc.GetTransaction(ctx, sig.Signature)
		if err != nil {
			return nil, fmt.Errorf("get transaction %s: %w", sig.Signature, err)
		}
		if tx == nil {
			// Confirmed signature without a retrievable transaction
			// means the node is behind; abort so the range is retried.
			return nil, fmt.Errorf("transaction %s not found", sig.Signature)
		}
		if ev, ok := a.normalizer.Normalize(tx, price); ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

// collectSignatures pages the program's signature history backwards until it
// passes below the range, then returns the in-range entries oldest first.
func (a *Adapter) collectSignatures(ctx context.Context, from, to uint64) ([]SignatureInfo, error) {
	var (
		collected []SignatureInfo
		before    string
	)
	for {
		opts := &SignaturesOpts{Limit: signaturePageLimit, Before: before}
		page, err := a.rpc.GetSignaturesForAddress(ctx, a.programID, opts)
		if err != nil {
			return nil, fmt.Errorf("get signatures: %w", err)
		}
		if len(page) == 0 {
			break
		}

		done := false
		for _, sig := range page {
			if sig.Slot <= from {
				done = true
				break
			}
			if sig.Slot > to || sig.Err != nil {
				continue
			}
			collected = append(collected, sig)
		}
		if done || len(page) < signaturePageLimit {
			break
		}
		before = page[len(page)-1].Signature
	}

	// History arrives newest first; ranges apply oldest first.
	sort.SliceStable(collected, func(i, j int) bool {
		return collected[i].Slot < collected[j].Slot
	})
	return collected, nil
}

// Subscribe opens a logsSubscribe stream for the curve program and emits
// normalized events. Each notification is resolved to a full transaction so
// balance deltas are available.
func (a *Adapter) Subscribe(ctx context.Context) (<-chan domain.Event, error) {
	if a.wsEndpoint == "" {
		return nil, fmt.Errorf("ws endpoint is required")
	}

	ws, err := NewWSClient(ctx, a.wsEndpoint, nil, a.logger)
	if err != nil {
		return nil, err
	}
	a.ws = ws

	notifyCh, err := ws.SubscribeLogs(ctx, LogsFilter{Mentions: []string{a.programID}})
	if err != nil {
		ws.Close()
		return nil, err
	}

	out := make(chan domain.Event, 256)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-notifyCh:
				if !ok {
					return
				}
				if n.Err != nil {
					continue
				}
				ev, ok := a.resolveNotification(ctx, n)
				if !ok {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (a *Adapter) resolveNotification(ctx context.Context, n LogNotification) (domain.Event, bool) {
	price, err := a.price.PriceUSD(ctx)
	if err != nil {
		a.logger.Printf("[solana] price lookup failed, dropping %s: %v", n.Signature, err)
		return domain.Event{}, false
	}
	tx, err := a.rpc.GetTransaction(ctx, n.Signature)
	if err != nil || tx == nil {
		// The live subscriber may race the node's transaction index.
		// Backfill reprocesses the slot later, so dropping here is safe.
		a.logger.Printf("[solana] transaction %s not resolvable yet: %v", n.Signature, err)
		return domain.Event{}, false
	}
	return a.normalizer.Normalize(tx, price)
}

// Close tears down the WebSocket connection if one is open.
func (a *Adapter) Close() error {
	if a.ws != nil {
		return a.ws.Close()
	}
	return nil
}
