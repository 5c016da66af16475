// Package ledger applies normalized chain events to the off-chain ledger:
// token pools, trades, holder balances and the decayed ranking score. All
// writes go through idempotent store operations so replayed ranges converge
// to the same state.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/shopspring/decimal"

	"curve-indexer/internal/curve"
	"curve-indexer/internal/domain"
	"curve-indexer/internal/observability"
	"curve-indexer/internal/storage"
)

// Result classifies the outcome of applying one event.
type Result int

const (
	// ResultApplied means the event mutated ledger state.
	ResultApplied Result = iota
	// ResultDuplicate means the event was already applied; state unchanged.
	ResultDuplicate
	// ResultIgnored means the event is noise: an uncorrelated creation or a
	// trade against a launched pool.
	ResultIgnored
	// ResultPending means the event references a token with no pool yet.
	// The caller's batch loop buffers and retries these.
	ResultPending
)

// String returns a human-readable result name.
func (r Result) String() string {
	switch r {
	case ResultApplied:
		return "applied"
	case ResultDuplicate:
		return "duplicate"
	case ResultIgnored:
		return "ignored"
	case ResultPending:
		return "pending"
	}
	return "unknown"
}

// CurveParams are the contract constants shared by every pool on a network.
type CurveParams struct {
	InitialVirtualEth   decimal.Decimal
	InitialVirtualToken decimal.Decimal
	TotalSupply         decimal.Decimal
	TargetMarketCap     decimal.Decimal
}

// Validate checks the params describe a usable curve.
func (p CurveParams) Validate() error {
	initial := curve.Reserves{VirtualEth: p.InitialVirtualEth, VirtualToken: p.InitialVirtualToken}
	if err := initial.Validate(); err != nil {
		return err
	}
	if !p.TotalSupply.IsPositive() {
		return errors.New("total supply must be positive")
	}
	if !p.TargetMarketCap.IsPositive() {
		return errors.New("target market cap must be positive")
	}
	return nil
}

// Update is the payload published to live subscribers after an applied event.
type Update struct {
	Kind         domain.EventKind
	Network      string
	TokenAddress string
	Timestamp    int64
	Price        decimal.Decimal
	EthVolume    decimal.Decimal
	Side         domain.TradeSide
}

// Publisher delivers updates to live subscribers. Implementations must not
// block the caller.
type Publisher interface {
	Publish(u Update)
}

// TickSink archives trade ticks. Implementations must not block the caller.
type TickSink interface {
	Enqueue(tick *domain.TradeTick)
}

// Options configures a Ledger.
type Options struct {
	Pools    storage.PoolStore
	Trades   storage.TradeStore
	Holders  storage.HolderStore
	Requests storage.CreationRequestStore

	// TradeWrites applies a trade's row, pool snapshot and holder delta as
	// one atomic unit.
	TradeWrites storage.TradeWriter

	Params CurveParams

	// Publisher and Ticks are optional output hooks.
	Publisher Publisher
	Ticks     TickSink

	Logger *log.Logger
}

// Ledger is the state machine driving pools through
// pending -> trading -> launched. Mutation is serialized per token and
// parallel across tokens.
type Ledger struct {
	pools       storage.PoolStore
	trades      storage.TradeStore
	holders     storage.HolderStore
	requests    storage.CreationRequestStore
	tradeWrites storage.TradeWriter

	params    CurveParams
	publisher Publisher
	ticks     TickSink
	logger    *log.Logger

	locks tokenLocks

	pendingMu sync.Mutex
	pending   []pendingEvent
}

type pendingEvent struct {
	ev domain.Event
	// carried is set once the event survived a full batch retry window.
	carried bool
}

// New creates a Ledger.
func New(opts Options) (*Ledger, error) {
	if opts.Pools == nil || opts.Trades == nil || opts.Holders == nil || opts.Requests == nil {
		return nil, errors.New("all stores are required")
	}
	if opts.TradeWrites == nil {
		return nil, errors.New("trade writer is required")
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, fmt.Errorf("curve params: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Ledger{
		pools:       opts.Pools,
		trades:      opts.Trades,
		holders:     opts.Holders,
		requests:    opts.Requests,
		tradeWrites: opts.TradeWrites,
		params:      opts.Params,
		publisher:   opts.Publisher,
		ticks:       opts.Ticks,
		logger:      logger,
	}, nil
}

// ApplyBatch applies a chunk of events in order, then retries events that
// arrived before their token's creation. An event still unresolved after the
// following batch is dropped with a warning; that ordering anomaly is not
// recoverable upstream.
func (l *Ledger) ApplyBatch(ctx context.Context, events []domain.Event) error {
	carryover := l.takePending()

	var buffered []pendingEvent
	for _, ev := range events {
		res, err := l.Apply(ctx, ev)
		if err != nil {
			l.requeuePending(carryover)
			return err
		}
		if res == ResultPending {
			observability.DefaultMetrics.PendingBuffered.Inc()
			buffered = append(buffered, pendingEvent{ev: ev})
		}
	}

	// The creation event may have arrived later in this same batch.
	retry := append(carryover, buffered...)
	for i, p := range retry {
		res, err := l.Apply(ctx, p.ev)
		if err != nil {
			l.requeuePending(retry[i:])
			return err
		}
		if res != ResultPending {
			continue
		}
		if p.carried {
			observability.DefaultMetrics.PendingDropped.Inc()
			l.logger.Printf("[ledger] dropping %s %s for %s/%s: token never created",
				p.ev.Kind, p.ev.TxHash, p.ev.Network, p.ev.TokenAddress)
			continue
		}
		l.requeuePending([]pendingEvent{{ev: p.ev, carried: true}})
	}
	return nil
}

func (l *Ledger) takePending() []pendingEvent {
	l.pendingMu.Lock()
	defer l.pendingMu.Unlock()
	p := l.pending
	l.pending = nil
	return p
}

func (l *Ledger) requeuePending(events []pendingEvent) {
	if len(events) == 0 {
		return
	}
	l.pendingMu.Lock()
	l.pending = append(l.pending, events...)
	l.pendingMu.Unlock()
}

// Apply applies one event. Safe for concurrent use; events for the same
// token are serialized.
func (l *Ledger) Apply(ctx context.Context, ev domain.Event) (Result, error) {
	if !ev.Kind.IsValid() {
		return ResultIgnored, fmt.Errorf("invalid event kind %q", ev.Kind)
	}

	unlock := l.locks.lock(ev.Network + "/" + ev.TokenAddress)
	defer unlock()

	var (
		res Result
		err error
	)
	switch ev.Kind {
	case domain.EventTokenCreated:
		res, err = l.applyCreated(ctx, ev)
	case domain.EventBuy, domain.EventSell:
		res, err = l.applyTrade(ctx, ev)
	case domain.EventLaunched:
		res, err = l.applyLaunched(ctx, ev)
	}

	switch {
	case err != nil:
		observability.RecordEventError(ev.Network, ev.Kind.String())
	case res == ResultApplied:
		observability.RecordApplied(ev.Network, ev.Kind.String(), ev.Timestamp)
	case res == ResultDuplicate:
		observability.RecordDuplicate(ev.Network, ev.Kind.String())
	case res == ResultIgnored:
		observability.RecordIgnored(ev.Network, ev.Kind.String())
	}
	return res, err
}

// applyCreated opens a trading pool for a token declared off-chain. Creation
// events without a matching request are chain noise from foreign deployments
// of the same contract.
func (l *Ledger) applyCreated(ctx context.Context, ev domain.Event) (Result, error) {
	_, err := l.pools.Get(ctx, ev.Network, ev.TokenAddress)
	if err == nil {
		return ResultDuplicate, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return ResultIgnored, fmt.Errorf("get pool: %w", err)
	}

	req, err := l.requests.Take(ctx, ev.Network, ev.TokenAddress)
	if errors.Is(err, storage.ErrNotFound) {
		return ResultIgnored, nil
	}
	if err != nil {
		return ResultIgnored, fmt.Errorf("take creation request: %w", err)
	}

	pool := &domain.TokenPool{
		TokenAddress:        ev.TokenAddress,
		Network:             ev.Network,
		RealEthReserve:      decimal.Zero,
		RealTokenReserve:    l.params.TotalSupply,
		VirtualEthReserve:   l.params.InitialVirtualEth,
		VirtualTokenReserve: l.params.InitialVirtualToken,
		CumulativeVolume:    decimal.Zero,
		Score:               decimal.Zero,
		ScoreUpdatedAt:      ev.Timestamp,
		CreatedAt:           ev.Timestamp,
		UpdatedAt:           ev.Timestamp,
	}
	if err := l.pools.Upsert(ctx, pool); err != nil {
		return ResultIgnored, fmt.Errorf("create pool: %w", err)
	}
	observability.DefaultMetrics.PoolsCreated.WithLabelValues(ev.Network).Inc()
	l.logger.Printf("[ledger] pool created %s/%s (metadata %s)", ev.Network, ev.TokenAddress, req.MetadataRef)

	if l.publisher != nil {
		l.publisher.Publish(Update{
			Kind:         ev.Kind,
			Network:      ev.Network,
			TokenAddress: ev.TokenAddress,
			Timestamp:    ev.Timestamp,
			Price:        pool.Price(),
		})
	}
	return ResultApplied, nil
}

// applyTrade moves reserves along the curve and records the trade. The trade
// row, the pool snapshot and the holder delta land through one atomic
// TradeWriter call keyed on (network, tx_hash), so a replayed event either
// applies in full or classifies as a duplicate.
func (l *Ledger) applyTrade(ctx context.Context, ev domain.Event) (Result, error) {
	pool, err := l.pools.Get(ctx, ev.Network, ev.TokenAddress)
	if errors.Is(err, storage.ErrNotFound) {
		return ResultPending, nil
	}
	if err != nil {
		return ResultIgnored, fmt.Errorf("get pool: %w", err)
	}
	if pool.Launched {
		// Pricing authority moved to the external exchange.
		return ResultIgnored, nil
	}

	reserves := curve.Reserves{
		VirtualEth:   pool.VirtualEthReserve,
		VirtualToken: pool.VirtualTokenReserve,
	}

	var (
		next        curve.Reserves
		side        domain.TradeSide
		holderDelta decimal.Decimal
	)
	if ev.Kind == domain.EventBuy {
		side = domain.TradeBuy
		next = reserves.ApplyBuy(ev.EthAmount, ev.TokenAmount)
		holderDelta = ev.TokenAmount
	} else {
		side = domain.TradeSell
		next = reserves.ApplySell(ev.EthAmount, ev.TokenAmount)
		holderDelta = ev.TokenAmount.Neg()
	}
	if err := next.Validate(); err != nil {
		return ResultIgnored, fmt.Errorf("trade %s drains the curve: %w", ev.TxHash, err)
	}

	trade := &domain.Trade{
		TxHash:       ev.TxHash,
		TokenAddress: ev.TokenAddress,
		Network:      ev.Network,
		Side:         side,
		EthAmount:    ev.EthAmount,
		TokenAmount:  ev.TokenAmount,
		EthPriceUSD:  ev.EthPriceUSD,
		TokenPrice:   next.Price(),
		Position:     ev.Position,
		Timestamp:    ev.Timestamp,
	}
	pool.VirtualEthReserve = next.VirtualEth
	pool.VirtualTokenReserve = next.VirtualToken
	if ev.Kind == domain.EventBuy {
		pool.RealEthReserve = pool.RealEthReserve.Add(ev.EthAmount)
		pool.RealTokenReserve = pool.RealTokenReserve.Sub(ev.TokenAmount)
	} else {
		pool.RealEthReserve = pool.RealEthReserve.Sub(ev.EthAmount)
		pool.RealTokenReserve = pool.RealTokenReserve.Add(ev.TokenAmount)
	}
	if pool.RealEthReserve.IsNegative() {
		pool.RealEthReserve = decimal.Zero
	}
	pool.CumulativeVolume = pool.CumulativeVolume.Add(ev.EthAmount)
	pool.Score = curve.NextScore(pool.Score, pool.ScoreUpdatedAt, ev.Timestamp, trade.VolumeUSD())
	pool.ScoreUpdatedAt = ev.Timestamp
	pool.UpdatedAt = ev.Timestamp

	if err := l.tradeWrites.ApplyTrade(ctx, trade, pool, ev.Trader, holderDelta); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return ResultDuplicate, nil
		}
		return ResultIgnored, fmt.Errorf("apply trade: %w", err)
	}
	observability.DefaultMetrics.TradesStored.WithLabelValues(ev.Network, string(side)).Inc()

	l.emitTrade(trade)
	return ResultApplied, nil
}

// applyLaunched freezes the pool; launch is terminal and idempotent.
func (l *Ledger) applyLaunched(ctx context.Context, ev domain.Event) (Result, error) {
	pool, err := l.pools.Get(ctx, ev.Network, ev.TokenAddress)
	if errors.Is(err, storage.ErrNotFound) {
		return ResultPending, nil
	}
	if err != nil {
		return ResultIgnored, fmt.Errorf("get pool: %w", err)
	}
	if pool.Launched {
		return ResultDuplicate, nil
	}

	launchedAt := ev.Timestamp
	pool.Launched = true
	pool.LaunchedAt = &launchedAt
	if ev.ExternalPoolRef != "" {
		ref := ev.ExternalPoolRef
		pool.ExternalPoolRef = &ref
	}
	pool.UpdatedAt = ev.Timestamp

	if err := l.pools.Upsert(ctx, pool); err != nil {
		return ResultIgnored, fmt.Errorf("launch pool: %w", err)
	}
	observability.DefaultMetrics.PoolsLaunched.WithLabelValues(ev.Network).Inc()

	if l.publisher != nil {
		l.publisher.Publish(Update{
			Kind:         ev.Kind,
			Network:      ev.Network,
			TokenAddress: ev.TokenAddress,
			Timestamp:    ev.Timestamp,
			Price:        pool.Price(),
		})
	}
	return ResultApplied, nil
}

func (l *Ledger) emitTrade(trade *domain.Trade) {
	kind := domain.EventBuy
	if trade.Side == domain.TradeSell {
		kind = domain.EventSell
	}
	if l.publisher != nil {
		l.publisher.Publish(Update{
			Kind:         kind,
			Network:      trade.Network,
			TokenAddress: trade.TokenAddress,
			Timestamp:    trade.Timestamp,
			Price:        trade.TokenPrice,
			EthVolume:    trade.EthAmount,
			Side:         trade.Side,
		})
	}
	if l.ticks != nil {
		l.ticks.Enqueue(&domain.TradeTick{
			TokenAddress: trade.TokenAddress,
			Network:      trade.Network,
			Timestamp:    trade.Timestamp,
			Price:        trade.TokenPrice,
			EthVolume:    trade.EthAmount,
		})
	}
}

// tokenLocks serializes mutation per token key. Entries are never evicted;
// the map is bounded by the number of distinct tokens seen.
type tokenLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (t *tokenLocks) lock(key string) func() {
	t.mu.Lock()
	if t.locks == nil {
		t.locks = make(map[string]*sync.Mutex)
	}
	m, ok := t.locks[key]
	if !ok {
		m = &sync.Mutex{}
		t.locks[key] = m
	}
	t.mu.Unlock()

	m.Lock()
	return m.Unlock
}
