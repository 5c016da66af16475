package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"curve-indexer/internal/curve"
	"curve-indexer/internal/domain"
	"curve-indexer/internal/stats"
)

// PoolView is a pool with its derived pricing fields. Progress is computed
// on read and never stored.
type PoolView struct {
	*domain.TokenPool

	Price     decimal.Decimal
	MarketCap decimal.Decimal
	Progress  float64
}

// view derives the pricing fields for one pool.
func (l *Ledger) view(pool *domain.TokenPool) PoolView {
	v := PoolView{
		TokenPool: pool,
		Price:     pool.Price(),
		MarketCap: pool.MarketCap(l.params.TotalSupply),
	}
	if pool.Launched {
		v.Progress = 100
		return v
	}
	initial := curve.Reserves{
		VirtualEth:   l.params.InitialVirtualEth,
		VirtualToken: l.params.InitialVirtualToken,
	}
	v.Progress = curve.Progress(pool.RealEthReserve, initial, l.params.TotalSupply, l.params.TargetMarketCap)
	return v
}

// Ranking returns up to limit pools ordered by decayed score descending.
func (l *Ledger) Ranking(ctx context.Context, network string, limit int) ([]PoolView, error) {
	pools, err := l.pools.ListByScore(ctx, network, limit)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	views := make([]PoolView, 0, len(pools))
	for _, p := range pools {
		views = append(views, l.view(p))
	}
	return views, nil
}

// Pool returns one pool view.
func (l *Ledger) Pool(ctx context.Context, network, tokenAddress string) (PoolView, error) {
	pool, err := l.pools.Get(ctx, network, tokenAddress)
	if err != nil {
		return PoolView{}, err
	}
	return l.view(pool), nil
}

// Holders returns a token's holder balances, largest first.
func (l *Ledger) Holders(ctx context.Context, network, tokenAddress string) ([]*domain.HolderBalance, error) {
	holders, err := l.holders.ListByToken(ctx, network, tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("list holders: %w", err)
	}
	return holders, nil
}

// Activity aggregates a token's trades whose timestamp falls in
// (fromMs, toMs], typically a trailing 24h window.
func (l *Ledger) Activity(ctx context.Context, network, tokenAddress string, fromMs, toMs int64) (stats.TokenStats, error) {
	trades, err := l.trades.GetByToken(ctx, network, tokenAddress)
	if err != nil {
		return stats.TokenStats{}, fmt.Errorf("load trades: %w", err)
	}
	return stats.Compute(trades, fromMs, toMs), nil
}
