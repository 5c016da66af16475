// Package stats computes trading activity summaries from recorded trades.
// All functions are pure: callers load the trades, stats only aggregates.
package stats

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"curve-indexer/internal/domain"
)

// ErrNoTrades is returned when a price lookup has no data to answer from.
var ErrNoTrades = errors.New("no trade data available")

// TokenStats summarizes activity for one token over a time window.
type TokenStats struct {
	Trades int
	Buys   int
	Sells  int

	VolumeEth decimal.Decimal
	VolumeUSD decimal.Decimal

	// OpenPrice is the spot price entering the window: the last trade at or
	// before the window start, falling back to the first trade inside it.
	OpenPrice  decimal.Decimal
	ClosePrice decimal.Decimal
	HighPrice  decimal.Decimal
	LowPrice   decimal.Decimal

	// PriceChange is (close-open)/open as a ratio, zero when open is zero.
	PriceChange decimal.Decimal
}

// Compute aggregates trades whose timestamp lies in (fromMs, toMs].
// Trades may arrive in any order; they are sorted by position, then tx hash,
// before order-dependent fields are derived.
func Compute(trades []*domain.Trade, fromMs, toMs int64) TokenStats {
	sorted := make([]*domain.Trade, len(trades))
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Position != sorted[j].Position {
			return sorted[i].Position < sorted[j].Position
		}
		return sorted[i].TxHash < sorted[j].TxHash
	})

	var s TokenStats
	s.VolumeEth = decimal.Zero
	s.VolumeUSD = decimal.Zero
	s.PriceChange = decimal.Zero

	if open, err := PriceAt(fromMs, sorted); err == nil {
		s.OpenPrice = open
	}

	for _, t := range sorted {
		if t.Timestamp <= fromMs || t.Timestamp > toMs {
			continue
		}
		s.Trades++
		if t.Side == domain.TradeSell {
			s.Sells++
		} else {
			s.Buys++
		}
		s.VolumeEth = s.VolumeEth.Add(t.EthAmount)
		s.VolumeUSD = s.VolumeUSD.Add(t.VolumeUSD())

		if s.OpenPrice.IsZero() {
			s.OpenPrice = t.TokenPrice
		}
		s.ClosePrice = t.TokenPrice
		if s.HighPrice.IsZero() || t.TokenPrice.GreaterThan(s.HighPrice) {
			s.HighPrice = t.TokenPrice
		}
		if s.LowPrice.IsZero() || t.TokenPrice.LessThan(s.LowPrice) {
			s.LowPrice = t.TokenPrice
		}
	}

	if s.Trades == 0 {
		// No movement inside the window: the price held at the open.
		s.ClosePrice = s.OpenPrice
		s.HighPrice = s.OpenPrice
		s.LowPrice = s.OpenPrice
		return s
	}

	if !s.OpenPrice.IsZero() {
		s.PriceChange = s.ClosePrice.Sub(s.OpenPrice).Div(s.OpenPrice)
	}
	return s
}

// PriceAt returns the spot price at or before the target timestamp. If every
// trade is later than the target, the first trade's price is used. Returns
// ErrNoTrades on an empty slice. Trades must be ordered by position ASC.
func PriceAt(targetMs int64, trades []*domain.Trade) (decimal.Decimal, error) {
	if len(trades) == 0 {
		return decimal.Zero, ErrNoTrades
	}
	for i := len(trades) - 1; i >= 0; i-- {
		if trades[i].Timestamp <= targetMs {
			return trades[i].TokenPrice, nil
		}
	}
	return trades[0].TokenPrice, nil
}
