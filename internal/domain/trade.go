package domain

import "github.com/shopspring/decimal"

// TradeSide is the direction of a trade.
type TradeSide string

const (
	TradeBuy  TradeSide = "BUY"
	TradeSell TradeSide = "SELL"
)

// IsValid checks if the side is a valid value.
func (s TradeSide) IsValid() bool {
	return s == TradeBuy || s == TradeSell
}

// Trade is an append-only record of one on-chain bonding-curve trade.
// (Network, TxHash) is the uniqueness key that makes replays a no-op.
type Trade struct {
	TxHash       string
	TokenAddress string
	Network      string
	Side         TradeSide
	EthAmount    decimal.Decimal
	TokenAmount  decimal.Decimal
	EthPriceUSD  decimal.Decimal // native currency USD price at trade time
	TokenPrice   decimal.Decimal // spot price after the trade applied
	Position     uint64          // block number or slot
	Timestamp    int64           // ms
}

// VolumeUSD returns the trade's USD notional.
func (t *Trade) VolumeUSD() decimal.Decimal {
	return t.EthAmount.Mul(t.EthPriceUSD)
}
