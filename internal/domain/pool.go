package domain

import "github.com/shopspring/decimal"

// PoolState represents the lifecycle state of a token pool.
type PoolState string

const (
	// PoolPending means no pool row exists yet for the token.
	PoolPending PoolState = "PENDING"
	// PoolTrading means the pool accepts buy/sell events.
	PoolTrading PoolState = "TRADING"
	// PoolLaunched is terminal: pricing authority moved to an external exchange.
	PoolLaunched PoolState = "LAUNCHED"
)

// TokenPool is the ledger aggregate for one bonding-curve token.
// Corresponds to the token_pools table.
type TokenPool struct {
	TokenAddress string
	Network      string

	RealEthReserve      decimal.Decimal
	RealTokenReserve    decimal.Decimal
	VirtualEthReserve   decimal.Decimal // always > 0
	VirtualTokenReserve decimal.Decimal // always > 0

	CumulativeVolume decimal.Decimal // native currency, both sides
	Score            decimal.Decimal // time-decayed popularity score
	ScoreUpdatedAt   int64           // ms timestamp of the last score update

	Launched        bool
	LaunchedAt      *int64  // ms, nil until launched
	ExternalPoolRef *string // external exchange pool, nil until launched

	CreatedAt int64 // ms
	UpdatedAt int64 // ms
}

// State derives the lifecycle state from stored fields.
func (p *TokenPool) State() PoolState {
	if p == nil {
		return PoolPending
	}
	if p.Launched {
		return PoolLaunched
	}
	return PoolTrading
}

// Price returns the current spot price, virtualEth / virtualToken.
func (p *TokenPool) Price() decimal.Decimal {
	if p.VirtualTokenReserve.IsZero() {
		return decimal.Zero
	}
	return p.VirtualEthReserve.Div(p.VirtualTokenReserve)
}

// MarketCap returns price multiplied by the configured total supply.
func (p *TokenPool) MarketCap(totalSupply decimal.Decimal) decimal.Decimal {
	return p.Price().Mul(totalSupply)
}
