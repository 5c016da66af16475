package domain

import "github.com/shopspring/decimal"

// TradeTick is a compact price/volume point archived to the timeseries store
// for chart rendering. Best-effort: losing a tick never loses ledger state.
type TradeTick struct {
	TokenAddress string
	Network      string
	Timestamp    int64 // ms
	Price        decimal.Decimal
	EthVolume    decimal.Decimal
}
