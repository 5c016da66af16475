package domain

import "github.com/shopspring/decimal"

// HolderBalance tracks one wallet's balance of one bonding-curve token.
// Unique per (network, token_address, holder_address); floored at zero,
// never deleted. A zero balance is a valid terminal state.
type HolderBalance struct {
	TokenAddress  string
	HolderAddress string
	Network       string
	TokenAmount   decimal.Decimal
	UpdatedAt     int64 // ms
}
