package domain

import "github.com/shopspring/decimal"

// EventKind identifies the type of a normalized chain event.
type EventKind string

const (
	EventTokenCreated EventKind = "TOKEN_CREATED"
	EventBuy          EventKind = "BUY"
	EventSell         EventKind = "SELL"
	EventLaunched     EventKind = "LAUNCHED"
)

// String returns the string representation of EventKind.
func (k EventKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a known value.
func (k EventKind) IsValid() bool {
	switch k {
	case EventTokenCreated, EventBuy, EventSell, EventLaunched:
		return true
	}
	return false
}

// Event is a normalized domain event produced by a chain adapter.
// Exactly one of the optional payload fields is populated depending on Kind.
type Event struct {
	Kind         EventKind
	Network      string
	TokenAddress string
	TxHash       string // dedup key, unique per (network, tx_hash)
	Position     uint64 // block number or slot the event was observed at
	Timestamp    int64  // Unix timestamp in milliseconds

	// TokenCreated
	MetadataRef string // off-chain creation request reference

	// Buy / Sell
	Trader      string
	EthAmount   decimal.Decimal // native currency in, or out for sells
	TokenAmount decimal.Decimal // tokens out, or in for sells
	EthPriceUSD decimal.Decimal // native currency USD price at trade time

	// Launched
	ExternalPoolRef string // external exchange pool the token migrated to
}

// IsTrade reports whether the event mutates reserves.
func (e *Event) IsTrade() bool {
	return e.Kind == EventBuy || e.Kind == EventSell
}
