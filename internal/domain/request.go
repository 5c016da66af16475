package domain

// CreationRequest is the off-chain declaration of a token that is about to be
// created on-chain. It is submitted by the API layer before the on-chain
// creation transaction confirms, keyed by the address the chain will assign.
// TokenCreated events without a matching request are treated as noise.
type CreationRequest struct {
	TokenAddress string
	Network      string
	MetadataRef  string
	CreatedAt    int64 // ms
}
