package solana

import (
	"errors"
	"log"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"curve-indexer/internal/domain"
)

// Instruction markers emitted by the curve program's logs. The marker only
// classifies the transaction; amounts always come from balance deltas.
const (
	logMarkerCreate = "Instruction: Create"
	logMarkerBuy    = "Instruction: Buy"
	logMarkerSell   = "Instruction: Sell"
	logMarkerLaunch = "Instruction: Launch"

	// Launch transactions emit the external AMM pool the liquidity
	// migrated to as a program log line.
	logPrefixAMMPool = "Program log: amm_pool: "

	solDecimals = 9
)

var errInvalidAddressLength = errors.New("address must decode to 32 bytes")

// Normalizer maps parsed Solana transactions into domain events by inspecting
// pre/post balance snapshots. The curve program holds each pool's SOL in a
// single vault account, so the vault lamport delta is the trade's SOL leg and
// the trader's token-account delta is the token leg.
type Normalizer struct {
	network   string
	programID string
	vault     string
	logger    *log.Logger
}

// NewNormalizer creates a normalizer for one network's curve program.
func NewNormalizer(network, programID, vault string, logger *log.Logger) *Normalizer {
	if logger == nil {
		logger = log.Default()
	}
	return &Normalizer{
		network:   network,
		programID: programID,
		vault:     vault,
		logger:    logger,
	}
}

// Normalize converts one transaction into a domain event. The second return
// is false when the transaction is not a curve-program event; failed
// transactions and unknown instructions are skipped, malformed payloads are
// logged and skipped.
func (n *Normalizer) Normalize(tx *Transaction, ethPriceUSD decimal.Decimal) (domain.Event, bool) {
	if tx == nil || tx.Meta == nil || tx.Meta.Err != nil {
		return domain.Event{}, false
	}
	if !n.programInvoked(tx.Meta.LogMessages) {
		return domain.Event{}, false
	}

	ev := domain.Event{
		Network:     n.network,
		TxHash:      tx.Signature,
		Position:    tx.Slot,
		Timestamp:   tx.BlockTime * 1000,
		EthPriceUSD: ethPriceUSD,
	}

	switch n.classify(tx.Meta.LogMessages) {
	case domain.EventTokenCreated:
		mint, ok := n.createdMint(tx.Meta)
		if !ok {
			n.logger.Printf("[solana] %s: create without new mint, skipping", tx.Signature)
			return domain.Event{}, false
		}
		ev.Kind = domain.EventTokenCreated
		ev.TokenAddress = mint
		return ev, true

	case domain.EventBuy, domain.EventSell:
		return n.normalizeTrade(tx, ev)

	case domain.EventLaunched:
		mint, ok := n.launchedMint(tx.Meta)
		if !ok {
			n.logger.Printf("[solana] %s: launch without vault mint, skipping", tx.Signature)
			return domain.Event{}, false
		}
		ev.Kind = domain.EventLaunched
		ev.TokenAddress = mint
		ev.ExternalPoolRef = extractAMMPool(tx.Meta.LogMessages)
		return ev, true
	}

	return domain.Event{}, false
}

// normalizeTrade resolves direction and both legs from balance deltas. The
// log marker alone is not trusted for direction; the vault delta is.
func (n *Normalizer) normalizeTrade(tx *Transaction, ev domain.Event) (domain.Event, bool) {
	solDelta, ok := n.vaultLamportDelta(tx)
	if !ok || solDelta == 0 {
		n.logger.Printf("[solana] %s: trade without vault delta, skipping", tx.Signature)
		return domain.Event{}, false
	}

	mint, trader, tokenDelta, ok := n.traderTokenDelta(tx.Meta)
	if !ok {
		n.logger.Printf("[solana] %s: trade without trader token delta, skipping", tx.Signature)
		return domain.Event{}, false
	}

	if solDelta > 0 {
		ev.Kind = domain.EventBuy
		ev.EthAmount = lamportsToSOL(solDelta)
	} else {
		ev.Kind = domain.EventSell
		ev.EthAmount = lamportsToSOL(-solDelta)
	}
	ev.TokenAddress = mint
	ev.Trader = trader
	ev.TokenAmount = tokenDelta.Abs()
	return ev, true
}

func (n *Normalizer) programInvoked(logs []string) bool {
	needle := "Program " + n.programID + " invoke"
	for _, l := range logs {
		if strings.HasPrefix(l, needle) {
			return true
		}
	}
	return false
}

func (n *Normalizer) classify(logs []string) domain.EventKind {
	for _, l := range logs {
		switch {
		case strings.Contains(l, logMarkerBuy):
			return domain.EventBuy
		case strings.Contains(l, logMarkerSell):
			return domain.EventSell
		case strings.Contains(l, logMarkerCreate):
			return domain.EventTokenCreated
		case strings.Contains(l, logMarkerLaunch):
			return domain.EventLaunched
		}
	}
	return ""
}

// vaultLamportDelta returns post minus pre lamports of the vault account.
func (n *Normalizer) vaultLamportDelta(tx *Transaction) (int64, bool) {
	if tx.Message == nil {
		return 0, false
	}
	for i, key := range tx.Message.AccountKeys {
		if key != n.vault {
			continue
		}
		if i >= len(tx.Meta.PreBalances) || i >= len(tx.Meta.PostBalances) {
			return 0, false
		}
		return int64(tx.Meta.PostBalances[i]) - int64(tx.Meta.PreBalances[i]), true
	}
	return 0, false
}

// traderTokenDelta finds the wallet-owned token account whose balance moved.
// Curve pool accounts are PDAs and therefore off the ed25519 curve, which is
// how the trader's account is told apart from the pool's.
func (n *Normalizer) traderTokenDelta(meta *TransactionMeta) (mint, trader string, delta decimal.Decimal, ok bool) {
	pre := make(map[string]decimal.Decimal, len(meta.PreTokenBalances))
	for _, b := range meta.PreTokenBalances {
		pre[b.Mint+"/"+b.Owner] = tokenAmount(b.UITokenAmt)
	}

	seen := make(map[string]bool, len(meta.PostTokenBalances))
	for _, b := range meta.PostTokenBalances {
		seen[b.Mint+"/"+b.Owner] = true
		if !isWallet(b.Owner) {
			continue
		}
		d := tokenAmount(b.UITokenAmt).Sub(pre[b.Mint+"/"+b.Owner])
		if !d.IsZero() {
			return b.Mint, b.Owner, d, true
		}
	}

	// Account closed by the transaction: present pre, absent post.
	for _, b := range meta.PreTokenBalances {
		if seen[b.Mint+"/"+b.Owner] || !isWallet(b.Owner) {
			continue
		}
		amt := tokenAmount(b.UITokenAmt)
		if !amt.IsZero() {
			return b.Mint, b.Owner, amt.Neg(), true
		}
	}
	return "", "", decimal.Zero, false
}

// createdMint returns the mint that first appears in this transaction's
// post balances with the curve's vault-owned account holding it.
func (n *Normalizer) createdMint(meta *TransactionMeta) (string, bool) {
	preMints := make(map[string]bool, len(meta.PreTokenBalances))
	for _, b := range meta.PreTokenBalances {
		preMints[b.Mint] = true
	}
	for _, b := range meta.PostTokenBalances {
		if !preMints[b.Mint] && !isWallet(b.Owner) && ValidateAddress(b.Mint) == nil {
			return b.Mint, true
		}
	}
	return "", false
}

// launchedMint returns the mint of the pool-owned token account drained by
// the migration.
func (n *Normalizer) launchedMint(meta *TransactionMeta) (string, bool) {
	for _, b := range meta.PreTokenBalances {
		if !isWallet(b.Owner) && !tokenAmount(b.UITokenAmt).IsZero() {
			return b.Mint, true
		}
	}
	return "", false
}

func extractAMMPool(logs []string) string {
	for _, l := range logs {
		if strings.HasPrefix(l, logPrefixAMMPool) {
			ref := strings.TrimSpace(strings.TrimPrefix(l, logPrefixAMMPool))
			if ValidateAddress(ref) == nil {
				return ref
			}
		}
	}
	return ""
}

// ValidateAddress checks that an address is 32 bytes of base58.
func ValidateAddress(address string) error {
	raw, err := base58.Decode(address)
	if err != nil {
		return err
	}
	if len(raw) != 32 {
		return errInvalidAddressLength
	}
	return nil
}

// isWallet reports whether an address is a valid ed25519 curve point.
// System wallets are on the curve; program-derived addresses are not.
func isWallet(address string) bool {
	raw, err := base58.Decode(address)
	if err != nil || len(raw) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}

func lamportsToSOL(lamports int64) decimal.Decimal {
	return decimal.New(lamports, -solDecimals)
}

func tokenAmount(a UITokenAmount) decimal.Decimal {
	d, err := decimal.NewFromString(a.Amount)
	if err != nil {
		return decimal.Zero
	}
	return d.Shift(-a.Decimals)
}
