package solana

import (
	"log"
	"testing"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curve-indexer/internal/domain"
)

// walletAddress returns a base58 address that decodes to an ed25519 curve
// point, like a real system wallet.
func walletAddress(t *testing.T, seed byte) string {
	t.Helper()
	raw := make([]byte, 32)
	raw[0] = seed
	for i := byte(0); i < 255; i++ {
		raw[31] = i
		if _, err := new(edwards25519.Point).SetBytes(raw); err == nil {
			return base58.Encode(raw)
		}
	}
	t.Fatal("no curve point found")
	return ""
}

// pdaAddress returns a base58 address that is off the curve, like a
// program-derived account.
func pdaAddress(t *testing.T, seed byte) string {
	t.Helper()
	raw := make([]byte, 32)
	raw[0] = seed
	for i := byte(0); i < 255; i++ {
		raw[31] = i
		if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
			return base58.Encode(raw)
		}
	}
	t.Fatal("no off-curve point found")
	return ""
}

type txFixture struct {
	programID string
	vault     string
	mint      string
	trader    string
	poolATA   string
}

func newTxFixture(t *testing.T) txFixture {
	return txFixture{
		programID: walletAddress(t, 1),
		vault:     pdaAddress(t, 2),
		mint:      pdaAddress(t, 3),
		trader:    walletAddress(t, 4),
		poolATA:   pdaAddress(t, 5),
	}
}

func (f txFixture) normalizer() *Normalizer {
	return NewNormalizer("solana-devnet", f.programID, f.vault, log.Default())
}

func (f txFixture) tradeTx(marker string, vaultPre, vaultPost uint64, traderPre, traderPost string) *Transaction {
	return &Transaction{
		Slot:      4200,
		Signature: "sig-trade",
		BlockTime: 1_700_000_000,
		Meta: &TransactionMeta{
			LogMessages: []string{
				"Program " + f.programID + " invoke [1]",
				"Program log: " + marker,
			},
			PreBalances:  []uint64{10_000_000_000, vaultPre},
			PostBalances: []uint64{9_000_000_000, vaultPost},
			PreTokenBalances: []TokenBalance{
				{AccountIndex: 2, Mint: f.mint, Owner: f.trader, UITokenAmt: UITokenAmount{Amount: traderPre, Decimals: 6}},
				{AccountIndex: 3, Mint: f.mint, Owner: f.vault, UITokenAmt: UITokenAmount{Amount: "500000000000000", Decimals: 6}},
			},
			PostTokenBalances: []TokenBalance{
				{AccountIndex: 2, Mint: f.mint, Owner: f.trader, UITokenAmt: UITokenAmount{Amount: traderPost, Decimals: 6}},
				{AccountIndex: 3, Mint: f.mint, Owner: f.vault, UITokenAmt: UITokenAmount{Amount: "499999999000000", Decimals: 6}},
			},
		},
		Message: &TransactionMessage{AccountKeys: []string{f.trader, f.vault}},
	}
}

func TestNormalize_Buy(t *testing.T) {
	f := newTxFixture(t)

	// Vault gains 2 SOL, trader token account goes 0 -> 100 tokens.
	tx := f.tradeTx(logMarkerBuy, 1_000_000_000, 3_000_000_000, "0", "100000000")

	ev, ok := f.normalizer().Normalize(tx, decimal.NewFromInt(3000))
	require.True(t, ok)

	assert.Equal(t, domain.EventBuy, ev.Kind)
	assert.Equal(t, "solana-devnet", ev.Network)
	assert.Equal(t, f.mint, ev.TokenAddress)
	assert.Equal(t, f.trader, ev.Trader)
	assert.Equal(t, "sig-trade", ev.TxHash)
	assert.Equal(t, uint64(4200), ev.Position)
	assert.Equal(t, int64(1_700_000_000_000), ev.Timestamp)
	assert.True(t, ev.EthAmount.Equal(decimal.NewFromInt(2)), "sol amount %s", ev.EthAmount)
	assert.True(t, ev.TokenAmount.Equal(decimal.NewFromInt(100)), "token amount %s", ev.TokenAmount)
	assert.True(t, ev.EthPriceUSD.Equal(decimal.NewFromInt(3000)))
}

func TestNormalize_SellDirectionFromVaultDelta(t *testing.T) {
	f := newTxFixture(t)

	// Vault loses 1.5 SOL, trader token account goes 100 -> 40 tokens.
	// Direction comes from the vault delta even with the trade marker.
	tx := f.tradeTx(logMarkerSell, 3_000_000_000, 1_500_000_000, "100000000", "40000000")

	ev, ok := f.normalizer().Normalize(tx, decimal.NewFromInt(3000))
	require.True(t, ok)

	assert.Equal(t, domain.EventSell, ev.Kind)
	assert.True(t, ev.EthAmount.Equal(decimal.NewFromFloat(1.5)), "sol amount %s", ev.EthAmount)
	assert.True(t, ev.TokenAmount.Equal(decimal.NewFromInt(60)), "token amount %s", ev.TokenAmount)
}

func TestNormalize_SellClosesTokenAccount(t *testing.T) {
	f := newTxFixture(t)

	tx := f.tradeTx(logMarkerSell, 3_000_000_000, 2_000_000_000, "25000000", "0")
	// Account closed: no post entry for the trader.
	tx.Meta.PostTokenBalances = tx.Meta.PostTokenBalances[1:]

	ev, ok := f.normalizer().Normalize(tx, decimal.Zero)
	require.True(t, ok)
	assert.Equal(t, domain.EventSell, ev.Kind)
	assert.True(t, ev.TokenAmount.Equal(decimal.NewFromInt(25)), "token amount %s", ev.TokenAmount)
}

func TestNormalize_TokenCreated(t *testing.T) {
	f := newTxFixture(t)

	tx := &Transaction{
		Slot:      100,
		Signature: "sig-create",
		BlockTime: 1_700_000_000,
		Meta: &TransactionMeta{
			LogMessages: []string{
				"Program " + f.programID + " invoke [1]",
				"Program log: " + logMarkerCreate,
			},
			PreTokenBalances: nil,
			PostTokenBalances: []TokenBalance{
				{AccountIndex: 3, Mint: f.mint, Owner: f.vault, UITokenAmt: UITokenAmount{Amount: "1000000000000000", Decimals: 6}},
			},
		},
		Message: &TransactionMessage{AccountKeys: []string{f.trader, f.vault}},
	}

	ev, ok := f.normalizer().Normalize(tx, decimal.Zero)
	require.True(t, ok)
	assert.Equal(t, domain.EventTokenCreated, ev.Kind)
	assert.Equal(t, f.mint, ev.TokenAddress)
}

func TestNormalize_Launched(t *testing.T) {
	f := newTxFixture(t)
	pool := pdaAddress(t, 6)

	tx := &Transaction{
		Slot:      9000,
		Signature: "sig-launch",
		BlockTime: 1_700_000_500,
		Meta: &TransactionMeta{
			LogMessages: []string{
				"Program " + f.programID + " invoke [1]",
				"Program log: " + logMarkerLaunch,
				logPrefixAMMPool + pool,
			},
			PreTokenBalances: []TokenBalance{
				{AccountIndex: 3, Mint: f.mint, Owner: f.vault, UITokenAmt: UITokenAmount{Amount: "200000000000000", Decimals: 6}},
			},
			PostTokenBalances: []TokenBalance{
				{AccountIndex: 3, Mint: f.mint, Owner: f.vault, UITokenAmt: UITokenAmount{Amount: "0", Decimals: 6}},
			},
		},
		Message: &TransactionMessage{AccountKeys: []string{f.trader, f.vault}},
	}

	ev, ok := f.normalizer().Normalize(tx, decimal.Zero)
	require.True(t, ok)
	assert.Equal(t, domain.EventLaunched, ev.Kind)
	assert.Equal(t, f.mint, ev.TokenAddress)
	assert.Equal(t, pool, ev.ExternalPoolRef)
}

func TestNormalize_SkipsFailedTransaction(t *testing.T) {
	f := newTxFixture(t)

	tx := f.tradeTx(logMarkerBuy, 0, 1_000_000_000, "0", "100000000")
	tx.Meta.Err = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}

	_, ok := f.normalizer().Normalize(tx, decimal.Zero)
	assert.False(t, ok)
}

func TestNormalize_SkipsForeignProgram(t *testing.T) {
	f := newTxFixture(t)

	tx := f.tradeTx(logMarkerBuy, 0, 1_000_000_000, "0", "100000000")
	tx.Meta.LogMessages = []string{
		"Program " + walletAddress(t, 9) + " invoke [1]",
		"Program log: " + logMarkerBuy,
	}

	_, ok := f.normalizer().Normalize(tx, decimal.Zero)
	assert.False(t, ok)
}

func TestNormalize_SkipsUnknownInstruction(t *testing.T) {
	f := newTxFixture(t)

	tx := f.tradeTx(logMarkerBuy, 0, 1_000_000_000, "0", "100000000")
	tx.Meta.LogMessages = []string{
		"Program " + f.programID + " invoke [1]",
		"Program log: Instruction: SetParams",
	}

	_, ok := f.normalizer().Normalize(tx, decimal.Zero)
	assert.False(t, ok)
}

func TestNormalize_TradeWithoutVaultDeltaSkipped(t *testing.T) {
	f := newTxFixture(t)

	tx := f.tradeTx(logMarkerBuy, 2_000_000_000, 2_000_000_000, "0", "100000000")

	_, ok := f.normalizer().Normalize(tx, decimal.Zero)
	assert.False(t, ok)
}

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress(walletAddress(t, 7)))
	assert.Error(t, ValidateAddress("not-base58-0OIl"))
	assert.Error(t, ValidateAddress(base58.Encode([]byte{1, 2, 3})))
}
