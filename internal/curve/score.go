package curve

import "github.com/shopspring/decimal"

// Decay calibration constants. Empirical tuning values carried over unchanged
// for behavioral parity; do not re-derive.
const (
	decayA = 0.000230
	decayB = 0.0000012
	decayC = 0.0000000043

	// decayUnitSeconds is one decay window; x = elapsed * 100 / decayUnitSeconds.
	decayUnitSeconds = 1800.0
)

// NextScore advances a token's time-decayed popularity score by one trade.
//
// The recurrence is incremental on purpose: history is unbounded, so the score
// is never recomputed from the full trade log. With no volume the score decays
// asymptotically toward zero; a burst of volume in a short window dominates.
func NextScore(prev decimal.Decimal, prevUpdatedAtMs, tradeAtMs int64, volumeUSD decimal.Decimal) decimal.Decimal {
	elapsed := float64(tradeAtMs-prevUpdatedAtMs) / 1000.0
	if elapsed < 0 {
		elapsed = 0
	}

	x := elapsed * 100 / decayUnitSeconds
	x2 := x * x
	factor := 1 / (1 + decayA*x2 + decayB*x2*x + decayC*x2*x2)

	return prev.Mul(decimal.NewFromFloat(factor)).Add(volumeUSD)
}
