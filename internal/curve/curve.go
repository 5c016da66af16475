// Package curve implements the constant-product bonding-curve arithmetic the
// on-chain sale contracts use, so off-chain state can mirror on-chain pricing
// exactly. All reserve math is fixed-point decimal; float64 appears only in
// display-only derivations.
package curve

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Reserves holds the virtual reserve pair that prices a token.
type Reserves struct {
	VirtualEth   decimal.Decimal
	VirtualToken decimal.Decimal
}

// Validate checks the strict-positivity invariant.
func (r Reserves) Validate() error {
	if !r.VirtualEth.IsPositive() {
		return fmt.Errorf("virtual eth reserve must be positive, got %s", r.VirtualEth)
	}
	if !r.VirtualToken.IsPositive() {
		return fmt.Errorf("virtual token reserve must be positive, got %s", r.VirtualToken)
	}
	return nil
}

// Price returns the spot price virtualEth / virtualToken.
func (r Reserves) Price() decimal.Decimal {
	if r.VirtualToken.IsZero() {
		return decimal.Zero
	}
	return r.VirtualEth.Div(r.VirtualToken)
}

// Product returns the constant-product invariant k = virtualEth * virtualToken.
func (r Reserves) Product() decimal.Decimal {
	return r.VirtualEth.Mul(r.VirtualToken)
}

// BuyQuote returns the token amount the contract pays out for ethIn:
// tokenOut = vToken - k/(vEth + ethIn).
func (r Reserves) BuyQuote(ethIn decimal.Decimal) decimal.Decimal {
	if !ethIn.IsPositive() {
		return decimal.Zero
	}
	newEth := r.VirtualEth.Add(ethIn)
	return r.VirtualToken.Sub(r.Product().Div(newEth))
}

// SellQuote returns the eth amount the contract pays out for tokenIn:
// ethOut = vEth - k/(vToken + tokenIn).
func (r Reserves) SellQuote(tokenIn decimal.Decimal) decimal.Decimal {
	if !tokenIn.IsPositive() {
		return decimal.Zero
	}
	newToken := r.VirtualToken.Add(tokenIn)
	return r.VirtualEth.Sub(r.Product().Div(newToken))
}

// ApplyBuy moves reserves by the amounts the chain reported for a buy.
func (r Reserves) ApplyBuy(ethIn, tokenOut decimal.Decimal) Reserves {
	return Reserves{
		VirtualEth:   r.VirtualEth.Add(ethIn),
		VirtualToken: r.VirtualToken.Sub(tokenOut),
	}
}

// ApplySell moves reserves by the amounts the chain reported for a sell.
func (r Reserves) ApplySell(ethOut, tokenIn decimal.Decimal) Reserves {
	return Reserves{
		VirtualEth:   r.VirtualEth.Sub(ethOut),
		VirtualToken: r.VirtualToken.Add(tokenIn),
	}
}

// Progress returns migration progress in percent, clamped to [0, 100].
// It is derived on read and never stored. The eth needed to reach the target
// market cap follows from the constant product: at target price
// p_t = targetMarketCap / totalSupply the virtual eth reserve must be
// sqrt(k * p_t), so ethNeeded = sqrt(k * p_t) - initialVirtualEth.
func Progress(realEth decimal.Decimal, initial Reserves, totalSupply, targetMarketCap decimal.Decimal) float64 {
	if !totalSupply.IsPositive() || !targetMarketCap.IsPositive() {
		return 0
	}
	targetPrice, _ := targetMarketCap.Div(totalSupply).Float64()
	k, _ := initial.Product().Float64()
	initialEth, _ := initial.VirtualEth.Float64()

	ethNeeded := math.Sqrt(k*targetPrice) - initialEth
	if ethNeeded <= 0 {
		return 100
	}

	real, _ := realEth.Float64()
	pct := real / ethNeeded * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
