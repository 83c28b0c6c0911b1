/*

This file contains the constant-product pricing primitives. Everything here is
a pure function over sdkmath.Int amounts; no I/O, no logging.

*/

package pricing

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

var (
	// ErrInsufficientLiquidity means the requested trade cannot be quoted
	// against the pool: zero output or output that would drain the reserve.
	// Expected during sizing; narrows the search range.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrExcessiveSlippage means the trade's price impact exceeds the
	// caller-supplied maximum. Expected during sizing; narrows the search
	// range.
	ErrExcessiveSlippage = errors.New("excessive slippage")

	// ErrInvalidInput means the caller passed malformed amounts or reserves.
	ErrInvalidInput = errors.New("invalid pricing input")
)

const bpsDenominator = 10_000

// AmountOut computes the constant-product swap output with the fee deducted
// from the input:
//
//	out = floor(in*(10000-fee)*reserveOut / (reserveIn*10000 + in*(10000-fee)))
//
// Returns ErrInsufficientLiquidity when the output is non-positive or would
// meet or exceed the output reserve.
func AmountOut(amountIn, reserveIn, reserveOut sdkmath.Int, feeBps uint16) (sdkmath.Int, error) {
	if amountIn.IsNil() || reserveIn.IsNil() || reserveOut.IsNil() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: nil amount", ErrInvalidInput)
	}
	if !reserveIn.IsPositive() || !reserveOut.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: reserves must be positive", ErrInvalidInput)
	}
	if !amountIn.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: amount in must be positive", ErrInvalidInput)
	}
	if feeBps >= bpsDenominator {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: fee %d bps", ErrInvalidInput, feeBps)
	}

	inWithFee := amountIn.MulRaw(int64(bpsDenominator - feeBps))
	numerator := inWithFee.Mul(reserveOut)
	denominator := reserveIn.MulRaw(bpsDenominator).Add(inWithFee)

	out := numerator.Quo(denominator)
	if !out.IsPositive() || out.GTE(reserveOut) {
		return sdkmath.ZeroInt(), ErrInsufficientLiquidity
	}
	return out, nil
}

// PriceImpact returns the fractional impact amountIn/(reserveIn+amountIn).
func PriceImpact(amountIn, reserveIn sdkmath.Int) float64 {
	if !amountIn.IsPositive() || !reserveIn.IsPositive() {
		return 0
	}
	impact, err := sdkmath.LegacyNewDecFromInt(amountIn).
		Quo(sdkmath.LegacyNewDecFromInt(reserveIn.Add(amountIn))).
		Float64()
	if err != nil {
		return 1
	}
	return impact
}

// CheckSlippage returns ErrExcessiveSlippage when the trade's price impact
// exceeds maxImpact.
func CheckSlippage(amountIn, reserveIn sdkmath.Int, maxImpact float64) error {
	impact := PriceImpact(amountIn, reserveIn)
	if impact > maxImpact {
		return fmt.Errorf("%w: impact %.4f exceeds %.4f", ErrExcessiveSlippage, impact, maxImpact)
	}
	return nil
}

// MaxSearchAmount bounds the optimal-amount search: the smaller of the
// configured max position size and 10% of every involved input reserve.
func MaxSearchAmount(maxPosition sdkmath.Int, inputReserves ...sdkmath.Int) sdkmath.Int {
	bound := maxPosition
	for _, r := range inputReserves {
		tenth := r.QuoRaw(10)
		if tenth.LT(bound) {
			bound = tenth
		}
	}
	return bound
}
