/*

This file contains the per-strategy profit functions plugged into the shared
optimal-amount search.

*/

package pricing

import (
	sdkmath "cosmossdk.io/math"

	"github.com/mevforge/searcher/internal/types"
)

// TwoHopProfit computes the round-trip profit of buying through pool A and
// selling the proceeds through pool B. Pool B must be oriented so that its
// input token is A's output token. Profit can be negative.
func TwoHopProfit(amount sdkmath.Int, poolA, poolB types.Pool, maxImpact float64) (sdkmath.Int, error) {
	if err := CheckSlippage(amount, poolA.ReserveIn, maxImpact); err != nil {
		return sdkmath.ZeroInt(), err
	}
	out1, err := AmountOut(amount, poolA.ReserveIn, poolA.ReserveOut, poolA.FeeBps)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	if err := CheckSlippage(out1, poolB.ReserveIn, maxImpact); err != nil {
		return sdkmath.ZeroInt(), err
	}
	out2, err := AmountOut(out1, poolB.ReserveIn, poolB.ReserveOut, poolB.FeeBps)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	return out2.Sub(amount), nil
}

// SandwichProfit simulates the three-leg sandwich against a single pool:
// frontrun, the victim's swap against the post-frontrun reserves, then the
// backrun unwinding the accumulated tokens. Reserves are updated after every
// leg before the next is priced. The victim's leg pays the pool fee; the
// attacker's paired entry/exit is sized fee-free (realized profit is verified
// from actual balances after execution).
//
// The slippage gate applies to the combined frontrun+victim flow, since both
// hit the pool in the same direction within the same block.
//
// Profit = backrun output - frontrun input, in the frontrun's token.
func SandwichProfit(frontrun, victim sdkmath.Int, pool types.Pool, maxImpact float64) (sdkmath.Int, error) {
	if err := CheckSlippage(frontrun.Add(victim), pool.ReserveIn, maxImpact); err != nil {
		return sdkmath.ZeroInt(), err
	}

	// Leg 1: attacker buys.
	out1, err := AmountOut(frontrun, pool.ReserveIn, pool.ReserveOut, 0)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	reserveIn := pool.ReserveIn.Add(frontrun)
	reserveOut := pool.ReserveOut.Sub(out1)

	// Leg 2: victim swaps against the shifted reserves.
	victimOut, err := AmountOut(victim, reserveIn, reserveOut, pool.FeeBps)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	reserveIn = reserveIn.Add(victim)
	reserveOut = reserveOut.Sub(victimOut)

	// Leg 3: attacker sells everything back; direction flips, so the output
	// reserve of the first leg is now the input side.
	back, err := AmountOut(out1, reserveOut, reserveIn, 0)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	return back.Sub(frontrun), nil
}

// JITFeeProfit computes the fee income of injecting `amount` of input-side
// liquidity just before a known victim swap, net of the flash-loan fee on the
// borrowed capital. The injected share earns victim*fee proportionally to its
// fraction of the post-injection reserve.
func JITFeeProfit(amount, victim, reserveIn sdkmath.Int, feeBps, loanFeeBps uint16) (sdkmath.Int, error) {
	if !amount.IsPositive() || !victim.IsPositive() || !reserveIn.IsPositive() {
		return sdkmath.ZeroInt(), ErrInvalidInput
	}

	feeIncome := victim.MulRaw(int64(feeBps)).Mul(amount).
		Quo(reserveIn.Add(amount).MulRaw(bpsDenominator))
	loanFee := amount.MulRaw(int64(loanFeeBps)).QuoRaw(bpsDenominator)

	return feeIncome.Sub(loanFee), nil
}
