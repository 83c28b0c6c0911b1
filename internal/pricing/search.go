/*

This file contains the shared optimal-amount search. All three strategies use
the same shell and differ only in the profit function they pass in.

The search is a discrete binary search with best-seen tracking: the profit
functions are not provably unimodal over every reserve configuration, so the
search never assumes its final range holds the optimum; it returns the best
(amount, profit) pair observed anywhere along the way.

*/

package pricing

import (
	"errors"

	sdkmath "cosmossdk.io/math"
)

// ProfitFunc evaluates the expected profit of committing the given amount.
// ErrInsufficientLiquidity and ErrExcessiveSlippage mean "amount too large"
// and narrow the search; any other error aborts it.
type ProfitFunc func(amount sdkmath.Int) (sdkmath.Int, error)

// maxSearchIterations caps the loop; the range halves every step, so 256
// covers any u256-sized range with margin.
const maxSearchIterations = 256

// OptimalAmount searches [lo, hi] for the amount maximizing fn. It returns
// found=false when no positive-profit amount exists in the range.
func OptimalAmount(lo, hi sdkmath.Int, fn ProfitFunc) (amount, profit sdkmath.Int, found bool, err error) {
	zero := sdkmath.ZeroInt()
	if lo.IsNil() || hi.IsNil() || !hi.IsPositive() {
		return zero, zero, false, nil
	}
	if !lo.IsPositive() {
		lo = sdkmath.OneInt()
	}

	one := sdkmath.OneInt()
	var best *sdkmath.Int
	bestProfit := zero

	for iter := 0; iter < maxSearchIterations && lo.LTE(hi); iter++ {
		mid := lo.Add(hi).QuoRaw(2)

		p, evalErr := fn(mid)
		if evalErr != nil {
			if errors.Is(evalErr, ErrInsufficientLiquidity) || errors.Is(evalErr, ErrExcessiveSlippage) {
				// mid is too large for the pool; pull the upper bound down.
				hi = mid.Sub(one)
				continue
			}
			return zero, zero, false, evalErr
		}
		if best == nil || p.GT(bestProfit) {
			m := mid
			best = &m
			bestProfit = p
		}

		if mid.GTE(hi) {
			break
		}

		// Probe the right neighbor to pick a direction.
		next := mid.Add(one)
		pNext, probeErr := fn(next)
		if probeErr != nil {
			if errors.Is(probeErr, ErrInsufficientLiquidity) || errors.Is(probeErr, ErrExcessiveSlippage) {
				if hi.Equal(mid) {
					break
				}
				hi = mid
				continue
			}
			return zero, zero, false, probeErr
		}

		if pNext.GT(p) {
			if pNext.GT(bestProfit) {
				n := next
				best = &n
				bestProfit = pNext
			}
			lo = next
		} else {
			hi = mid
		}
	}

	if best == nil || !bestProfit.IsPositive() {
		return zero, zero, false, nil
	}
	return *best, bestProfit, true, nil
}
