package pricing

import (
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/mevforge/searcher/internal/types"
)

func eth(n int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(n, 18)
}

func TestAmountOutKnownValue(t *testing.T) {
	// floor(1000*9970*200000 / (100000*10000 + 1000*9970)) = 1974
	out, err := AmountOut(sdkmath.NewInt(1000), sdkmath.NewInt(100_000), sdkmath.NewInt(200_000), 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Equal(sdkmath.NewInt(1974)) {
		t.Errorf("expected 1974, got %s", out)
	}
}

func TestAmountOutZeroOutput(t *testing.T) {
	// Dust input against deep reserves floors to zero output.
	_, err := AmountOut(sdkmath.NewInt(1), sdkmath.NewInt(1_000_000), sdkmath.NewInt(1_000_000), 30)
	if !errors.Is(err, ErrInsufficientLiquidity) {
		t.Errorf("expected ErrInsufficientLiquidity, got %v", err)
	}
}

func TestAmountOutInvalidInputs(t *testing.T) {
	cases := []struct {
		name               string
		in, rIn, rOut      int64
		fee                uint16
	}{
		{"zero amount", 0, 100, 100, 30},
		{"negative amount", -5, 100, 100, 30},
		{"zero reserve in", 10, 0, 100, 30},
		{"zero reserve out", 10, 100, 0, 30},
		{"fee at denominator", 10, 100, 100, 10_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := AmountOut(sdkmath.NewInt(tc.in), sdkmath.NewInt(tc.rIn), sdkmath.NewInt(tc.rOut), tc.fee)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestAmountOutMonotonic(t *testing.T) {
	rIn := sdkmath.NewInt(1_000_000)
	rOut := sdkmath.NewInt(2_000_000)

	prev := sdkmath.ZeroInt()
	for k := int64(1); k <= 500; k++ {
		out, err := AmountOut(sdkmath.NewInt(k*1000), rIn, rOut, 30)
		if err != nil {
			t.Fatalf("amount %d: unexpected error: %v", k*1000, err)
		}
		if out.LT(prev) {
			t.Fatalf("output decreased at amount %d: %s < %s", k*1000, out, prev)
		}
		prev = out
	}
}

func TestPriceImpact(t *testing.T) {
	// 100 into a 900 reserve: 100/(900+100) = 0.1
	impact := PriceImpact(sdkmath.NewInt(100), sdkmath.NewInt(900))
	if impact < 0.0999 || impact > 0.1001 {
		t.Errorf("expected impact 0.1, got %f", impact)
	}
}

func TestCheckSlippage(t *testing.T) {
	if err := CheckSlippage(sdkmath.NewInt(2), sdkmath.NewInt(100), 0.03); err != nil {
		t.Errorf("2/102 should pass a 3%% gate: %v", err)
	}
	err := CheckSlippage(sdkmath.NewInt(5), sdkmath.NewInt(100), 0.03)
	if !errors.Is(err, ErrExcessiveSlippage) {
		t.Errorf("expected ErrExcessiveSlippage, got %v", err)
	}
}

func TestMaxSearchAmount(t *testing.T) {
	bound := MaxSearchAmount(eth(50), eth(10_000), eth(200))
	// 10% of the 200 reserve is the limiting bound.
	if !bound.Equal(eth(20)) {
		t.Errorf("expected 20, got %s", bound)
	}

	bound = MaxSearchAmount(eth(5), eth(10_000))
	if !bound.Equal(eth(5)) {
		t.Errorf("max position should cap the bound, got %s", bound)
	}
}

func TestOptimalAmountConcave(t *testing.T) {
	// profit(a) = a*(200-a): maximum at a=100.
	fn := func(a sdkmath.Int) (sdkmath.Int, error) {
		return a.Mul(sdkmath.NewInt(200).Sub(a)), nil
	}
	amount, profit, found, err := OptimalAmount(sdkmath.OneInt(), sdkmath.NewInt(300), fn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatal("expected a positive-profit amount")
	}
	if !amount.Equal(sdkmath.NewInt(100)) {
		t.Errorf("expected optimum 100, got %s", amount)
	}
	if !profit.Equal(sdkmath.NewInt(10_000)) {
		t.Errorf("expected profit 10000, got %s", profit)
	}
}

func TestOptimalAmountNoPositiveProfit(t *testing.T) {
	fn := func(a sdkmath.Int) (sdkmath.Int, error) {
		return a.Neg(), nil
	}
	_, _, found, err := OptimalAmount(sdkmath.OneInt(), sdkmath.NewInt(1000), fn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("strictly negative profit function must not yield an amount")
	}
}

func TestOptimalAmountSlippageLowersBound(t *testing.T) {
	// Profit grows linearly but everything above 50 is rejected as
	// excessive slippage; the search must settle at the boundary.
	fn := func(a sdkmath.Int) (sdkmath.Int, error) {
		if a.GT(sdkmath.NewInt(50)) {
			return sdkmath.ZeroInt(), ErrExcessiveSlippage
		}
		return a, nil
	}
	amount, profit, found, err := OptimalAmount(sdkmath.OneInt(), sdkmath.NewInt(10_000), fn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatal("expected a positive-profit amount below the slippage bound")
	}
	if !amount.Equal(sdkmath.NewInt(50)) {
		t.Errorf("expected boundary optimum 50, got %s", amount)
	}
	if !profit.Equal(sdkmath.NewInt(50)) {
		t.Errorf("expected profit 50, got %s", profit)
	}
}

func TestOptimalAmountEmptyRange(t *testing.T) {
	fn := func(a sdkmath.Int) (sdkmath.Int, error) { return a, nil }
	_, _, found, err := OptimalAmount(sdkmath.NewInt(10), sdkmath.NewInt(5), fn)
	if err != nil || found {
		t.Errorf("inverted range must return not found, got found=%v err=%v", found, err)
	}
}

func TestOptimalAmountPropagatesUnexpectedErrors(t *testing.T) {
	boom := errors.New("pool data corrupt")
	fn := func(a sdkmath.Int) (sdkmath.Int, error) { return sdkmath.ZeroInt(), boom }
	_, _, _, err := OptimalAmount(sdkmath.OneInt(), sdkmath.NewInt(100), fn)
	if !errors.Is(err, boom) {
		t.Errorf("expected the unexpected error to propagate, got %v", err)
	}
}

func wethDaiPool(ethReserve, daiReserve int64) types.Pool {
	return types.Pool{
		PairID:     "WETH/DAI@univ2",
		TokenIn:    "WETH",
		TokenOut:   "DAI",
		ReserveIn:  eth(ethReserve),
		ReserveOut: eth(daiReserve),
		FeeBps:     30,
		LastUpdate: time.Now(),
	}
}

func TestSandwichProfitDeterministic(t *testing.T) {
	pool := wethDaiPool(10_000, 20_000_000)
	front := eth(2)
	victim := eth(5)

	first, err := SandwichProfit(front, victim, pool, 0.03)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := SandwichProfit(front, victim, pool, 0.03)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.Equal(second) {
		t.Errorf("profit must be deterministic: %s vs %s", first, second)
	}

	// Reproduce the three chained legs by hand.
	out1, err := AmountOut(front, pool.ReserveIn, pool.ReserveOut, 0)
	if err != nil {
		t.Fatalf("leg 1: %v", err)
	}
	rIn := pool.ReserveIn.Add(front)
	rOut := pool.ReserveOut.Sub(out1)

	victimOut, err := AmountOut(victim, rIn, rOut, pool.FeeBps)
	if err != nil {
		t.Fatalf("leg 2: %v", err)
	}
	rIn = rIn.Add(victim)
	rOut = rOut.Sub(victimOut)

	back, err := AmountOut(out1, rOut, rIn, 0)
	if err != nil {
		t.Fatalf("leg 3: %v", err)
	}

	if !first.Equal(back.Sub(front)) {
		t.Errorf("profit %s does not match chained legs %s", first, back.Sub(front))
	}
}

func TestSandwichSearchEndToEnd(t *testing.T) {
	victim := eth(5)
	maxImpact := 0.03

	// Deep pool: the search must find a positive-profit frontrun.
	deep := wethDaiPool(10_000, 20_000_000)
	hi := MaxSearchAmount(eth(1000), deep.ReserveIn)
	fn := func(front sdkmath.Int) (sdkmath.Int, error) {
		return SandwichProfit(front, victim, deep, maxImpact)
	}
	amount, profit, found, err := OptimalAmount(victim, hi, fn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatal("deep pool sandwich must be found")
	}
	if !amount.IsPositive() || !profit.IsPositive() {
		t.Fatalf("expected positive amount and profit, got %s / %s", amount, profit)
	}
	if amount.GT(hi) {
		t.Errorf("amount %s exceeds search bound %s", amount, hi)
	}
	if amount.GT(deep.ReserveIn.QuoRaw(10)) {
		t.Errorf("amount %s exceeds 10%% of pool reserve", amount)
	}

	// Shallow pool: the combined flow blows through the 3% impact gate at
	// every candidate size, so the opportunity is rejected entirely.
	shallow := wethDaiPool(200, 400_000)
	hiShallow := MaxSearchAmount(eth(1000), shallow.ReserveIn)
	fnShallow := func(front sdkmath.Int) (sdkmath.Int, error) {
		return SandwichProfit(front, victim, shallow, maxImpact)
	}
	_, _, found, err = OptimalAmount(victim, hiShallow, fnShallow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("shallow pool sandwich must be rejected")
	}
}

func TestSandwichSearchMatchesGridOracle(t *testing.T) {
	// Coarse grid oracle: the binary search's best must be at least as good
	// as 99% of the best grid point (the search is not assumed to converge
	// to the exact global optimum).
	victim := eth(5)
	pool := wethDaiPool(10_000, 20_000_000)
	hi := MaxSearchAmount(eth(1000), pool.ReserveIn)

	fn := func(front sdkmath.Int) (sdkmath.Int, error) {
		return SandwichProfit(front, victim, pool, 0.03)
	}

	best := sdkmath.ZeroInt()
	step := hi.QuoRaw(200)
	for a := step; a.LTE(hi); a = a.Add(step) {
		p, err := fn(a)
		if err != nil {
			continue
		}
		if p.GT(best) {
			best = p
		}
	}

	_, profit, found, err := OptimalAmount(victim, hi, fn)
	if err != nil || !found {
		t.Fatalf("search failed: found=%v err=%v", found, err)
	}
	floor := best.MulRaw(99).QuoRaw(100)
	if profit.LT(floor) {
		t.Errorf("search profit %s well below grid oracle %s", profit, best)
	}
}

func TestTwoHopProfit(t *testing.T) {
	// DAI -> WETH on the cheap venue, WETH -> DAI on the dear one: a 2%
	// price gap against 2x30bps of fees leaves a profit.
	cheap := types.Pool{
		PairID: "WETH/DAI@univ2", TokenIn: "DAI", TokenOut: "WETH",
		ReserveIn: eth(20_000_000), ReserveOut: eth(10_000), FeeBps: 30,
	}
	dear := types.Pool{
		PairID: "WETH/DAI@sushi", TokenIn: "WETH", TokenOut: "DAI",
		ReserveIn: eth(10_000), ReserveOut: eth(20_400_000), FeeBps: 30,
	}

	profit, err := TwoHopProfit(eth(10_000), cheap, dear, 0.03)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !profit.IsPositive() {
		t.Errorf("expected positive round-trip profit, got %s", profit)
	}

	// Same venue twice is a guaranteed loss to fees.
	loss, err := TwoHopProfit(eth(10_000), cheap, cheap.Reverse(), 0.03)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !loss.IsNegative() {
		t.Errorf("round trip through one pool must lose to fees, got %s", loss)
	}
}

func TestJITFeeProfit(t *testing.T) {
	// Large victim, low loan fee: fee capture beats the loan cost.
	profit, err := JITFeeProfit(eth(3000), eth(3000), eth(10_000), 30, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !profit.IsPositive() {
		t.Errorf("expected positive JIT profit, got %s", profit)
	}

	// Tiny victim: the flash-loan fee dominates.
	profit, err = JITFeeProfit(eth(3000), eth(5), eth(10_000), 30, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profit.IsPositive() {
		t.Errorf("expected non-positive JIT profit for a tiny victim, got %s", profit)
	}
}
