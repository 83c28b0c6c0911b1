/*

This file contains the just-in-time liquidity detector: flash-borrow,
provide liquidity into the victim's pool for exactly one swap, capture the
pro-rata share of the victim's fee, withdraw, repay. Profit is fee capture
minus the loan fee; the victim has to be large for that to clear.

*/

package strategy

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/mevforge/searcher/internal/chain"
	"github.com/mevforge/searcher/internal/config"
	"github.com/mevforge/searcher/internal/logger"
	"github.com/mevforge/searcher/internal/pricing"
	"github.com/mevforge/searcher/internal/types"
)

var jitLogger = logger.GetForComponent("jit_strategy")

// JIT detects fee-capture positions around large pending swaps.
type JIT struct {
	core
}

func NewJIT(reader chain.Reader, index *PoolIndex, params config.Parameters, clock chain.Clock) *JIT {
	return &JIT{core: core{reader: reader, index: index, params: params, clock: clock}}
}

func (j *JIT) Kind() types.StrategyKind { return types.StrategyJIT }

func (j *JIT) Analyze(ctx context.Context, swap types.PendingSwap) (*types.Opportunity, error) {
	if swap.AmountIn.IsNil() || !swap.AmountIn.IsPositive() {
		return nil, nil
	}
	if swap.AmountIn.LT(j.params.MinVictimSize) {
		return nil, nil
	}

	gasPrice, block, ok, err := j.gasQuote(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		jitLogger.Debug().Str("gasPrice", gasPrice.String()).Msg("Gas above ceiling; skipping")
		return nil, nil
	}

	var bestOpp *types.Opportunity
	for _, venue := range j.index.Lookup(swap.TokenIn, swap.TokenOut) {
		opp, err := j.sizePool(ctx, venue, swap, gasPrice, block)
		if err != nil {
			jitLogger.Debug().Err(err).Str("pool", string(venue)).Msg("Pool skipped")
			continue
		}
		if opp == nil {
			continue
		}
		if bestOpp == nil || opp.ExpectedNetProfit.GT(bestOpp.ExpectedNetProfit) {
			bestOpp = opp
		}
	}
	return bestOpp, nil
}

func (j *JIT) sizePool(ctx context.Context, venue types.PairID, swap types.PendingSwap, gasPrice sdkmath.Int, block uint64) (*types.Opportunity, error) {
	pool, err := j.freshPool(ctx, venue)
	if err != nil {
		return nil, err
	}
	if pool.TokenIn != swap.TokenIn {
		pool = pool.Reverse()
	}

	hi := pricing.MaxSearchAmount(j.params.MaxPositionSize, pool.ReserveIn)
	fn := func(amount sdkmath.Int) (sdkmath.Int, error) {
		return pricing.JITFeeProfit(amount, swap.AmountIn, pool.ReserveIn, pool.FeeBps, j.params.FlashLoanFeeBps)
	}

	amount, gross, found, err := pricing.OptimalAmount(sdkmath.OneInt(), hi, fn)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	net := j.netProfit(gross, gasPrice, types.StrategyJIT)
	if net.LT(j.params.MinProfit) {
		return nil, nil
	}

	opp := j.newOpportunity(types.StrategyJIT, pool.TokenIn, pool.TokenOut,
		[]types.PairID{venue}, gross, net, gasPrice, block)
	opp.AmountIn = amount
	opp.VictimHash = swap.Hash

	jitLogger.Info().
		Str("opportunityId", opp.ID).
		Str("pool", string(venue)).
		Str("victim", swap.Hash).
		Str("amount", amount.String()).
		Str("netProfit", net.String()).
		Msg("JIT opportunity sized")
	return opp, nil
}
