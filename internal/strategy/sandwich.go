/*

This file contains the sandwich detector. It simulates the three chained
legs (frontrun, victim, backrun) against the victim's pool and binary-searches
the frontrun size, with the victim's own amount as the floor: any smaller
frontrun moves the price less than the victim does and cannot pay for two
transactions.

Sandwiches must land in the next block, so the deadline is a single block.

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

var sandwichLogger = logger.GetForComponent("sandwich_strategy")

// Sandwich detects frontrun/backrun positions around large pending swaps.
type Sandwich struct {
	core
}

func NewSandwich(reader chain.Reader, index *PoolIndex, params config.Parameters, clock chain.Clock) *Sandwich {
	return &Sandwich{core: core{reader: reader, index: index, params: params, clock: clock}}
}

func (s *Sandwich) Kind() types.StrategyKind { return types.StrategySandwich }

func (s *Sandwich) Analyze(ctx context.Context, swap types.PendingSwap) (*types.Opportunity, error) {
	if swap.AmountIn.IsNil() || !swap.AmountIn.IsPositive() {
		return nil, nil
	}
	if swap.AmountIn.LT(s.params.MinVictimSize) {
		return nil, nil
	}
	// Victims about to expire cannot be landed together with two more
	// transactions.
	if !swap.Deadline.IsZero() && swap.Deadline.Before(s.clock.Now().Add(s.params.BlockInterval)) {
		return nil, nil
	}

	gasPrice, block, ok, err := s.gasQuote(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		sandwichLogger.Debug().Str("gasPrice", gasPrice.String()).Msg("Gas above ceiling; skipping")
		return nil, nil
	}

	var bestOpp *types.Opportunity
	for _, venue := range s.index.Lookup(swap.TokenIn, swap.TokenOut) {
		opp, err := s.sizePool(ctx, venue, swap, gasPrice, block)
		if err != nil {
			sandwichLogger.Debug().Err(err).Str("pool", string(venue)).Msg("Pool skipped")
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

func (s *Sandwich) sizePool(ctx context.Context, venue types.PairID, swap types.PendingSwap, gasPrice sdkmath.Int, block uint64) (*types.Opportunity, error) {
	pool, err := s.freshPool(ctx, venue)
	if err != nil {
		return nil, err
	}
	// Orient the pool the way the victim trades it.
	if pool.TokenIn != swap.TokenIn {
		pool = pool.Reverse()
	}

	hi := pricing.MaxSearchAmount(s.params.MaxPositionSize, pool.ReserveIn)
	fn := func(frontrun sdkmath.Int) (sdkmath.Int, error) {
		return pricing.SandwichProfit(frontrun, swap.AmountIn, pool, s.params.MaxSlippage)
	}

	frontrun, gross, found, err := pricing.OptimalAmount(swap.AmountIn, hi, fn)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	net := s.netProfit(gross, gasPrice, types.StrategySandwich)
	if net.LT(s.params.MinProfit) {
		return nil, nil
	}

	// The backrun sells exactly what the frontrun bought.
	backrun, err := pricing.AmountOut(frontrun, pool.ReserveIn, pool.ReserveOut, 0)
	if err != nil {
		return nil, err
	}

	opp := s.newOpportunity(types.StrategySandwich, pool.TokenIn, pool.TokenOut,
		[]types.PairID{venue}, gross, net, gasPrice, block)
	opp.FrontrunAmount = frontrun
	opp.BackrunAmount = backrun
	opp.VictimHash = swap.Hash

	sandwichLogger.Info().
		Str("opportunityId", opp.ID).
		Str("pool", string(venue)).
		Str("victim", swap.Hash).
		Str("frontrun", frontrun.String()).
		Str("netProfit", net.String()).
		Msg("Sandwich opportunity sized")
	return opp, nil
}
