/*

This file contains the cross-venue arbitrage detector. A pending swap is a
hint that its pair's venues are about to diverge; the detector quotes every
venue pair for the tokens involved, prices the two-hop round trip in both
directions, and sizes the better one.

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

var arbLogger = logger.GetForComponent("arbitrage_strategy")

// Arbitrage detects two-pool round trips that profit from a price gap.
type Arbitrage struct {
	core
}

func NewArbitrage(reader chain.Reader, index *PoolIndex, params config.Parameters, clock chain.Clock) *Arbitrage {
	return &Arbitrage{core: core{reader: reader, index: index, params: params, clock: clock}}
}

func (a *Arbitrage) Kind() types.StrategyKind { return types.StrategyArbitrage }

func (a *Arbitrage) Analyze(ctx context.Context, swap types.PendingSwap) (*types.Opportunity, error) {
	venues := a.index.Lookup(swap.TokenIn, swap.TokenOut)
	if len(venues) < 2 {
		return nil, nil
	}

	gasPrice, block, ok, err := a.gasQuote(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		arbLogger.Debug().Str("gasPrice", gasPrice.String()).Msg("Gas above ceiling; skipping")
		return nil, nil
	}

	var bestOpp *types.Opportunity
	for i := 0; i < len(venues); i++ {
		for j := 0; j < len(venues); j++ {
			if i == j {
				continue
			}
			opp, err := a.sizeRoute(ctx, venues[i], venues[j], gasPrice, block)
			if err != nil {
				arbLogger.Debug().Err(err).
					Str("sell", string(venues[i])).
					Str("buy", string(venues[j])).
					Msg("Route skipped")
				continue
			}
			if opp == nil {
				continue
			}
			if bestOpp == nil || opp.ExpectedNetProfit.GT(bestOpp.ExpectedNetProfit) {
				bestOpp = opp
			}
		}
	}
	return bestOpp, nil
}

// sizeRoute prices selling base on sellVenue and buying it back on buyVenue.
func (a *Arbitrage) sizeRoute(ctx context.Context, sellVenue, buyVenue types.PairID, gasPrice sdkmath.Int, block uint64) (*types.Opportunity, error) {
	sell, err := a.freshPool(ctx, sellVenue)
	if err != nil {
		return nil, err
	}
	buyFwd, err := a.freshPool(ctx, buyVenue)
	if err != nil {
		return nil, err
	}
	buy := buyFwd.Reverse()

	hi := pricing.MaxSearchAmount(a.params.MaxPositionSize, sell.ReserveIn, buy.ReserveIn)
	fn := func(amount sdkmath.Int) (sdkmath.Int, error) {
		return pricing.TwoHopProfit(amount, sell, buy, a.params.MaxSlippage)
	}

	amount, gross, found, err := pricing.OptimalAmount(sdkmath.OneInt(), hi, fn)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	net := a.netProfit(gross, gasPrice, types.StrategyArbitrage)
	if net.LT(a.params.MinProfit) {
		return nil, nil
	}

	opp := a.newOpportunity(types.StrategyArbitrage, sell.TokenIn, sell.TokenOut,
		[]types.PairID{sellVenue, buyVenue}, gross, net, gasPrice, block)
	opp.AmountIn = amount

	arbLogger.Info().
		Str("opportunityId", opp.ID).
		Str("sell", string(sellVenue)).
		Str("buy", string(buyVenue)).
		Str("amount", amount.String()).
		Str("netProfit", net.String()).
		Msg("Arbitrage opportunity sized")
	return opp, nil
}
