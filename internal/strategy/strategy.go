/*

This file contains the Strategy interface, the pool index the detectors
consult, and the plumbing shared by all three detectors: fresh-pool fetching,
gas-aware net profit, and opportunity assembly.

A detector returns (nil, nil) when it simply finds nothing worth doing;
errors are reserved for malformed inputs and failed chain reads.

*/

package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/mevforge/searcher/internal/chain"
	"github.com/mevforge/searcher/internal/config"
	"github.com/mevforge/searcher/internal/types"
)

// Strategy is one opportunity detector. Analyze inspects a single pending
// swap and either sizes a profitable position around it or reports nothing.
type Strategy interface {
	Kind() types.StrategyKind
	Analyze(ctx context.Context, swap types.PendingSwap) (*types.Opportunity, error)
}

// PoolIndex maps token pairs onto the pools quoting them. Lookups match
// either orientation.
type PoolIndex struct {
	mu     sync.RWMutex
	byPair map[string][]types.PairID
}

func NewPoolIndex() *PoolIndex {
	return &PoolIndex{byPair: make(map[string][]types.PairID)}
}

func pairKey(a, b string) string {
	if a < b {
		return a + "/" + b
	}
	return b + "/" + a
}

// Register adds a pool quoting the given token pair.
func (i *PoolIndex) Register(tokenA, tokenB string, id types.PairID) {
	i.mu.Lock()
	defer i.mu.Unlock()
	key := pairKey(tokenA, tokenB)
	i.byPair[key] = append(i.byPair[key], id)
}

// Lookup returns every pool quoting the pair, in registration order.
func (i *PoolIndex) Lookup(tokenA, tokenB string) []types.PairID {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.byPair[pairKey(tokenA, tokenB)]
}

// core carries the dependencies every detector shares.
type core struct {
	reader chain.Reader
	index  *PoolIndex
	params config.Parameters
	clock  chain.Clock
}

// freshPool fetches a pool and applies the quotability gates: snapshot
// freshness and minimum input-side depth.
func (c *core) freshPool(ctx context.Context, id types.PairID) (types.Pool, error) {
	pool, err := c.reader.GetPoolReserves(ctx, id)
	if err != nil {
		return types.Pool{}, fmt.Errorf("failed to fetch pool %s: %w", id, err)
	}
	if !pool.Fresh(c.clock.Now(), c.params.FreshnessWindow) {
		return types.Pool{}, fmt.Errorf("pool %s: %w", id, types.ErrStalePool)
	}
	if pool.ReserveIn.LT(c.params.MinLiquidity) {
		return types.Pool{}, fmt.Errorf("pool %s below minimum liquidity: %s", id, pool.ReserveIn)
	}
	return pool, nil
}

// gasQuote returns the current gas price and block height, rejecting when
// gas is above the configured ceiling.
func (c *core) gasQuote(ctx context.Context) (sdkmath.Int, uint64, bool, error) {
	gasPrice, err := c.reader.GasPrice(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), 0, false, fmt.Errorf("failed to quote gas: %w", err)
	}
	if gasPrice.GT(c.params.MaxGasPrice) {
		return gasPrice, 0, false, nil
	}
	block, err := c.reader.BlockNumber(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), 0, false, fmt.Errorf("failed to read block number: %w", err)
	}
	return gasPrice, block, true, nil
}

// netProfit deducts the strategy's fixed gas estimate priced at gasPrice.
func (c *core) netProfit(gross, gasPrice sdkmath.Int, kind types.StrategyKind) sdkmath.Int {
	gasCost := gasPrice.MulRaw(int64(c.params.GasEstimate(kind)))
	return gross.Sub(gasCost)
}

// newOpportunity assembles the common opportunity fields. Callers fill the
// strategy-specific amounts.
func (c *core) newOpportunity(kind types.StrategyKind, tokenIn, tokenOut string, pools []types.PairID, gross, net, gasPrice sdkmath.Int, block uint64) *types.Opportunity {
	now := c.clock.Now()
	blocks := c.params.DeadlineBlocks(kind)
	return &types.Opportunity{
		ID:                uuid.New().String(),
		Strategy:          kind,
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		ExpectedProfit:    gross,
		ExpectedNetProfit: net,
		GasPrice:          gasPrice,
		GasEstimate:       c.params.GasEstimate(kind),
		Pools:             pools,
		Deadline:          now.Add(time.Duration(blocks) * c.params.BlockInterval),
		TargetBlock:       block + blocks,
		CreatedAt:         now,
	}
}
