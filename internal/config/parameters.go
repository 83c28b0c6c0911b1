/*

This file contains the default strategy and risk parameters for the searcher.

These defaults are calibrated for conservative operation: they prefer skipping
marginal opportunities over risking capital on thin edges. Every value can be
overridden by constructing a Parameters value explicitly.

*/

package config

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/mevforge/searcher/internal/types"
)

// Parameters holds the strategy and risk tunables. The struct is treated as
// immutable once constructed and is threaded through every constructor.
type Parameters struct {
	// --- Detection ---

	// MinProfit is the minimum expected net profit (after gas) for an
	// opportunity to be created, in base-token wei.
	MinProfit sdkmath.Int
	// MaxPositionSize caps any single sized amount, in base-token wei.
	MaxPositionSize sdkmath.Int
	// MaxSlippage is the maximum tolerated price impact fraction for any
	// simulated leg.
	MaxSlippage float64
	// MaxGasPrice is the upper bound on acceptable network gas price, in wei.
	MaxGasPrice sdkmath.Int
	// MinVictimSize excludes low-value sandwich targets, in base-token wei.
	MinVictimSize sdkmath.Int
	// MinLiquidity is the smallest input-side reserve a pool may have and
	// still be quoted against.
	MinLiquidity sdkmath.Int

	// FreshnessWindow invalidates pool snapshots older than this; roughly
	// three block intervals.
	FreshnessWindow time.Duration
	// BlockInterval is the expected block time of the target chain.
	BlockInterval time.Duration

	// GasEstimates holds the fixed per-strategy gas estimates used when
	// pricing an opportunity net of gas.
	GasEstimateArbitrage uint64
	GasEstimateSandwich  uint64
	GasEstimateJIT       uint64

	// FlashLoanFeeBps is the provider's fee on borrowed capital.
	FlashLoanFeeBps uint16

	// --- Execution ---

	// GasTolerance allows the live gas price to exceed the detected price by
	// this factor before the validator rejects.
	GasTolerance float64
	// MaxBlocksToWait bounds every settlement / victim-inclusion poll loop.
	MaxBlocksToWait uint64
	// ProfitShortfallRatio: realized profit below this fraction of expected
	// logs a warning.
	ProfitShortfallRatio float64

	// --- Risk ---

	// MaxDailyLoss halts trading for the day once cumulative losses reach it
	// (USD).
	MaxDailyLoss float64
	// EmergencyLoss triggers emergency shutdown for the session (USD).
	EmergencyLoss float64
	// MaxDailyTrades limits attempts per strategy per rolling 24h.
	MaxDailyTrades int
	// MaxFailedTrades triggers emergency shutdown once exceeded.
	MaxFailedTrades int
	// MaxDrawdown is the peak-to-current fraction of cumulative P&L that
	// triggers emergency shutdown.
	MaxDrawdown float64
	// MaxPositionUSD caps per-token exposure tracked by the risk manager.
	MaxPositionUSD float64
	// BaseTokenUSD converts base-token sizes into the USD-denominated risk
	// limits.
	BaseTokenUSD float64
	// MinHealthFactor is required for leveraged / flash-loan positions.
	MinHealthFactor float64
	// TradeHistoryCap bounds the persisted trade history ring.
	TradeHistoryCap int

	// PriceDeviation is the circuit breaker's maximum tolerated fractional
	// price move between two observations inside BreakerWindow.
	PriceDeviation float64
	// VolumeMultiplier is the circuit breaker's maximum tolerated volume
	// ratio between two observations inside BreakerWindow.
	VolumeMultiplier float64
	// BreakerWindow is the sliding comparison window for breaker checks.
	BreakerWindow time.Duration
}

// DefaultParameters returns the baseline parameter set.
func DefaultParameters() Parameters {
	return Parameters{
		// 0.01 base token minimum edge: anything smaller is noise once
		// inclusion uncertainty is priced in.
		MinProfit: sdkmath.NewIntWithDecimal(1, 16),

		// 50 base tokens per position. Larger sizes dominate the pools the
		// searcher targets and push impact past the slippage gate anyway.
		MaxPositionSize: sdkmath.NewIntWithDecimal(50, 18),

		// 3% price impact ceiling on any simulated leg.
		MaxSlippage: 0.03,

		// 500 gwei hard ceiling; beyond this the fixed gas estimates eat
		// every realistic edge.
		MaxGasPrice: sdkmath.NewIntWithDecimal(500, 9),

		// Victims below 1 base token are not worth a two-transaction
		// commitment.
		MinVictimSize: sdkmath.NewIntWithDecimal(1, 18),

		// Pools with less than 10 base tokens of input-side depth are not
		// quotable.
		MinLiquidity: sdkmath.NewIntWithDecimal(10, 18),

		FreshnessWindow: 36 * time.Second, // three 12s blocks
		BlockInterval:   12 * time.Second,

		GasEstimateArbitrage: 250_000,
		GasEstimateSandwich:  400_000,
		GasEstimateJIT:       350_000,

		FlashLoanFeeBps: 5,

		GasTolerance:         1.1,
		MaxBlocksToWait:      3,
		ProfitShortfallRatio: 0.9,

		MaxDailyLoss:    1_000,
		EmergencyLoss:   2_500,
		MaxDailyTrades:  200,
		MaxFailedTrades: 10,
		MaxDrawdown:     0.25,
		MaxPositionUSD:  100_000,
		BaseTokenUSD:    2_000,
		MinHealthFactor: 1.5,
		TradeHistoryCap: 1_000,

		PriceDeviation:   0.10,
		VolumeMultiplier: 5.0,
		BreakerWindow:    5 * time.Minute,
	}
}

// DeadlineBlocks returns how many blocks an opportunity of the given strategy
// has to land. Sandwiches must land in the next block; arbitrage and JIT get
// two.
func (p Parameters) DeadlineBlocks(strategy types.StrategyKind) uint64 {
	if strategy == types.StrategySandwich {
		return 1
	}
	return 2
}

// GasEstimate returns the fixed gas estimate for a strategy.
func (p Parameters) GasEstimate(strategy types.StrategyKind) uint64 {
	switch strategy {
	case types.StrategySandwich:
		return p.GasEstimateSandwich
	case types.StrategyJIT:
		return p.GasEstimateJIT
	default:
		return p.GasEstimateArbitrage
	}
}
