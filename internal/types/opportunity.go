/*

This file contains the pending-swap input type and the Opportunity type
produced by the strategy detectors. An Opportunity is immutable after
creation: re-validation yields a fresh pass/fail decision, never a mutation.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// StrategyKind is the closed set of supported strategies.
type StrategyKind string

const (
	StrategyArbitrage StrategyKind = "ARBITRAGE"
	StrategySandwich  StrategyKind = "SANDWICH"
	StrategyJIT       StrategyKind = "JIT"
)

// PendingSwap is a decoded pending transaction observed in the mempool.
type PendingSwap struct {
	Hash     string      `json:"hash"`
	TokenIn  string      `json:"token_in"`
	TokenOut string      `json:"token_out"`
	AmountIn sdkmath.Int `json:"amount_in"`
	Deadline time.Time   `json:"deadline"`
}

// Opportunity is a sized, profitable position candidate. AmountIn carries the
// single position size for arbitrage and JIT; sandwich opportunities carry a
// frontrun/backrun pair instead.
type Opportunity struct {
	ID       string       `json:"id"`
	Strategy StrategyKind `json:"strategy"`

	TokenIn  string `json:"token_in"`
	TokenOut string `json:"token_out"`

	AmountIn       sdkmath.Int `json:"amount_in,omitempty"`
	FrontrunAmount sdkmath.Int `json:"frontrun_amount,omitempty"`
	BackrunAmount  sdkmath.Int `json:"backrun_amount,omitempty"`

	// ExpectedProfit is gross of gas; ExpectedNetProfit deducts the gas
	// estimate priced at GasPrice.
	ExpectedProfit    sdkmath.Int `json:"expected_profit"`
	ExpectedNetProfit sdkmath.Int `json:"expected_net_profit"`

	GasPrice    sdkmath.Int `json:"gas_price"`
	GasEstimate uint64      `json:"gas_estimate"`

	Pools       []PairID  `json:"pools"`
	VictimHash  string    `json:"victim_hash,omitempty"`
	Deadline    time.Time `json:"deadline"`
	TargetBlock uint64    `json:"target_block"`

	// Payload is the opaque execution payload handed to the flash-loan
	// callback; the coordinator never interprets it.
	Payload []byte `json:"payload,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// PoolPair is the lease key component identifying the liquidity this
// opportunity competes for.
func (o *Opportunity) PoolPair() string {
	key := ""
	for i, p := range o.Pools {
		if i > 0 {
			key += "|"
		}
		key += string(p)
	}
	return key
}
