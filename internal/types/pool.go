/*

This file contains the pool snapshot type used by the pricing engine and the
strategy detectors. A snapshot is directional: ReserveIn is the reserve of the
token being sold into the pool, ReserveOut the reserve of the token bought.

*/

package types

import (
	"errors"
	"time"

	sdkmath "cosmossdk.io/math"
)

// PairID identifies a pool on a specific venue, e.g. "WETH/DAI@uniswap".
type PairID string

var (
	ErrEmptyReserves = errors.New("pool has empty reserves")
	ErrStalePool     = errors.New("pool snapshot is stale")
)

// Pool is a directional constant-product pool snapshot.
type Pool struct {
	PairID     PairID      `json:"pair_id"`
	TokenIn    string      `json:"token_in"`
	TokenOut   string      `json:"token_out"`
	ReserveIn  sdkmath.Int `json:"reserve_in"`
	ReserveOut sdkmath.Int `json:"reserve_out"`
	FeeBps     uint16      `json:"fee_bps"`
	LastUpdate time.Time   `json:"last_update"`
}

// Validate checks the invariants required for a usable quote.
func (p Pool) Validate() error {
	if p.ReserveIn.IsNil() || p.ReserveOut.IsNil() {
		return ErrEmptyReserves
	}
	if !p.ReserveIn.IsPositive() || !p.ReserveOut.IsPositive() {
		return ErrEmptyReserves
	}
	return nil
}

// Fresh reports whether the snapshot is within the freshness window.
func (p Pool) Fresh(now time.Time, window time.Duration) bool {
	return now.Sub(p.LastUpdate) <= window
}

// Reverse returns the snapshot with the trade direction flipped.
func (p Pool) Reverse() Pool {
	return Pool{
		PairID:     p.PairID,
		TokenIn:    p.TokenOut,
		TokenOut:   p.TokenIn,
		ReserveIn:  p.ReserveOut,
		ReserveOut: p.ReserveIn,
		FeeBps:     p.FeeBps,
		LastUpdate: p.LastUpdate,
	}
}
