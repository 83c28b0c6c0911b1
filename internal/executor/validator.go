/*

This file contains the pre-flight validator. Pool and gas state drift between
detection and execution, so a cheap subset of the detection gates is re-run
immediately before any funds move. The validator is a pure read-only gate.

*/

package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/mevforge/searcher/internal/chain"
	"github.com/mevforge/searcher/internal/config"
	"github.com/mevforge/searcher/internal/types"
)

var (
	ErrGasDrift       = errors.New("gas price drifted past tolerance")
	ErrThinReserves   = errors.New("pool reserves below minimum liquidity")
	ErrDeadlinePassed = errors.New("opportunity deadline passed")
	ErrWrongChain     = errors.New("unexpected chain id")
)

// Validator re-checks an opportunity against live chain state.
type Validator struct {
	reader  chain.Reader
	params  config.Parameters
	clock   chain.Clock
	chainID uint64
}

func NewValidator(reader chain.Reader, params config.Parameters, clock chain.Clock, chainID uint64) *Validator {
	return &Validator{reader: reader, params: params, clock: clock, chainID: chainID}
}

// Validate returns nil only when every re-check passes. All failures are
// ValidationError-class: the opportunity is dropped, nothing is recorded.
func (v *Validator) Validate(ctx context.Context, opp *types.Opportunity) error {
	if v.clock.Now().After(opp.Deadline) {
		return fmt.Errorf("%w: %s", ErrDeadlinePassed, opp.ID)
	}

	chainID, err := v.reader.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify chain id: %w", err)
	}
	if chainID != v.chainID {
		return fmt.Errorf("%w: got %d, expected %d", ErrWrongChain, chainID, v.chainID)
	}

	gasPrice, err := v.reader.GasPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to re-check gas price: %w", err)
	}
	// tolerance is a small ratio; scaling by 100 keeps the comparison in
	// integer arithmetic.
	tolerated := opp.GasPrice.MulRaw(int64(v.params.GasTolerance * 100)).QuoRaw(100)
	if gasPrice.GT(tolerated) {
		return fmt.Errorf("%w: %s > %s", ErrGasDrift, gasPrice, tolerated)
	}

	for _, pairID := range opp.Pools {
		pool, err := v.reader.GetPoolReserves(ctx, pairID)
		if err != nil {
			return fmt.Errorf("failed to re-check pool %s: %w", pairID, err)
		}
		if pool.ReserveIn.LT(v.params.MinLiquidity) || pool.ReserveOut.LT(v.params.MinLiquidity) {
			return fmt.Errorf("%w: %s", ErrThinReserves, pairID)
		}
	}

	return nil
}
