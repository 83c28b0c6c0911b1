/*

This file contains the execution coordinator. It drives one admitted
opportunity through the attempt state machine:

	Validated -> ApprovalPending (optional) -> LoanRequested ->
	CallbackExecuted -> SettlementPending -> Verified | Failed

Any step's failure goes straight to Failed. The coordinator holds the
(strategy, pool pair) lease for the whole attempt and makes exactly one
RecordTradeResult call per attempt that enters the state machine; validation
rejections before that point are dropped without recording.

Sandwich attempts go to the relay as an atomic bundle targeting the
opportunity's block. When the relay is unreachable they fall back to two
discrete transactions with a bounded wait for the victim's inclusion in
between; if that wait runs out the backrun is abandoned, never
force-submitted, and the stranded frontrun position is a logged, accepted
risk.

*/

package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/mevforge/searcher/internal/chain"
	"github.com/mevforge/searcher/internal/config"
	"github.com/mevforge/searcher/internal/logger"
	"github.com/mevforge/searcher/internal/notifier"
	"github.com/mevforge/searcher/internal/risk"
	"github.com/mevforge/searcher/internal/types"
	"github.com/mevforge/searcher/internal/utils"
)

var execLogger = logger.GetForComponent("execution_coordinator")

var (
	ErrVictimNotIncluded = errors.New("victim transaction not included in time")
	ErrSettlementTimeout = errors.New("settlement not observed in time")
	ErrBundleNotIncluded = errors.New("bundle not included in target block")

	errRelayUnavailable = errors.New("relay unavailable")
)

// Coordinator executes admitted opportunities.
type Coordinator struct {
	reader    chain.Reader
	submitter chain.Submitter
	loans     chain.FlashLoanProvider
	validator *Validator
	riskMgr   *risk.Manager
	notify    notifier.Notifier
	params    config.Parameters
	clock     chain.Clock
	leases    *LeaseTable
	stats     *Stats

	// dryRun runs the full pipeline but submits nothing.
	dryRun bool
}

func NewCoordinator(
	reader chain.Reader,
	submitter chain.Submitter,
	loans chain.FlashLoanProvider,
	validator *Validator,
	riskMgr *risk.Manager,
	notify notifier.Notifier,
	params config.Parameters,
	clock chain.Clock,
	dryRun bool,
) *Coordinator {
	return &Coordinator{
		reader:    reader,
		submitter: submitter,
		loans:     loans,
		validator: validator,
		riskMgr:   riskMgr,
		notify:    notify,
		params:    params,
		clock:     clock,
		leases:    NewLeaseTable(),
		stats:     NewStats(),
		dryRun:    dryRun,
	}
}

// Stats returns the coordinator's attempt counters.
func (c *Coordinator) Stats() StatsSnapshot { return c.stats.Snapshot() }

// Execute runs one attempt end to end and returns its outcome. Intermediate
// step failures surface only through the returned result.
func (c *Coordinator) Execute(ctx context.Context, opp *types.Opportunity) types.ExecutionResult {
	result := types.ExecutionResult{
		OpportunityID: opp.ID,
		Strategy:      opp.Strategy,
		State:         types.ExecutionFailed,
		Profit:        sdkmath.ZeroInt(),
		StartedAt:     c.clock.Now(),
	}

	release, err := c.leases.Acquire(opp)
	if err != nil {
		execLogger.Warn().Err(err).Str("opportunityId", opp.ID).Msg("Lease unavailable; dropping attempt")
		result.Error = err.Error()
		result.CompletedAt = c.clock.Now()
		return result
	}
	defer release()

	if err := c.validator.Validate(ctx, opp); err != nil {
		execLogger.Info().Err(err).Str("opportunityId", opp.ID).Msg("Pre-flight validation rejected opportunity")
		result.Error = err.Error()
		result.CompletedAt = c.clock.Now()
		return result
	}
	result.State = types.ExecutionValidated

	if c.dryRun {
		execLogger.Info().
			Str("opportunityId", opp.ID).
			Str("strategy", string(opp.Strategy)).
			Str("expectedNetProfit", opp.ExpectedNetProfit.String()).
			Msg("DRY RUN: skipping submission")
		result.State = types.ExecutionVerified
		result.Success = true
		result.Profit = opp.ExpectedNetProfit
		result.CompletedAt = c.clock.Now()
		c.finish(opp, &result)
		return result
	}

	// From here on the attempt is recorded no matter how it ends.
	c.run(ctx, opp, &result)
	result.CompletedAt = c.clock.Now()
	c.finish(opp, &result)
	return result
}

// run advances the state machine, mutating result in place. The profit-token
// balance is read before any funds move and again after settlement; the diff
// is the realized profit.
func (c *Coordinator) run(ctx context.Context, opp *types.Opportunity, result *types.ExecutionResult) {
	preBalance, err := c.reader.TokenBalance(ctx, opp.TokenIn)
	if err != nil {
		c.fail(result, fmt.Errorf("failed to read pre-trade balance: %w", err))
		return
	}

	if err := c.ensureAllowance(ctx, opp, result); err != nil {
		c.fail(result, err)
		return
	}

	var settleHash string
	if opp.Strategy == types.StrategySandwich {
		settleHash, err = c.runSandwich(ctx, opp, result)
	} else {
		settleHash, err = c.runFlashLoan(ctx, opp, result)
	}
	if err != nil {
		c.fail(result, err)
		return
	}

	result.State = types.ExecutionSettlementPending
	receipt, err := c.awaitReceipt(ctx, settleHash, opp.Deadline)
	if err != nil {
		c.fail(result, err)
		return
	}
	result.GasUsed += receipt.GasUsed

	if !receipt.Success {
		c.fail(result, fmt.Errorf("settlement transaction %s reverted", receipt.TxHash))
		return
	}

	postBalance, err := c.reader.TokenBalance(ctx, opp.TokenIn)
	if err != nil {
		c.fail(result, fmt.Errorf("failed to read post-trade balance: %w", err))
		return
	}

	c.verify(opp, postBalance.Sub(preBalance), result)
}

// ensureAllowance approves the router only when the current allowance does
// not cover the position.
func (c *Coordinator) ensureAllowance(ctx context.Context, opp *types.Opportunity, result *types.ExecutionResult) error {
	required := opp.AmountIn
	if opp.Strategy == types.StrategySandwich {
		required = opp.FrontrunAmount
	}
	if required.IsNil() || !required.IsPositive() {
		return fmt.Errorf("opportunity %s has no position size", opp.ID)
	}

	allowance, err := c.reader.Allowance(ctx, opp.TokenIn)
	if err != nil {
		return fmt.Errorf("failed to read allowance: %w", err)
	}
	if allowance.GTE(required) {
		return nil
	}

	result.State = types.ExecutionApprovalPending
	txHash, err := c.submitter.Approve(ctx, opp.TokenIn, required)
	if err != nil {
		return fmt.Errorf("approval failed: %w", err)
	}
	result.TxHashes = append(result.TxHashes, txHash)
	execLogger.Info().
		Str("opportunityId", opp.ID).
		Str("token", opp.TokenIn).
		Str("txHash", txHash).
		Msg("Approval submitted")
	return nil
}

// runFlashLoan covers arbitrage and JIT: borrow, run the callback, repay
// inside one transaction.
func (c *Coordinator) runFlashLoan(ctx context.Context, opp *types.Opportunity, result *types.ExecutionResult) (string, error) {
	ticket, err := c.loans.RequestLoan(ctx, opp.TokenIn, opp.AmountIn)
	if err != nil {
		return "", fmt.Errorf("flash loan request failed: %w", err)
	}
	result.State = types.ExecutionLoanRequested

	txHash, err := c.loans.Execute(ctx, ticket, opp.Payload)
	if err != nil {
		return "", fmt.Errorf("flash loan callback failed: %w", err)
	}
	result.State = types.ExecutionCallbackExecuted
	result.TxHashes = append(result.TxHashes, txHash)
	return txHash, nil
}

// runSandwich submits both legs as an atomic relay bundle targeting the
// opportunity's block. When the relay itself is unreachable it falls back to
// sequential legs; a bundle the relay accepted but did not include is a
// clean failure with no funds moved.
func (c *Coordinator) runSandwich(ctx context.Context, opp *types.Opportunity, result *types.ExecutionResult) (string, error) {
	if opp.TargetBlock > 0 {
		settleHash, err := c.runBundle(ctx, opp, result)
		if err == nil {
			return settleHash, nil
		}
		if !errors.Is(err, errRelayUnavailable) {
			return "", err
		}
		execLogger.Warn().
			Err(err).
			Str("opportunityId", opp.ID).
			Msg("Relay unreachable; falling back to sequential legs")
	}
	return c.runLegs(ctx, opp, result)
}

// runBundle submits [frontrun, backrun] atomically and waits for the target
// block to pass before checking inclusion.
func (c *Coordinator) runBundle(ctx context.Context, opp *types.Opportunity, result *types.ExecutionResult) (string, error) {
	bundleHash, err := c.submitter.SubmitBundle(ctx, [][]byte{opp.Payload, opp.Payload}, opp.TargetBlock)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errRelayUnavailable, err)
	}
	execLogger.Info().
		Str("opportunityId", opp.ID).
		Str("bundleHash", bundleHash).
		Uint64("targetBlock", opp.TargetBlock).
		Msg("Bundle submitted")

	if err := c.awaitBlock(ctx, opp.TargetBlock, opp.Deadline); err != nil {
		return "", err
	}

	inclusion, err := c.submitter.BundleStatus(ctx, bundleHash, opp.TargetBlock)
	if err != nil {
		return "", fmt.Errorf("failed to check bundle inclusion: %w", err)
	}
	if !inclusion.Included || len(inclusion.TxHashes) == 0 {
		return "", fmt.Errorf("%w: %s", ErrBundleNotIncluded, bundleHash)
	}

	result.State = types.ExecutionCallbackExecuted
	result.TxHashes = append(result.TxHashes, inclusion.TxHashes...)
	return inclusion.TxHashes[len(inclusion.TxHashes)-1], nil
}

// awaitBlock polls the chain head until the target block exists, bounded by
// the usual settlement window.
func (c *Coordinator) awaitBlock(ctx context.Context, target uint64, deadline time.Time) error {
	for i := uint64(0); i <= c.params.MaxBlocksToWait; i++ {
		block, err := c.reader.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("failed to poll block number: %w", err)
		}
		if block >= target {
			return nil
		}
		if c.clock.Now().After(deadline.Add(time.Duration(c.params.MaxBlocksToWait) * c.params.BlockInterval)) {
			return fmt.Errorf("%w: block %d never observed", ErrSettlementTimeout, target)
		}
		if err := c.clock.Sleep(ctx, c.params.BlockInterval); err != nil {
			return fmt.Errorf("%w: %v", ErrSettlementTimeout, err)
		}
	}
	return fmt.Errorf("%w: block %d never observed", ErrSettlementTimeout, target)
}

// runLegs sends the frontrun, waits for the victim, then sends the backrun.
// The backrun is abandoned when the victim wait runs out.
func (c *Coordinator) runLegs(ctx context.Context, opp *types.Opportunity, result *types.ExecutionResult) (string, error) {
	frontHash, err := c.submitter.SignAndSend(ctx, opp.Payload, opp.GasPrice, opp.GasEstimate)
	if err != nil {
		return "", fmt.Errorf("frontrun submission failed: %w", err)
	}
	result.TxHashes = append(result.TxHashes, frontHash)

	if err := c.awaitVictim(ctx, opp); err != nil {
		// Stranded frontrun capital is accepted and logged, not recovered
		// here.
		execLogger.Error().
			Str("opportunityId", opp.ID).
			Str("victim", opp.VictimHash).
			Str("frontrun", frontHash).
			Msg("Victim not included; abandoning backrun with frontrun capital stranded")
		c.notify.Notify(
			fmt.Sprintf("sandwich %s abandoned: victim %s not included, frontrun %s stranded", opp.ID, opp.VictimHash, frontHash),
			notifier.PriorityWarning,
		)
		return "", err
	}

	backHash, err := c.submitter.SignAndSend(ctx, opp.Payload, opp.GasPrice, opp.GasEstimate)
	if err != nil {
		return "", fmt.Errorf("backrun submission failed: %w", err)
	}
	result.State = types.ExecutionCallbackExecuted
	result.TxHashes = append(result.TxHashes, backHash)
	return backHash, nil
}

// awaitVictim polls for the victim's receipt for at most MaxBlocksToWait
// block intervals, checking the opportunity deadline on every iteration.
func (c *Coordinator) awaitVictim(ctx context.Context, opp *types.Opportunity) error {
	for i := uint64(0); i < c.params.MaxBlocksToWait; i++ {
		if c.clock.Now().After(opp.Deadline) {
			return fmt.Errorf("%w: deadline passed", ErrVictimNotIncluded)
		}
		receipt, err := c.reader.TransactionReceipt(ctx, opp.VictimHash)
		if err == nil && receipt != nil {
			return nil
		}
		if err != nil && !errors.Is(err, chain.ErrNotMined) {
			return fmt.Errorf("failed to poll victim receipt: %w", err)
		}
		if err := c.clock.Sleep(ctx, c.params.BlockInterval); err != nil {
			return fmt.Errorf("%w: %v", ErrVictimNotIncluded, err)
		}
	}
	return ErrVictimNotIncluded
}

// awaitReceipt polls for our own transaction's receipt within the bounded
// settlement window.
func (c *Coordinator) awaitReceipt(ctx context.Context, txHash string, deadline time.Time) (*chain.Receipt, error) {
	for i := uint64(0); i <= c.params.MaxBlocksToWait; i++ {
		receipt, err := c.reader.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, chain.ErrNotMined) {
			return nil, fmt.Errorf("failed to poll settlement receipt: %w", err)
		}
		if c.clock.Now().After(deadline.Add(time.Duration(c.params.MaxBlocksToWait) * c.params.BlockInterval)) {
			return nil, fmt.Errorf("%w: %s", ErrSettlementTimeout, txHash)
		}
		if err := c.clock.Sleep(ctx, c.params.BlockInterval); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSettlementTimeout, err)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSettlementTimeout, txHash)
}

// verify compares the realized balance change against expectations.
func (c *Coordinator) verify(opp *types.Opportunity, realized sdkmath.Int, result *types.ExecutionResult) {
	floor := opp.ExpectedNetProfit.
		MulRaw(int64(c.params.ProfitShortfallRatio * 100)).
		QuoRaw(100)
	if realized.LT(floor) {
		execLogger.Warn().
			Str("opportunityId", opp.ID).
			Str("expected", opp.ExpectedNetProfit.String()).
			Str("realized", realized.String()).
			Msg("Realized profit below expected threshold")
	}

	result.State = types.ExecutionVerified
	result.Success = true
	result.Profit = realized
}

// fail marks the attempt failed, keeping the first error.
func (c *Coordinator) fail(result *types.ExecutionResult, err error) {
	execLogger.Error().
		Err(err).
		Str("opportunityId", result.OpportunityID).
		Str("state", string(result.State)).
		Msg("Execution attempt failed")
	result.State = types.ExecutionFailed
	result.Success = false
	result.Error = err.Error()
}

// finish records the attempt with the risk manager and updates counters.
// Exactly one call per attempt that entered the state machine.
func (c *Coordinator) finish(opp *types.Opportunity, result *types.ExecutionResult) {
	pnl, err := utils.IntToFloat64(result.Profit, 18)
	if err != nil {
		execLogger.Error().Err(err).Str("opportunityId", opp.ID).Msg("Failed to convert realized profit")
		pnl = 0
	}
	if c.dryRun {
		// Nothing settled, so the ledger stays neutral; the expected profit
		// still shows in the returned result and the logs.
		pnl = 0
	}

	record := types.TradeRecord{
		Timestamp:  result.CompletedAt,
		TradeID:    opp.ID,
		Strategy:   opp.Strategy,
		Success:    result.Success,
		ProfitLoss: pnl,
		GasUsed:    result.GasUsed,
		Error:      result.Error,
	}
	if err := c.riskMgr.RecordTradeResult(record); err != nil {
		execLogger.Error().Err(err).Str("opportunityId", opp.ID).Msg("Failed to record trade result")
	}

	c.stats.Record(result)

	if result.Success {
		c.notify.Notify(
			fmt.Sprintf("%s %s settled: profit %s", opp.Strategy, opp.ID, result.Profit),
			notifier.PriorityInfo,
		)
	} else {
		c.notify.Notify(
			fmt.Sprintf("%s %s failed: %s", opp.Strategy, opp.ID, result.Error),
			notifier.PriorityWarning,
		)
	}
}
