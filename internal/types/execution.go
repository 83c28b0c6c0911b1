/*

This file contains the execution-side types: flash-loan tickets with strictly
forward status transitions, the per-attempt execution state machine, and the
attempt result reported back to the caller.

*/

package types

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
)

// LoanStatus is the flash-loan ticket lifecycle. Transitions are strictly
// forward; a ticket never regresses.
type LoanStatus string

const (
	LoanPending   LoanStatus = "PENDING"
	LoanExecuting LoanStatus = "EXECUTING"
	LoanCompleted LoanStatus = "COMPLETED"
	LoanFailed    LoanStatus = "FAILED"
)

var loanOrder = map[LoanStatus]int{
	LoanPending:   0,
	LoanExecuting: 1,
	LoanCompleted: 2,
	LoanFailed:    2,
}

// FlashLoanTicket is owned exclusively by the execution coordinator for its
// lifetime.
type FlashLoanTicket struct {
	LoanID  string      `json:"loan_id"`
	Token   string      `json:"token"`
	Amount  sdkmath.Int `json:"amount"`
	Fee     sdkmath.Int `json:"fee"`
	Payload []byte      `json:"callback_payload"`
	Status  LoanStatus  `json:"status"`
}

// Advance moves the ticket to the next status, rejecting any regression.
func (t *FlashLoanTicket) Advance(next LoanStatus) error {
	if loanOrder[next] <= loanOrder[t.Status] && next != t.Status {
		return fmt.Errorf("flash loan %s: illegal transition %s -> %s", t.LoanID, t.Status, next)
	}
	t.Status = next
	return nil
}

// ExecutionState is the per-attempt state machine. Any step's failure
// transitions directly to ExecutionFailed.
type ExecutionState string

const (
	ExecutionValidated         ExecutionState = "VALIDATED"
	ExecutionApprovalPending   ExecutionState = "APPROVAL_PENDING"
	ExecutionLoanRequested     ExecutionState = "LOAN_REQUESTED"
	ExecutionCallbackExecuted  ExecutionState = "CALLBACK_EXECUTED"
	ExecutionSettlementPending ExecutionState = "SETTLEMENT_PENDING"
	ExecutionVerified          ExecutionState = "VERIFIED"
	ExecutionFailed            ExecutionState = "FAILED"
)

// ExecutionResult is the user-visible outcome of one execution attempt.
// Intermediate step failures surface only here, never individually.
type ExecutionResult struct {
	OpportunityID string         `json:"opportunity_id"`
	Strategy      StrategyKind   `json:"strategy"`
	State         ExecutionState `json:"state"`
	Success       bool           `json:"success"`
	Profit        sdkmath.Int    `json:"profit"`
	GasUsed       uint64         `json:"gas_used"`
	TxHashes      []string       `json:"tx_hashes,omitempty"`
	Error         string         `json:"error,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   time.Time      `json:"completed_at"`
}
