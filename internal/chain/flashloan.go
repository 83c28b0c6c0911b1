package chain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/mevforge/searcher/internal/logger"
	"github.com/mevforge/searcher/internal/types"
)

var loanLogger = logger.GetForComponent("flash_loan")

// flashLoan(address token, uint256 amount, bytes calldata payload)
const selFlashLoan = "0x5cffe9de"

// LoanDesk is the flash-loan provider backed by an on-chain lending pool.
// The loan, the callback, and the repayment all happen inside one
// transaction; a repayment shortfall reverts the whole thing.
type LoanDesk struct {
	client *Client
	pool   string
	feeBps uint16
}

// NewLoanDesk builds a provider against the lending pool at the given
// address charging feeBps per loan.
func NewLoanDesk(client *Client, pool string, feeBps uint16) *LoanDesk {
	return &LoanDesk{client: client, pool: pool, feeBps: feeBps}
}

func (d *LoanDesk) RequestLoan(ctx context.Context, token string, amount sdkmath.Int) (*types.FlashLoanTicket, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("loan amount must be positive, got %s", amount)
	}
	ticket := &types.FlashLoanTicket{
		LoanID: uuid.New().String(),
		Token:  token,
		Amount: amount,
		Fee:    amount.MulRaw(int64(d.feeBps)).QuoRaw(10_000),
		Status: types.LoanPending,
	}
	loanLogger.Debug().
		Str("loanId", ticket.LoanID).
		Str("token", token).
		Str("amount", amount.String()).
		Str("fee", ticket.Fee.String()).
		Msg("Flash loan reserved")
	return ticket, nil
}

func (d *LoanDesk) Execute(ctx context.Context, ticket *types.FlashLoanTicket, payload []byte) (string, error) {
	if err := ticket.Advance(types.LoanExecuting); err != nil {
		return "", err
	}

	tokenAddr, err := d.client.resolveToken(ticket.Token)
	if err != nil {
		if advErr := ticket.Advance(types.LoanFailed); advErr != nil {
			loanLogger.Error().Err(advErr).Str("loanId", ticket.LoanID).Msg("Ticket transition failed")
		}
		return "", err
	}
	data := selFlashLoan + padAddress(tokenAddr) + padInt(ticket.Amount) + hex.EncodeToString(payload)
	tx := map[string]string{
		"from": d.client.from,
		"to":   d.pool,
		"data": "0x" + data,
	}
	raw, err := d.client.call(ctx, d.client.nodeURL, "eth_sendTransaction", loanLogger, tx)
	if err != nil {
		if advErr := ticket.Advance(types.LoanFailed); advErr != nil {
			loanLogger.Error().Err(advErr).Str("loanId", ticket.LoanID).Msg("Ticket transition failed")
		}
		return "", fmt.Errorf("flash loan %s execution failed: %w", ticket.LoanID, err)
	}

	var txHash string
	if err := json.Unmarshal(raw, &txHash); err != nil {
		if advErr := ticket.Advance(types.LoanFailed); advErr != nil {
			loanLogger.Error().Err(advErr).Str("loanId", ticket.LoanID).Msg("Ticket transition failed")
		}
		return "", fmt.Errorf("flash loan %s: bad transaction hash: %w", ticket.LoanID, err)
	}

	if err := ticket.Advance(types.LoanCompleted); err != nil {
		return "", err
	}
	loanLogger.Info().
		Str("loanId", ticket.LoanID).
		Str("txHash", txHash).
		Msg("Flash loan executed")
	return txHash, nil
}
