package chain

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/mevforge/searcher/internal/types"
)

// Reader is the read-only view of the chain the strategies and the executor
// need. Implementations must be safe for concurrent use.
type Reader interface {
	// GetPoolReserves returns the current reserves for a pool, oriented so
	// that ReserveIn belongs to pool.TokenIn.
	GetPoolReserves(ctx context.Context, pairID types.PairID) (types.Pool, error)

	// GasPrice returns the current gas price in wei.
	GasPrice(ctx context.Context) (sdkmath.Int, error)

	// BlockNumber returns the latest block height.
	BlockNumber(ctx context.Context) (uint64, error)

	// TransactionReceipt returns the receipt for a mined transaction, or
	// ErrNotMined while the transaction is still pending.
	TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error)

	// Allowance returns the amount the router may spend of the given token
	// on behalf of the searcher account.
	Allowance(ctx context.Context, token string) (sdkmath.Int, error)

	// TokenBalance returns the searcher account's balance of the given
	// token.
	TokenBalance(ctx context.Context, token string) (sdkmath.Int, error)

	// ChainID returns the chain the endpoint is serving.
	ChainID(ctx context.Context) (uint64, error)
}

// Submitter sends signed transactions and bundles.
type Submitter interface {
	// SignAndSend signs the payload and broadcasts it, returning the
	// transaction hash.
	SignAndSend(ctx context.Context, payload []byte, gasPrice sdkmath.Int, gasLimit uint64) (string, error)

	// Approve grants the router spending rights for the token and returns
	// the approval transaction hash.
	Approve(ctx context.Context, token string, amount sdkmath.Int) (string, error)

	// SubmitBundle submits an atomic bundle targeting the given block and
	// returns the bundle hash.
	SubmitBundle(ctx context.Context, txs [][]byte, targetBlock uint64) (string, error)

	// BundleStatus reports whether the bundle landed in its target block.
	BundleStatus(ctx context.Context, bundleHash string, targetBlock uint64) (BundleInclusion, error)
}

// FlashLoanProvider fronts the capital for a single atomic execution.
type FlashLoanProvider interface {
	// RequestLoan reserves a loan of the given size and returns a ticket
	// tracking its lifecycle.
	RequestLoan(ctx context.Context, token string, amount sdkmath.Int) (*types.FlashLoanTicket, error)

	// Execute runs the borrowed-capital callback. The loan plus fee is
	// repaid out of the callback's proceeds; if repayment would fail the
	// whole transaction reverts and the error is returned.
	Execute(ctx context.Context, ticket *types.FlashLoanTicket, payload []byte) (string, error)
}

// Receipt is the subset of a transaction receipt the executor verifies
// against. Realized profit is not part of the receipt; the executor diffs
// the profit-token balance around the attempt instead.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
	Success     bool
}

// BundleInclusion is the outcome of a bundle submission.
type BundleInclusion struct {
	Included    bool
	BlockNumber uint64
	TxHashes    []string
}

// Clock abstracts time for the executor's bounded waits so tests can drive
// them synchronously.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall-clock implementation used outside tests.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
