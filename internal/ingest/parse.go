package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/mevforge/searcher/internal/types"
)

// swapMessage is the wire format of one pending-swap notification.
type swapMessage struct {
	Topic    string `json:"topic"`
	Hash     string `json:"hash"`
	TokenIn  string `json:"token_in"`
	TokenOut string `json:"token_out"`
	AmountIn string `json:"amount_in"`
	Deadline int64  `json:"deadline"` // unix seconds; 0 means none
}

// ParseSwapMessage decodes one feed message. The second return value is
// false for non-swap messages (acks, heartbeats); an error means a swap
// message that cannot be used.
func ParseSwapMessage(data []byte) (types.PendingSwap, bool, error) {
	var msg swapMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return types.PendingSwap{}, false, fmt.Errorf("failed to decode feed message: %w", err)
	}
	if msg.Topic != "pending_swaps" {
		return types.PendingSwap{}, false, nil
	}

	if msg.Hash == "" || msg.TokenIn == "" || msg.TokenOut == "" {
		return types.PendingSwap{}, false, fmt.Errorf("swap message missing fields: %+v", msg)
	}
	amount, ok := sdkmath.NewIntFromString(msg.AmountIn)
	if !ok || !amount.IsPositive() {
		return types.PendingSwap{}, false, fmt.Errorf("swap %s has bad amount %q", msg.Hash, msg.AmountIn)
	}

	swap := types.PendingSwap{
		Hash:     msg.Hash,
		TokenIn:  msg.TokenIn,
		TokenOut: msg.TokenOut,
		AmountIn: amount,
	}
	if msg.Deadline > 0 {
		swap.Deadline = time.Unix(msg.Deadline, 0).UTC()
	}
	return swap, true, nil
}
