/*

This file contains the persisted risk accounting types. The JSON layout must
round-trip through the durable store unchanged; admission decisions made after
a restart depend on it.

*/

package types

import (
	"time"
)

// TradeRecord is one settled execution attempt, success or failure.
type TradeRecord struct {
	Timestamp  time.Time    `json:"timestamp"`
	TradeID    string       `json:"trade_id"`
	Strategy   StrategyKind `json:"strategy"`
	Success    bool         `json:"success"`
	ProfitLoss float64      `json:"profit_loss"`
	GasUsed    uint64       `json:"gas_used"`
	Error      string       `json:"error,omitempty"`
}

// RiskState is the durable risk accounting state. DailyLoss is always >= 0
// and resets on the rolling 24h boundary; TradeHistory is capped to the N
// most recent entries.
type RiskState struct {
	DailyLoss    float64              `json:"daily_loss"`
	DailyTrades  map[StrategyKind]int `json:"daily_trades"`
	FailedTrades int                  `json:"failed_trades"`
	LastReset    time.Time            `json:"last_reset"`
	Positions    map[string]float64   `json:"positions"`
	TradeHistory []TradeRecord        `json:"trade_history"`
}

// NewRiskState returns an empty state with initialized maps.
func NewRiskState(now time.Time) RiskState {
	return RiskState{
		DailyTrades:  make(map[StrategyKind]int),
		LastReset:    now,
		Positions:    make(map[string]float64),
		TradeHistory: make([]TradeRecord, 0),
	}
}

// BreakerState is the per-token circuit breaker observation window.
type BreakerState struct {
	LastPrice  float64   `json:"last_price"`
	LastVolume float64   `json:"last_volume"`
	LastCheck  time.Time `json:"last_check"`
	Triggered  bool      `json:"triggered"`
}
