/*

This file contains the risk manager: the single admission gate every
opportunity passes before execution, and the single sink for settled trade
results.

All mutation goes through RecordTradeResult, which persists the updated state
synchronously before returning; an admission decision is never made against
state that has not been durably saved.

*/

package risk

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mevforge/searcher/internal/chain"
	"github.com/mevforge/searcher/internal/config"
	"github.com/mevforge/searcher/internal/logger"
	"github.com/mevforge/searcher/internal/state"
	"github.com/mevforge/searcher/internal/types"
)

var riskLogger = logger.GetForComponent("risk_manager")

var (
	ErrEmergencyShutdown = errors.New("emergency shutdown active")
	ErrBreakerTripped    = errors.New("circuit breaker tripped")
	ErrDailyLossLimit    = errors.New("daily loss limit reached")
	ErrDailyTradeLimit   = errors.New("daily trade limit reached")
	ErrPositionTooLarge  = errors.New("position exceeds exposure cap")
	ErrHealthFactor      = errors.New("health factor below minimum")
)

const resetInterval = 24 * time.Hour

// Manager enforces the risk limits. Safe for concurrent use; admission checks
// and result recording serialize on one mutex.
type Manager struct {
	params config.Parameters
	store  state.Store
	clock  chain.Clock

	mu        sync.Mutex
	state     types.RiskState
	breakers  map[string]*types.BreakerState
	emergency bool

	// cumulative P&L tracking for the drawdown trigger
	cumPnL  float64
	peakPnL float64
}

// NewManager builds a manager, resuming from persisted state when the store
// has any.
func NewManager(params config.Parameters, store state.Store, clock chain.Clock) (*Manager, error) {
	st, found, err := store.LoadRiskState()
	if err != nil {
		return nil, fmt.Errorf("failed to load risk state: %w", err)
	}
	if !found {
		st = types.NewRiskState(clock.Now().UTC())
		riskLogger.Info().Msg("No persisted risk state; starting fresh")
	}

	m := &Manager{
		params:   params,
		store:    store,
		clock:    clock,
		state:    st,
		breakers: make(map[string]*types.BreakerState),
	}

	// Replay history so the drawdown trigger survives restarts.
	for _, rec := range st.TradeHistory {
		m.cumPnL += rec.ProfitLoss
		if m.cumPnL > m.peakPnL {
			m.peakPnL = m.cumPnL
		}
	}

	riskLogger.Info().
		Float64("dailyLoss", st.DailyLoss).
		Int("failedTrades", st.FailedTrades).
		Int("historyLen", len(st.TradeHistory)).
		Msg("Risk manager initialized")
	return m, nil
}

// ValidateTrade decides whether the opportunity may proceed to execution.
// positionUSD is the notional exposure of the sized position; healthFactor is
// the post-trade collateral health for flash-loan strategies (pass 0 for
// strategies without borrowed capital checks).
func (m *Manager) ValidateTrade(opp types.Opportunity, positionUSD, healthFactor float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.maybeReset()

	if m.emergency {
		return ErrEmergencyShutdown
	}

	for _, token := range []string{opp.TokenIn, opp.TokenOut} {
		if b, ok := m.breakers[token]; ok && b.Triggered {
			return fmt.Errorf("%w: %s", ErrBreakerTripped, token)
		}
	}

	if m.state.DailyLoss >= m.params.MaxDailyLoss {
		return fmt.Errorf("%w: %.2f >= %.2f", ErrDailyLossLimit, m.state.DailyLoss, m.params.MaxDailyLoss)
	}

	if m.state.DailyTrades[opp.Strategy] >= m.params.MaxDailyTrades {
		return fmt.Errorf("%w: %s at %d", ErrDailyTradeLimit, opp.Strategy, m.state.DailyTrades[opp.Strategy])
	}

	if positionUSD > m.params.MaxPositionUSD {
		return fmt.Errorf("%w: %.2f > %.2f", ErrPositionTooLarge, positionUSD, m.params.MaxPositionUSD)
	}

	if healthFactor > 0 && healthFactor < m.params.MinHealthFactor {
		return fmt.Errorf("%w: %.2f < %.2f", ErrHealthFactor, healthFactor, m.params.MinHealthFactor)
	}

	return nil
}

// RecordTradeResult folds one settled attempt into the risk state and
// persists it before returning. It is the only mutator of the state.
func (m *Manager) RecordTradeResult(record types.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.maybeReset()

	if record.ProfitLoss < 0 {
		m.state.DailyLoss += -record.ProfitLoss
	}
	m.state.DailyTrades[record.Strategy]++
	if !record.Success {
		m.state.FailedTrades++
	}

	m.state.TradeHistory = append(m.state.TradeHistory, record)
	if limit := m.params.TradeHistoryCap; limit > 0 && len(m.state.TradeHistory) > limit {
		m.state.TradeHistory = m.state.TradeHistory[len(m.state.TradeHistory)-limit:]
	}

	m.cumPnL += record.ProfitLoss
	if m.cumPnL > m.peakPnL {
		m.peakPnL = m.cumPnL
	}

	m.escalate()

	if err := m.store.SaveRiskState(m.state); err != nil {
		return fmt.Errorf("failed to persist risk state: %w", err)
	}
	if err := m.store.AppendTrade(record); err != nil {
		// The authoritative state row is saved; a trade-log failure is
		// log-only.
		riskLogger.Error().Err(err).Str("tradeId", record.TradeID).Msg("Failed to append trade log entry")
	}

	riskLogger.Info().
		Str("tradeId", record.TradeID).
		Str("strategy", string(record.Strategy)).
		Bool("success", record.Success).
		Float64("profitLoss", record.ProfitLoss).
		Float64("dailyLoss", m.state.DailyLoss).
		Msg("Trade result recorded")
	return nil
}

// escalate checks the emergency triggers against the updated state. Caller
// holds the mutex.
func (m *Manager) escalate() {
	if m.emergency {
		return
	}
	switch {
	case m.state.FailedTrades > m.params.MaxFailedTrades:
		riskLogger.Error().
			Int("failedTrades", m.state.FailedTrades).
			Msg("EMERGENCY SHUTDOWN: consecutive failure limit exceeded")
		m.emergency = true
	case m.state.DailyLoss >= m.params.EmergencyLoss:
		riskLogger.Error().
			Float64("dailyLoss", m.state.DailyLoss).
			Msg("EMERGENCY SHUTDOWN: emergency loss threshold reached")
		m.emergency = true
	case m.peakPnL > 0 && (m.peakPnL-m.cumPnL)/m.peakPnL > m.params.MaxDrawdown:
		riskLogger.Error().
			Float64("peakPnL", m.peakPnL).
			Float64("cumPnL", m.cumPnL).
			Msg("EMERGENCY SHUTDOWN: drawdown limit exceeded")
		m.emergency = true
	}
}

// maybeReset rolls the daily counters on the 24h boundary. Caller holds the
// mutex. The emergency flag is session-scoped and never auto-resets.
func (m *Manager) maybeReset() {
	now := m.clock.Now().UTC()
	if now.Sub(m.state.LastReset) < resetInterval {
		return
	}
	riskLogger.Info().
		Time("lastReset", m.state.LastReset).
		Msg("Rolling daily risk counters")
	m.state.DailyLoss = 0
	m.state.DailyTrades = make(map[types.StrategyKind]int)
	m.state.FailedTrades = 0
	m.state.LastReset = now
}

// AddExposure records notional exposure for a token while a position is
// open. It rejects the addition when the token's total would exceed the cap.
func (m *Manager) AddExposure(token string, usd float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Positions[token]+usd > m.params.MaxPositionUSD {
		return fmt.Errorf("%w: %s at %.2f + %.2f", ErrPositionTooLarge, token, m.state.Positions[token], usd)
	}
	m.state.Positions[token] += usd
	return nil
}

// ReleaseExposure removes previously added exposure after settlement.
func (m *Manager) ReleaseExposure(token string, usd float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Positions[token] -= usd
	if m.state.Positions[token] <= 0 {
		delete(m.state.Positions, token)
	}
}

// Emergency reports whether the session is in emergency shutdown.
func (m *Manager) Emergency() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emergency
}

// TriggerEmergency forces the session into emergency shutdown.
func (m *Manager) TriggerEmergency(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.emergency {
		riskLogger.Error().Str("reason", reason).Msg("EMERGENCY SHUTDOWN: triggered externally")
		m.emergency = true
	}
}

// Snapshot returns a copy of the current risk state for reporting.
func (m *Manager) Snapshot() types.RiskState {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state
	st.DailyTrades = make(map[types.StrategyKind]int, len(m.state.DailyTrades))
	for k, v := range m.state.DailyTrades {
		st.DailyTrades[k] = v
	}
	st.TradeHistory = append([]types.TradeRecord(nil), m.state.TradeHistory...)
	return st
}
