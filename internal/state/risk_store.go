/*

This file persists the risk accounting state. The full state is stored as a
single JSONB row so a restart resumes admission control exactly where it left
off; individual trades are additionally appended to trade_log for offline
analysis.

*/

package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mevforge/searcher/internal/types"
)

// Store is the durable risk-state backend. SaveRiskState must be synchronous;
// the risk manager blocks on it before admitting the next trade.
type Store interface {
	LoadRiskState() (types.RiskState, bool, error)
	SaveRiskState(state types.RiskState) error
	AppendTrade(record types.TradeRecord) error
}

// PostgresStore persists risk state through the shared connection pool.
type PostgresStore struct{}

func NewPostgresStore() *PostgresStore { return &PostgresStore{} }

// LoadRiskState returns the persisted state. The second return value is false
// when no state has ever been saved.
func (s *PostgresStore) LoadRiskState() (types.RiskState, bool, error) {
	if DB == nil {
		return types.RiskState{}, false, fmt.Errorf("database not initialized")
	}

	var raw []byte
	err := DB.QueryRow(`SELECT state FROM risk_state WHERE id = 1;`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return types.RiskState{}, false, nil
	}
	if err != nil {
		return types.RiskState{}, false, fmt.Errorf("failed to load risk state: %w", err)
	}

	var st types.RiskState
	if err := json.Unmarshal(raw, &st); err != nil {
		return types.RiskState{}, false, fmt.Errorf("failed to decode risk state: %w", err)
	}
	if st.DailyTrades == nil {
		st.DailyTrades = make(map[types.StrategyKind]int)
	}
	if st.Positions == nil {
		st.Positions = make(map[string]float64)
	}

	log.Debug().
		Float64("dailyLoss", st.DailyLoss).
		Int("historyLen", len(st.TradeHistory)).
		Msg("Loaded persisted risk state")
	return st, true, nil
}

// SaveRiskState upserts the single state row inside a transaction.
func (s *PostgresStore) SaveRiskState(state types.RiskState) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode risk state: %w", err)
	}

	upsertSQL := `
		INSERT INTO risk_state (id, state, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at;
	`
	if _, err := DB.Exec(upsertSQL, raw, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save risk state: %w", err)
	}
	return nil
}

// AppendTrade records one settled attempt in the trade log.
func (s *PostgresStore) AppendTrade(record types.TradeRecord) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	insertSQL := `
		INSERT INTO trade_log (trade_id, strategy, success, profit_loss, gas_used, error, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	_, err := DB.Exec(insertSQL,
		record.TradeID,
		string(record.Strategy),
		record.Success,
		record.ProfitLoss,
		int64(record.GasUsed),
		record.Error,
		record.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append trade %s: %w", record.TradeID, err)
	}
	return nil
}
