package state

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mevforge/searcher/internal/types"
)

// MemoryStore is the in-process Store used in dry-run mode and in tests.
// State survives only for the life of the process.
type MemoryStore struct {
	mu     sync.Mutex
	raw    []byte
	trades []types.TradeRecord
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) LoadRiskState() (types.RiskState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.raw == nil {
		return types.RiskState{}, false, nil
	}
	var st types.RiskState
	if err := json.Unmarshal(s.raw, &st); err != nil {
		return types.RiskState{}, false, fmt.Errorf("failed to decode risk state: %w", err)
	}
	return st, true, nil
}

func (s *MemoryStore) SaveRiskState(state types.RiskState) error {
	// Round-trip through JSON so the in-memory store exercises the same
	// serialization path as the durable one.
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode risk state: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = raw
	return nil
}

func (s *MemoryStore) AppendTrade(record types.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, record)
	return nil
}

// Trades returns a copy of the appended trade log.
func (s *MemoryStore) Trades() []types.TradeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.TradeRecord, len(s.trades))
	copy(out, s.trades)
	return out
}
