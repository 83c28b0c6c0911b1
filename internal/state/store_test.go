package state

import (
	"testing"
	"time"

	"github.com/mevforge/searcher/internal/types"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()

	_, found, err := store.LoadRiskState()
	if err != nil {
		t.Fatalf("load on empty store: %v", err)
	}
	if found {
		t.Fatal("empty store reported persisted state")
	}

	reset := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	saved := types.NewRiskState(reset)
	saved.DailyLoss = 412.5
	saved.DailyTrades[types.StrategyArbitrage] = 7
	saved.DailyTrades[types.StrategySandwich] = 2
	saved.FailedTrades = 3
	saved.Positions["WETH"] = 12.25
	saved.TradeHistory = append(saved.TradeHistory, types.TradeRecord{
		Timestamp:  reset.Add(time.Hour),
		TradeID:    "t-1",
		Strategy:   types.StrategyArbitrage,
		Success:    false,
		ProfitLoss: -412.5,
		GasUsed:    250000,
		Error:      "reverted",
	})

	if err := store.SaveRiskState(saved); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, found, err := store.LoadRiskState()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !found {
		t.Fatal("saved state not found")
	}

	if loaded.DailyLoss != saved.DailyLoss {
		t.Errorf("daily loss: got %v, want %v", loaded.DailyLoss, saved.DailyLoss)
	}
	if loaded.FailedTrades != saved.FailedTrades {
		t.Errorf("failed trades: got %d, want %d", loaded.FailedTrades, saved.FailedTrades)
	}
	if got := loaded.DailyTrades[types.StrategyArbitrage]; got != 7 {
		t.Errorf("arbitrage count: got %d, want 7", got)
	}
	if got := loaded.DailyTrades[types.StrategySandwich]; got != 2 {
		t.Errorf("sandwich count: got %d, want 2", got)
	}
	if got := loaded.Positions["WETH"]; got != 12.25 {
		t.Errorf("position: got %v, want 12.25", got)
	}
	if !loaded.LastReset.Equal(reset) {
		t.Errorf("last reset: got %v, want %v", loaded.LastReset, reset)
	}
	if len(loaded.TradeHistory) != 1 {
		t.Fatalf("history length: got %d, want 1", len(loaded.TradeHistory))
	}
	rec := loaded.TradeHistory[0]
	if rec.TradeID != "t-1" || rec.ProfitLoss != -412.5 || rec.Error != "reverted" {
		t.Errorf("unexpected history record: %+v", rec)
	}
}

func TestMemoryStoreSaveIsSnapshot(t *testing.T) {
	store := NewMemoryStore()

	st := types.NewRiskState(time.Now().UTC())
	st.Positions["WETH"] = 1
	if err := store.SaveRiskState(st); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Mutating the caller's copy must not leak into the stored state.
	st.Positions["WETH"] = 99
	st.DailyLoss = 1000

	loaded, _, err := store.LoadRiskState()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Positions["WETH"] != 1 {
		t.Errorf("position mutated after save: got %v, want 1", loaded.Positions["WETH"])
	}
	if loaded.DailyLoss != 0 {
		t.Errorf("daily loss mutated after save: got %v, want 0", loaded.DailyLoss)
	}
}

func TestMemoryStoreAppendTrade(t *testing.T) {
	store := NewMemoryStore()

	for i, pnl := range []float64{1.5, -0.25} {
		err := store.AppendTrade(types.TradeRecord{
			TradeID:    "t-" + string(rune('a'+i)),
			Strategy:   types.StrategyJIT,
			Success:    pnl > 0,
			ProfitLoss: pnl,
			Timestamp:  time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	trades := store.Trades()
	if len(trades) != 2 {
		t.Fatalf("trade log length: got %d, want 2", len(trades))
	}
	if trades[0].ProfitLoss != 1.5 || trades[1].ProfitLoss != -0.25 {
		t.Errorf("unexpected trade log: %+v", trades)
	}
}
