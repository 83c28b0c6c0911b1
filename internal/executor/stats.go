package executor

import (
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/mevforge/searcher/internal/types"
)

// Stats accumulates attempt counters across the coordinator's lifetime.
type Stats struct {
	mu          sync.Mutex
	attempts    int
	successes   int
	failures    int
	byStrategy  map[types.StrategyKind]int
	totalProfit sdkmath.Int
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Attempts    int
	Successes   int
	Failures    int
	ByStrategy  map[types.StrategyKind]int
	TotalProfit sdkmath.Int
}

func NewStats() *Stats {
	return &Stats{
		byStrategy:  make(map[types.StrategyKind]int),
		totalProfit: sdkmath.ZeroInt(),
	}
}

func (s *Stats) Record(result *types.ExecutionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	s.byStrategy[result.Strategy]++
	if result.Success {
		s.successes++
		s.totalProfit = s.totalProfit.Add(result.Profit)
	} else {
		s.failures++
	}
}

func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	byStrategy := make(map[types.StrategyKind]int, len(s.byStrategy))
	for k, v := range s.byStrategy {
		byStrategy[k] = v
	}
	return StatsSnapshot{
		Attempts:    s.attempts,
		Successes:   s.successes,
		Failures:    s.failures,
		ByStrategy:  byStrategy,
		TotalProfit: s.totalProfit,
	}
}
