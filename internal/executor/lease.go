package executor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mevforge/searcher/internal/types"
)

var ErrLeaseHeld = errors.New("execution lease already held")

// LeaseTable serializes execution per (strategy, pool pair). Concurrent
// attempts against the same liquidity race each other on chain; only one may
// be in flight at a time.
type LeaseTable struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLeaseTable() *LeaseTable {
	return &LeaseTable{held: make(map[string]bool)}
}

func leaseKey(strategy types.StrategyKind, poolPair string) string {
	return string(strategy) + "|" + poolPair
}

// Acquire takes the lease for the opportunity's (strategy, pool pair) and
// returns a release function. It never blocks: a held lease is an error.
func (t *LeaseTable) Acquire(opp *types.Opportunity) (func(), error) {
	key := leaseKey(opp.Strategy, opp.PoolPair())

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.held[key] {
		return nil, fmt.Errorf("%w: %s", ErrLeaseHeld, key)
	}
	t.held[key] = true

	var once sync.Once
	release := func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.held, key)
		})
	}
	return release, nil
}
