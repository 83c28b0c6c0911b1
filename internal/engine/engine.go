/*

This file contains the scan engine: the loop that takes pending swaps off the
feed, fans candidate analysis out across workers, gates sized opportunities
through the risk manager, and hands admitted ones to the execution
coordinator.

Detection is read-only and embarrassingly parallel; execution serializes
inside the coordinator's lease table. Each candidate gets a trace id carried
through its log lines.

*/

package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mevforge/searcher/internal/chain"
	"github.com/mevforge/searcher/internal/config"
	"github.com/mevforge/searcher/internal/executor"
	"github.com/mevforge/searcher/internal/logger"
	"github.com/mevforge/searcher/internal/notifier"
	"github.com/mevforge/searcher/internal/risk"
	"github.com/mevforge/searcher/internal/strategy"
	"github.com/mevforge/searcher/internal/types"
	"github.com/mevforge/searcher/internal/utils"
)

const statsInterval = time.Minute

// Engine wires detection, risk gating, and execution together.
type Engine struct {
	logger      zerolog.Logger
	strategies  []strategy.Strategy
	coordinator *executor.Coordinator
	riskMgr     *risk.Manager
	reader      chain.Reader
	notify      notifier.Notifier
	params      config.Parameters
	swapChan    <-chan types.PendingSwap
	workers     int
}

// Config holds the dependencies for creating an Engine.
type Config struct {
	Strategies  []strategy.Strategy
	Coordinator *executor.Coordinator
	RiskManager *risk.Manager
	Reader      chain.Reader
	Notifier    notifier.Notifier
	Params      config.Parameters
	SwapChan    <-chan types.PendingSwap
	Workers     int
}

// NewEngine creates an engine with dependency injection.
func NewEngine(cfg Config) (*Engine, error) {
	if err := validateEngineConfig(cfg); err != nil {
		return nil, fmt.Errorf("engine configuration validation failed: %w", err)
	}
	return &Engine{
		logger:      logger.GetForComponent("scan_engine"),
		strategies:  cfg.Strategies,
		coordinator: cfg.Coordinator,
		riskMgr:     cfg.RiskManager,
		reader:      cfg.Reader,
		notify:      cfg.Notifier,
		params:      cfg.Params,
		swapChan:    cfg.SwapChan,
		workers:     cfg.Workers,
	}, nil
}

func validateEngineConfig(cfg Config) error {
	if len(cfg.Strategies) == 0 {
		return fmt.Errorf("at least one strategy is required")
	}
	if cfg.Coordinator == nil {
		return fmt.Errorf("coordinator cannot be nil")
	}
	if cfg.RiskManager == nil {
		return fmt.Errorf("risk manager cannot be nil")
	}
	if cfg.Reader == nil {
		return fmt.Errorf("chain reader cannot be nil")
	}
	if cfg.Notifier == nil {
		return fmt.Errorf("notifier cannot be nil")
	}
	if cfg.SwapChan == nil {
		return fmt.Errorf("swap channel cannot be nil")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("worker count must be positive")
	}
	return nil
}

// Run consumes the swap feed until the context is cancelled or the risk
// manager enters emergency shutdown.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info().
		Int("workers", e.workers).
		Int("strategies", len(e.strategies)).
		Msg("Starting scan engine")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(ctx, cancel)
		}()
	}

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			e.logStats()
			e.logger.Info().Msg("Scan engine stopped")
			return
		case <-ticker.C:
			e.logStats()
		}
	}
}

func (e *Engine) worker(ctx context.Context, cancel context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case swap, ok := <-e.swapChan:
			if !ok {
				e.logger.Info().Msg("Swap feed closed; worker exiting")
				cancel()
				return
			}
			e.handleCandidate(ctx, swap)
			if e.riskMgr.Emergency() {
				e.logger.Error().Msg("Emergency shutdown; stopping scan engine")
				e.notify.Notify("searcher halted: emergency shutdown", notifier.PriorityCritical)
				cancel()
				return
			}
		}
	}
}

// handleCandidate runs one pending swap through every detector and executes
// the admitted opportunities.
func (e *Engine) handleCandidate(ctx context.Context, swap types.PendingSwap) {
	traceID := uuid.New().String()
	candLogger := e.logger.With().Str("trace_id", traceID).Str("candidate", swap.Hash).Logger()

	for _, strat := range e.strategies {
		opp, err := strat.Analyze(ctx, swap)
		if err != nil {
			// Detection-time errors are swallowed to keep the loop alive.
			candLogger.Debug().Err(err).Str("strategy", string(strat.Kind())).Msg("Detection failed")
			continue
		}
		if opp == nil {
			continue
		}

		candLogger.Info().
			Str("strategy", string(opp.Strategy)).
			Str("opportunityId", opp.ID).
			Str("expectedNetProfit", opp.ExpectedNetProfit.String()).
			Msg("Opportunity detected")

		if !e.admit(ctx, opp, candLogger) {
			continue
		}

		result := e.coordinator.Execute(ctx, opp)
		candLogger.Info().
			Str("opportunityId", opp.ID).
			Str("state", string(result.State)).
			Bool("success", result.Success).
			Str("profit", result.Profit.String()).
			Msg("Execution attempt finished")
	}
}

// admit feeds the breaker a market observation and runs the risk checks.
func (e *Engine) admit(ctx context.Context, opp *types.Opportunity, candLogger zerolog.Logger) bool {
	if err := e.observeMarket(ctx, opp); err != nil {
		candLogger.Warn().Err(err).Str("opportunityId", opp.ID).Msg("Circuit breaker rejected opportunity")
		return false
	}

	size := opp.AmountIn
	if opp.Strategy == types.StrategySandwich {
		size = opp.FrontrunAmount
	}
	sizeFloat, err := utils.IntToFloat64(size, 18)
	if err != nil {
		candLogger.Error().Err(err).Str("opportunityId", opp.ID).Msg("Failed to convert position size")
		return false
	}
	positionUSD := sizeFloat * e.params.BaseTokenUSD

	// Health factor applies to leveraged positions only; flash loans settle
	// atomically and carry none.
	if err := e.riskMgr.ValidateTrade(*opp, positionUSD, 0); err != nil {
		candLogger.Info().Err(err).Str("opportunityId", opp.ID).Msg("Risk manager rejected opportunity")
		return false
	}
	return true
}

// observeMarket derives a price/volume observation from the opportunity's
// first pool and folds it into the circuit breaker.
func (e *Engine) observeMarket(ctx context.Context, opp *types.Opportunity) error {
	if len(opp.Pools) == 0 {
		return fmt.Errorf("opportunity %s has no pools", opp.ID)
	}
	pool, err := e.reader.GetPoolReserves(ctx, opp.Pools[0])
	if err != nil {
		// The breaker fails safe; an unreadable market is a tripped market.
		e.riskMgr.TripBreaker(opp.TokenIn, fmt.Sprintf("market unreadable: %v", err))
		return fmt.Errorf("failed to observe market: %w", err)
	}

	rIn, err := utils.IntToFloat64(pool.ReserveIn, 18)
	if err != nil {
		return err
	}
	rOut, err := utils.IntToFloat64(pool.ReserveOut, 18)
	if err != nil {
		return err
	}
	if rIn == 0 {
		return fmt.Errorf("pool %s has empty input reserve", pool.PairID)
	}

	size := opp.AmountIn
	if opp.Strategy == types.StrategySandwich {
		size = opp.FrontrunAmount
	}
	volume, err := utils.IntToFloat64(size, 18)
	if err != nil {
		return err
	}

	return e.riskMgr.CheckCircuitBreaker(opp.TokenIn, rOut/rIn, volume)
}

func (e *Engine) logStats() {
	stats := e.coordinator.Stats()
	e.logger.Info().
		Int("attempts", stats.Attempts).
		Int("successes", stats.Successes).
		Int("failures", stats.Failures).
		Str("totalProfit", stats.TotalProfit.String()).
		Msg("Execution statistics")
}
