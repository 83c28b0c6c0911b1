package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/mevforge/searcher/internal/chain"
	"github.com/mevforge/searcher/internal/config"
	"github.com/mevforge/searcher/internal/engine"
	"github.com/mevforge/searcher/internal/executor"
	"github.com/mevforge/searcher/internal/ingest"
	"github.com/mevforge/searcher/internal/logger"
	"github.com/mevforge/searcher/internal/notifier"
	"github.com/mevforge/searcher/internal/risk"
	"github.com/mevforge/searcher/internal/state"
	"github.com/mevforge/searcher/internal/strategy"
	"github.com/mevforge/searcher/internal/types"
	"github.com/mevforge/searcher/internal/web"
)

const (
	swapChannelDepth = 256
	workerCount      = 8
)

// main is the entry point for the searcher.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(cfg.LogLevel)
	log.Info().Msg("Searcher starting...")

	params := config.DefaultParameters()

	// --- 2. Durable State (with Safety Switch) ---
	var store state.Store
	dryRun := cfg.Mode != "live"
	if dryRun {
		log.Warn().Msg("SEARCHER_MODE is not 'live'. Running the full pipeline dry: no transactions will be broadcast.")
		store = state.NewMemoryStore()
	} else {
		log.Warn().Msg("Initializing searcher in LIVE mode. Real transactions will be broadcast.")
		if err := state.InitDB(cfg.DB); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
		store = state.NewPostgresStore()
	}

	// --- 3. Chain Access ---
	client := chain.NewClient(cfg.NodeRPC, cfg.RelayRPC, cfg.SearcherAddress, cfg.RouterAddress)

	pools := config.DefaultPools(cfg.ChainID)
	if len(pools) == 0 {
		log.Fatal().Uint64("chainId", cfg.ChainID).Msg("No pools configured for chain")
	}
	index := strategy.NewPoolIndex()
	for _, p := range pools {
		client.RegisterPair(p.PairID, chain.PairInfo{
			Address:    p.Address,
			TokenIn:    p.TokenIn,
			TokenOut:   p.TokenOut,
			FeeBps:     p.FeeBps,
			InIsToken0: p.InIsToken0,
		})
		index.Register(p.TokenIn, p.TokenOut, p.PairID)
	}
	for symbol, addr := range config.TokenAddresses(cfg.ChainID) {
		client.RegisterToken(symbol, addr)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to reach the execution node")
	}
	if chainID != cfg.ChainID {
		log.Fatal().
			Uint64("got", chainID).
			Uint64("expected", cfg.ChainID).
			Msg("Node is serving the wrong chain")
	}
	log.Info().Uint64("chainId", chainID).Str("endpoint", cfg.NodeRPC).Msg("Execution node connected")

	// --- 4. Risk, Execution, and Detection Wiring ---
	clock := chain.SystemClock{}

	riskMgr, err := risk.NewManager(params, store, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize risk manager")
	}

	var notify notifier.Notifier = notifier.Nop{}
	if cfg.WebhookURL != "" {
		notify = notifier.NewWebhook(cfg.WebhookURL)
	}

	loans := chain.NewLoanDesk(client, cfg.LendingPool, params.FlashLoanFeeBps)
	validator := executor.NewValidator(client, params, clock, cfg.ChainID)
	coordinator := executor.NewCoordinator(client, client, loans, validator, riskMgr, notify, params, clock, dryRun)

	strategies := []strategy.Strategy{
		strategy.NewArbitrage(client, index, params, clock),
		strategy.NewSandwich(client, index, params, clock),
		strategy.NewJIT(client, index, params, clock),
	}

	// --- 5. Status Server ---
	statusServer := web.NewStatusServer(cfg.WebPort, coordinator, riskMgr)
	go func() {
		if err := statusServer.Start(); err != nil {
			log.Error().Err(err).Msg("Status server stopped")
		}
	}()

	// --- 6. Feed and Engine ---
	swapChan := make(chan types.PendingSwap, swapChannelDepth)
	feed := ingest.NewFeed(cfg.MempoolWS, swapChan)
	feed.Start(ctx)
	defer feed.Stop()

	eng, err := engine.NewEngine(engine.Config{
		Strategies:  strategies,
		Coordinator: coordinator,
		RiskManager: riskMgr,
		Reader:      client,
		Notifier:    notify,
		Params:      params,
		SwapChan:    swapChan,
		Workers:     workerCount,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create engine")
	}

	log.Info().Int("pools", len(pools)).Bool("dryRun", dryRun).Msg("Starting scan engine")
	eng.Run(ctx)
	log.Info().Msg("Searcher stopped")
}
