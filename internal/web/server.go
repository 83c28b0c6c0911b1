/*

This file contains the operational status server: health, execution
statistics, risk state, and recent trades, served read-only over HTTP. It
exposes nothing that mutates the searcher.

*/

package web

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"

	"github.com/mevforge/searcher/internal/executor"
	"github.com/mevforge/searcher/internal/logger"
	"github.com/mevforge/searcher/internal/risk"
)

var webLogger = logger.GetForComponent("status_server")

// StatusServer handles HTTP requests for searcher observability.
type StatusServer struct {
	router      *mux.Router
	port        string
	coordinator *executor.Coordinator
	riskMgr     *risk.Manager
	startedAt   time.Time
}

// NewStatusServer creates a status server over the running coordinator and
// risk manager.
func NewStatusServer(port string, coordinator *executor.Coordinator, riskMgr *risk.Manager) *StatusServer {
	if port == "" {
		port = "8080"
	}
	server := &StatusServer{
		router:      mux.NewRouter(),
		port:        port,
		coordinator: coordinator,
		riskMgr:     riskMgr,
		startedAt:   time.Now(),
	}
	server.setupRoutes()
	return server
}

func (s *StatusServer) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/risk", s.handleRisk).Methods("GET")
	api.HandleFunc("/trades", s.handleTrades).Methods("GET")

	s.router.Use(s.loggingMiddleware)
}

// Start starts the status server. Blocks until the listener fails.
func (s *StatusServer) Start() error {
	webLogger.Info().Str("port", s.port).Msg("Starting status server")

	server := &http.Server{
		Addr:         ":" + s.port,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	s.writeJSON(w, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"goroutines":     runtime.NumGoroutine(),
		"heap_alloc_mb":  mem.HeapAlloc / 1024 / 1024,
		"emergency":      s.riskMgr.Emergency(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *StatusServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.coordinator.Stats()
	s.writeJSON(w, map[string]any{
		"attempts":     stats.Attempts,
		"successes":    stats.Successes,
		"failures":     stats.Failures,
		"by_strategy":  stats.ByStrategy,
		"total_profit": stats.TotalProfit.String(),
	})
}

func (s *StatusServer) handleRisk(w http.ResponseWriter, r *http.Request) {
	st := s.riskMgr.Snapshot()
	s.writeJSON(w, map[string]any{
		"daily_loss":    st.DailyLoss,
		"daily_trades":  st.DailyTrades,
		"failed_trades": st.FailedTrades,
		"last_reset":    st.LastReset,
		"positions":     st.Positions,
		"emergency":     s.riskMgr.Emergency(),
	})
}

func (s *StatusServer) handleTrades(w http.ResponseWriter, r *http.Request) {
	st := s.riskMgr.Snapshot()
	// Most recent first.
	history := st.TradeHistory
	reversed := make([]any, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		reversed = append(reversed, history[i])
	}
	s.writeJSON(w, map[string]any{
		"count":  len(reversed),
		"trades": reversed,
	})
}

func (s *StatusServer) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *StatusServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		webLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}
