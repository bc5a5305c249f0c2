// Package api implements a minimal read-only operator console: GET
// /health, GET /stats, GET /trades. It generalizes the teacher's
// internal/api dashboard server (net/http.ServeMux, http.Server with
// explicit timeouts) but deliberately drops the teacher's WebSocket
// event-push Hub (stream.go/events.go) — there is no per-market
// quote/position state here to stream, and nothing in the spec calls
// for a push interface. See DESIGN.md.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"copytrader/internal/telemetry"
	"copytrader/internal/tradelog"
)

// telemetryAdapter converts telemetry.Recorder's Summary into the
// console's StatsSnapshot wire shape.
type telemetryAdapter struct {
	rec *telemetry.Recorder
}

func (a telemetryAdapter) Snapshot() StatsSnapshot {
	s := a.rec.Snapshot()
	return StatsSnapshot{
		Count:       s.Count,
		TotalP50:    s.TotalP50,
		TotalP90:    s.TotalP90,
		TotalP99:    s.TotalP99,
		DecisionP50: s.DecisionP50,
		DecisionP90: s.DecisionP90,
		SubmitP50:   s.SubmitP50,
		AckP50:      s.AckP50,
	}
}

// Server runs the operator console's HTTP surface.
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// NewServer builds a console Server bound to addr (":<port>").
func NewServer(port int, rec *telemetry.Recorder, trades *tradelog.Log, logger *slog.Logger) *Server {
	handlers := NewHandlers(telemetryAdapter{rec: rec}, trades, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/stats", handlers.HandleStats)
	mux.HandleFunc("/trades", handlers.HandleTrades)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{server: srv, logger: logger.With("component", "api-server")}
}

// Start runs the console's HTTP server. Blocks until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("operator console starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("console server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts the console down.
func (s *Server) Stop() error {
	s.logger.Info("stopping operator console")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
