package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"copytrader/internal/tradelog"
)

// StatsProvider is the narrow dependency handlers need from
// telemetry.Recorder.
type StatsProvider interface {
	Snapshot() StatsSnapshot
}

// StatsSnapshot mirrors telemetry.Summary's shape for JSON encoding
// without importing internal/telemetry's package-level type directly
// into the console's public surface.
type StatsSnapshot struct {
	Count       int   `json:"count"`
	TotalP50    int64 `json:"total_p50_ms"`
	TotalP90    int64 `json:"total_p90_ms"`
	TotalP99    int64 `json:"total_p99_ms"`
	DecisionP50 int64 `json:"decision_p50_ms"`
	DecisionP90 int64 `json:"decision_p90_ms"`
	SubmitP50   int64 `json:"submit_p50_ms"`
	AckP50      int64 `json:"ack_p50_ms"`
}

// TradesProvider is the narrow dependency handlers need from
// tradelog.Log.
type TradesProvider interface {
	Recent(n int) []tradelog.Record
}

// Handlers holds the HTTP handler dependencies for the read-only
// operator console.
type Handlers struct {
	stats  StatsProvider
	trades TradesProvider
	logger *slog.Logger
}

// NewHandlers creates a Handlers instance.
func NewHandlers(stats StatsProvider, trades TradesProvider, logger *slog.Logger) *Handlers {
	return &Handlers{stats: stats, trades: trades, logger: logger.With("component", "api-handlers")}
}

// HandleHealth reports liveness only; it never inspects engine state.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// HandleStats returns the current latency percentile summary.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.stats.Snapshot()); err != nil {
		h.logger.Error("failed to encode stats", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// HandleTrades returns the last N dispatched mirror trades. N is read
// from the "n" query parameter (default 50, capped implicitly by
// tradelog's own retention).
func (h *Handlers) HandleTrades(w http.ResponseWriter, r *http.Request) {
	n := 50
	if raw := r.URL.Query().Get("n"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			n = parsed
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.trades.Recent(n)); err != nil {
		h.logger.Error("failed to encode trades", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
