// copytrader replicates one source wallet's Polymarket trades onto an
// operator-controlled account in near real time.
//
// Architecture:
//
//	main.go                  — entry point: loads config, starts engine, waits for SIGINT/SIGTERM
//	internal/engine/engine.go — orchestrator: wires identity, feed, router, reconcile, processor
//	internal/identity         — one-shot handle/address → wallet resolution
//	internal/polyclient       — shared resty client + token-bucket limiter
//	internal/activity         — HTTP pull of the source wallet's recent trades
//	internal/feed             — market-channel WebSocket client (book + last-trade-price)
//	internal/book             — per-asset top-of-book cache with HTTP fallback
//	internal/router           — dedup SeenSet + debounced activity-refresh trigger
//	internal/reconcile        — periodic activity pull, asset-set expansion, WS resubscribe
//	internal/processor        — filter → price → size → dispatch pipeline, plus bootstrap
//	internal/execadapter      — pluggable order placement (paper / subprocess)
//	internal/telemetry        — latency ring buffer + percentile rollup
//	internal/tradelog         — ring buffer of dispatched trades for the operator console
//	internal/api              — read-only operator console (/health, /stats, /trades)
//
// Configuration resolves in four layers: hardcoded defaults, a named
// profile preset, an optional YAML overlay, and CLI flags, which always
// win (internal/config).
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"copytrader/internal/config"
	"copytrader/internal/engine"
)

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--help" || arg == "-h" {
			printUsage()
			os.Exit(0)
		}
	}

	cfg := config.Defaults()

	cfgPath := os.Getenv("COPYTRADER_CONFIG")
	if p := config.ConfigPath(os.Args[1:]); p != "" {
		cfgPath = p
	}
	if err := config.LoadYAML(&cfg, cfgPath); err != nil {
		slog.Error("failed to load config file", "error", err, "path", cfgPath)
		os.Exit(1)
	}

	if err := config.ParseFlags(&cfg, os.Args[1:]); err != nil {
		slog.Error("failed to parse flags", "error", err)
		os.Exit(1)
	}

	cfg.ApplyProfile()

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	eng, err := engine.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	logger.Info("copytrader started",
		"source", cfg.Source, "mode", cfg.Mode, "profile", cfg.Profile,
		"console", fmt.Sprintf("enabled=%t port=%d", cfg.Console.Enabled, cfg.Console.Port),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-eng.BenchmarkDone():
		logger.Info("benchmark duration elapsed")
	}

	eng.Stop()
}

// printUsage prints the flag reference to stdout and returns, per
// spec.md §6 ("--help/-h prints usage and exits 0"). Flag descriptions
// mirror the option table in spec.md §4.1.
func printUsage() {
	fmt.Println(`copytrader — event-driven copy-trading replication engine

Usage: copytrader --source <handle-or-0x> [flags]

Required:
  --source string               Source handle ("@name") or 0x wallet (42 chars).

Run mode:
  --paper                       Print mirror-order intents only (default).
  --live                        Invoke the execution adapter for real.
  --mode string                 Explicit mode: paper or live.
  --live-exec string            Execution adapter to use in live mode (default "python-bridge").

Sizing:
  --size-mode string            percent or fixed (default "percent").
  --my-balance-usdc float       Operator balance, percent mode.
  --source-balance-usdc float   Source balance, percent mode.
  --fixed-order-usdc float      Mirror order notional, fixed mode.

Risk filters:
  --min-price float             Accept/clamp price floor (default 0.01).
  --max-price float              Accept/clamp price ceiling (default 0.99).
  --max-lag-ms int               Reject if recv-event lag exceeds this (default 1500).
  --max-spread float             Reject if top-of-book spread exceeds this (default 0.05).
  --cross-tick float             Price increment past the touch when crossing (default 0.01).

Tuning:
  --profile string               Latency preset: fast (default) or turbo.
  --bootstrap-seconds int        Startup replay window (default 30).
  --reconcile-seconds int        Reconcile loop period, >= 2 (default 5).
  --trade-fetch-limit int        Max activity items per refresh (default 50).
  --max-parallel int             Concurrent trade-processing ceiling (default 8).
  --min-asset-refresh-ms int     Per-asset WS trigger cooldown (default 250).
  --refresh-debounce-ms int      Debounce horizon for coalesced refreshes (default 200).
  --activity-cache-ms int        Reuse window for the last activity payload (default 150).
  --book-http-fallback bool      Allow HTTP book probe fallback (default true).
  --book-ttl-ms int              BookSnapshot freshness horizon (default 2000).

Operations:
  --benchmark-seconds int        Self-stop after this many seconds (0 disables).
  --stats-every int              Emit a latency percentile summary every N samples.
  --console-port int             Operator console port (default 8090).
  --log-format string            text or json (default "text").
  --log-level string             debug, info, warn, error (default "info").
  --config string                Path to an optional YAML config overlay.

  --help, -h                     Print this usage and exit.

Unknown flags are silently ignored. A flag whose next token begins with
"--" is treated as valueless.`)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
