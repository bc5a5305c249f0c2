package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseFlags scans os.Args-style arguments into cfg. It deliberately does
// not use flag/pflag/cobra: spec.md §6 requires unknown flags to be
// silently ignored, and a flag whose next token itself looks like a flag
// (begins with "--") is treated as valueless: boolean flags read it as
// true, while numeric flags report a "requires a value" error. None of
// the flag libraries retrieved alongside this spec support
// either rule, so this is a small hand-rolled scanner instead.
//
// --help/-h is handled by the caller before ParseFlags runs.
func ParseFlags(cfg *Config, args []string) error {
	if cfg.explicit == nil {
		cfg.explicit = map[string]bool{}
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			continue
		}
		name := strings.TrimPrefix(arg, "--")
		var value string
		hasValue := false
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			value = name[eq+1:]
			name = name[:eq]
			hasValue = true
		} else if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
			value = args[i+1]
			hasValue = true
			i++
		}

		if err := applyFlag(cfg, name, value, hasValue); err != nil {
			return fmt.Errorf("flag --%s: %w", name, err)
		}
	}
	return nil
}

// applyFlag routes one flag name to its field. Unknown names are silently
// ignored, per spec.md §6.
func applyFlag(cfg *Config, name, value string, hasValue bool) error {
	mark := func(key string) { cfg.explicit[key] = true }

	switch name {
	case "source":
		cfg.Source = value
		mark("source")
	case "paper":
		cfg.Mode = ModePaper
		mark("mode")
	case "live":
		cfg.Mode = ModeLive
		mark("mode")
	case "mode":
		cfg.Mode = Mode(value)
		mark("mode")
	case "profile":
		cfg.Profile = Profile(value)
		mark("profile")
	case "size-mode":
		cfg.SizeMode = SizeMode(value)
		mark("size_mode")
	case "my-balance-usdc":
		f, err := parseFloatFlag(value, hasValue)
		if err != nil {
			return err
		}
		cfg.MyBalanceUsdc = f
		mark("my_balance_usdc")
	case "source-balance-usdc":
		f, err := parseFloatFlag(value, hasValue)
		if err != nil {
			return err
		}
		cfg.SourceBalanceUsdc = f
		mark("source_balance_usdc")
	case "fixed-order-usdc":
		f, err := parseFloatFlag(value, hasValue)
		if err != nil {
			return err
		}
		cfg.FixedOrderUsdc = f
		mark("fixed_order_usdc")
	case "min-price":
		f, err := parseFloatFlag(value, hasValue)
		if err != nil {
			return err
		}
		cfg.MinPrice = f
		mark("min_price")
	case "max-price":
		f, err := parseFloatFlag(value, hasValue)
		if err != nil {
			return err
		}
		cfg.MaxPrice = f
		mark("max_price")
	case "max-lag-ms":
		v, err := parseIntFlag(value, hasValue)
		if err != nil {
			return err
		}
		cfg.MaxLagMs = v
		mark("max_lag_ms")
	case "max-spread":
		f, err := parseFloatFlag(value, hasValue)
		if err != nil {
			return err
		}
		cfg.MaxSpread = f
		mark("max_spread")
	case "cross-tick":
		f, err := parseFloatFlag(value, hasValue)
		if err != nil {
			return err
		}
		cfg.CrossTick = f
		mark("cross_tick")
	case "bootstrap-seconds":
		v, err := parseIntFlag(value, hasValue)
		if err != nil {
			return err
		}
		cfg.BootstrapSeconds = v
		mark("bootstrap_seconds")
	case "reconcile-seconds":
		v, err := parseIntFlag(value, hasValue)
		if err != nil {
			return err
		}
		cfg.ReconcileSeconds = v
		mark("reconcile_seconds")
	case "trade-fetch-limit":
		v, err := parseIntFlag(value, hasValue)
		if err != nil {
			return err
		}
		cfg.TradeFetchLimit = int(v)
		mark("trade_fetch_limit")
	case "max-parallel":
		v, err := parseIntFlag(value, hasValue)
		if err != nil {
			return err
		}
		cfg.MaxParallel = int(v)
		mark("max_parallel")
	case "min-asset-refresh-ms":
		v, err := parseIntFlag(value, hasValue)
		if err != nil {
			return err
		}
		cfg.MinAssetRefreshMs = v
		mark("min_asset_refresh_ms")
	case "refresh-debounce-ms":
		v, err := parseIntFlag(value, hasValue)
		if err != nil {
			return err
		}
		cfg.RefreshDebounceMs = v
		mark("refresh_debounce_ms")
	case "activity-cache-ms":
		v, err := parseIntFlag(value, hasValue)
		if err != nil {
			return err
		}
		cfg.ActivityCacheMs = v
		mark("activity_cache_ms")
	case "book-http-fallback":
		b, err := parseBoolFlag(value, hasValue)
		if err != nil {
			return err
		}
		cfg.BookHTTPFallback = b
		mark("book_http_fallback")
	case "book-ttl-ms":
		v, err := parseIntFlag(value, hasValue)
		if err != nil {
			return err
		}
		cfg.BookTTLMs = v
		mark("book_ttl_ms")
	case "benchmark-seconds":
		v, err := parseIntFlag(value, hasValue)
		if err != nil {
			return err
		}
		cfg.BenchmarkSeconds = v
		mark("benchmark_seconds")
	case "stats-every":
		v, err := parseIntFlag(value, hasValue)
		if err != nil {
			return err
		}
		cfg.StatsEvery = int(v)
		mark("stats_every")
	case "live-exec":
		cfg.LiveExec = value
		mark("live_exec")
	case "config":
		// consumed by the caller before ParseFlags to locate the YAML
		// overlay; ignored here.
	case "log-format":
		cfg.Logging.Format = value
		mark("logging.format")
	case "log-level":
		cfg.Logging.Level = value
		mark("logging.level")
	case "console-port":
		v, err := parseIntFlag(value, hasValue)
		if err != nil {
			return err
		}
		cfg.Console.Port = int(v)
		mark("console.port")
	default:
		// unknown flags are silently ignored, per spec.md §6.
	}
	return nil
}

// ConfigPath scans args for --config (or --config=path) without applying
// any other flag, so the YAML overlay can be loaded before ParseFlags runs.
func ConfigPath(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return ""
}

func parseFloatFlag(value string, hasValue bool) (float64, error) {
	if !hasValue {
		return 0, fmt.Errorf("requires a value")
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q: %w", value, err)
	}
	return f, nil
}

func parseIntFlag(value string, hasValue bool) (int64, error) {
	if !hasValue {
		return 0, fmt.Errorf("requires a value")
	}
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", value, err)
	}
	return v, nil
}

// parseBoolFlag treats a dangling flag (no value token) as boolean true,
// matching spec.md §6's "--paper"/"--live" switch semantics generalized
// to any boolean-shaped flag.
func parseBoolFlag(value string, hasValue bool) (bool, error) {
	if !hasValue {
		return true, nil
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", value)
	}
}
