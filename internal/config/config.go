// Package config defines configuration for the copy-trading engine.
//
// Config is resolved in four layers: hardcoded defaults, a named profile
// preset (fast/turbo), an optional YAML overlay loaded via viper (for
// operators who prefer a file to a long flag line), and finally CLI flags,
// which always win.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Mode selects between logging intents only and invoking the execution
// adapter for real.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// SizeMode selects the copy-sizing rule.
type SizeMode string

const (
	SizePercent SizeMode = "percent"
	SizeFixed   SizeMode = "fixed"
)

// Profile names a latency-tuning preset.
type Profile string

const (
	ProfileFast  Profile = "fast"
	ProfileTurbo Profile = "turbo"
)

// Config is the fully resolved runtime configuration for one run.
type Config struct {
	Source            string   `mapstructure:"source"`
	Mode              Mode     `mapstructure:"mode"`
	Profile           Profile  `mapstructure:"profile"`
	SizeMode          SizeMode `mapstructure:"size_mode"`
	MyBalanceUsdc     float64  `mapstructure:"my_balance_usdc"`
	SourceBalanceUsdc float64  `mapstructure:"source_balance_usdc"`
	FixedOrderUsdc    float64  `mapstructure:"fixed_order_usdc"`
	MinPrice          float64  `mapstructure:"min_price"`
	MaxPrice          float64  `mapstructure:"max_price"`
	MaxLagMs          int64    `mapstructure:"max_lag_ms"`
	MaxSpread         float64  `mapstructure:"max_spread"`
	CrossTick         float64  `mapstructure:"cross_tick"`
	BootstrapSeconds  int64    `mapstructure:"bootstrap_seconds"`
	ReconcileSeconds  int64    `mapstructure:"reconcile_seconds"`
	TradeFetchLimit   int      `mapstructure:"trade_fetch_limit"`
	MaxParallel       int      `mapstructure:"max_parallel"`
	MinAssetRefreshMs int64    `mapstructure:"min_asset_refresh_ms"`
	RefreshDebounceMs int64    `mapstructure:"refresh_debounce_ms"`
	ActivityCacheMs   int64    `mapstructure:"activity_cache_ms"`
	BookHTTPFallback  bool     `mapstructure:"book_http_fallback"`
	BookTTLMs         int64    `mapstructure:"book_ttl_ms"`
	BenchmarkSeconds  int64    `mapstructure:"benchmark_seconds"`
	StatsEvery        int      `mapstructure:"stats_every"`

	LiveExec string `mapstructure:"live_exec"`

	API     APIConfig     `mapstructure:"api"`
	Logging LoggingConfig `mapstructure:"logging"`
	Console ConsoleConfig `mapstructure:"console"`

	explicit map[string]bool // flags explicitly set on the command line
}

// APIConfig names the upstream HTTP/WS endpoints this engine consumes.
type APIConfig struct {
	ProfileSearchURL string `mapstructure:"profile_search_url"`
	ActivityURL      string `mapstructure:"activity_url"`
	BookURL          string `mapstructure:"book_url"`
	WSMarketURL      string `mapstructure:"ws_market_url"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}

// ConsoleConfig controls the read-only operator HTTP console.
type ConsoleConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Defaults returns the hardcoded baseline configuration, profile "fast".
func Defaults() Config {
	return Config{
		Mode:              ModePaper,
		Profile:           ProfileFast,
		SizeMode:          SizePercent,
		MyBalanceUsdc:     0,
		SourceBalanceUsdc: 0,
		FixedOrderUsdc:    0,
		MinPrice:          0.01,
		MaxPrice:          0.99,
		MaxLagMs:          1500,
		MaxSpread:         0.05,
		CrossTick:         0.01,
		BootstrapSeconds:  30,
		ReconcileSeconds:  5,
		TradeFetchLimit:   50,
		MaxParallel:       8,
		MinAssetRefreshMs: 250,
		RefreshDebounceMs: 200,
		ActivityCacheMs:   150,
		BookHTTPFallback:  true,
		BookTTLMs:         2000,
		BenchmarkSeconds:  0,
		StatsEvery:        20,
		LiveExec:          "python-bridge",
		API: APIConfig{
			ProfileSearchURL: "https://polymarket.com/api/profile/search",
			ActivityURL:      "https://data-api.polymarket.com/activity",
			BookURL:          "https://clob.polymarket.com/book",
			WSMarketURL:      "wss://ws-subscriptions-clob.polymarket.com/ws/market",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Console: ConsoleConfig{Enabled: true, Port: 8090},
		explicit: map[string]bool{},
	}
}

// ApplyProfile mutates cfg in place with the named preset's overrides,
// skipping any field the operator already explicitly set via a CLI flag
// or the YAML overlay (tracked in cfg.explicit).
func (c *Config) ApplyProfile() {
	switch c.Profile {
	case ProfileTurbo:
		c.setIfNotExplicit("reconcile_seconds", func() { c.ReconcileSeconds = 2 })
		c.setIfNotExplicit("min_asset_refresh_ms", func() { c.MinAssetRefreshMs = 80 })
		c.setIfNotExplicit("refresh_debounce_ms", func() { c.RefreshDebounceMs = 60 })
		c.setIfNotExplicit("max_parallel", func() { c.MaxParallel = 16 })
		c.setIfNotExplicit("book_http_fallback", func() { c.BookHTTPFallback = false })
		c.setIfNotExplicit("book_ttl_ms", func() { c.BookTTLMs = 800 })
		c.setIfNotExplicit("activity_cache_ms", func() { c.ActivityCacheMs = 60 })
	case ProfileFast, "":
		c.Profile = ProfileFast
	}
}

func (c *Config) setIfNotExplicit(key string, apply func()) {
	if c.explicit[key] {
		return
	}
	apply()
}

// LoadYAML overlays an optional YAML config file onto cfg via viper. A
// missing path is not an error — copy-trading is meant to run from flags
// alone.
func LoadYAML(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("COPYTRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	// Keys set in the file take precedence over the profile preset, which
	// ApplyProfile applies later and skips for explicit keys.
	if cfg.explicit == nil {
		cfg.explicit = map[string]bool{}
	}
	for _, key := range v.AllKeys() {
		cfg.explicit[key] = true
	}
	return nil
}

// Validate checks required fields and value ranges per spec.md §4.1.
func (c *Config) Validate() error {
	if c.Source == "" {
		return fmt.Errorf("source is required")
	}
	switch c.Mode {
	case ModePaper, ModeLive:
	default:
		return fmt.Errorf("mode must be paper or live, got %q", c.Mode)
	}
	switch c.SizeMode {
	case SizePercent:
		if c.MyBalanceUsdc <= 0 {
			return fmt.Errorf("my_balance_usdc must be > 0 in percent mode")
		}
		if c.SourceBalanceUsdc <= 0 {
			return fmt.Errorf("source_balance_usdc must be > 0 in percent mode")
		}
	case SizeFixed:
		if c.FixedOrderUsdc <= 0 {
			return fmt.Errorf("fixed_order_usdc must be > 0 in fixed mode")
		}
	default:
		return fmt.Errorf("size_mode must be percent or fixed, got %q", c.SizeMode)
	}
	if c.ReconcileSeconds < 2 {
		return fmt.Errorf("reconcile_seconds must be >= 2")
	}
	if c.MaxParallel <= 0 {
		return fmt.Errorf("max_parallel must be > 0")
	}
	return nil
}
