// Package engine is the central orchestrator of the copy-trading
// replication process.
//
// It wires together every subsystem:
//
//  1. identity resolves the operator-supplied source into a wallet.
//  2. bootstrap seeds SeenSet/TrackedAssetSet and replays recent trades.
//  3. The WS feed pushes book snapshots and last-trade-price ticks.
//  4. The dedup router coalesces last-trade-price pings into debounced
//     activity pulls.
//  5. The reconcile loop is the periodic safety net and asset-discovery
//     channel.
//  6. The trade processor filters, prices, sizes, and dispatches mirror
//     orders.
//
// Lifecycle: New() → Start() → [runs until signalled or benchmark expiry] → Stop()
// (spec.md §4.12: Starting → Running → Stopping → Stopped).
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"copytrader/internal/activity"
	"copytrader/internal/api"
	"copytrader/internal/book"
	"copytrader/internal/config"
	"copytrader/internal/execadapter"
	"copytrader/internal/feed"
	"copytrader/internal/identity"
	"copytrader/internal/polyclient"
	"copytrader/internal/processor"
	"copytrader/internal/reconcile"
	"copytrader/internal/router"
	"copytrader/internal/telemetry"
	"copytrader/internal/tradelog"
	"copytrader/pkg/types"
)

// activityFetcher is the narrow dependency the engine needs from
// activity.Fetcher, matching processor.ActivityFetcher and
// reconcile.ActivityFetcher so the same *activity.Fetcher instance
// satisfies all three call sites; kept as a local interface here so
// tests can inject a stub without a real HTTP endpoint.
type activityFetcher interface {
	Fetch(ctx context.Context, wallet string, limit int) ([]types.TradeItem, error)
}

// State names a lifecycle phase (spec.md §4.12).
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
)

// Engine orchestrates every component and owns the overall lifecycle.
type Engine struct {
	cfg    config.Config
	wallet string
	logger *slog.Logger

	client    *polyclient.Client
	bookCache *book.Cache
	feedCli   *feed.Feed
	fetcher   activityFetcher
	seenSet   *router.SeenSet
	rtr       *router.Router
	proc      *processor.Processor
	recon     *reconcile.Loop
	tel       *telemetry.Recorder
	trades    *tradelog.Log
	console   *api.Server

	activityMu        sync.Mutex
	lastActivity      []types.TradeItem
	lastActivityAtSet bool
	lastActivityAt    time.Time

	stateMu sync.Mutex
	state   State

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	benchmarkDone chan struct{}
}

// New resolves identity and wires every collaborator, but starts nothing.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	client := polyclient.New()

	wallet, err := identity.Resolve(context.Background(), client, cfg.API.ProfileSearchURL, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("engine: resolve identity: %w", err)
	}

	prober := polyclient.NewBookProber(client, cfg.API.BookURL)
	bookCache := book.New(time.Duration(cfg.BookTTLMs)*time.Millisecond, cfg.BookHTTPFallback, prober, client.Book)

	fetcher := activity.New(client, cfg.API.ActivityURL)
	feedCli := feed.New(cfg.API.WSMarketURL, logger)
	seenSet := router.NewSeenSet()
	tel := telemetry.NewRecorder(cfg.StatsEvery, logger)
	trades := tradelog.New()
	exec := execadapter.New(cfg.LiveExec)
	proc := processor.New(cfg, bookCache, exec, tel, logger).WithTradeLog(trades)

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		cfg:       cfg,
		wallet:    wallet,
		logger:    logger.With("component", "engine"),
		client:    client,
		bookCache: bookCache,
		feedCli:   feedCli,
		fetcher:   fetcher,
		seenSet:   seenSet,
		proc:      proc,
		tel:       tel,
		trades:    trades,
		state:     StateStarting,
		ctx:       ctx,
		cancel:    cancel,
	}

	e.rtr = router.New(
		time.Duration(cfg.RefreshDebounceMs)*time.Millisecond,
		time.Duration(cfg.MinAssetRefreshMs)*time.Millisecond,
		e.runActivityRefresh,
	)

	if cfg.Console.Enabled {
		e.console = api.NewServer(cfg.Console.Port, tel, trades, logger)
	}

	return e, nil
}

// Start runs bootstrap synchronously, then launches the WS feed, the WS
// event dispatcher, the reconcile loop, and the operator console as
// background goroutines. Transitions Starting → Running on success
// (spec.md §4.12).
func (e *Engine) Start() error {
	tracked := make(map[string]struct{})
	if err := processor.Bootstrap(
		e.ctx, e.fetcher, e.wallet, e.cfg.TradeFetchLimit, e.cfg.BootstrapSeconds,
		e.seenSet, tracked, e.proc, e.logger,
	); err != nil {
		return fmt.Errorf("engine: bootstrap: %w", err)
	}

	assets := make([]string, 0, len(tracked))
	for a := range tracked {
		assets = append(assets, a)
	}
	e.feedCli.SetTracked(assets)

	e.recon = reconcile.New(
		e.fetcher, e.wallet, e.cfg.TradeFetchLimit,
		time.Duration(e.cfg.ReconcileSeconds)*time.Second,
		e.seenSet, e.feedCli, e.proc, tracked, e.logger,
	)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.feedCli.Run(e.ctx); err != nil && e.ctx.Err() == nil {
			e.logger.Error("feed run error", "error", err)
		}
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.dispatchFeedEvents()
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.recon.Run(e.ctx)
	}()

	if e.console != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.console.Start(); err != nil {
				e.logger.Error("operator console failed", "error", err)
			}
		}()
	}

	if e.cfg.BenchmarkSeconds > 0 {
		e.benchmarkDone = make(chan struct{})
		timer := time.NewTimer(time.Duration(e.cfg.BenchmarkSeconds) * time.Second)
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			defer timer.Stop()
			select {
			case <-timer.C:
				e.logger.Info("benchmark duration elapsed, stopping")
				close(e.benchmarkDone)
			case <-e.ctx.Done():
			}
		}()
	}

	e.setState(StateRunning)
	e.logger.Info("engine running", "wallet", e.wallet, "tracked_assets", len(tracked))
	return nil
}

// BenchmarkDone returns a channel that closes when the benchmark timer
// expires, or nil if benchmarkSeconds is 0. The caller selects on it
// alongside OS signals to decide when to call Stop.
func (e *Engine) BenchmarkDone() <-chan struct{} {
	return e.benchmarkDone
}

// Stop gracefully tears the engine down: cancels all contexts, stops the
// WS feed and router timers, stops the console, waits for every
// goroutine, and prints a final telemetry summary (spec.md §4.12).
func (e *Engine) Stop() {
	e.setState(StateStopping)
	e.logger.Info("stopping engine")

	e.cancel()
	e.feedCli.Stop()
	e.rtr.Stop()

	// The console goroutine blocks in Start until the server is stopped,
	// so the console must be stopped before waiting on the group.
	if e.console != nil {
		if err := e.console.Stop(); err != nil {
			e.logger.Error("failed to stop operator console", "error", err)
		}
	}

	e.wg.Wait()

	e.tel.LogSummary()
	e.setState(StateStopped)
	e.logger.Info("engine stopped")
}

func (e *Engine) setState(s State) {
	e.stateMu.Lock()
	e.state = s
	e.stateMu.Unlock()
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

// dispatchFeedEvents routes WS book events into the book cache and
// last-trade-price ticks into the dedup router's debounced refresh
// trigger (spec.md §4.5).
func (e *Engine) dispatchFeedEvents() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case evt := <-e.feedCli.BookEvents():
			e.bookCache.ApplyBookEvent(evt)
		case evt := <-e.feedCli.LastTradePriceEvents():
			e.handleLastTradePrice(evt)
		}
	}
}

func (e *Engine) handleLastTradePrice(evt types.WSLastTradePriceEvent) {
	if e.recon == nil || !e.recon.IsTracked(evt.AssetID) {
		return
	}
	meta := router.AssetMeta{
		EventTsMs: evt.EventTimestampMs(),
		RecvTsMs:  types.NowMs(),
	}
	e.rtr.RequestActivityRefresh(evt.AssetID, meta)
}

// runActivityRefresh implements spec.md §4.6's runActivityRefresh: reuse
// the last payload if it's younger than activityCacheMs, else fetch
// fresh; snapshot PendingRefresh into a focus-asset set; dispatch every
// unseen, in-focus item; always call FetchDone so the router can re-arm.
func (e *Engine) runActivityRefresh() {
	items, err := e.activityPayload()
	if err != nil {
		e.logger.Error("activity refresh failed", "error", err)
		e.rtr.FetchDone()
		return
	}

	focus := e.rtr.Snapshot()

	dispatched := 0
	for _, item := range items {
		if len(focus) > 0 {
			if _, ok := focus[item.Asset]; !ok {
				continue
			}
		}
		if !e.seenSet.InsertIfAbsent(item.IdentityKey()) {
			continue
		}

		eventTs := item.TimestampMs
		if meta, ok := focus[item.Asset]; ok && meta.EventTsMs > 0 {
			eventTs = meta.EventTsMs
		}
		e.proc.Dispatch(e.ctx, item, "ws", eventTs)
		dispatched++
	}

	e.logger.Debug("activity refresh complete", "fetched", len(items), "dispatched", dispatched)
	e.rtr.FetchDone()
}

func (e *Engine) activityPayload() ([]types.TradeItem, error) {
	cacheTTL := time.Duration(e.cfg.ActivityCacheMs) * time.Millisecond

	e.activityMu.Lock()
	if e.lastActivityAtSet && time.Since(e.lastActivityAt) < cacheTTL {
		items := e.lastActivity
		e.activityMu.Unlock()
		return items, nil
	}
	e.activityMu.Unlock()

	items, err := e.fetcher.Fetch(e.ctx, e.wallet, e.cfg.TradeFetchLimit)
	if err != nil {
		return nil, err
	}

	e.activityMu.Lock()
	e.lastActivity = items
	e.lastActivityAt = time.Now()
	e.lastActivityAtSet = true
	e.activityMu.Unlock()

	return items, nil
}
