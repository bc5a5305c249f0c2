// Package reconcile implements the periodic activity-pull safety net from
// spec.md §4.7, generalizing the teacher's market.Scanner.Run ticker loop
// (immediate first scan, then time.NewTicker, non-blocking result
// handoff) from market discovery to WS-gap recovery and new-asset
// discovery.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"copytrader/internal/router"
	"copytrader/pkg/types"
)

// ActivityFetcher is the narrow dependency reconcile needs from
// activity.Fetcher.
type ActivityFetcher interface {
	Fetch(ctx context.Context, wallet string, limit int) ([]types.TradeItem, error)
}

// Feed is the narrow dependency reconcile needs from feed.Feed to expand
// the tracked asset set and trigger a re-subscription.
type Feed interface {
	SetTracked(assets []string)
	IsOpen() bool
	Resubscribe() error
}

// Dispatcher is the narrow dependency reconcile needs from
// processor.Processor.
type Dispatcher interface {
	Dispatch(ctx context.Context, item types.TradeItem, reason string, eventTsMs int64)
}

// Loop runs the reconcile ticker and owns the canonical TrackedAssetSet.
type Loop struct {
	fetcher ActivityFetcher
	wallet  string
	limit   int
	period  time.Duration

	seen *router.SeenSet
	feed Feed
	disp Dispatcher

	mu      sync.Mutex
	tracked map[string]struct{}

	logger *slog.Logger
}

// New builds a reconcile Loop. period is reconcileSeconds (config.Validate
// rejects values below 2s). initialTracked seeds
// TrackedAssetSet from bootstrap.
func New(
	fetcher ActivityFetcher,
	wallet string,
	limit int,
	period time.Duration,
	seen *router.SeenSet,
	feed Feed,
	disp Dispatcher,
	initialTracked map[string]struct{},
	logger *slog.Logger,
) *Loop {
	tracked := make(map[string]struct{}, len(initialTracked))
	for a := range initialTracked {
		tracked[a] = struct{}{}
	}
	return &Loop{
		fetcher: fetcher,
		wallet:  wallet,
		limit:   limit,
		period:  period,
		seen:    seen,
		feed:    feed,
		disp:    disp,
		tracked: tracked,
		logger:  logger.With("component", "reconcile"),
	}
}

// Run performs an immediate reconcile pass, then polls on a fixed ticker
// until ctx is cancelled (spec.md §4.7).
func (l *Loop) Run(ctx context.Context) {
	l.reconcile(ctx)

	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.reconcile(ctx)
		}
	}
}

// reconcile fetches recent activity, expands TrackedAssetSet, dispatches
// unseen trades tagged "reconcile", and re-subscribes the WS feed if new
// assets were discovered. Errors are logged and the loop rearms
// regardless (spec.md §4.7).
func (l *Loop) reconcile(ctx context.Context) {
	items, err := l.fetcher.Fetch(ctx, l.wallet, l.limit)
	if err != nil {
		l.logger.Error("reconcile fetch failed", "error", err)
		return
	}

	grew := false
	dispatched := 0
	for _, item := range items {
		if l.addTracked(item.Asset) {
			grew = true
		}
		if !l.seen.InsertIfAbsent(item.IdentityKey()) {
			continue
		}
		l.disp.Dispatch(ctx, item, "reconcile", item.TimestampMs)
		dispatched++
	}

	if grew {
		l.feed.SetTracked(l.trackedSlice())
		if l.feed.IsOpen() {
			if err := l.feed.Resubscribe(); err != nil {
				l.logger.Error("resubscribe after asset expansion failed", "error", err)
			}
		}
	}

	l.logger.Info("reconcile complete", "fetched", len(items), "dispatched", dispatched, "assets", l.assetCount())
}

func (l *Loop) addTracked(asset string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.tracked[asset]; ok {
		return false
	}
	l.tracked[asset] = struct{}{}
	return true
}

func (l *Loop) trackedSlice() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.tracked))
	for a := range l.tracked {
		out = append(out, a)
	}
	return out
}

// IsTracked reports whether asset is currently in TrackedAssetSet, used
// by the WS dispatcher to gate last_trade_price-triggered refreshes
// (spec.md §4.5).
func (l *Loop) IsTracked(asset string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.tracked[asset]
	return ok
}

func (l *Loop) assetCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tracked)
}
