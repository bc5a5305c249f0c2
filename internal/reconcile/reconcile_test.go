package reconcile

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"copytrader/internal/router"
	"copytrader/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubFetcher struct {
	mu    sync.Mutex
	items []types.TradeItem
	calls int
}

func (f *stubFetcher) Fetch(context.Context, string, int) ([]types.TradeItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.items, nil
}

type stubFeed struct {
	mu        sync.Mutex
	tracked   []string
	open      bool
	resubs    int
}

func (s *stubFeed) SetTracked(assets []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracked = assets
}

func (s *stubFeed) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *stubFeed) Resubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resubs++
	return nil
}

type recordingDispatcher struct {
	mu      sync.Mutex
	reasons []string
}

func (d *recordingDispatcher) Dispatch(_ context.Context, item types.TradeItem, reason string, _ int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reasons = append(d.reasons, reason)
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.reasons)
}

func TestReconcileDispatchesUnseenTradesTaggedReconcile(t *testing.T) {
	item := types.TradeItem{TransactionHash: "0x1", Asset: "A", Side: types.BUY, TimestampMs: types.NowMs(), Price: decOne()}
	fetcher := &stubFetcher{items: []types.TradeItem{item}}
	feed := &stubFeed{open: false}
	disp := &recordingDispatcher{}
	seen := router.NewSeenSet()

	l := New(fetcher, "0xabc", 100, time.Hour, seen, feed, disp, nil, testLogger())
	l.reconcile(context.Background())

	if disp.count() != 1 {
		t.Fatalf("dispatched = %d, want 1", disp.count())
	}
	if disp.reasons[0] != "reconcile" {
		t.Errorf("reason = %q, want %q", disp.reasons[0], "reconcile")
	}
}

func TestReconcileSkipsAlreadySeenTrades(t *testing.T) {
	item := types.TradeItem{TransactionHash: "0x1", Asset: "A", Side: types.BUY, TimestampMs: types.NowMs(), Price: decOne()}
	fetcher := &stubFetcher{items: []types.TradeItem{item}}
	feed := &stubFeed{}
	disp := &recordingDispatcher{}
	seen := router.NewSeenSet()
	seen.InsertIfAbsent(item.IdentityKey())

	l := New(fetcher, "0xabc", 100, time.Hour, seen, feed, disp, nil, testLogger())
	l.reconcile(context.Background())

	if disp.count() != 0 {
		t.Errorf("dispatched = %d, want 0 (already-seen trade must not replay)", disp.count())
	}
}

func TestReconcileExpandsTrackedAssetsAndResubscribesWhenFeedOpen(t *testing.T) {
	item := types.TradeItem{TransactionHash: "0x1", Asset: "NEW", Side: types.BUY, TimestampMs: types.NowMs(), Price: decOne()}
	fetcher := &stubFetcher{items: []types.TradeItem{item}}
	feed := &stubFeed{open: true}
	disp := &recordingDispatcher{}
	seen := router.NewSeenSet()

	l := New(fetcher, "0xabc", 100, time.Hour, seen, feed, disp, map[string]struct{}{"OLD": {}}, testLogger())
	l.reconcile(context.Background())

	if l.assetCount() != 2 {
		t.Errorf("assetCount() = %d, want 2", l.assetCount())
	}
	if feed.resubs != 1 {
		t.Errorf("resubs = %d, want 1 (new asset with feed open must resubscribe)", feed.resubs)
	}
}

func TestReconcileDoesNotResubscribeWhenFeedClosed(t *testing.T) {
	item := types.TradeItem{TransactionHash: "0x1", Asset: "NEW", Side: types.BUY, TimestampMs: types.NowMs(), Price: decOne()}
	fetcher := &stubFetcher{items: []types.TradeItem{item}}
	feed := &stubFeed{open: false}
	disp := &recordingDispatcher{}
	seen := router.NewSeenSet()

	l := New(fetcher, "0xabc", 100, time.Hour, seen, feed, disp, nil, testLogger())
	l.reconcile(context.Background())

	if feed.resubs != 0 {
		t.Errorf("resubs = %d, want 0 (feed not open)", feed.resubs)
	}
}

func TestReconcileDoesNotResubscribeWhenNoNewAssets(t *testing.T) {
	item := types.TradeItem{TransactionHash: "0x1", Asset: "OLD", Side: types.BUY, TimestampMs: types.NowMs(), Price: decOne()}
	fetcher := &stubFetcher{items: []types.TradeItem{item}}
	feed := &stubFeed{open: true}
	disp := &recordingDispatcher{}
	seen := router.NewSeenSet()

	l := New(fetcher, "0xabc", 100, time.Hour, seen, feed, disp, map[string]struct{}{"OLD": {}}, testLogger())
	l.reconcile(context.Background())

	if feed.resubs != 0 {
		t.Errorf("resubs = %d, want 0 (no new assets)", feed.resubs)
	}
}

func TestRunPerformsImmediateReconcileBeforeFirstTick(t *testing.T) {
	fetcher := &stubFetcher{}
	feed := &stubFeed{}
	disp := &recordingDispatcher{}
	seen := router.NewSeenSet()

	l := New(fetcher, "0xabc", 100, time.Hour, seen, feed, disp, nil, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	l.Run(ctx)

	fetcher.mu.Lock()
	calls := fetcher.calls
	fetcher.mu.Unlock()
	if calls != 1 {
		t.Errorf("fetch calls = %d, want 1 (immediate first reconcile, period far longer than ctx timeout)", calls)
	}
}

func TestIsTrackedReflectsInitialAndExpandedAssets(t *testing.T) {
	fetcher := &stubFetcher{}
	feed := &stubFeed{}
	disp := &recordingDispatcher{}
	seen := router.NewSeenSet()

	l := New(fetcher, "0xabc", 100, time.Hour, seen, feed, disp, map[string]struct{}{"OLD": {}}, testLogger())
	if !l.IsTracked("OLD") {
		t.Errorf("IsTracked(OLD) = false, want true")
	}
	if l.IsTracked("NEW") {
		t.Errorf("IsTracked(NEW) = true, want false before any reconcile pass")
	}
}

func decOne() decimal.Decimal { return decimal.NewFromFloat(1) }
