package processor

import (
	"context"
	"testing"
	"time"

	"copytrader/internal/config"
	"copytrader/internal/execadapter"
	"copytrader/internal/router"
	"copytrader/internal/telemetry"
	"copytrader/pkg/types"
)

type fakeFetcher struct {
	items []types.TradeItem
	err   error
}

func (f fakeFetcher) Fetch(context.Context, string, int) ([]types.TradeItem, error) {
	return f.items, f.err
}

func TestBootstrapSeedsSeenSetAndTrackedAssets(t *testing.T) {
	now := types.NowMs()
	old := now - 60_000
	items := []types.TradeItem{
		{TransactionHash: "0x1", Asset: "A", Side: types.BUY, TimestampMs: now, Price: dec(0.5), UsdcSize: dec(10)},
		{TransactionHash: "0x2", Asset: "B", Side: types.SELL, TimestampMs: old, Price: dec(0.5), UsdcSize: dec(10)},
	}
	fetcher := fakeFetcher{items: items}

	cfg := baseConfig()
	cfg.Mode = config.ModePaper
	book := fakeBook{snap: types.BookSnapshot{Asset: "A", BestBid: dec(0.49), HasBid: true, BestAsk: dec(0.51), HasAsk: true}}
	rec := telemetry.NewRecorder(1000, testLogger())
	p := New(cfg, book, execadapter.PaperAdapter{}, rec, testLogger())

	seen := router.NewSeenSet()
	tracked := make(map[string]struct{})

	err := Bootstrap(context.Background(), fetcher, "0xabc", 50, 10, seen, tracked, p, testLogger())
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}

	if len(tracked) != 2 {
		t.Errorf("tracked assets = %d, want 2", len(tracked))
	}
	if !seen.InsertIfAbsent("already-checked") {
		t.Fatalf("sanity check on SeenSet failed")
	}
	if seen.InsertIfAbsent(items[0].IdentityKey()) {
		t.Errorf("item 0's identity key should already be seeded by Bootstrap")
	}
	if seen.InsertIfAbsent(items[1].IdentityKey()) {
		t.Errorf("item 1's identity key should already be seeded by Bootstrap")
	}

	deadline := time.Now().Add(2 * time.Second)
	for p.InFlight() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if rec.Snapshot().Count != 1 {
		t.Errorf("dispatched count = %d, want 1 (only the within-window item)", rec.Snapshot().Count)
	}
}
