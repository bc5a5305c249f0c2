package processor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"copytrader/internal/config"
	"copytrader/internal/execadapter"
	"copytrader/internal/telemetry"
	"copytrader/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBook struct {
	snap types.BookSnapshot
}

func (f fakeBook) GetTopOfBook(context.Context, string) types.BookSnapshot { return f.snap }

type recordingExec struct {
	calls []string
	res   execadapter.Result
	err   error
}

func (r *recordingExec) PlaceOrder(_ context.Context, tokenID string, side types.Side, price, shares float64) (execadapter.Result, error) {
	r.calls = append(r.calls, string(side))
	return r.res, r.err
}

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func baseConfig() config.Config {
	cfg := config.Defaults()
	cfg.Source = "0xabc"
	cfg.SizeMode = config.SizePercent
	cfg.MyBalanceUsdc = 100
	cfg.SourceBalanceUsdc = 1000
	cfg.MaxParallel = 4
	return cfg
}

// S1: percent-mode paper BUY dispatches at ask+tick, sized by balance ratio.
func TestProcessPercentPaperBuyDispatches(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = config.ModePaper
	book := fakeBook{snap: types.BookSnapshot{Asset: "A", BestBid: dec(0.50), HasBid: true, BestAsk: dec(0.52), HasAsk: true}}
	rec := telemetry.NewRecorder(1000, testLogger())
	p := New(cfg, book, execadapter.PaperAdapter{}, rec, testLogger())

	item := types.TradeItem{
		TransactionHash: "0x1", Asset: "A", Side: types.BUY,
		TimestampMs: types.NowMs(), Price: dec(0.50), Size: dec(0),
		UsdcSize: dec(20),
	}
	p.Process(context.Background(), item, "ws", item.TimestampMs)

	snap := rec.Snapshot()
	if snap.Count != 1 {
		t.Fatalf("Count = %d, want 1 (trade should have dispatched and recorded a sample)", snap.Count)
	}
}

// S2: spread above maxSpread rejects before pricing.
func TestProcessRejectsOnWideSpread(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = config.ModePaper
	cfg.MaxSpread = 0.01
	book := fakeBook{snap: types.BookSnapshot{Asset: "A", BestBid: dec(0.40), HasBid: true, BestAsk: dec(0.60), HasAsk: true}}
	rec := telemetry.NewRecorder(1000, testLogger())
	p := New(cfg, book, execadapter.PaperAdapter{}, rec, testLogger())

	item := types.TradeItem{TransactionHash: "0x2", Asset: "A", Side: types.BUY, TimestampMs: types.NowMs(), Price: dec(0.50), UsdcSize: dec(20)}
	p.Process(context.Background(), item, "ws", item.TimestampMs)

	if rec.Snapshot().Count != 0 {
		t.Errorf("Count = %d, want 0 (wide spread must reject)", rec.Snapshot().Count)
	}
}

// S3: stale event (lag beyond maxLagMs) is rejected.
func TestProcessRejectsOnLag(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = config.ModePaper
	cfg.MaxLagMs = 100
	book := fakeBook{snap: types.BookSnapshot{Asset: "A", BestBid: dec(0.40), HasBid: true, BestAsk: dec(0.42), HasAsk: true}}
	rec := telemetry.NewRecorder(1000, testLogger())
	p := New(cfg, book, execadapter.PaperAdapter{}, rec, testLogger())

	stale := types.NowMs() - 5000
	item := types.TradeItem{TransactionHash: "0x3", Asset: "A", Side: types.BUY, TimestampMs: stale, Price: dec(0.41), UsdcSize: dec(20)}
	p.Process(context.Background(), item, "ws", stale)

	if rec.Snapshot().Count != 0 {
		t.Errorf("Count = %d, want 0 (stale event must reject on lag)", rec.Snapshot().Count)
	}
}

// S4: fixed-mode SELL crosses the bid only, ignoring the ask side.
func TestProcessFixedSellCrossesBidOnly(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = config.ModePaper
	cfg.SizeMode = config.SizeFixed
	cfg.FixedOrderUsdc = 15
	cfg.CrossTick = 0.01
	book := fakeBook{snap: types.BookSnapshot{Asset: "B", BestBid: dec(0.60), HasBid: true}}
	rec := telemetry.NewRecorder(1000, testLogger())
	p := New(cfg, book, execadapter.PaperAdapter{}, rec, testLogger())

	item := types.TradeItem{TransactionHash: "0x4", Asset: "B", Side: types.SELL, TimestampMs: types.NowMs(), Price: dec(0.60), UsdcSize: dec(30)}
	px, ok := p.priceOrder(item.Side, book.snap)
	if !ok {
		t.Fatalf("priceOrder() ok = false, want true")
	}
	want := dec(0.59)
	if !px.Equal(want) {
		t.Errorf("priceOrder() = %s, want %s (bestBid - crossTick)", px, want)
	}

	p.Process(context.Background(), item, "ws", item.TimestampMs)
	if rec.Snapshot().Count != 1 {
		t.Errorf("Count = %d, want 1", rec.Snapshot().Count)
	}
}

// Missing the required touch side rejects even when the other side is present.
func TestProcessRejectsOnMissingTouch(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = config.ModePaper
	book := fakeBook{snap: types.BookSnapshot{Asset: "A", BestBid: dec(0.40), HasBid: true}} // no ask
	rec := telemetry.NewRecorder(1000, testLogger())
	p := New(cfg, book, execadapter.PaperAdapter{}, rec, testLogger())

	item := types.TradeItem{TransactionHash: "0x5", Asset: "A", Side: types.BUY, TimestampMs: types.NowMs(), Price: dec(0.41), UsdcSize: dec(20)}
	p.Process(context.Background(), item, "ws", item.TimestampMs)

	if rec.Snapshot().Count != 0 {
		t.Errorf("Count = %d, want 0 (BUY requires a known ask)", rec.Snapshot().Count)
	}
}

// Live mode invokes the execution adapter once and records a latency sample.
func TestProcessLiveModeInvokesAdapter(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = config.ModeLive
	book := fakeBook{snap: types.BookSnapshot{Asset: "A", BestBid: dec(0.40), HasBid: true, BestAsk: dec(0.42), HasAsk: true}}
	rec := telemetry.NewRecorder(1000, testLogger())
	exec := &recordingExec{res: execadapter.Result{Success: true, Message: "ok"}}
	p := New(cfg, book, exec, rec, testLogger())

	item := types.TradeItem{TransactionHash: "0x6", Asset: "A", Side: types.BUY, TimestampMs: types.NowMs(), Price: dec(0.41), UsdcSize: dec(20)}
	p.Process(context.Background(), item, "ws", item.TimestampMs)

	if len(exec.calls) != 1 {
		t.Fatalf("adapter calls = %d, want 1", len(exec.calls))
	}
	if rec.Snapshot().Count != 1 {
		t.Errorf("Count = %d, want 1", rec.Snapshot().Count)
	}
}

// Price band rejects trades priced outside [minPrice, maxPrice].
func TestProcessRejectsOutsidePriceBand(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = config.ModePaper
	cfg.MinPrice = 0.10
	cfg.MaxPrice = 0.90
	book := fakeBook{snap: types.BookSnapshot{Asset: "A", BestBid: dec(0.01), HasBid: true, BestAsk: dec(0.02), HasAsk: true}}
	rec := telemetry.NewRecorder(1000, testLogger())
	p := New(cfg, book, execadapter.PaperAdapter{}, rec, testLogger())

	item := types.TradeItem{TransactionHash: "0x7", Asset: "A", Side: types.BUY, TimestampMs: types.NowMs(), Price: dec(0.01), UsdcSize: dec(20)}
	p.Process(context.Background(), item, "ws", item.TimestampMs)

	if rec.Snapshot().Count != 0 {
		t.Errorf("Count = %d, want 0 (price below min_price must reject)", rec.Snapshot().Count)
	}
}

// Dispatch bounds concurrency at maxParallel: InFlight never exceeds it.
func TestDispatchBoundsConcurrency(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = config.ModePaper
	cfg.MaxParallel = 2
	book := fakeBook{snap: types.BookSnapshot{Asset: "A", BestBid: dec(0.40), HasBid: true, BestAsk: dec(0.42), HasAsk: true}}
	rec := telemetry.NewRecorder(1000, testLogger())
	p := New(cfg, book, execadapter.PaperAdapter{}, rec, testLogger())

	for i := 0; i < 10; i++ {
		item := types.TradeItem{TransactionHash: "0x8", Asset: "A", Side: types.BUY, TimestampMs: types.NowMs(), Price: dec(0.41), UsdcSize: dec(20)}
		p.Dispatch(context.Background(), item, "ws", item.TimestampMs)
		if got := p.InFlight(); got > cfg.MaxParallel {
			t.Fatalf("InFlight() = %d, want <= %d", got, cfg.MaxParallel)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for p.InFlight() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.InFlight() != 0 {
		t.Fatalf("InFlight() = %d after deadline, dispatched tasks never drained", p.InFlight())
	}
	if rec.Snapshot().Count != 10 {
		t.Errorf("Count = %d, want 10", rec.Snapshot().Count)
	}
}
