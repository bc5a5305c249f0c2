// Package processor implements the trade processor from spec.md §4.9: the
// generalization of the teacher's strategy.Maker.computeQuotes/
// quoteUpdate pipeline (validate → price → size → dispatch) rewritten
// around decimal.Decimal pricing and the spec's cross-and-clamp rule
// instead of Avellaneda-Stoikov quoting.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"copytrader/internal/config"
	"copytrader/internal/execadapter"
	"copytrader/internal/telemetry"
	"copytrader/internal/tradelog"
	"copytrader/pkg/types"
)

var tick2dp = decimal.NewFromFloat(0.01)

// BookResolver is the top-of-book lookup the processor depends on
// (spec.md §4.4), satisfied by *book.Cache.
type BookResolver interface {
	GetTopOfBook(ctx context.Context, asset string) types.BookSnapshot
}

// Processor evaluates and dispatches a single TradeItem at a time,
// bounded by a counting semaphore across concurrent invocations.
type Processor struct {
	cfg    config.Config
	book   BookResolver
	exec   execadapter.Adapter
	rec    *telemetry.Recorder
	trades *tradelog.Log
	sem    chan struct{}
	logger *slog.Logger
}

// New builds a Processor. cfg.MaxParallel sizes the semaphore. Until
// WithTradeLog attaches a log, dispatched trades are not retained for the
// operator console's GET /trades endpoint.
func New(cfg config.Config, book BookResolver, exec execadapter.Adapter, rec *telemetry.Recorder, logger *slog.Logger) *Processor {
	return &Processor{
		cfg:    cfg,
		book:   book,
		exec:   exec,
		rec:    rec,
		sem:    make(chan struct{}, cfg.MaxParallel),
		logger: logger.With("component", "processor"),
	}
}

// WithTradeLog attaches a tradelog.Log that records every dispatched
// trade for the operator console. Returns p for chaining.
func (p *Processor) WithTradeLog(trades *tradelog.Log) *Processor {
	p.trades = trades
	return p
}

// Dispatch acquires a semaphore slot and runs Process on its own
// goroutine, returning once the slot is acquired; it blocks while
// maxParallel tasks are already in flight. The semaphore bounds in-flight tasks
// at maxParallel (spec.md §3 invariant 5, §5).
func (p *Processor) Dispatch(ctx context.Context, item types.TradeItem, reason string, eventTsMs int64) {
	p.sem <- struct{}{}
	go func() {
		defer func() { <-p.sem }()
		p.Process(ctx, item, reason, eventTsMs)
	}()
}

// InFlight returns the number of trade-processing tasks currently
// holding a semaphore slot — exposed for tests verifying spec.md §3
// invariant 5 and for the operator console.
func (p *Processor) InFlight() int { return len(p.sem) }

// Process runs the full filter → price → size → dispatch pipeline for
// one trade. Every failure is a silent reject (spec.md §4.9): it logs at
// debug level and returns without dispatching.
func (p *Processor) Process(ctx context.Context, item types.TradeItem, reason string, eventTsMs int64) {
	recvTsMs := types.NowMs()
	log := p.logger.With("reason", reason, "asset", truncate(item.Asset, 10))

	// 1. validate side + asset
	if !item.Side.Valid() || item.Asset == "" {
		log.Debug("reject", "cause", types.RejectInvalidSide)
		return
	}

	// 2. price band
	srcPrice, _ := item.Price.Float64()
	if srcPrice < p.cfg.MinPrice || srcPrice > p.cfg.MaxPrice {
		log.Debug("reject", "cause", types.RejectPriceBand, "src_price", srcPrice)
		return
	}

	// 3. lag
	var lagMs int64
	if eventTsMs > 0 {
		lagMs = recvTsMs - eventTsMs
		if lagMs > p.cfg.MaxLagMs {
			log.Debug("reject", "cause", types.RejectLag, "lag_ms", lagMs)
			return
		}
	}

	// 4. spread
	snap := p.book.GetTopOfBook(ctx, item.Asset)
	if spread, known := snap.Spread(); known {
		spreadF, _ := spread.Float64()
		if spreadF > p.cfg.MaxSpread {
			log.Debug("reject", "cause", types.RejectSpread, "spread", spreadF)
			return
		}
	}

	// 5. price the mirror order
	px, ok := p.priceOrder(item.Side, snap)
	if !ok {
		log.Debug("reject", "cause", types.RejectMissingTouch)
		return
	}

	// 6. source notional
	srcUsdc, ok := p.sourceNotional(item, px)
	if !ok {
		log.Debug("reject", "cause", types.RejectNoNotional)
		return
	}

	// 7. copy notional
	copyUsdc := p.copyNotional(srcUsdc)
	if copyUsdc <= 0 {
		log.Debug("reject", "cause", types.RejectNoCopyUsdc)
		return
	}

	// 8. shares
	pxF, _ := px.Float64()
	shares := copyUsdc / pxF

	// 9. decision timestamp
	decisionTsMs := types.NowMs()

	sample := types.LatencySample{
		EventTsMs:    eventTsMs,
		RecvTsMs:     recvTsMs,
		DecisionTsMs: decisionTsMs,
	}

	// 10. dispatch
	switch p.cfg.Mode {
	case config.ModePaper:
		sample.SubmitTsMs = decisionTsMs
		sample.AckTsMs = types.NowMs()
		log.Info("paper",
			"side", item.Side, "px", pxF, "src_px", srcPrice,
			"src_usdc", srcUsdc, "copy_usdc", copyUsdc, "shares", shares,
			"lag_ms", lagMs,
		)
		p.appendTradeLog(item, reason, pxF, shares, srcUsdc, copyUsdc, lagMs, true, "paper")
	case config.ModeLive:
		sample.SubmitTsMs = types.NowMs()
		res, err := p.exec.PlaceOrder(ctx, item.Asset, item.Side, pxF, shares)
		sample.AckTsMs = types.NowMs()
		if err != nil || !res.Success {
			msg := ""
			if err != nil {
				msg = err.Error()
			} else {
				msg = res.Message
			}
			log.Warn("[LIVE FAIL]",
				"side", item.Side, "px", pxF, "src_px", srcPrice,
				"src_usdc", srcUsdc, "copy_usdc", copyUsdc, "shares", shares,
				"lag_ms", lagMs, "message", msg,
			)
			p.appendTradeLog(item, reason, pxF, shares, srcUsdc, copyUsdc, lagMs, false, msg)
		} else {
			log.Info("live",
				"side", item.Side, "px", pxF, "src_px", srcPrice,
				"src_usdc", srcUsdc, "copy_usdc", copyUsdc, "shares", shares,
				"lag_ms", lagMs, "message", res.Message,
			)
			p.appendTradeLog(item, reason, pxF, shares, srcUsdc, copyUsdc, lagMs, true, res.Message)
		}
	}

	// 11. record latency
	if p.rec != nil {
		p.rec.Record(sample)
	}
}

// priceOrder implements spec.md §4.9 step 5.
func (p *Processor) priceOrder(side types.Side, snap types.BookSnapshot) (decimal.Decimal, bool) {
	crossTick := decimal.NewFromFloat(p.cfg.CrossTick)
	minP := decimal.NewFromFloat(p.cfg.MinPrice)
	maxP := decimal.NewFromFloat(p.cfg.MaxPrice)

	var px decimal.Decimal
	switch side {
	case types.BUY:
		if !snap.HasAsk {
			return decimal.Zero, false
		}
		px = decimal.Min(maxP, snap.BestAsk.Add(crossTick))
	case types.SELL:
		if !snap.HasBid {
			return decimal.Zero, false
		}
		px = decimal.Max(minP, snap.BestBid.Sub(crossTick))
	default:
		return decimal.Zero, false
	}

	px = clampDecimal(px, minP, maxP)
	px = px.DivRound(tick2dp, 0).Mul(tick2dp) // round to tick size 0.01
	return px, true
}

func clampDecimal(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

// sourceNotional implements spec.md §4.9 step 6.
func (p *Processor) sourceNotional(item types.TradeItem, px decimal.Decimal) (float64, bool) {
	if item.UsdcSize.GreaterThan(decimal.Zero) {
		v, _ := item.UsdcSize.Float64()
		return v, true
	}
	if item.Size.GreaterThan(decimal.Zero) {
		notional := item.Size.Mul(px)
		v, _ := notional.Float64()
		return v, true
	}
	return 0, false
}

// copyNotional implements spec.md §4.9 step 7.
func (p *Processor) copyNotional(srcUsdc float64) float64 {
	switch p.cfg.SizeMode {
	case config.SizePercent:
		if p.cfg.SourceBalanceUsdc <= 0 {
			return 0
		}
		return srcUsdc * (p.cfg.MyBalanceUsdc / p.cfg.SourceBalanceUsdc)
	case config.SizeFixed:
		return p.cfg.FixedOrderUsdc
	default:
		return 0
	}
}

func (p *Processor) appendTradeLog(item types.TradeItem, reason string, px, shares, srcUsdc, copyUsdc float64, lagMs int64, success bool, message string) {
	if p.trades == nil {
		return
	}
	p.trades.Append(tradelog.Record{
		Asset:    item.Asset,
		Side:     string(item.Side),
		Reason:   reason,
		Price:    px,
		Shares:   shares,
		SrcUsdc:  srcUsdc,
		CopyUsdc: copyUsdc,
		LagMs:    lagMs,
		Success:  success,
		Message:  message,
		At:       time.Now(),
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s…", s[:n])
}
