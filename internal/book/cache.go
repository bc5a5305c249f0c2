// Package book maintains a per-asset cache of top-of-book snapshots, a
// generalization of the teacher's market.Book (RWMutex-protected snapshot
// state, string→float price parsing) from one book per market to a map of
// one snapshot per asset, plus a rate-limited HTTP fallback probe.
package book

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"copytrader/internal/polyclient"
	"copytrader/pkg/types"
)

// Prober performs the one-shot HTTP book fetch used as a fallback when the
// cache is stale or empty. Implemented by a thin wrapper around
// polyclient.Client in production; swappable in tests.
type Prober interface {
	ProbeBook(ctx context.Context, asset string) (*types.BookResponse, error)
}

// Cache holds one BookSnapshot per asset.
type Cache struct {
	mu       sync.RWMutex
	snaps    map[string]types.BookSnapshot
	ttl      time.Duration
	fallback bool
	prober   Prober
	bucket   *polyclient.TokenBucket
}

// New creates a book cache. ttl is bookTtlMs, fallback is
// bookHttpFallback, and prober/bucket serve the HTTP fallback probe
// (spec.md §4.4).
func New(ttl time.Duration, fallback bool, prober Prober, bucket *polyclient.TokenBucket) *Cache {
	return &Cache{
		snaps:    make(map[string]types.BookSnapshot),
		ttl:      ttl,
		fallback: fallback,
		prober:   prober,
		bucket:   bucket,
	}
}

// ApplyBookEvent replaces the cached snapshot for a WS book event. Updates
// are monotonic per asset because the single WS reader applies them in
// arrival order (spec.md §3 invariant on BookSnapshot.updatedAtMs).
func (c *Cache) ApplyBookEvent(ev types.WSBookEvent) {
	c.store(snapshotFromLevels(ev.AssetID, ev.Bids, ev.Asks))
}

// ApplyBookResponse replaces the cached snapshot from an HTTP probe result.
func (c *Cache) ApplyBookResponse(resp *types.BookResponse) {
	c.store(snapshotFromLevels(resp.AssetID, resp.Bids, resp.Asks))
}

func (c *Cache) store(snap types.BookSnapshot) {
	snap.UpdatedAtMs = types.NowMs()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[snap.Asset] = snap
}

// GetTopOfBook implements the resolver from spec.md §4.4:
//  1. Fresh cached entry → return it.
//  2. Stale/missing and fallback enabled → one-shot HTTP probe.
//  3. Otherwise → stale cached entry, or a null snapshot.
func (c *Cache) GetTopOfBook(ctx context.Context, asset string) types.BookSnapshot {
	cached, fresh := c.lookup(asset)
	if fresh {
		return cached
	}

	if c.fallback && c.prober != nil {
		if c.bucket != nil {
			if err := c.bucket.Wait(ctx); err != nil {
				return cached
			}
		}
		resp, err := c.prober.ProbeBook(ctx, asset)
		if err == nil && resp != nil {
			snap := snapshotFromLevels(resp.AssetID, resp.Bids, resp.Asks)
			c.store(snap)
			return snap
		}
	}

	return cached
}

func (c *Cache) lookup(asset string) (types.BookSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap, ok := c.snaps[asset]
	if !ok {
		return types.BookSnapshot{Asset: asset}, false
	}
	fresh := types.NowMs()-snap.UpdatedAtMs <= c.ttl.Milliseconds()
	return snap, fresh
}

func snapshotFromLevels(asset string, bids, asks []types.PriceLevel) types.BookSnapshot {
	snap := types.BookSnapshot{Asset: asset}
	if len(bids) > 0 {
		if p, err := decimal.NewFromString(bids[0].Price); err == nil {
			snap.BestBid = p
			snap.HasBid = true
		}
	}
	if len(asks) > 0 {
		if p, err := decimal.NewFromString(asks[0].Price); err == nil {
			snap.BestAsk = p
			snap.HasAsk = true
		}
	}
	return snap
}
