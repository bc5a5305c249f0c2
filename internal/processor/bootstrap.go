package processor

import (
	"context"
	"log/slog"

	"copytrader/internal/router"
	"copytrader/pkg/types"
)

// ActivityFetcher is the narrow dependency bootstrap needs from
// activity.Fetcher.
type ActivityFetcher interface {
	Fetch(ctx context.Context, wallet string, limit int) ([]types.TradeItem, error)
}

// Bootstrap implements spec.md §4.8: on startup, fetch up to
// tradeFetchLimit (capped at 100) recent activities for wallet, seed the
// dedup SeenSet with every item's identity key so none of it is
// replayed by the first reconcile cycle, add every asset seen to
// trackedAssets, and dispatch only the items whose event timestamp
// falls within bootstrapSeconds of now — the rest are historical noise
// the operator never wants mirrored.
func Bootstrap(
	ctx context.Context,
	fetcher ActivityFetcher,
	wallet string,
	tradeFetchLimit int,
	bootstrapSeconds int64,
	seen *router.SeenSet,
	trackedAssets map[string]struct{},
	p *Processor,
	logger *slog.Logger,
) error {
	limit := tradeFetchLimit
	if limit > 100 {
		limit = 100
	}

	items, err := fetcher.Fetch(ctx, wallet, limit)
	if err != nil {
		return err
	}

	nowMs := types.NowMs()
	cutoffMs := nowMs - bootstrapSeconds*1000
	dispatched := 0

	for _, item := range items {
		seen.InsertIfAbsent(item.IdentityKey())
		trackedAssets[item.Asset] = struct{}{}

		if item.TimestampMs < cutoffMs {
			continue
		}
		p.Dispatch(ctx, item, "bootstrap", item.TimestampMs)
		dispatched++
	}

	logger.Info("bootstrap complete",
		"fetched", len(items), "assets", len(trackedAssets), "dispatched", dispatched,
	)
	return nil
}
