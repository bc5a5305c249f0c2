// Package activity implements the HTTP pull of the source trader's recent
// trade activity, generalizing the teacher's market.Scanner GET pattern
// (resty client, query params, JSON decode) to the activity endpoint in
// spec.md §6.
package activity

import (
	"context"
	"fmt"

	"copytrader/internal/polyclient"
	"copytrader/pkg/types"
)

// Fetcher pulls TradeItems for one wallet address.
type Fetcher struct {
	client *polyclient.Client
	url    string
}

// New builds a Fetcher against url (spec.md §6's activity endpoint).
func New(client *polyclient.Client, url string) *Fetcher {
	return &Fetcher{client: client, url: url}
}

// Fetch returns up to limit recent TradeItems for wallet, sorted by
// timestamp descending. A non-2xx response surfaces as a retryable
// transport error (spec.md §7); callers retry on their own next cycle.
func (f *Fetcher) Fetch(ctx context.Context, wallet string, limit int) ([]types.TradeItem, error) {
	query := map[string]string{
		"user":          wallet,
		"type":          "TRADE",
		"limit":         fmt.Sprintf("%d", limit),
		"offset":        "0",
		"sortBy":        "TIMESTAMP",
		"sortDirection": "DESC",
	}

	var items []types.TradeItem
	if err := f.client.GetJSON(ctx, f.url, query, &items); err != nil {
		return nil, fmt.Errorf("activity: fetch for %s: %w", wallet, err)
	}
	return items, nil
}
