package polyclient

import (
	"context"
	"fmt"
	"net/http"

	"copytrader/pkg/types"
)

// BookProber implements book.Prober against the CLOB book REST endpoint
// (spec.md §6), generalizing the teacher's exchange.Client.GetOrderBook.
type BookProber struct {
	client *Client
	url    string
}

// NewBookProber builds a prober against url.
func NewBookProber(client *Client, url string) *BookProber {
	return &BookProber{client: client, url: url}
}

// ProbeBook fetches the current order book for asset.
func (p *BookProber) ProbeBook(ctx context.Context, asset string) (*types.BookResponse, error) {
	var result types.BookResponse
	resp, err := p.client.HTTP.R().
		SetContext(ctx).
		SetQueryParam("token_id", asset).
		SetResult(&result).
		Get(p.url)
	if err != nil {
		return nil, fmt.Errorf("probe book %s: %w", asset, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("probe book %s: status %d: %s", asset, resp.StatusCode(), resp.String())
	}
	result.AssetID = asset
	return &result, nil
}
