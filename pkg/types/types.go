// Package types defines the shared data model for the copy-trading
// replication pipeline — the vocabulary used by the activity fetcher, the
// WebSocket feed, the book cache, and the trade processor. It has no
// dependency on any other internal package so every layer can import it.
package types

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade or mirror order.
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// Valid reports whether s is one of the two recognized sides.
func (s Side) Valid() bool {
	return s == BUY || s == SELL
}

// TradeItem is one entry from the source trader's activity feed.
//
// The upstream API returns timestamp as either seconds or milliseconds
// since epoch, and numeric fields are sometimes JSON strings rather than
// numbers — UnmarshalJSON below normalizes both.
type TradeItem struct {
	TransactionHash string
	Asset           string
	Side            Side
	TimestampMs     int64 // always normalized to milliseconds
	Price           decimal.Decimal
	Size            decimal.Decimal
	UsdcSize        decimal.Decimal // zero value if absent
}

// IdentityKey returns the opaque dedup key for this trade: the tuple
// (transactionHash, asset, side, timestamp, price, size) joined.
func (t TradeItem) IdentityKey() string {
	var b strings.Builder
	b.WriteString(t.TransactionHash)
	b.WriteByte('|')
	b.WriteString(t.Asset)
	b.WriteByte('|')
	b.WriteString(string(t.Side))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(t.TimestampMs, 10))
	b.WriteByte('|')
	b.WriteString(t.Price.String())
	b.WriteByte('|')
	b.WriteString(t.Size.String())
	return b.String()
}

// rawTradeItem mirrors the upstream JSON shape before normalization.
// Numeric fields are kept raw so a quoted non-number does not fail the
// whole decode.
type rawTradeItem struct {
	TransactionHash string          `json:"transactionHash"`
	Asset           string          `json:"asset"`
	Side            string          `json:"side"`
	Timestamp       json.RawMessage `json:"timestamp"`
	Price           json.RawMessage `json:"price"`
	Size            json.RawMessage `json:"size"`
	UsdcSize        json.RawMessage `json:"usdcSize"`
}

// rawNumber returns a raw JSON number or string value with any quotes
// removed.
func rawNumber(m json.RawMessage) string {
	return strings.Trim(string(m), `"`)
}

// UnmarshalJSON parses a TradeItem defensively: missing or malformed
// numeric fields yield zero values instead of an error, since the trade
// processor treats missing data as a filter rejection, not a crash.
func (t *TradeItem) UnmarshalJSON(data []byte) error {
	var raw rawTradeItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	t.TransactionHash = raw.TransactionHash
	t.Asset = raw.Asset
	t.Side = Side(strings.ToUpper(raw.Side))
	t.TimestampMs = normalizeTimestampMs(rawNumber(raw.Timestamp))
	t.Price = parseDecimal(rawNumber(raw.Price))
	t.Size = parseDecimal(rawNumber(raw.Size))
	t.UsdcSize = parseDecimal(rawNumber(raw.UsdcSize))
	return nil
}

// normalizeTimestampMs accepts a numeric string in seconds or milliseconds
// and returns milliseconds. A value is assumed to be in seconds if it has
// fewer than 11 digits.
func normalizeTimestampMs(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0
		}
		v = int64(f)
	}
	if v == 0 {
		return 0
	}
	if v < 10_000_000_000 {
		return v * 1000
	}
	return v
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// BookSnapshot is the cached top of book for one asset.
type BookSnapshot struct {
	Asset       string
	BestBid     decimal.Decimal
	HasBid      bool
	BestAsk     decimal.Decimal
	HasAsk      bool
	UpdatedAtMs int64
}

// Spread returns bestAsk - bestBid and whether both sides are known.
func (b BookSnapshot) Spread() (decimal.Decimal, bool) {
	if !b.HasBid || !b.HasAsk {
		return decimal.Zero, false
	}
	return b.BestAsk.Sub(b.BestBid), true
}

// PriceLevel is one bid or ask level as returned by the book REST endpoint
// and the WS book event. Price/size arrive as strings to preserve decimal
// precision upstream.
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size,omitempty"`
}

// BookResponse is the REST response shape for GET /book?token_id=....
type BookResponse struct {
	AssetID string       `json:"asset_id"`
	Bids    []PriceLevel `json:"bids"`
	Asks    []PriceLevel `json:"asks"`
}

// WSBookEvent is a full order-book snapshot pushed over the market channel.
type WSBookEvent struct {
	EventType string       `json:"event_type"`
	AssetID   string       `json:"asset_id"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
}

// WSLastTradePriceEvent is a last-trade-price tick on the market channel.
// The canonical timestamp field is ambiguous upstream (see DESIGN.md Open
// Question 1); the first non-empty of Timestamp/Ts/CreatedAt/CreatedAt2 is
// used — see EventTimestampMs.
type WSLastTradePriceEvent struct {
	EventType  string      `json:"event_type"`
	AssetID    string      `json:"asset_id"`
	Timestamp  json.Number `json:"timestamp"`
	Ts         json.Number `json:"ts"`
	CreatedAt  json.Number `json:"created_at"`
	CreatedAt2 json.Number `json:"createdAt"`
}

// EventTimestampMs returns the event timestamp in milliseconds, accepting
// the first non-empty candidate field in a fixed preference order.
func (e WSLastTradePriceEvent) EventTimestampMs() int64 {
	for _, cand := range []json.Number{e.Timestamp, e.Ts, e.CreatedAt, e.CreatedAt2} {
		if cand != "" {
			return normalizeTimestampMs(cand.String())
		}
	}
	return 0
}

// WSSubscribeMsg is sent on connect and whenever the tracked asset set
// grows, carrying the full current set (spec.md §4.5, §4.7).
type WSSubscribeMsg struct {
	AssetIDs []string `json:"assets_ids"`
	Type     string   `json:"type"` // always "MARKET"
}

// ProfileSearchResponse is the JSON shape of the profile-directory search
// used by the identity resolver.
type ProfileSearchResponse struct {
	Profiles []Profile `json:"profiles"`
}

// Profile is one entry in a profile search response.
type Profile struct {
	Pseudonym   string `json:"pseudonym"`
	ProxyWallet string `json:"proxyWallet"`
}

// RejectReason names why a trade was not dispatched — used for structured
// logging only, never for control flow.
type RejectReason string

const (
	RejectInvalidSide  RejectReason = "invalid_side"
	RejectPriceBand    RejectReason = "price_band"
	RejectLag          RejectReason = "lag"
	RejectSpread       RejectReason = "spread"
	RejectMissingTouch RejectReason = "missing_touch"
	RejectNoNotional   RejectReason = "no_src_notional"
	RejectNoCopyUsdc   RejectReason = "no_copy_usdc"
)

// LatencySample is the set of stage timestamps and derived durations for
// one processed trade.
type LatencySample struct {
	EventTsMs    int64
	RecvTsMs     int64
	DecisionTsMs int64
	SubmitTsMs   int64
	AckTsMs      int64
}

// IngestMs is recvTs - eventTs (0 if eventTs is unknown).
func (s LatencySample) IngestMs() int64 {
	if s.EventTsMs == 0 {
		return 0
	}
	return s.RecvTsMs - s.EventTsMs
}

// DecisionMs is decisionTs - recvTs.
func (s LatencySample) DecisionMs() int64 { return s.DecisionTsMs - s.RecvTsMs }

// SubmitMs is submitTs - decisionTs.
func (s LatencySample) SubmitMs() int64 { return s.SubmitTsMs - s.DecisionTsMs }

// AckMs is ackTs - submitTs.
func (s LatencySample) AckMs() int64 { return s.AckTsMs - s.SubmitTsMs }

// TotalMs is ackTs - recvTs: the end-to-end time this process spent on the
// trade, excluding unknown upstream event lag.
func (s LatencySample) TotalMs() int64 { return s.AckTsMs - s.RecvTsMs }

// NowMs returns the current wall-clock time in epoch milliseconds,
// centralized so tests can reason about it as a single seam.
func NowMs() int64 { return time.Now().UnixMilli() }
