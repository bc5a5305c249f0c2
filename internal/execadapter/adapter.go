// Package execadapter defines the pluggable order-placement capability
// from spec.md §4.10: the pipeline depends only on a narrow interface,
// the way the teacher isolates exchange.Client as a swappable
// collaborator of strategy.Maker, not a concrete transport.
package execadapter

import (
	"context"

	"copytrader/pkg/types"
)

// Result is the outcome of one placeOrder invocation.
type Result struct {
	Success bool
	Message string
}

// Adapter places one mirror order and reports success/failure plus a
// message string; it never returns a Go error for trading-level failure
// (a non-zero subprocess exit, or a command that cannot be started, is
// reported via Result, not err) — only a cancelled ctx is an error.
type Adapter interface {
	PlaceOrder(ctx context.Context, tokenID string, side types.Side, price, shares float64) (Result, error)
}
