package execadapter

import (
	"context"
	"fmt"

	"copytrader/pkg/types"
)

// PaperAdapter generalizes the teacher's dryRun branches in
// exchange.Client.PostOrders/CancelOrders (log-only, synthetic success):
// it never touches the network or a subprocess and always reports
// success, so mode=paper can exercise the full pipeline end to end.
//
// processor.Process's own paper branch (spec.md §4.9 step 10) logs
// intents inline rather than calling through Adapter, so this type is
// the in-process Adapter implementation a caller or test reaches for
// when it wants the paper path routed through the same seam as live.
type PaperAdapter struct{}

// PlaceOrder returns a synthetic success result.
func (PaperAdapter) PlaceOrder(_ context.Context, tokenID string, side types.Side, price, shares float64) (Result, error) {
	return Result{
		Success: true,
		Message: fmt.Sprintf("paper: would place %s %s %.4f @ %.4f", side, tokenID, shares, price),
	}, nil
}

// unsupportedAdapter reports a failure result for any liveExec value the
// engine does not implement, per spec.md §4.10 ("Any other liveExec value
// returns a failure result with an explanatory message").
type unsupportedAdapter struct {
	name string
}

func (u unsupportedAdapter) PlaceOrder(context.Context, string, types.Side, float64, float64) (Result, error) {
	return Result{Success: false, Message: fmt.Sprintf("unsupported liveExec adapter %q", u.name)}, nil
}

// New selects the live execution adapter by name. "python-bridge" is the
// only implemented v1 adapter; any other name yields unsupportedAdapter.
func New(liveExec string) Adapter {
	switch liveExec {
	case "python-bridge":
		return SubprocessAdapter{Command: "python-bridge"}
	default:
		return unsupportedAdapter{name: liveExec}
	}
}
