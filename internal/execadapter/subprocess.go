package execadapter

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"os/exec"

	"copytrader/pkg/types"
)

// SubprocessAdapter shells out to an external "python-bridge" process
// with a fixed argument shape and order type FOK, per spec.md §4.10. No
// third-party process-supervision library appears anywhere in the
// retrieved pack, and none would reduce this to less than what
// os/exec.CommandContext already provides directly — see DESIGN.md.
type SubprocessAdapter struct {
	// Command is the executable to invoke (e.g. "python-bridge" or a path
	// to it). Any value other than a runnable bridge binary is expected
	// to fail at exec time, which is reported as a failed Result, not
	// treated specially.
	Command string
}

// PlaceOrder invokes the subprocess with args
// "<tokenID> <side> <price> <shares> FOK". Exit code 0 is success; stdout
// and stderr are concatenated into Message either way.
func (a SubprocessAdapter) PlaceOrder(ctx context.Context, tokenID string, side types.Side, price, shares float64) (Result, error) {
	args := []string{
		tokenID,
		string(side),
		strconv.FormatFloat(price, 'f', -1, 64),
		strconv.FormatFloat(shares, 'f', -1, 64),
		"FOK",
	}

	cmd := exec.CommandContext(ctx, a.Command, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	message := out.String()
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("execadapter: %s: %w", a.Command, ctx.Err())
		}
		return Result{Success: false, Message: message}, nil
	}
	return Result{Success: true, Message: message}, nil
}
