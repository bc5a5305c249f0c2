package execadapter

import (
	"context"
	"testing"

	"copytrader/pkg/types"
)

func TestPaperAdapterAlwaysSucceeds(t *testing.T) {
	a := PaperAdapter{}
	res, err := a.PlaceOrder(context.Background(), "tok", types.BUY, 0.53, 18.87)
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}
	if !res.Success {
		t.Errorf("Success = false, want true")
	}
}

func TestNewUnsupportedLiveExecReturnsFailureResult(t *testing.T) {
	a := New("not-a-real-adapter")
	res, err := a.PlaceOrder(context.Background(), "tok", types.SELL, 0.69, 1.45)
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}
	if res.Success {
		t.Errorf("Success = true, want false for unsupported adapter")
	}
}

func TestSubprocessAdapterReportsFailureOnMissingBinary(t *testing.T) {
	a := SubprocessAdapter{Command: "/nonexistent/python-bridge-binary"}
	res, err := a.PlaceOrder(context.Background(), "tok", types.BUY, 0.53, 18.87)
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v, want nil (exec failure surfaces via Result)", err)
	}
	if res.Success {
		t.Errorf("Success = true, want false for a missing binary")
	}
}
