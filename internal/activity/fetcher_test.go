package activity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"copytrader/internal/polyclient"
)

func TestFetchParsesTradeItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("user"); got != "0xabc" {
			t.Errorf("user query param = %q, want 0xabc", got)
		}
		w.Write([]byte(`[
			{"transactionHash":"0x1","asset":"A","side":"buy","timestamp":"1700000000","price":"0.51","size":"10","usdcSize":"5.1"}
		]`))
	}))
	defer srv.Close()

	f := New(polyclient.New(), srv.URL)
	items, err := f.Fetch(context.Background(), "0xabc", 50)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(items))
	}
	if items[0].Side != "BUY" {
		t.Errorf("Side = %q, want BUY (uppercased)", items[0].Side)
	}
	if items[0].TimestampMs != 1700000000000 {
		t.Errorf("TimestampMs = %d, want normalized to ms", items[0].TimestampMs)
	}
}

func TestFetchTransportErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(polyclient.New(), srv.URL)
	if _, err := f.Fetch(context.Background(), "0xabc", 50); err == nil {
		t.Error("Fetch() error = nil, want error on 500")
	}
}
