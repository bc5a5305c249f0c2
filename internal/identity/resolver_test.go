package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"copytrader/internal/polyclient"
)

func TestResolveWalletAddressPassesThrough(t *testing.T) {
	addr := "0x1234567890123456789012345678901234567890"
	got, err := Resolve(context.Background(), polyclient.New(), "http://unused", addr)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != addr {
		t.Errorf("Resolve() = %q, want %q", got, addr)
	}
}

func TestResolveHandleExactPseudonymMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"profiles": []map[string]string{
				{"pseudonym": "bob", "proxyWallet": "0xbob"},
				{"pseudonym": "alice", "proxyWallet": "0xalice"},
			},
		})
	}))
	defer srv.Close()

	got, err := Resolve(context.Background(), polyclient.New(), srv.URL, "@alice")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != "0xalice" {
		t.Errorf("Resolve() = %q, want 0xalice", got)
	}
}

func TestResolveFallsBackToFirstWithWallet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"profiles": []map[string]string{
				{"pseudonym": "nomatch1", "proxyWallet": ""},
				{"pseudonym": "nomatch2", "proxyWallet": "0xfallback"},
			},
		})
	}))
	defer srv.Close()

	got, err := Resolve(context.Background(), polyclient.New(), srv.URL, "@someone")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != "0xfallback" {
		t.Errorf("Resolve() = %q, want 0xfallback", got)
	}
}

func TestResolveNoProfilesFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"profiles": []map[string]string{}})
	}))
	defer srv.Close()

	_, err := Resolve(context.Background(), polyclient.New(), srv.URL, "@nobody")
	if err == nil {
		t.Error("Resolve() error = nil, want error when no profile resolves")
	}
}
