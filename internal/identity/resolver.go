// Package identity resolves the operator-supplied source identifier (a
// handle or a 0x wallet) to a wallet address, once, at startup. It has no
// ongoing role after Resolve returns.
package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"copytrader/internal/polyclient"
	"copytrader/pkg/types"
)

// Resolve turns source into a wallet address per spec.md §4.2:
//   - already a 0x address (42 chars, valid hex) → returned as-is.
//   - otherwise, an optional leading '@' is stripped and a single HTTP
//     profile search is performed; an exact case-insensitive pseudonym
//     match is preferred, falling back to the first profile carrying a
//     proxyWallet.
//
// Returns an error if no profile resolves — the caller treats this as a
// fatal startup error (spec.md §7).
func Resolve(ctx context.Context, client *polyclient.Client, searchURL, source string) (string, error) {
	if isWalletAddress(source) {
		return source, nil
	}

	handle := strings.TrimPrefix(source, "@")

	var result types.ProfileSearchResponse
	query := map[string]string{
		"q":               handle,
		"search_profiles": "true",
		"limit_per_type":  "20",
	}
	if err := client.GetJSON(ctx, searchURL, query, &result); err != nil {
		return "", fmt.Errorf("identity: profile search for %q: %w", handle, err)
	}

	if addr, ok := exactPseudonymMatch(result.Profiles, handle); ok {
		return addr, nil
	}
	if addr, ok := firstWithWallet(result.Profiles); ok {
		return addr, nil
	}

	return "", fmt.Errorf("identity: no profile resolved for %q", source)
}

func isWalletAddress(s string) bool {
	return len(s) == 42 && strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

func exactPseudonymMatch(profiles []types.Profile, handle string) (string, bool) {
	for _, p := range profiles {
		if strings.EqualFold(p.Pseudonym, handle) && p.ProxyWallet != "" {
			return p.ProxyWallet, true
		}
	}
	return "", false
}

func firstWithWallet(profiles []types.Profile) (string, bool) {
	for _, p := range profiles {
		if p.ProxyWallet != "" {
			return p.ProxyWallet, true
		}
	}
	return "", false
}
