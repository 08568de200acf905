package market

import (
	"slices"
	"strings"
)

// ResolveSymbol picks the symbol to show from the exchange listing, given the
// previously selected one: exact match, then base-usdc, base-usd, then btc-usdt,
// btc-usd, any btc pair, any usdt pair, and finally the first listed symbol.
// An empty listing yields "".
func ResolveSymbol(symbols []string, previous string) string {
	if len(symbols) == 0 {
		return ""
	}
	if previous != "" {
		base, _, _ := strings.Cut(previous, "-")
		for _, p := range []string{previous, base + "-usdc", base + "-usd"} {
			if slices.Contains(symbols, p) {
				return p
			}
		}
	}
	for _, p := range []string{"btc-usdt", "btc-usd"} {
		if slices.Contains(symbols, p) {
			return p
		}
	}
	for _, s := range symbols {
		if strings.HasPrefix(s, "btc-") {
			return s
		}
	}
	for _, s := range symbols {
		if strings.HasSuffix(s, "-usdt") {
			return s
		}
	}
	return symbols[0]
}
