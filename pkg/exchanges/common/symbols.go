package common

import (
	"sort"
	"strconv"
	"strings"
)

// Stablecoins lists bases excluded from movers and stable/stable pair filtering.
var Stablecoins = []string{"USDT", "USDC", "TUSD", "BUSD", "DAI", "USDP", "GUSD", "PAX", "FDUSD", "USD"}

// Canonical joins base and quote into the lowercase "base-quote" form.
func Canonical(base, quote string) string {
	return strings.ToLower(base) + "-" + strings.ToLower(quote)
}

// SplitCanonical splits "base-quote". ok is false when there is no dash.
func SplitCanonical(symbol string) (base, quote string, ok bool) {
	i := strings.LastIndex(symbol, "-")
	if i <= 0 || i == len(symbol)-1 {
		return "", "", false
	}
	return symbol[:i], symbol[i+1:], true
}

// SplitByQuote splits a concatenated native symbol on the first matching quote suffix.
func SplitByQuote(native string, quotes []string) (base, quote string, ok bool) {
	s := strings.ToUpper(native)
	for _, q := range quotes {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return s[:len(s)-len(q)], q, true
		}
	}
	return "", "", false
}

// IsStablecoin reports whether asset is a known USD stablecoin (or USD itself).
func IsStablecoin(asset string) bool {
	a := strings.ToUpper(asset)
	for _, s := range Stablecoins {
		if a == s {
			return true
		}
	}
	return false
}

// IsStablePair reports whether both legs are stablecoins.
func IsStablePair(base, quote string) bool {
	return IsStablecoin(base) && IsStablecoin(quote)
}

// ContainsFold reports whether list contains s, case-insensitively.
func ContainsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// SortedUnique sorts symbols and drops duplicates.
func SortedUnique(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ToFloat converts JSON numbers and numeric strings; anything else yields 0.
func ToFloat(v any) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case float64:
		return t
	case int64:
		return float64(t)
	case int:
		return float64(t)
	default:
		return 0
	}
}

// ToInt64 converts JSON numbers and numeric strings; anything else yields 0.
func ToInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int64:
		return t
	case int:
		return int64(t)
	case string:
		if i, err := strconv.ParseInt(t, 10, 64); err == nil {
			return i
		}
		f, _ := strconv.ParseFloat(t, 64)
		return int64(f)
	default:
		return 0
	}
}

// ParseLevels converts [[price, size, ...], ...] arrays of strings or numbers.
// Rows with fewer than two elements or a non-positive price are skipped.
func ParseLevels(rows [][]any) []OrderBookLevel {
	out := make([]OrderBookLevel, 0, len(rows))
	for _, r := range rows {
		if len(r) < 2 {
			continue
		}
		p := ToFloat(r[0])
		if p <= 0 {
			continue
		}
		out = append(out, OrderBookLevel{p, ToFloat(r[1])})
	}
	return out
}

// ReverseCandles reverses in place; several venues return newest first.
func ReverseCandles(c []Candle) {
	for i, j := 0, len(c)-1; i < j; i, j = i+1, j-1 {
		c[i], c[j] = c[j], c[i]
	}
}

// LastN keeps at most n trailing candles.
func LastN(c []Candle, n int) []Candle {
	if n > 0 && len(c) > n {
		return c[len(c)-n:]
	}
	return c
}
