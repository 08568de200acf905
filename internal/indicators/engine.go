package indicators

import (
	"fmt"
	"strconv"
	"strings"

	"market-core/pkg/exchanges/common"
)

const maxPeriod = 500

// Kind names an indicator.
type Kind string

const (
	KindSMA Kind = "sma"
	KindEMA Kind = "ema"
	KindRSI Kind = "rsi"
)

// Request is one indicator with its period, e.g. sma:20.
type Request struct {
	Kind   Kind
	Period int
}

func (r Request) String() string { return string(r.Kind) + ":" + strconv.Itoa(r.Period) }

// ParseRequests parses a comma separated list such as "sma:20,ema:50,rsi:14".
// Duplicates are collapsed; an empty string yields no requests.
func ParseRequests(s string) ([]Request, error) {
	var out []Request
	seen := make(map[Request]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, period, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("indicator %q: expected name:period", part)
		}
		kind := Kind(strings.ToLower(strings.TrimSpace(name)))
		switch kind {
		case KindSMA, KindEMA, KindRSI:
		default:
			return nil, fmt.Errorf("indicator %q: unknown kind %q", part, name)
		}
		p, err := strconv.Atoi(strings.TrimSpace(period))
		if err != nil || p <= 0 || p > maxPeriod {
			return nil, fmt.Errorf("indicator %q: period must be 1..%d", part, maxPeriod)
		}
		r := Request{Kind: kind, Period: p}
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out, nil
}

// Compute evaluates each request on the candle closes. Keys are Request.String().
func Compute(candles []common.Candle, reqs []Request) map[string]Series {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	out := make(map[string]Series, len(reqs))
	for _, r := range reqs {
		switch r.Kind {
		case KindSMA:
			out[r.String()] = SMA(closes, r.Period)
		case KindEMA:
			out[r.String()] = EMA(closes, r.Period)
		case KindRSI:
			out[r.String()] = RSI(closes, r.Period)
		}
	}
	return out
}
