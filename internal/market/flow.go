package market

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"market-core/pkg/exchanges/common"
)

const (
	// MaxFlowTrades bounds the trade window the cumulative flow is computed over.
	MaxFlowTrades = 1000
	// AverageWindow is the look-back of the rolling averages.
	AverageWindow = 5 * time.Minute
)

// FlowPoint is the running cumulative flow after one trade.
type FlowPoint struct {
	Time       int64   `json:"time"` // seconds
	Cumulative float64 `json:"cumulative"`
}

type signedTrade struct {
	timeMs int64
	signed decimal.Decimal
}

// Flow tracks signed quote volume over the most recent trades. A trade where the
// buyer is the maker is a market sell and counts negative.
type Flow struct {
	mu     sync.Mutex
	max    int
	trades []signedTrade
	now    func() time.Time
}

// NewFlow keeps at most max trades; max <= 0 uses MaxFlowTrades.
func NewFlow(max int) *Flow {
	if max <= 0 {
		max = MaxFlowTrades
	}
	return &Flow{max: max, now: time.Now}
}

// SignedQuote returns (isBuyerMaker ? -1 : +1) * quantity * price.
func SignedQuote(t common.Trade) decimal.Decimal {
	v := decimal.NewFromFloat(t.Quantity).Mul(decimal.NewFromFloat(t.Price))
	if t.IsBuyerMaker {
		return v.Neg()
	}
	return v
}

// Add records a trade and returns its signed value and the new cumulative total.
func (f *Flow) Add(t common.Trade) (delta, cumulative float64) {
	s := SignedQuote(t)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades = append(f.trades, signedTrade{timeMs: t.Time, signed: s})
	if n := len(f.trades); n > f.max {
		f.trades = append(f.trades[:0:0], f.trades[n-f.max:]...)
	}
	total := decimal.Zero
	for _, tr := range f.trades {
		total = total.Add(tr.signed)
	}
	return s.InexactFloat64(), total.InexactFloat64()
}

// Series returns the running cumulative flow over the kept trades.
func (f *Flow) Series() []FlowPoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seriesLocked()
}

func (f *Flow) seriesLocked() []FlowPoint {
	out := make([]FlowPoint, len(f.trades))
	run := decimal.Zero
	for i, tr := range f.trades {
		run = run.Add(tr.signed)
		out[i] = FlowPoint{Time: tr.timeMs / 1000, Cumulative: run.InexactFloat64()}
	}
	return out
}

// Average is the mean cumulative value over points from the last five minutes.
// It reports false when no point falls in the window.
func (f *Flow) Average() (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := f.now().Add(-AverageWindow).Unix()
	sum := decimal.Zero
	n := 0
	for _, p := range f.seriesLocked() {
		if p.Time >= cutoff {
			sum = sum.Add(decimal.NewFromFloat(p.Cumulative))
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum.Div(decimal.NewFromInt(int64(n))).InexactFloat64(), true
}

// Reset forgets all trades.
func (f *Flow) Reset() {
	f.mu.Lock()
	f.trades = nil
	f.mu.Unlock()
}

// Len reports how many trades are kept.
func (f *Flow) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.trades)
}
