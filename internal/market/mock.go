package market

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"market-core/pkg/exchanges/common"
)

// MockAdapter is an offline exchange that random-walks a price for local
// development. It speaks the same contract as the real adapters.
type MockAdapter struct {
	name       string
	symbols    []string
	StartPrice float64
	Step       float64
	Interval   time.Duration

	mu   sync.Mutex
	rng  *rand.Rand
	last map[string]float64
}

// NewMockAdapter builds a mock named after the exchange it stands in for.
func NewMockAdapter(name string, interval time.Duration) *MockAdapter {
	if interval <= 0 {
		interval = time.Second
	}
	return &MockAdapter{
		name:       name,
		symbols:    []string{"btc-usdt", "eth-usdt", "sol-usdt", "btc-usd"},
		StartPrice: 100,
		Step:       0.5,
		Interval:   interval,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		last:       make(map[string]float64),
	}
}

func (m *MockAdapter) Name() string { return m.name }

func (m *MockAdapter) FormatAPISymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "-", ""))
}

func (m *MockAdapter) FormatPair(native string) string {
	if base, quote, ok := common.SplitByQuote(strings.ToUpper(native), []string{"USDT", "USD"}); ok {
		return common.Canonical(base, quote)
	}
	return strings.ToLower(native)
}

func (m *MockAdapter) FetchAllSymbols(ctx context.Context) ([]string, error) {
	return common.SortedUnique(append([]string(nil), m.symbols...)), nil
}

var mockIntervals = map[string]int64{"1m": 60, "5m": 300, "15m": 900, "1h": 3600, "4h": 14400, "1d": 86400}

func (m *MockAdapter) FetchKlines(ctx context.Context, symbol, interval string) ([]common.Candle, error) {
	step, ok := mockIntervals[interval]
	if !ok {
		return nil, &common.UnsupportedIntervalError{Exchange: m.name, Interval: interval}
	}
	const n = 300
	start := time.Now().Unix()/step*step - (n-1)*step
	out := make([]common.Candle, 0, n)
	price := m.StartPrice
	for i := int64(0); i < n; i++ {
		open := price
		price = m.walk(price)
		hi, lo := max(open, price), min(open, price)
		out = append(out, common.Candle{Time: start + i*step, Open: open, High: hi + m.Step/2, Low: lo - m.Step/2, Close: price, Value: price * 10})
	}
	m.mu.Lock()
	m.last[symbol] = price
	m.mu.Unlock()
	return out, nil
}

func (m *MockAdapter) FetchOrderBook(ctx context.Context, symbol string) (common.OrderBookSnapshot, error) {
	return m.book(m.price(symbol)), nil
}

// Connect emits one kline, one trade and one depth update per tick.
func (m *MockAdapter) Connect(symbol, interval string, handler common.Handler) (func(), error) {
	step, ok := mockIntervals[interval]
	if !ok {
		return nil, &common.UnsupportedIntervalError{Exchange: m.name, Interval: interval}
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(m.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				prev := m.price(symbol)
				price := m.walk(prev)
				m.mu.Lock()
				m.last[symbol] = price
				buyerMaker := m.rng.Intn(2) == 0
				m.mu.Unlock()

				bar := now.Unix() / step * step
				handler(common.StreamMessage{Stream: symbol + "@kline", Type: common.MessageKline, Exchange: m.name,
					Kline: &common.Candle{Time: bar, Open: prev, High: max(prev, price), Low: min(prev, price), Close: price, Value: price}}, m.name)
				handler(common.StreamMessage{Stream: symbol + "@trade", Type: common.MessageTrade, Exchange: m.name,
					Trade: &common.Trade{Price: price, Quantity: 1, Time: now.UnixMilli(), IsBuyerMaker: buyerMaker}}, m.name)
				book := m.book(price)
				handler(common.StreamMessage{Stream: symbol + "@depth", Type: common.MessageDepth, Exchange: m.name, Depth: &book}, m.name)
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(cancel)
		<-done
	}, nil
}

func (m *MockAdapter) price(symbol string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.last[symbol]; ok {
		return p
	}
	return m.StartPrice
}

func (m *MockAdapter) walk(price float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := price + (m.rng.Float64()*2-1)*m.Step
	if next <= 0 {
		next = m.Step
	}
	return next
}

func (m *MockAdapter) book(mid float64) common.OrderBookSnapshot {
	const levels = 10
	s := common.OrderBookSnapshot{}
	for i := 1; i <= levels; i++ {
		off := float64(i) * m.Step / 10
		s.Bids = append(s.Bids, common.OrderBookLevel{mid - off, float64(i)})
		s.Asks = append(s.Asks, common.OrderBookLevel{mid + off, float64(i)})
	}
	return s
}
