package market

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-core/internal/events"
	"market-core/pkg/cache"
	"market-core/pkg/exchanges/common"
)

func TestFlowCumulative(t *testing.T) {
	f := NewFlow(0)
	d, c := f.Add(common.Trade{Price: 100, Quantity: 1, Time: 1000})
	assert.Equal(t, 100.0, d)
	assert.Equal(t, 100.0, c)

	d, c = f.Add(common.Trade{Price: 99, Quantity: 1, Time: 2000, IsBuyerMaker: true})
	assert.Equal(t, -99.0, d)
	assert.Equal(t, 1.0, c)

	assert.Equal(t, []FlowPoint{{Time: 1, Cumulative: 100}, {Time: 2, Cumulative: 1}}, f.Series())
}

func TestFlowKeepsLastTrades(t *testing.T) {
	f := NewFlow(3)
	for i := 0; i < 5; i++ {
		f.Add(common.Trade{Price: float64(i + 1), Quantity: 1, Time: int64(i) * 1000})
	}
	assert.Equal(t, 3, f.Len())
	_, c := f.Add(common.Trade{Price: 10, Quantity: 1, Time: 5000})
	// 4 + 5 + 10
	assert.Equal(t, 19.0, c)
}

func TestFlowAverageWindow(t *testing.T) {
	f := NewFlow(0)
	now := time.Unix(1_700_000_600, 0)
	f.now = func() time.Time { return now }

	_, ok := f.Average()
	assert.False(t, ok)

	f.Add(common.Trade{Price: 10, Quantity: 1, Time: now.Add(-10 * time.Minute).UnixMilli()})
	f.Add(common.Trade{Price: 10, Quantity: 1, Time: now.Add(-time.Minute).UnixMilli()})
	f.Add(common.Trade{Price: 10, Quantity: 1, Time: now.UnixMilli()})

	avg, ok := f.Average()
	require.True(t, ok)
	// points in window: 20, 30
	assert.InDelta(t, 25.0, avg, 1e-9)
}

func TestBookPressure(t *testing.T) {
	assert.Equal(t, 50.0, BookPressure(common.OrderBookSnapshot{}).BidPercent)

	p := BookPressure(common.OrderBookSnapshot{
		Bids: []common.OrderBookLevel{{100, 3}},
		Asks: []common.OrderBookLevel{{100, 1}},
	})
	assert.Equal(t, 300.0, p.BidNotional)
	assert.Equal(t, 100.0, p.AskNotional)
	assert.Equal(t, 75.0, p.BidPercent)
}

func TestSentimentAverage(t *testing.T) {
	s := NewSentiment()
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	bidHeavy := common.OrderBookSnapshot{Bids: []common.OrderBookLevel{{1, 3}}, Asks: []common.OrderBookLevel{{1, 1}}}
	even := common.OrderBookSnapshot{}

	for i := 0; i < 4; i++ {
		_, avg, n := s.Observe(bidHeavy)
		assert.Equal(t, 75.0, avg)
		assert.Equal(t, i+1, n)
	}
	_, avg, n := s.Observe(even)
	assert.Equal(t, 5, n)
	assert.InDelta(t, (75.0*4+50)/5, avg, 1e-9)

	now = now.Add(AverageWindow)
	_, avg, n = s.Observe(even)
	assert.Equal(t, 1, n)
	assert.Equal(t, 50.0, avg)
}

func TestResolveSymbol(t *testing.T) {
	tests := []struct {
		name     string
		symbols  []string
		previous string
		want     string
	}{
		{"exact", []string{"eth-usdt", "btc-usdt"}, "eth-usdt", "eth-usdt"},
		{"usdc sibling", []string{"eth-usdc", "eth-usd", "btc-usdt"}, "eth-usdt", "eth-usdc"},
		{"usd sibling", []string{"eth-usd", "btc-usdt"}, "eth-usdt", "eth-usd"},
		{"btc-usdt fallback", []string{"sol-usdt", "btc-usdt"}, "eth-usdt", "btc-usdt"},
		{"btc-usd fallback", []string{"sol-usd", "btc-usd"}, "", "btc-usd"},
		{"any btc", []string{"ada-usd", "btc-usdc"}, "", "btc-usdc"},
		{"any usdt", []string{"ada-usd", "sol-usdt"}, "", "sol-usdt"},
		{"first", []string{"ada-usd", "sol-usd"}, "", "ada-usd"},
		{"empty", nil, "btc-usdt", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveSymbol(tt.symbols, tt.previous))
		})
	}
}

// fakeAdapter records Connect/disconnect calls and exposes the handler.
type fakeAdapter struct {
	name    string
	symbols []string

	mu          sync.Mutex
	handler     common.Handler
	connects    int
	disconnects int
	connectErr  error
}

func (f *fakeAdapter) Name() string { return f.name }
func (f *fakeAdapter) FormatAPISymbol(s string) string { return s }
func (f *fakeAdapter) FormatPair(s string) string { return s }
func (f *fakeAdapter) FetchAllSymbols(context.Context) ([]string, error) { return f.symbols, nil }
func (f *fakeAdapter) FetchKlines(context.Context, string, string) ([]common.Candle, error) {
	return nil, nil
}
func (f *fakeAdapter) FetchOrderBook(context.Context, string) (common.OrderBookSnapshot, error) {
	return common.OrderBookSnapshot{}, nil
}

func (f *fakeAdapter) Connect(symbol, interval string, h common.Handler) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	f.connects++
	f.handler = h
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.disconnects++
			f.mu.Unlock()
		})
	}, nil
}

func (f *fakeAdapter) emit(msg common.StreamMessage, origin string) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(msg, origin)
}

func (f *fakeAdapter) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.disconnects
}

type fakeResolver map[string]common.Adapter

func (r fakeResolver) Get(name string) (common.Adapter, bool) {
	a, ok := r[name]
	return a, ok
}

func newTestDashboard() (*Dashboard, *fakeAdapter, *fakeAdapter, *events.Bus, *cache.PriceCache) {
	a := &fakeAdapter{name: "binance", symbols: []string{"btc-usdt", "eth-usdt"}}
	b := &fakeAdapter{name: "kraken", symbols: []string{"btc-usd"}}
	bus := events.NewBus()
	prices := cache.NewPriceCache()
	return NewDashboard(fakeResolver{"binance": a, "kraken": b}, bus, prices, nil), a, b, bus, prices
}

func TestSelectReplacesPreviousSession(t *testing.T) {
	d, a, b, bus, _ := newTestDashboard()
	sels, unsub := bus.Subscribe(events.EventSelection, 4)
	defer unsub()

	require.NoError(t, d.Select(context.Background(), "binance", "btc-usdt", "1m"))
	require.NoError(t, d.Select(context.Background(), "kraken", "btc-usd", "5m"))

	ac, ad := a.counts()
	assert.Equal(t, 1, ac)
	assert.Equal(t, 1, ad)
	bc, bd := b.counts()
	assert.Equal(t, 1, bc)
	assert.Zero(t, bd)

	cur, live := d.Current()
	assert.True(t, live)
	assert.Equal(t, events.Selection{Exchange: "kraken", Symbol: "btc-usd", Interval: "5m"}, cur)
	assert.Equal(t, "binance", (<-sels).(events.Selection).Exchange)
	assert.Equal(t, "kraken", (<-sels).(events.Selection).Exchange)

	d.Close()
	_, bd = b.counts()
	assert.Equal(t, 1, bd)
	_, live = d.Current()
	assert.False(t, live)
}

func TestHandlerFiltersAndDerives(t *testing.T) {
	d, a, _, bus, prices := newTestDashboard()
	flows, unsubF := bus.Subscribe(events.EventFlow, 4)
	defer unsubF()
	sents, unsubS := bus.Subscribe(events.EventSentiment, 4)
	defer unsubS()
	stream, unsubM := bus.Subscribe(events.EventStream, 8)
	defer unsubM()

	require.NoError(t, d.Select(context.Background(), "binance", "btc-usdt", "1m"))

	a.emit(common.StreamMessage{Type: common.MessageTrade, Trade: &common.Trade{Price: 1, Quantity: 1}}, "okx")
	assert.Zero(t, prices.Len())

	a.emit(common.StreamMessage{Type: common.MessageTrade, Trade: &common.Trade{Price: 100, Quantity: 1, Time: time.Now().UnixMilli()}}, "binance")
	a.emit(common.StreamMessage{Type: common.MessageTrade, Trade: &common.Trade{Price: 99, Quantity: 1, Time: time.Now().UnixMilli(), IsBuyerMaker: true}}, "binance")
	assert.Equal(t, 100.0, (<-flows).(events.FlowPayload).Cumulative)
	second := (<-flows).(events.FlowPayload)
	assert.Equal(t, 1.0, second.Cumulative)
	require.NotNil(t, second.Average5m)

	q, ok := prices.Get("binance", "btc-usdt")
	require.True(t, ok)
	assert.Equal(t, 99.0, q.Price)

	book := common.OrderBookSnapshot{Bids: []common.OrderBookLevel{{100, 1}}, Asks: []common.OrderBookLevel{{101, 1}}}
	a.emit(common.StreamMessage{Type: common.MessageDepth, Depth: &book}, "binance")
	s := (<-sents).(events.SentimentPayload)
	assert.InDelta(t, 100.0/201*100, s.BidPercent, 1e-9)
	got, ok := d.Book()
	require.True(t, ok)
	assert.Equal(t, book, got)

	a.emit(common.StreamMessage{Type: common.MessageKline, Kline: &common.Candle{Close: 102}}, "binance")
	q, _ = prices.Get("binance", "btc-usdt")
	assert.Equal(t, 102.0, q.Price)
	assert.Equal(t, "kline", q.Source)

	assert.Len(t, stream, 4)
}

func TestSelectErrors(t *testing.T) {
	d, a, _, _, _ := newTestDashboard()

	err := d.Select(context.Background(), "ftx", "btc-usdt", "1m")
	assert.True(t, errors.Is(err, ErrUnknownExchange))

	require.NoError(t, d.Select(context.Background(), "binance", "btc-usdt", "1m"))
	a.mu.Lock()
	a.connectErr = &common.UnsupportedIntervalError{Exchange: "binance", Interval: "7m"}
	a.mu.Unlock()

	err = d.Select(context.Background(), "binance", "btc-usdt", "7m")
	assert.True(t, common.IsUnsupportedInterval(err))
	_, live := d.Current()
	assert.False(t, live)
	_, disc := a.counts()
	assert.Equal(t, 1, disc)
}

func TestRestoreResolvesSymbol(t *testing.T) {
	d, _, _, _, _ := newTestDashboard()
	sel, err := d.Restore(context.Background(), events.Selection{Exchange: "kraken", Symbol: "btc-usdt", Interval: "1h"})
	require.NoError(t, err)
	assert.Equal(t, events.Selection{Exchange: "kraken", Symbol: "btc-usd", Interval: "1h"}, sel)
}

func TestMockAdapterStreams(t *testing.T) {
	m := NewMockAdapter("binance", 5*time.Millisecond)
	got := make(chan common.StreamMessage, 16)
	stop, err := m.Connect("btc-usdt", "1m", func(msg common.StreamMessage, ex string) {
		select {
		case got <- msg:
		default:
		}
	})
	require.NoError(t, err)

	seen := map[common.MessageType]bool{}
	deadline := time.After(time.Second)
	for len(seen) < 3 {
		select {
		case msg := <-got:
			seen[msg.Type] = true
			assert.Equal(t, "binance", msg.Exchange)
		case <-deadline:
			t.Fatal("mock adapter did not stream all message types")
		}
	}
	stop()
	stop()

	candles, err := m.FetchKlines(context.Background(), "btc-usdt", "1h")
	require.NoError(t, err)
	assert.Len(t, candles, 300)
	_, err = m.Connect("btc-usdt", "2m", nil)
	assert.True(t, common.IsUnsupportedInterval(err))
}
