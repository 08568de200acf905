package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-core/pkg/exchanges/common"
	"market-core/pkg/exchanges/streamtest"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(common.Options{RESTURL: srv.URL, RatePerSec: 1000, Burst: 100}), &hits
}

func TestFetchAllSymbols(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/exchangeInfo", r.URL.Path)
		_, _ = w.Write([]byte(`{"symbols":[
			{"symbol":"ETHUSDT","status":"TRADING","baseAsset":"ETH","quoteAsset":"USDT"},
			{"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT"},
			{"symbol":"BTCUSDC","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDC"},
			{"symbol":"USDCUSDT","status":"TRADING","baseAsset":"USDC","quoteAsset":"USDT"},
			{"symbol":"BTCEUR","status":"TRADING","baseAsset":"BTC","quoteAsset":"EUR"},
			{"symbol":"LUNAUSDT","status":"BREAK","baseAsset":"LUNA","quoteAsset":"USDT"},
			{"symbol":"BTCUSDT_240628","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT"}
		]}`))
	})

	got, err := c.FetchAllSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"btc-usdc", "btc-usdt", "eth-usdt"}, got)

	for _, s := range got {
		assert.Equal(t, s, c.FormatPair(c.FormatAPISymbol(s)))
	}
}

func TestFormatPairFallback(t *testing.T) {
	c := New(common.Options{})
	tests := map[string]string{
		"BTCUSDT":  "btc-usdt",
		"ethbusd":  "eth-busd",
		"SOLFDUSD": "sol-fdusd",
		"XYZ":      "xyz",
	}
	for in, want := range tests {
		if got := c.FormatPair(in); got != want {
			t.Fatalf("FormatPair(%q)=%q, expected %q", in, got, want)
		}
	}
	assert.Equal(t, "BTCUSDT", c.FormatAPISymbol("btc-usdt"))
}

func TestFetchKlines(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "BTCUSDT", q.Get("symbol"))
		assert.Equal(t, "1h", q.Get("interval"))
		assert.Equal(t, "300", q.Get("limit"))
		_, _ = w.Write([]byte(`[
			[1700000000000,"100","110","90","105","10",1700003599999,"1050.5",42,"5","525","0"],
			[1700003600000,"105","115","100","110","8",1700007199999,"880",30,"4","440","0"]
		]`))
	})

	got, err := c.FetchKlines(context.Background(), "btc-usdt", "1h")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, common.Candle{Time: 1700000000, Open: 100, High: 110, Low: 90, Close: 105, Value: 1050.5}, got[0])
	assert.Equal(t, int64(1700003600), got[1].Time)
}

func TestFetchKlinesUnsupportedIntervalMakesNoRequest(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := c.FetchKlines(context.Background(), "btc-usdt", "7m")
	var ue *common.UnsupportedIntervalError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "7m", ue.Interval)
	assert.Zero(t, hits.Load())

	_, err = c.Connect("btc-usdt", "7m", func(common.StreamMessage, string) {})
	assert.True(t, common.IsUnsupportedInterval(err))
}

func TestRemoteErrorCarriesExchangeText(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	})

	_, err := c.FetchOrderBook(context.Background(), "nope-usdt")
	var re *common.RemoteAPIError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "Invalid symbol.", re.Message)
}

func TestFetchOrderBook(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"lastUpdateId":1,"bids":[["99","2"],["100","1"]],"asks":[["102","1"],["101","3"]]}`))
	})

	got, err := c.FetchOrderBook(context.Background(), "btc-usdt")
	require.NoError(t, err)
	assert.Equal(t, []common.OrderBookLevel{{100, 1}, {99, 2}}, got.Bids)
	assert.Equal(t, []common.OrderBookLevel{{101, 3}, {102, 1}}, got.Asks)
}

func TestFetchTopMovers(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"symbol":"BTCUSDT","lastPrice":"60000","priceChangePercent":"1.5","quoteVolume":"900000000"},
			{"symbol":"ETHUSDT","lastPrice":"3000","priceChangePercent":"-2","quoteVolume":"950000000"},
			{"symbol":"USDCUSDT","lastPrice":"1","priceChangePercent":"0","quoteVolume":"999999999"},
			{"symbol":"DOGEUSDT","lastPrice":"0.1","priceChangePercent":"5","quoteVolume":"500000"},
			{"symbol":"ETHBTC","lastPrice":"0.05","priceChangePercent":"1","quoteVolume":"99999999"}
		]`))
	})

	got, err := c.FetchTopMovers(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "eth-usdt", got[0].Symbol)
	assert.Equal(t, "btc-usdt", got[1].Symbol)
	assert.Equal(t, 1.5, got[1].ChangePercent)
}

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		check func(t *testing.T, m common.StreamMessage)
	}{
		{
			name:  "kline",
			frame: `{"stream":"btcusdt@kline_1m","data":{"e":"kline","k":{"t":1700000000000,"T":1700000059999,"o":"1","h":"3","l":"0.5","c":"2","q":"99.5","Q":"40","L":12345}}}`,
			check: func(t *testing.T, m common.StreamMessage) {
				require.Equal(t, common.MessageKline, m.Type)
				assert.Equal(t, common.Candle{Time: 1700000000, Open: 1, High: 3, Low: 0.5, Close: 2, Value: 99.5}, *m.Kline)
			},
		},
		{
			name:  "depth",
			frame: `{"stream":"btcusdt@depth20@100ms","data":{"lastUpdateId":5,"bids":[["1","1"],["2","1"]],"asks":[["3","1"]]}}`,
			check: func(t *testing.T, m common.StreamMessage) {
				require.Equal(t, common.MessageDepth, m.Type)
				assert.Equal(t, []common.OrderBookLevel{{2, 1}, {1, 1}}, m.Depth.Bids)
			},
		},
		{
			name:  "aggTrade",
			frame: `{"stream":"btcusdt@aggTrade","data":{"e":"aggTrade","p":"100","q":"0.5","T":1700000000123,"m":true,"M":false}}`,
			check: func(t *testing.T, m common.StreamMessage) {
				require.Equal(t, common.MessageTrade, m.Type)
				assert.Equal(t, common.Trade{Price: 100, Quantity: 0.5, Time: 1700000000123, IsBuyerMaker: true}, *m.Trade)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := parseFrame([]byte(tt.frame))
			require.True(t, ok)
			assert.Equal(t, Name, m.Exchange)
			tt.check(t, m)
		})
	}

	for _, bad := range []string{`not json`, `{"result":null,"id":1}`, `{"stream":"btcusdt@ticker","data":{}}`} {
		_, ok := parseFrame([]byte(bad))
		assert.False(t, ok, bad)
	}
}

func TestConnectStreamsAndUnsubscribes(t *testing.T) {
	dialer := streamtest.NewDialer()
	c := New(common.Options{WSURL: "wss://test/stream", Dialer: dialer})
	col := streamtest.NewCollector()

	stop, err := c.Connect("btc-usdt", "1m", col.Handle)
	require.NoError(t, err)

	conn, ok := dialer.Next(time.Second)
	require.True(t, ok)
	assert.Equal(t, "wss://test/stream?streams=btcusdt@kline_1m/btcusdt@depth20@100ms/btcusdt@aggTrade", conn.URL)

	conn.Push(`garbage`)
	conn.Push(`{"stream":"btcusdt@aggTrade","data":{"p":"1","q":"2","T":3,"m":false}}`)
	msg, ok := col.Next(time.Second)
	require.True(t, ok)
	assert.Equal(t, common.MessageTrade, msg.Type)

	stop()
	stop()
	written := conn.Written()
	require.Len(t, written, 1)
	assert.True(t, strings.Contains(written[0], `"UNSUBSCRIBE"`))
	assert.Equal(t, 1, dialer.Count())
}
