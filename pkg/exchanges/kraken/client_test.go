package kraken

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-core/pkg/exchanges/common"
	"market-core/pkg/exchanges/streamtest"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(common.Options{RESTURL: srv.URL, RatePerSec: 1000, Burst: 100})
}

const assetPairs = `{"error":[],"result":{
	"XBTUSDT":{"altname":"XBTUSDT","wsname":"XBT/USDT","status":"online"},
	"XXBTZUSD":{"altname":"XBTUSD","wsname":"XBT/USD","status":"online"},
	"XDGUSD":{"altname":"XDGUSD","wsname":"XDG/USD","status":"online"},
	"ETHUSDC":{"altname":"ETHUSDC","wsname":"ETH/USDC","status":"online"},
	"XETHZEUR":{"altname":"ETHEUR","wsname":"ETH/EUR","status":"online"},
	"USDCUSDT":{"altname":"USDCUSDT","wsname":"USDC/USDT","status":"online"},
	"XXBTZUSD.d":{"altname":"XBTUSD.d","wsname":"XBT/USD.d"}
}}`

func TestFetchAllSymbolsBuildsLookup(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/AssetPairs", r.URL.Path)
		_, _ = w.Write([]byte(assetPairs))
	})

	got, err := c.FetchAllSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"btc-usd", "btc-usdt", "doge-usd", "eth-usdc"}, got)

	for _, s := range got {
		assert.Equal(t, s, c.FormatPair(c.FormatAPISymbol(s)), s)
	}
	assert.Equal(t, "XBTUSD", c.FormatAPISymbol("btc-usd"))
	assert.Equal(t, "btc-usd", c.FormatPair("XXBTZUSD"))
	assert.Equal(t, "XDG/USD", c.wsName("doge-usd"))
}

func TestSymbolHeuristicWithoutLookup(t *testing.T) {
	c := New(common.Options{})
	assert.Equal(t, "XBTUSDT", c.FormatAPISymbol("btc-usdt"))
	assert.Equal(t, "btc-usdt", c.FormatPair("XBTUSDT"))
	assert.Equal(t, "sol-usd", c.FormatPair("SOLUSD"))
	assert.Equal(t, "btc-usdc", c.FormatPair("XBT/USDC"))
	assert.Equal(t, "XBT/USDT", c.wsName("btc-usdt"))
}

func TestFetchKlines(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "60", r.URL.Query().Get("interval"))
		assert.Equal(t, "XBTUSDT", r.URL.Query().Get("pair"))
		_, _ = w.Write([]byte(`{"error":[],"result":{"XBTUSDT":[
			[1700000000,"100","110","90","105","102","2","10"],
			[1700003600,"105","115","100","110","0","3","12"]
		],"last":1700003600}}`))
	})

	got, err := c.FetchKlines(context.Background(), "btc-usdt", "1h")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, common.Candle{Time: 1700000000, Open: 100, High: 110, Low: 90, Close: 105, Value: 204}, got[0])
	assert.Equal(t, 330.0, got[1].Value)
}

func TestErrorArrayIsRemoteError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":["EQuery:Unknown asset pair"]}`))
	})
	_, err := c.FetchOrderBook(context.Background(), "nope-usd")
	var re *common.RemoteAPIError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "EQuery:Unknown asset pair", re.Message)
}

func TestUnsupportedInterval(t *testing.T) {
	c := New(common.Options{RESTURL: "http://127.0.0.1:1"})
	_, err := c.FetchKlines(context.Background(), "btc-usd", "3m")
	assert.True(t, common.IsUnsupportedInterval(err))
}

func TestParserBook(t *testing.T) {
	p := &parser{book: common.NewBook(bookDepth), intervalSec: 60}

	_, ok := p.parse([]byte(`[0,{"as":[["101.0","1.0","1700000000.1"]],"bs":[["100.0","1.0","1700000000.1"],["99.0","2.0","1700000000.1"]]},"book-25","XBT/USDT"]`))
	require.True(t, ok)

	msgs, ok := p.parse([]byte(`[0,{"a":[["101.0","0.00000000","1700000001.1"]]},{"b":[["100.0","0.00000000","1700000001.1"],["98.0","5.0","1700000001.2"]],"c":"123"},"book-25","XBT/USDT"]`))
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, []common.OrderBookLevel{{99, 2}, {98, 5}}, msgs[0].Depth.Bids)
	assert.Empty(t, msgs[0].Depth.Asks)
}

func TestParserOHLCAndTrades(t *testing.T) {
	p := &parser{book: common.NewBook(bookDepth), intervalSec: 60}

	msgs, ok := p.parse([]byte(`[42,["1700000030.5","1700000060.000000","1","2","0.5","1.5","1.2","10","5"],"ohlc-1","XBT/USDT"]`))
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(1700000000), msgs[0].Kline.Time)
	assert.InDelta(t, 12.0, msgs[0].Kline.Value, 1e-9)

	msgs, ok = p.parse([]byte(`[7,[["100.0","1.0","1700000000.123456","b","m",""],["99.0","1.0","1700000001.5","s","l",""]],"trade","XBT/USDT"]`))
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.False(t, msgs[0].Trade.IsBuyerMaker)
	assert.Equal(t, int64(1700000000123), msgs[0].Trade.Time)
	assert.True(t, msgs[1].Trade.IsBuyerMaker)

	_, ok = p.parse([]byte(`{"event":"heartbeat"}`))
	assert.True(t, ok)
	_, ok = p.parse([]byte(`[1,"x"]`))
	assert.False(t, ok)
}

func TestConnectSendsThreeSubscriptions(t *testing.T) {
	dialer := streamtest.NewDialer()
	c := New(common.Options{Dialer: dialer})

	stop, err := c.Connect("btc-usdt", "5m", func(common.StreamMessage, string) {})
	require.NoError(t, err)

	conn, ok := dialer.Next(time.Second)
	require.True(t, ok)
	assert.Equal(t, defaultWSURL, conn.URL)
	frames := conn.WaitWritten(3, time.Second)
	require.Len(t, frames, 3)
	assert.JSONEq(t, `{"event":"subscribe","pair":["XBT/USDT"],"subscription":{"name":"book","depth":25}}`, frames[0])
	assert.JSONEq(t, `{"event":"subscribe","pair":["XBT/USDT"],"subscription":{"name":"ohlc","interval":5}}`, frames[1])
	assert.JSONEq(t, `{"event":"subscribe","pair":["XBT/USDT"],"subscription":{"name":"trade"}}`, frames[2])

	stop()
	assert.Len(t, conn.Written(), 6)
}
