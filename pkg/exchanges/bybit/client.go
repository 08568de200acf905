package bybit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"market-core/pkg/exchanges/common"
)

const (
	Name = "bybit"

	defaultRESTURL = "https://api.bybit.com/v5"
	defaultWSURL   = "wss://stream.bybit.com/v5/public/spot"

	klineLimit = 300
	bookDepth  = 25
)

var (
	listedQuotes = []string{"USDT", "USDC"}
	intervals    = map[string]string{
		"1m": "1", "5m": "5", "15m": "15", "30m": "30",
		"1h": "60", "4h": "240", "1d": "D", "1w": "W",
	}
)

// Client is the Bybit v5 spot market-data adapter.
type Client struct {
	rest *common.REST
	opts common.Options
	log  *zap.Logger

	mu     sync.RWMutex
	native map[string]string // BTCUSDT -> btc-usdt
}

// New builds a Bybit adapter.
func New(opts common.Options) *Client {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		rest:   common.NewREST(opts.RESTConfig(Name, defaultRESTURL, 10, 20)),
		opts:   opts,
		log:    log.With(zap.String("exchange", Name)),
		native: make(map[string]string),
	}
}

func (c *Client) Name() string { return Name }

// FormatAPISymbol turns btc-usdt into BTCUSDT.
func (c *Client) FormatAPISymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "-", ""))
}

// FormatPair turns BTCUSDT into btc-usdt.
func (c *Client) FormatPair(native string) string {
	n := strings.ToUpper(native)
	c.mu.RLock()
	s, ok := c.native[n]
	c.mu.RUnlock()
	if ok {
		return s
	}
	if base, quote, ok := common.SplitByQuote(n, listedQuotes); ok {
		return common.Canonical(base, quote)
	}
	return strings.ToLower(native)
}

// get unwraps {"retCode":0,"retMsg":"OK","result":...}.
func (c *Client) get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	body, err := c.rest.Get(ctx, path, params)
	if err != nil {
		var re *common.RemoteAPIError
		if errors.As(err, &re) {
			var env struct {
				RetMsg string `json:"retMsg"`
			}
			if json.Unmarshal([]byte(re.Message), &env) == nil && env.RetMsg != "" {
				re.Message = env.RetMsg
			}
		}
		return nil, err
	}
	var env struct {
		RetCode int             `json:"retCode"`
		RetMsg  string          `json:"retMsg"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode bybit %s: %w", path, err)
	}
	if env.RetCode != 0 {
		return nil, &common.RemoteAPIError{Exchange: Name, Message: env.RetMsg}
	}
	return env.Result, nil
}

// FetchAllSymbols lists trading USDT and USDC spot pairs.
func (c *Client) FetchAllSymbols(ctx context.Context) ([]string, error) {
	data, err := c.get(ctx, "/market/instruments-info", url.Values{"category": {"spot"}})
	if err != nil {
		return nil, err
	}
	var result struct {
		List []struct {
			Symbol    string `json:"symbol"`
			BaseCoin  string `json:"baseCoin"`
			QuoteCoin string `json:"quoteCoin"`
			Status    string `json:"status"`
		} `json:"list"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode bybit instruments: %w", err)
	}

	out := make([]string, 0, len(result.List))
	table := make(map[string]string, len(result.List))
	for _, s := range result.List {
		if s.Status != "Trading" || strings.Contains(s.Symbol, "_") {
			continue
		}
		if !common.ContainsFold(listedQuotes, s.QuoteCoin) || common.IsStablePair(s.BaseCoin, s.QuoteCoin) {
			continue
		}
		canon := common.Canonical(s.BaseCoin, s.QuoteCoin)
		table[strings.ToUpper(s.Symbol)] = canon
		out = append(out, canon)
	}
	c.mu.Lock()
	for k, v := range table {
		c.native[k] = v
	}
	c.mu.Unlock()
	return common.SortedUnique(out), nil
}

// FetchKlines returns up to 300 ascending candles. Bybit answers newest first;
// Value is the reported turnover.
func (c *Client) FetchKlines(ctx context.Context, symbol, interval string) ([]common.Candle, error) {
	iv, ok := intervals[interval]
	if !ok {
		return nil, &common.UnsupportedIntervalError{Exchange: Name, Interval: interval}
	}
	params := url.Values{}
	params.Set("category", "spot")
	params.Set("symbol", c.FormatAPISymbol(symbol))
	params.Set("interval", iv)
	params.Set("limit", strconv.Itoa(klineLimit))
	data, err := c.get(ctx, "/market/kline", params)
	if err != nil {
		return nil, err
	}
	var result struct {
		List [][]string `json:"list"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode bybit kline: %w", err)
	}
	out := make([]common.Candle, 0, len(result.List))
	for _, r := range result.List {
		// [start, open, high, low, close, volume, turnover]
		if len(r) < 7 {
			continue
		}
		out = append(out, common.Candle{
			Time:  common.ToInt64(r[0]) / 1000,
			Open:  common.ToFloat(r[1]),
			High:  common.ToFloat(r[2]),
			Low:   common.ToFloat(r[3]),
			Close: common.ToFloat(r[4]),
			Value: common.ToFloat(r[6]),
		})
	}
	common.ReverseCandles(out)
	return common.LastN(out, klineLimit), nil
}

// FetchOrderBook returns a 25-level snapshot.
func (c *Client) FetchOrderBook(ctx context.Context, symbol string) (common.OrderBookSnapshot, error) {
	params := url.Values{}
	params.Set("category", "spot")
	params.Set("symbol", c.FormatAPISymbol(symbol))
	params.Set("limit", "50")
	data, err := c.get(ctx, "/market/orderbook", params)
	if err != nil {
		return common.OrderBookSnapshot{}, err
	}
	var ob bookData
	if err := json.Unmarshal(data, &ob); err != nil {
		return common.OrderBookSnapshot{}, fmt.Errorf("decode bybit orderbook: %w", err)
	}
	return common.SortSnapshot(ob.levels(), bookDepth), nil
}

type bookData struct {
	Symbol string  `json:"s"`
	B      [][]any `json:"b"`
	A      [][]any `json:"a"`
}

func (b bookData) levels() common.OrderBookSnapshot {
	return common.OrderBookSnapshot{Bids: common.ParseLevels(b.B), Asks: common.ParseLevels(b.A)}
}
