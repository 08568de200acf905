package coinbase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"market-core/pkg/exchanges/common"
)

const (
	Name = "coinbase"

	defaultRESTURL = "https://api.exchange.coinbase.com"

	klineLimit = 300
)

var (
	listedQuotes = []string{"USD", "USDT", "USDC"}
	granularity  = map[string]int{
		"1m": 60, "5m": 300, "15m": 900,
		"1h": 3600, "4h": 21600, "6h": 21600, "1d": 86400,
	}
)

// Client is the Coinbase Exchange adapter. There is no public book or stream
// endpoint, so the order book is always empty and Connect polls candles.
type Client struct {
	rest *common.REST
	opts common.Options
	log  *zap.Logger
}

// New builds a Coinbase adapter.
func New(opts common.Options) *Client {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		rest: common.NewREST(opts.RESTConfig(Name, defaultRESTURL, 3, 6)),
		opts: opts,
		log:  log.With(zap.String("exchange", Name)),
	}
}

func (c *Client) Name() string { return Name }

// FormatAPISymbol turns btc-usd into BTC-USD.
func (c *Client) FormatAPISymbol(symbol string) string { return strings.ToUpper(symbol) }

// FormatPair turns BTC-USD into btc-usd.
func (c *Client) FormatPair(native string) string { return strings.ToLower(native) }

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	body, err := c.rest.Get(ctx, path, params)
	if err != nil {
		var re *common.RemoteAPIError
		if errors.As(err, &re) {
			var msg struct {
				Message string `json:"message"`
			}
			if json.Unmarshal([]byte(re.Message), &msg) == nil && msg.Message != "" {
				re.Message = msg.Message
			}
		}
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode coinbase %s: %w", path, err)
	}
	return nil
}

// FetchAllSymbols lists online USD, USDT and USDC products.
func (c *Client) FetchAllSymbols(ctx context.Context) ([]string, error) {
	var products []struct {
		ID              string `json:"id"`
		BaseCurrency    string `json:"base_currency"`
		QuoteCurrency   string `json:"quote_currency"`
		Status          string `json:"status"`
		TradingDisabled bool   `json:"trading_disabled"`
	}
	if err := c.get(ctx, "/products", nil, &products); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(products))
	for _, p := range products {
		if p.TradingDisabled || p.Status != "online" || strings.Contains(p.ID, "_") {
			continue
		}
		if !common.ContainsFold(listedQuotes, p.QuoteCurrency) || common.IsStablePair(p.BaseCurrency, p.QuoteCurrency) {
			continue
		}
		out = append(out, c.FormatPair(p.ID))
	}
	return common.SortedUnique(out), nil
}

// FetchKlines returns up to 300 ascending candles. Coinbase rows are
// [time, low, high, open, close, volume], newest first; Value is volume times close.
func (c *Client) FetchKlines(ctx context.Context, symbol, interval string) ([]common.Candle, error) {
	g, ok := granularity[interval]
	if !ok {
		return nil, &common.UnsupportedIntervalError{Exchange: Name, Interval: interval}
	}
	return c.fetchCandles(ctx, c.FormatAPISymbol(symbol), g)
}

func (c *Client) fetchCandles(ctx context.Context, product string, gran int) ([]common.Candle, error) {
	var rows [][]any
	path := "/products/" + url.PathEscape(product) + "/candles"
	if err := c.get(ctx, path, url.Values{"granularity": {strconv.Itoa(gran)}}, &rows); err != nil {
		return nil, err
	}
	out := make([]common.Candle, 0, len(rows))
	for _, r := range rows {
		if len(r) < 6 {
			continue
		}
		cd := common.Candle{
			Time:  common.ToInt64(r[0]),
			Low:   common.ToFloat(r[1]),
			High:  common.ToFloat(r[2]),
			Open:  common.ToFloat(r[3]),
			Close: common.ToFloat(r[4]),
		}
		cd.Value = common.ToFloat(r[5]) * cd.Close
		out = append(out, cd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return common.LastN(out, klineLimit), nil
}

// FetchOrderBook always returns an empty snapshot.
func (c *Client) FetchOrderBook(ctx context.Context, symbol string) (common.OrderBookSnapshot, error) {
	return common.OrderBookSnapshot{Bids: []common.OrderBookLevel{}, Asks: []common.OrderBookLevel{}}, nil
}
