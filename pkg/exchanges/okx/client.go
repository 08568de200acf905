package okx

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"market-core/pkg/exchanges/common"
)

const (
	Name = "okx"

	defaultRESTURL = "https://www.okx.com/api/v5"
	defaultWSURL   = "wss://ws.okx.com:8443/ws/v5/public"

	klineLimit = 300
	bookDepth  = 25
)

var (
	listedQuotes = []string{"USDT", "USDC"}
	bars         = map[string]string{
		"1m": "1m", "5m": "5m", "15m": "15m", "30m": "30m",
		"1h": "1H", "4h": "4H", "1d": "1D", "1w": "1W",
	}
)

// Client is the OKX spot market-data adapter.
type Client struct {
	rest *common.REST
	opts common.Options
	log  *zap.Logger
}

// New builds an OKX adapter.
func New(opts common.Options) *Client {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		rest: common.NewREST(opts.RESTConfig(Name, defaultRESTURL, 10, 20)),
		opts: opts,
		log:  log.With(zap.String("exchange", Name)),
	}
}

func (c *Client) Name() string { return Name }

// FormatAPISymbol turns btc-usdt into BTC-USDT.
func (c *Client) FormatAPISymbol(symbol string) string { return strings.ToUpper(symbol) }

// FormatPair turns BTC-USDT into btc-usdt.
func (c *Client) FormatPair(native string) string { return strings.ToLower(native) }

type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// get returns the data field, mapping non-zero codes to RemoteAPIError.
func (c *Client) get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	body, err := c.rest.Get(ctx, path, params)
	if err != nil {
		var re *common.RemoteAPIError
		if errors.As(err, &re) {
			var env envelope
			if json.Unmarshal([]byte(re.Message), &env) == nil && env.Msg != "" {
				re.Message = env.Msg
			}
		}
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode okx %s: %w", path, err)
	}
	if env.Code != "0" {
		msg := env.Msg
		if msg == "" {
			msg = "code " + env.Code
		}
		return nil, &common.RemoteAPIError{Exchange: Name, Message: msg}
	}
	return env.Data, nil
}

// FetchAllSymbols lists live USDT and USDC spot instruments.
func (c *Client) FetchAllSymbols(ctx context.Context) ([]string, error) {
	data, err := c.get(ctx, "/public/instruments", url.Values{"instType": {"SPOT"}})
	if err != nil {
		return nil, err
	}
	var rows []struct {
		InstID   string `json:"instId"`
		BaseCcy  string `json:"baseCcy"`
		QuoteCcy string `json:"quoteCcy"`
		State    string `json:"state"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode okx instruments: %w", err)
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.State != "live" || strings.Contains(r.InstID, "_") {
			continue
		}
		if !common.ContainsFold(listedQuotes, r.QuoteCcy) || common.IsStablePair(r.BaseCcy, r.QuoteCcy) {
			continue
		}
		out = append(out, c.FormatPair(r.InstID))
	}
	return common.SortedUnique(out), nil
}

// FetchKlines returns up to 300 ascending candles. OKX answers newest first.
func (c *Client) FetchKlines(ctx context.Context, symbol, interval string) ([]common.Candle, error) {
	bar, ok := bars[interval]
	if !ok {
		return nil, &common.UnsupportedIntervalError{Exchange: Name, Interval: interval}
	}
	params := url.Values{}
	params.Set("instId", c.FormatAPISymbol(symbol))
	params.Set("bar", bar)
	params.Set("limit", strconv.Itoa(klineLimit))
	data, err := c.get(ctx, "/market/candles", params)
	if err != nil {
		return nil, err
	}
	var rows [][]string
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode okx candles: %w", err)
	}
	out := make([]common.Candle, 0, len(rows))
	for _, r := range rows {
		if cd, ok := candleFromRow(r); ok {
			out = append(out, cd)
		}
	}
	common.ReverseCandles(out)
	return common.LastN(out, klineLimit), nil
}

// candleFromRow parses [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm].
func candleFromRow(r []string) (common.Candle, bool) {
	if len(r) < 6 {
		return common.Candle{}, false
	}
	ts, err := strconv.ParseInt(r[0], 10, 64)
	if err != nil {
		return common.Candle{}, false
	}
	cd := common.Candle{
		Time:  ts / 1000,
		Open:  common.ToFloat(r[1]),
		High:  common.ToFloat(r[2]),
		Low:   common.ToFloat(r[3]),
		Close: common.ToFloat(r[4]),
	}
	if len(r) > 7 {
		cd.Value = common.ToFloat(r[7])
	} else {
		cd.Value = common.ToFloat(r[5]) * cd.Close
	}
	return cd, true
}

// FetchOrderBook returns a 25-level snapshot.
func (c *Client) FetchOrderBook(ctx context.Context, symbol string) (common.OrderBookSnapshot, error) {
	params := url.Values{}
	params.Set("instId", c.FormatAPISymbol(symbol))
	params.Set("sz", "50")
	data, err := c.get(ctx, "/market/books", params)
	if err != nil {
		return common.OrderBookSnapshot{}, err
	}
	var books []bookData
	if err := json.Unmarshal(data, &books); err != nil {
		return common.OrderBookSnapshot{}, fmt.Errorf("decode okx books: %w", err)
	}
	if len(books) == 0 {
		return common.OrderBookSnapshot{Bids: []common.OrderBookLevel{}, Asks: []common.OrderBookLevel{}}, nil
	}
	return common.SortSnapshot(books[0].levels(), bookDepth), nil
}

type bookData struct {
	Asks [][]any `json:"asks"`
	Bids [][]any `json:"bids"`
}

func (b bookData) levels() common.OrderBookSnapshot {
	return common.OrderBookSnapshot{Bids: common.ParseLevels(b.Bids), Asks: common.ParseLevels(b.Asks)}
}
