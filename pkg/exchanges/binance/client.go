package binance

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"market-core/pkg/exchanges/common"
)

const (
	Name = "binance"

	defaultRESTURL = "https://api.binance.com/api/v3"
	defaultWSURL   = "wss://stream.binance.com:9443/stream"

	klineLimit = 300
	depthLimit = 20
)

var (
	listedQuotes    = []string{"USDT", "USDC"}
	suffixQuotes    = []string{"USDT", "BUSD", "USDC", "TUSD", "FDUSD"}
	nativeIntervals = map[string]bool{
		"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
		"1h": true, "2h": true, "4h": true, "6h": true, "8h": true, "12h": true,
		"1d": true, "3d": true, "1w": true, "1M": true,
	}
)

// Client is the Binance spot market-data adapter.
type Client struct {
	rest   *common.REST
	opts   common.Options
	log    *zap.Logger
	mu     sync.RWMutex
	native map[string]string // BTCUSDT -> btc-usdt
}

// New builds a Binance adapter.
func New(opts common.Options) *Client {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("exchange", Name))
	cfg := opts.RESTConfig(Name, defaultRESTURL, 10, 20)
	cfg.WeightHeader = "X-MBX-USED-WEIGHT-1M"
	cfg.Weights = common.NewWeightTracker(6000, time.Minute, log)
	return &Client{
		rest:   common.NewREST(cfg),
		opts:   opts,
		log:    log,
		native: make(map[string]string),
	}
}

func (c *Client) Name() string { return Name }

// FormatAPISymbol turns btc-usdt into BTCUSDT.
func (c *Client) FormatAPISymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "-", ""))
}

// FormatPair turns BTCUSDT into btc-usdt using the listing table, falling back to quote suffixes.
func (c *Client) FormatPair(native string) string {
	n := strings.ToUpper(native)
	c.mu.RLock()
	s, ok := c.native[n]
	c.mu.RUnlock()
	if ok {
		return s
	}
	if base, quote, ok := common.SplitByQuote(n, suffixQuotes); ok {
		return common.Canonical(base, quote)
	}
	return strings.ToLower(native)
}

// FetchAllSymbols lists trading USDT and USDC spot pairs.
func (c *Client) FetchAllSymbols(ctx context.Context) ([]string, error) {
	body, err := c.get(ctx, "/exchangeInfo", nil)
	if err != nil {
		return nil, err
	}
	var info struct {
		Symbols []struct {
			Symbol     string `json:"symbol"`
			Status     string `json:"status"`
			BaseAsset  string `json:"baseAsset"`
			QuoteAsset string `json:"quoteAsset"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode binance exchangeInfo: %w", err)
	}

	out := make([]string, 0, len(info.Symbols))
	table := make(map[string]string, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" || strings.Contains(s.Symbol, "_") {
			continue
		}
		if !common.ContainsFold(listedQuotes, s.QuoteAsset) || common.IsStablePair(s.BaseAsset, s.QuoteAsset) {
			continue
		}
		canon := common.Canonical(s.BaseAsset, s.QuoteAsset)
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

// FetchKlines returns up to 300 ascending candles; Value is the quote asset volume.
func (c *Client) FetchKlines(ctx context.Context, symbol, interval string) ([]common.Candle, error) {
	if !nativeIntervals[interval] {
		return nil, &common.UnsupportedIntervalError{Exchange: Name, Interval: interval}
	}
	params := url.Values{}
	params.Set("symbol", c.FormatAPISymbol(symbol))
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(klineLimit))
	body, err := c.get(ctx, "/klines", params)
	if err != nil {
		return nil, err
	}

	var rows [][]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode binance klines: %w", err)
	}
	out := make([]common.Candle, 0, len(rows))
	for _, r := range rows {
		if len(r) < 8 {
			continue
		}
		out = append(out, common.Candle{
			Time:  common.ToInt64(r[0]) / 1000,
			Open:  common.ToFloat(r[1]),
			High:  common.ToFloat(r[2]),
			Low:   common.ToFloat(r[3]),
			Close: common.ToFloat(r[4]),
			Value: common.ToFloat(r[7]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return common.LastN(out, klineLimit), nil
}

// FetchOrderBook returns a 20-level snapshot.
func (c *Client) FetchOrderBook(ctx context.Context, symbol string) (common.OrderBookSnapshot, error) {
	params := url.Values{}
	params.Set("symbol", c.FormatAPISymbol(symbol))
	params.Set("limit", strconv.Itoa(depthLimit))
	body, err := c.get(ctx, "/depth", params)
	if err != nil {
		return common.OrderBookSnapshot{}, err
	}
	var raw depthPayload
	if err := json.Unmarshal(body, &raw); err != nil {
		return common.OrderBookSnapshot{}, fmt.Errorf("decode binance depth: %w", err)
	}
	return raw.snapshot(), nil
}

// Mover is one row of the 24h ticker ranked by quote volume.
type Mover struct {
	Symbol        string  `json:"symbol"`
	LastPrice     float64 `json:"lastPrice"`
	ChangePercent float64 `json:"priceChangePercent"`
	QuoteVolume   float64 `json:"quoteVolume"`
}

// FetchTopMovers ranks liquid non-stablecoin USDT pairs by 24h quote volume.
func (c *Client) FetchTopMovers(ctx context.Context, limit int) ([]Mover, error) {
	body, err := c.get(ctx, "/ticker/24hr", nil)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Symbol             string `json:"symbol"`
		LastPrice          string `json:"lastPrice"`
		PriceChangePercent string `json:"priceChangePercent"`
		QuoteVolume        string `json:"quoteVolume"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode binance 24hr ticker: %w", err)
	}

	out := make([]Mover, 0, len(rows))
	for _, r := range rows {
		if !strings.HasSuffix(r.Symbol, "USDT") || strings.Contains(r.Symbol, "_") {
			continue
		}
		qv := common.ToFloat(r.QuoteVolume)
		if qv <= 1_000_000 {
			continue
		}
		base := strings.TrimSuffix(r.Symbol, "USDT")
		if base == "" || common.IsStablecoin(base) {
			continue
		}
		out = append(out, Mover{
			Symbol:        common.Canonical(base, "USDT"),
			LastPrice:     common.ToFloat(r.LastPrice),
			ChangePercent: common.ToFloat(r.PriceChangePercent),
			QuoteVolume:   qv,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].QuoteVolume > out[j].QuoteVolume })
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// get unwraps Binance's {"code":..,"msg":..} error bodies.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	body, err := c.rest.Get(ctx, path, params)
	if err == nil {
		return body, nil
	}
	var re *common.RemoteAPIError
	if errors.As(err, &re) {
		var e struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if json.Unmarshal([]byte(re.Message), &e) == nil && e.Msg != "" {
			re.Message = e.Msg
		}
	}
	return nil, err
}

type depthPayload struct {
	Bids [][]any `json:"bids"`
	Asks [][]any `json:"asks"`
}

func (d depthPayload) snapshot() common.OrderBookSnapshot {
	return common.SortSnapshot(common.OrderBookSnapshot{
		Bids: common.ParseLevels(d.Bids),
		Asks: common.ParseLevels(d.Asks),
	}, depthLimit)
}
