package kraken

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"market-core/pkg/exchanges/common"
)

const (
	Name = "kraken"

	defaultRESTURL = "https://api.kraken.com/0/public"
	defaultWSURL   = "wss://ws.kraken.com"

	klineLimit = 300
	restDepth  = 20
	bookDepth  = 25
)

var (
	listedQuotes = []string{"USDT", "USDC", "USD"}
	minutes      = map[string]int{
		"1m": 1, "5m": 5, "15m": 15, "30m": 30,
		"1h": 60, "4h": 240, "1d": 1440, "1w": 10080,
	}
	// Kraken's legacy asset codes.
	toCanonicalAsset = map[string]string{"XBT": "BTC", "XDG": "DOGE"}
	toKrakenAsset    = map[string]string{"BTC": "XBT", "DOGE": "XDG"}
)

type pairInfo struct {
	rest string // altname, e.g. XBTUSDT
	ws   string // wsname, e.g. XBT/USDT
}

// Client is the Kraken spot market-data adapter.
type Client struct {
	rest *common.REST
	opts common.Options
	log  *zap.Logger

	mu       sync.RWMutex
	pairs    map[string]pairInfo // btc-usdt -> names
	reversed map[string]string   // XBTUSDT, XBT/USDT, XXBTZUSD -> btc-usdt
}

// New builds a Kraken adapter.
func New(opts common.Options) *Client {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		rest:     common.NewREST(opts.RESTConfig(Name, defaultRESTURL, 1, 5)),
		opts:     opts,
		log:      log.With(zap.String("exchange", Name)),
		pairs:    make(map[string]pairInfo),
		reversed: make(map[string]string),
	}
}

func (c *Client) Name() string { return Name }

// FormatAPISymbol returns the REST pair name: listing table first, else alias heuristic.
func (c *Client) FormatAPISymbol(symbol string) string {
	c.mu.RLock()
	p, ok := c.pairs[symbol]
	c.mu.RUnlock()
	if ok {
		return p.rest
	}
	base, quote, ok := common.SplitCanonical(symbol)
	if !ok {
		return strings.ToUpper(symbol)
	}
	return krakenAsset(base) + strings.ToUpper(quote)
}

// wsName returns the websocket pair name, e.g. XBT/USDT.
func (c *Client) wsName(symbol string) string {
	c.mu.RLock()
	p, ok := c.pairs[symbol]
	c.mu.RUnlock()
	if ok {
		return p.ws
	}
	base, quote, ok := common.SplitCanonical(symbol)
	if !ok {
		return strings.ToUpper(symbol)
	}
	return krakenAsset(base) + "/" + strings.ToUpper(quote)
}

// FormatPair maps any Kraken pair spelling back to canonical form.
func (c *Client) FormatPair(native string) string {
	c.mu.RLock()
	s, ok := c.reversed[native]
	c.mu.RUnlock()
	if ok {
		return s
	}
	n := strings.ToUpper(native)
	if i := strings.Index(n, "/"); i > 0 {
		return common.Canonical(canonicalAsset(n[:i]), n[i+1:])
	}
	if base, quote, ok := common.SplitByQuote(n, listedQuotes); ok {
		return common.Canonical(canonicalAsset(base), quote)
	}
	return strings.ToLower(native)
}

func canonicalAsset(a string) string {
	a = strings.ToUpper(a)
	if v, ok := toCanonicalAsset[a]; ok {
		return v
	}
	return a
}

func krakenAsset(a string) string {
	a = strings.ToUpper(a)
	if v, ok := toKrakenAsset[a]; ok {
		return v
	}
	return a
}

// get unwraps {"error":[...],"result":...}.
func (c *Client) get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	body, err := c.rest.Get(ctx, path, params)
	if err != nil {
		return nil, err
	}
	var env struct {
		Error  []string        `json:"error"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode kraken %s: %w", path, err)
	}
	if len(env.Error) > 0 {
		return nil, &common.RemoteAPIError{Exchange: Name, Message: strings.Join(env.Error, "; ")}
	}
	return env.Result, nil
}

// FetchAllSymbols lists USDT, USD and USDC pairs and refreshes the name tables.
func (c *Client) FetchAllSymbols(ctx context.Context) ([]string, error) {
	data, err := c.get(ctx, "/AssetPairs", nil)
	if err != nil {
		return nil, err
	}
	var result map[string]struct {
		Altname string `json:"altname"`
		WSName  string `json:"wsname"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode kraken AssetPairs: %w", err)
	}

	pairs := make(map[string]pairInfo, len(result))
	reversed := make(map[string]string, len(result)*3)
	out := make([]string, 0, len(result))
	for key, p := range result {
		if p.WSName == "" || strings.Contains(key, ".d") || strings.Contains(p.WSName, ".d") {
			continue
		}
		if p.Status != "" && p.Status != "online" {
			continue
		}
		parts := strings.SplitN(p.WSName, "/", 2)
		if len(parts) != 2 || !common.ContainsFold(listedQuotes, parts[1]) {
			continue
		}
		base := canonicalAsset(parts[0])
		if common.IsStablePair(base, parts[1]) {
			continue
		}
		canon := common.Canonical(base, parts[1])
		alt := p.Altname
		if alt == "" {
			alt = key
		}
		pairs[canon] = pairInfo{rest: alt, ws: p.WSName}
		reversed[key] = canon
		reversed[alt] = canon
		reversed[p.WSName] = canon
		out = append(out, canon)
	}

	c.mu.Lock()
	for k, v := range pairs {
		c.pairs[k] = v
	}
	for k, v := range reversed {
		c.reversed[k] = v
	}
	c.mu.Unlock()
	return common.SortedUnique(out), nil
}

// FetchKlines returns the latest 300 candles. Value is volume times vwap.
func (c *Client) FetchKlines(ctx context.Context, symbol, interval string) ([]common.Candle, error) {
	mins, ok := minutes[interval]
	if !ok {
		return nil, &common.UnsupportedIntervalError{Exchange: Name, Interval: interval}
	}
	params := url.Values{}
	params.Set("pair", c.FormatAPISymbol(symbol))
	params.Set("interval", strconv.Itoa(mins))
	data, err := c.get(ctx, "/OHLC", params)
	if err != nil {
		return nil, err
	}
	rows, err := firstPairValue[[][]any](data)
	if err != nil {
		return nil, fmt.Errorf("decode kraken OHLC: %w", err)
	}
	out := make([]common.Candle, 0, len(rows))
	for _, r := range rows {
		// [time, open, high, low, close, vwap, volume, count]
		if len(r) < 7 {
			continue
		}
		cd := common.Candle{
			Time:  common.ToInt64(r[0]),
			Open:  common.ToFloat(r[1]),
			High:  common.ToFloat(r[2]),
			Low:   common.ToFloat(r[3]),
			Close: common.ToFloat(r[4]),
		}
		cd.Value = quoteVolume(common.ToFloat(r[6]), common.ToFloat(r[5]), cd.Close)
		out = append(out, cd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return common.LastN(out, klineLimit), nil
}

// FetchOrderBook returns a 20-level snapshot.
func (c *Client) FetchOrderBook(ctx context.Context, symbol string) (common.OrderBookSnapshot, error) {
	params := url.Values{}
	params.Set("pair", c.FormatAPISymbol(symbol))
	params.Set("count", strconv.Itoa(restDepth))
	data, err := c.get(ctx, "/Depth", params)
	if err != nil {
		return common.OrderBookSnapshot{}, err
	}
	book, err := firstPairValue[struct {
		Asks [][]any `json:"asks"`
		Bids [][]any `json:"bids"`
	}](data)
	if err != nil {
		return common.OrderBookSnapshot{}, fmt.Errorf("decode kraken Depth: %w", err)
	}
	return common.SortSnapshot(common.OrderBookSnapshot{
		Bids: common.ParseLevels(book.Bids),
		Asks: common.ParseLevels(book.Asks),
	}, restDepth), nil
}

// firstPairValue decodes the single pair entry of a result object, skipping "last".
func firstPairValue[T any](data json.RawMessage) (T, error) {
	var zero T
	var result map[string]json.RawMessage
	if err := json.Unmarshal(data, &result); err != nil {
		return zero, err
	}
	for k, v := range result {
		if k == "last" {
			continue
		}
		var out T
		if err := json.Unmarshal(v, &out); err != nil {
			return zero, err
		}
		return out, nil
	}
	return zero, errors.New("no pair in result")
}

func quoteVolume(volume, vwap, closePrice float64) float64 {
	if vwap > 0 {
		return volume * vwap
	}
	return volume * closePrice
}
