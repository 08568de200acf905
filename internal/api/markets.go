package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"market-core/internal/indicators"
	"market-core/pkg/exchanges/common"
	"market-core/pkg/i18n"
)

const (
	defaultMovers = 10
	maxMovers     = 50
)

type exchangeInfo struct {
	Name   string `json:"name"`
	Notice string `json:"notice,omitempty"`
}

// adapter resolves the :exchange path parameter or writes a 404.
func (s *Server) adapter(c *gin.Context) (common.Adapter, bool) {
	name := strings.ToLower(c.Param("exchange"))
	a, ok := s.Adapters.Get(name)
	if !ok {
		notFound(c, name)
		return nil, false
	}
	return a, true
}

// GET /api/exchanges
func (s *Server) listExchanges(c *gin.Context) {
	names := s.Adapters.Names()
	out := make([]exchangeInfo, 0, len(names))
	for _, n := range names {
		info := exchangeInfo{Name: n}
		if n == "coinbase" {
			info.Notice = i18n.T("CoinbaseRealtime")
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, out)
}

// GET /api/exchanges/:exchange/symbols
func (s *Server) getSymbols(c *gin.Context) {
	a, ok := s.adapter(c)
	if !ok {
		return
	}
	symbols, err := a.FetchAllSymbols(c.Request.Context())
	if err != nil {
		respondError(c, a.Name(), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exchange": a.Name(), "symbols": symbols})
}

// GET /api/exchanges/:exchange/klines?symbol=btc-usdt&interval=1h&indicators=sma:20,rsi:14
func (s *Server) getKlines(c *gin.Context) {
	a, ok := s.adapter(c)
	if !ok {
		return
	}
	symbol := strings.ToLower(c.Query("symbol"))
	if symbol == "" {
		missing(c, "symbol")
		return
	}
	interval := c.DefaultQuery("interval", "1h")

	reqs, err := indicators.ParseRequests(c.Query("indicators"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid indicators",
			"message": i18n.T("InvalidIndicators", err),
		})
		return
	}

	candles, err := a.FetchKlines(c.Request.Context(), symbol, interval)
	if err != nil {
		respondError(c, a.Name(), err)
		return
	}
	resp := gin.H{
		"exchange": a.Name(),
		"symbol":   symbol,
		"interval": interval,
		"candles":  candles,
	}
	if len(reqs) > 0 {
		resp["indicators"] = indicators.Compute(candles, reqs)
	}
	c.JSON(http.StatusOK, resp)
}

// GET /api/exchanges/:exchange/orderbook?symbol=btc-usdt
func (s *Server) getOrderBook(c *gin.Context) {
	a, ok := s.adapter(c)
	if !ok {
		return
	}
	symbol := strings.ToLower(c.Query("symbol"))
	if symbol == "" {
		missing(c, "symbol")
		return
	}
	ob, err := a.FetchOrderBook(c.Request.Context(), symbol)
	if err != nil {
		respondError(c, a.Name(), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exchange": a.Name(), "symbol": symbol, "bids": ob.Bids, "asks": ob.Asks})
}

// GET /api/movers?limit=10
func (s *Server) getMovers(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultMovers)))
	if err != nil || limit <= 0 {
		limit = defaultMovers
	}
	if limit > maxMovers {
		limit = maxMovers
	}
	a, ok := s.Adapters.Get("binance")
	if !ok {
		notFound(c, "binance")
		return
	}
	src, ok := a.(moverSource)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "movers unavailable"})
		return
	}
	movers, err := src.FetchTopMovers(c.Request.Context(), limit)
	if err != nil {
		respondError(c, a.Name(), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exchange": a.Name(), "movers": movers})
}

// GET /api/price?exchange=binance&symbol=btc-usdt
func (s *Server) getPrice(c *gin.Context) {
	exchange := strings.ToLower(c.Query("exchange"))
	symbol := strings.ToLower(c.Query("symbol"))
	if exchange == "" {
		missing(c, "exchange")
		return
	}
	if symbol == "" {
		quotes := s.Prices.All(exchange)
		c.JSON(http.StatusOK, gin.H{"exchange": exchange, "quotes": quotes})
		return
	}
	q, ok := s.Prices.Get(exchange, symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "price unavailable",
			"message": i18n.T("PriceUnavailable", symbol, exchange),
		})
		return
	}
	c.JSON(http.StatusOK, q)
}
