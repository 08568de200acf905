package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"market-core/internal/events"
	"market-core/pkg/db"
	"market-core/pkg/i18n"
)

type selectRequest struct {
	Exchange string `json:"exchange" binding:"required"`
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}

// GET /api/session
func (s *Server) getSession(c *gin.Context) {
	sel, live := s.Dashboard.Current()
	resp := gin.H{"live": live, "selection": sel}
	if !live {
		resp["message"] = i18n.T("NoLiveSession")
	}
	c.JSON(http.StatusOK, resp)
}

// PUT /api/session switches the live session and persists the choice.
// An empty symbol keeps the current one when the exchange lists it.
func (s *Server) putSession(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	exchange := strings.ToLower(req.Exchange)
	if _, ok := s.Adapters.Get(exchange); !ok {
		notFound(c, exchange)
		return
	}
	cur, _ := s.Dashboard.Current()
	interval := req.Interval
	if interval == "" {
		interval = cur.Interval
	}
	if interval == "" {
		interval = "1h"
	}
	symbol := strings.ToLower(req.Symbol)
	if symbol == "" {
		symbol = cur.Symbol
	}

	sel, err := s.Dashboard.Restore(c.Request.Context(), events.Selection{Exchange: exchange, Symbol: symbol, Interval: interval})
	if err != nil {
		respondError(c, exchange, err)
		return
	}

	if s.Prefs != nil {
		if _, err := s.Prefs.SaveSelection(c.Request.Context(), db.Selection{
			Exchange: sel.Exchange,
			Symbol:   sel.Symbol,
			Interval: sel.Interval,
		}, "api"); err != nil {
			s.Log.Warn(i18n.T("PreferenceSaveFailed", err), zap.Error(err))
		}
	}

	resp := gin.H{"live": true, "selection": sel}
	if sel.Exchange == "coinbase" {
		resp["notice"] = i18n.T("CoinbaseRealtime")
	}
	c.JSON(http.StatusOK, resp)
}

// GET /api/session/history?limit=20
func (s *Server) getSessionHistory(c *gin.Context) {
	if s.Prefs == nil {
		c.JSON(http.StatusOK, []db.SelectionRecord{})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	rows, err := s.Prefs.RecentSelections(c.Request.Context(), limit)
	if err != nil {
		respondError(c, "", err)
		return
	}
	if rows == nil {
		rows = []db.SelectionRecord{}
	}
	c.JSON(http.StatusOK, rows)
}

// GET /api/session/flow
func (s *Server) getFlow(c *gin.Context) {
	sel, live := s.Dashboard.Current()
	if !live {
		c.JSON(http.StatusNotFound, gin.H{"error": "no session", "message": i18n.T("NoLiveSession")})
		return
	}
	c.JSON(http.StatusOK, gin.H{"selection": sel, "points": s.Dashboard.FlowSeries()})
}

// GET /api/session/orderbook
func (s *Server) getSessionBook(c *gin.Context) {
	sel, live := s.Dashboard.Current()
	if !live {
		c.JSON(http.StatusNotFound, gin.H{"error": "no session", "message": i18n.T("NoLiveSession")})
		return
	}
	ob, ok := s.Dashboard.Book()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"selection": sel, "bids": []any{}, "asks": []any{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"selection": sel, "bids": ob.Bids, "asks": ob.Asks})
}
