package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"market-core/internal/events"
	"market-core/internal/market"
	"market-core/pkg/cache"
	"market-core/pkg/db"
	"market-core/pkg/exchanges/binance"
	"market-core/pkg/exchanges/common"
	"market-core/pkg/logger"
)

// Adapters resolves exchange adapters by name.
type Adapters interface {
	Get(name string) (common.Adapter, bool)
	Names() []string
}

// moverSource is implemented by adapters that rank 24h movers.
type moverSource interface {
	FetchTopMovers(ctx context.Context, limit int) ([]binance.Mover, error)
}

// Options tunes the HTTP layer.
type Options struct {
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	Version        string
}

// Server wires HTTP endpoints around the dashboard session and the event bus.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	Adapters  Adapters
	Dashboard *market.Dashboard
	Prices    *cache.PriceCache
	Prefs     *db.Queries
	Log       *zap.Logger
	Opts      Options
}

func NewServer(bus *events.Bus, adapters Adapters, dash *market.Dashboard, prices *cache.PriceCache, prefs *db.Queries, log *zap.Logger, opts Options) *Server {
	log = logger.OrNop(log)
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())                                                   // Panic recovery (first)
	r.Use(RequestIDMiddleware())                                            // Request ID tracking
	r.Use(RequestLogger(log))                                               // Request logging (after ID is set)
	r.Use(RateLimitMiddleware(opts.RateLimitRPS, opts.RateLimitBurst, log)) // Rate limiting
	r.Use(TimeoutMiddleware(opts.RequestTimeout))                           // Request deadline
	r.Use(CORSMiddleware())                                                 // CORS (last before routes)

	s := &Server{
		Router:    r,
		Bus:       bus,
		Adapters:  adapters,
		Dashboard: dash,
		Prices:    prices,
		Prefs:     prefs,
		Log:       log,
		Opts:      opts,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/exchanges", s.listExchanges)
		api.GET("/exchanges/:exchange/symbols", s.getSymbols)
		api.GET("/exchanges/:exchange/klines", s.getKlines)
		api.GET("/exchanges/:exchange/orderbook", s.getOrderBook)
		api.GET("/movers", s.getMovers)
		api.GET("/price", s.getPrice)

		api.GET("/session", s.getSession)
		api.PUT("/session", s.putSession)
		api.GET("/session/history", s.getSessionHistory)
		api.GET("/session/flow", s.getFlow)
		api.GET("/session/orderbook", s.getSessionBook)
	}
}

func (s *Server) health(c *gin.Context) {
	sel, live := s.Dashboard.Current()
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": s.Opts.Version,
		"live":    live,
		"session": sel,
	})
}

// Handler exposes the router for http.Server.
func (s *Server) Handler() http.Handler {
	return s.Router
}
