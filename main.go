package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"market-core/internal/api"
	"market-core/internal/events"
	"market-core/internal/market"
	"market-core/internal/registry"
	"market-core/pkg/cache"
	"market-core/pkg/config"
	"market-core/pkg/db"
	"market-core/pkg/exchanges/common"
	"market-core/pkg/i18n"
	"market-core/pkg/logger"
)

const (
	priceMaxAge     = 10 * time.Minute
	cleanupInterval = time.Minute
	shutdownTimeout = 10 * time.Second
	mockTick        = time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, i18n.Get("ConfigLoadFailed")+"\n", err)
		os.Exit(1)
	}

	i18n.SetLanguage(i18n.Language(cfg.Language))
	log := logger.New("market-core", cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	log.Info(i18n.Get("Starting"))
	log.Info(i18n.T("ConfigLoaded", cfg.Port))
	if cfg.ExchangesFile != "" {
		log.Info(i18n.T("ExchangesFileLoaded", cfg.ExchangesFile), zap.Int("exchanges", len(cfg.Exchanges)))
	}
	log.Info(i18n.T("UsingDBPath", cfg.DBPath))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatal(i18n.T("DBInitFailed", err))
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatal(i18n.T("DBMigrationsFailed", err))
	}
	prefs := database.Queries()

	reg := registry.New(common.Options{
		ReconnectDelay: cfg.ReconnectDelay,
		HTTPClient:     &http.Client{Timeout: cfg.RequestTimeout},
		Logger:         log,
	}, adapterOverrides(cfg), log)
	if cfg.UseMockFeed {
		for _, name := range registry.AvailableExchanges {
			reg.Register(name, func(common.Options) common.Adapter { return market.NewMockAdapter(name, mockTick) })
		}
		log.Warn(i18n.Get("MockFeedEnabled"))
	}

	bus := events.NewBus()
	prices := cache.NewPriceCache()
	dash := market.NewDashboard(reg, bus, prices, log)
	defer dash.Close()

	restoreSession(ctx, cfg, dash, prefs, log)
	go cleanupPrices(ctx, prices, log)

	version := os.Getenv("APP_VERSION")
	if version == "" {
		version = "v1.0-dev"
	}
	server := api.NewServer(bus, reg, dash, prices, prefs, log, api.Options{
		RequestTimeout: cfg.RequestTimeout,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Version:        version,
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info(i18n.T("ServerListening", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(i18n.T("APIServerError", err))
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info(i18n.Get("ShuttingDown"))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
}

func adapterOverrides(cfg *config.Config) map[string]common.Options {
	out := make(map[string]common.Options, len(cfg.Exchanges))
	for name, ov := range cfg.Exchanges {
		out[name] = common.Options{
			RESTURL:      ov.RESTURL,
			WSURL:        ov.WSURL,
			RatePerSec:   ov.RatePerSec,
			Burst:        ov.Burst,
			PollInterval: ov.PollInterval,
		}
	}
	return out
}

// restoreSession reopens the stored selection, falling back to the configured
// default when nothing usable is stored.
func restoreSession(ctx context.Context, cfg *config.Config, dash *market.Dashboard, prefs *db.Queries, log *zap.Logger) {
	pref := events.Selection{Exchange: cfg.DefaultExchange, Symbol: cfg.DefaultSymbol, Interval: cfg.DefaultInterval}
	stored, err := prefs.LoadSelection(ctx)
	switch {
	case err == nil && registry.IsAvailable(stored.Exchange):
		pref = events.Selection{Exchange: stored.Exchange, Symbol: stored.Symbol, Interval: stored.Interval}
		if pref.Interval == "" {
			pref.Interval = cfg.DefaultInterval
		}
	case err != nil && !errors.Is(err, db.ErrNotFound):
		log.Warn(i18n.T("SessionRestoreFailed", err))
	}

	sel, err := dash.Restore(ctx, pref)
	if err != nil && pref.Exchange != cfg.DefaultExchange {
		log.Warn(i18n.T("SessionRestoreFailed", err), zap.String("exchange", pref.Exchange))
		sel, err = dash.Restore(ctx, events.Selection{Exchange: cfg.DefaultExchange, Symbol: cfg.DefaultSymbol, Interval: cfg.DefaultInterval})
	}
	if err != nil {
		log.Warn(i18n.T("SessionRestoreFailed", err))
		return
	}
	log.Info(i18n.T("SessionRestored", sel.Exchange, sel.Symbol, sel.Interval))

	if _, err := prefs.SaveSelection(ctx, db.Selection{Exchange: sel.Exchange, Symbol: sel.Symbol, Interval: sel.Interval}, "startup"); err != nil {
		log.Warn(i18n.T("PreferenceSaveFailed", err))
	}
}

func cleanupPrices(ctx context.Context, prices *cache.PriceCache, log *zap.Logger) {
	t := time.NewTicker(cleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := prices.Cleanup(priceMaxAge); n > 0 {
				log.Debug("price cache cleanup", zap.Int("removed", n))
			}
		}
	}
}
