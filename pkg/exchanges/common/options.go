package common

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Conn is the subset of a websocket connection a stream session needs.
// ReadMessage is called from one reader goroutine; WriteMessage and Close
// only from the session loop.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a Conn.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Options are the knobs shared by every adapter constructor. Empty fields keep
// the exchange defaults.
type Options struct {
	RESTURL        string
	WSURL          string
	RatePerSec     float64
	Burst          int
	PollInterval   time.Duration
	ReconnectDelay time.Duration
	HTTPClient     *http.Client
	Dialer         Dialer
	Logger         *zap.Logger
}

// Or returns v when non-empty, else def.
func Or(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

// RESTConfig derives a REST client config for exchange using these options.
func (o Options) RESTConfig(exchange, defaultBaseURL string, defaultRate float64, defaultBurst int) RESTConfig {
	cfg := RESTConfig{
		Exchange:   exchange,
		BaseURL:    Or(o.RESTURL, defaultBaseURL),
		RatePerSec: defaultRate,
		Burst:      defaultBurst,
		HTTPClient: o.HTTPClient,
		Logger:     o.Logger,
	}
	if o.RatePerSec > 0 {
		cfg.RatePerSec = o.RatePerSec
	}
	if o.Burst > 0 {
		cfg.Burst = o.Burst
	}
	if cfg.Logger != nil {
		cfg.Logger = cfg.Logger.With(zap.String("exchange", exchange))
	}
	return cfg
}
