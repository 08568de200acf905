package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"market-core/pkg/metrics"
)

// RESTConfig tunes a REST client. Zero values pick sane defaults.
type RESTConfig struct {
	Exchange     string
	BaseURL      string
	RatePerSec   float64
	Burst        int
	Timeout      time.Duration
	WeightHeader string
	Weights      *WeightTracker
	HTTPClient   *http.Client
	Logger       *zap.Logger
}

// REST performs rate-limited GET requests guarded by a circuit breaker.
type REST struct {
	exchange     string
	baseURL      string
	httpClient   *http.Client
	limiter      *rate.Limiter
	breaker      *gobreaker.CircuitBreaker[[]byte]
	weightHeader string
	weights      *WeightTracker
	log          *zap.Logger
}

// NewREST builds a REST client for one exchange.
func NewREST(cfg RESTConfig) *REST {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	st := gobreaker.Settings{
		Name:        cfg.Exchange + "-rest",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: isSuccessfulForBreaker,
		OnStateChange: func(name string, from, to gobreaker.State) {
			cfg.Logger.Warn("rest breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &REST{
		exchange:     cfg.Exchange,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:   cfg.HTTPClient,
		limiter:      rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		breaker:      gobreaker.NewCircuitBreaker[[]byte](st),
		weightHeader: cfg.WeightHeader,
		weights:      cfg.Weights,
		log:          cfg.Logger,
	}
}

// BaseURL returns the configured base URL.
func (r *REST) BaseURL() string { return r.baseURL }

// Get issues GET baseURL+path?params and returns the body. Non-2xx responses become
// RemoteAPIError carrying the body text; network failures wrap ErrTransport.
func (r *REST) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	start := time.Now()
	body, err := r.breaker.Execute(func() ([]byte, error) {
		return r.do(ctx, path, params)
	})
	metrics.ObserveREST(r.exchange, endpointLabel(path), start, err)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s %s: %w: %v", r.exchange, path, ErrTransport, err)
	}
	return body, err
}

func (r *REST) do(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if wait := r.weights.Cooldown(); wait > 0 {
		r.log.Warn("request weight cooldown", zap.Duration("wait", wait))
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := r.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	res, err := r.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s %s: %w: %v", r.exchange, path, ErrTransport, err)
	}
	defer res.Body.Close()

	if r.weightHeader != "" {
		r.weights.Update(res.Header.Get(r.weightHeader))
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s read body: %w: %v", r.exchange, path, ErrTransport, err)
	}
	if res.StatusCode >= 300 {
		return nil, &RemoteAPIError{Exchange: r.exchange, Status: res.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return body, nil
}

// Remote 4xx answers and caller cancellation do not count against the breaker.
func isSuccessfulForBreaker(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var re *RemoteAPIError
	if errors.As(err, &re) {
		return re.Status < 500
	}
	return false
}

func endpointLabel(path string) string {
	p := strings.Trim(path, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
