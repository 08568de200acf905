package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RESTRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "md_rest_requests_total",
		Help: "Exchange REST requests by outcome",
	}, []string{"exchange", "endpoint", "outcome"})

	RESTDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "md_rest_duration_seconds",
		Help:    "Exchange REST request latency",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms -> ~5s
	}, []string{"exchange", "endpoint"})

	StreamMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "md_stream_messages_total",
		Help: "Normalized stream messages delivered",
	}, []string{"exchange", "type"})

	StreamDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "md_stream_dropped_total",
		Help: "Inbound frames dropped",
	}, []string{"exchange", "reason"})

	StreamReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "md_stream_reconnects_total",
		Help: "Reconnect attempts after unexpected close",
	}, []string{"exchange"})

	StreamSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "md_stream_sessions",
		Help: "Live supervised stream sessions",
	}, []string{"exchange"})

	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "md_ws_clients",
		Help: "Browser websocket clients",
	})

	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "md_api_requests_total",
		Help: "HTTP API requests",
	}, []string{"method", "status"})

	APIDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "md_api_duration_seconds",
		Help:    "HTTP API latency",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})
)

// ObserveREST records one REST call.
func ObserveREST(exchange, endpoint string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	RESTRequests.WithLabelValues(exchange, endpoint, outcome).Inc()
	RESTDuration.WithLabelValues(exchange, endpoint).Observe(time.Since(start).Seconds())
}
