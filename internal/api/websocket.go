package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"market-core/internal/events"
	"market-core/pkg/metrics"
)

const (
	wsBuffer     = 256
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
	wsPongWait   = 2 * wsPingPeriod
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Frame is the envelope pushed to browser clients.
type Frame struct {
	Type     string `json:"type"`
	Exchange string `json:"exchange"`
	Stream   string `json:"stream,omitempty"`
	Data     any    `json:"data"`
}

// frameFor converts one bus payload to a client frame.
func frameFor(e events.Event, payload any) (Frame, bool) {
	switch p := payload.(type) {
	case events.StreamPayload:
		f := Frame{Type: string(p.Message.Type), Exchange: p.Exchange, Stream: p.Message.Stream}
		switch {
		case p.Message.Kline != nil:
			f.Data = p.Message.Kline
		case p.Message.Trade != nil:
			f.Data = p.Message.Trade
		case p.Message.Depth != nil:
			f.Data = p.Message.Depth
		default:
			return Frame{}, false
		}
		return f, true
	case events.FlowPayload:
		return Frame{Type: string(e), Exchange: p.Exchange, Data: p}, true
	case events.SentimentPayload:
		return Frame{Type: string(e), Exchange: p.Exchange, Data: p}, true
	case events.Selection:
		return Frame{Type: string(e), Exchange: p.Exchange, Data: p}, true
	}
	return Frame{}, false
}

func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	metrics.WSClients.Inc()
	defer metrics.WSClients.Dec()

	streamCh, unsubStream := s.Bus.Subscribe(events.EventStream, wsBuffer)
	defer unsubStream()
	flowCh, unsubFlow := s.Bus.Subscribe(events.EventFlow, wsBuffer)
	defer unsubFlow()
	sentCh, unsubSent := s.Bus.Subscribe(events.EventSentiment, wsBuffer)
	defer unsubSent()
	selCh, unsubSel := s.Bus.Subscribe(events.EventSelection, 8)
	defer unsubSel()

	// Reader goroutine: handles pongs and notices the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if sel, live := s.Dashboard.Current(); live {
		if !s.writeFrame(conn, Frame{Type: string(events.EventSelection), Exchange: sel.Exchange, Data: sel}) {
			return
		}
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		var (
			e       events.Event
			payload any
			ok      bool
		)
		select {
		case <-closed:
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		case payload, ok = <-streamCh:
			e = events.EventStream
		case payload, ok = <-flowCh:
			e = events.EventFlow
		case payload, ok = <-sentCh:
			e = events.EventSentiment
		case payload, ok = <-selCh:
			e = events.EventSelection
		}
		if !ok {
			return
		}
		f, ok := frameFor(e, payload)
		if !ok {
			continue
		}
		if !s.writeFrame(conn, f) {
			return
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, f Frame) bool {
	b, err := json.Marshal(f)
	if err != nil {
		s.Log.Warn("ws encode failed", zap.String("type", f.Type), zap.Error(err))
		return true
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		s.Log.Debug("ws write failed", zap.Error(err))
		return false
	}
	return true
}
