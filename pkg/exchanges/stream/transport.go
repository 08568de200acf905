package stream

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"market-core/pkg/exchanges/common"
)

// Message types understood by Conn; they match gorilla/websocket.
const (
	TextMessage  = websocket.TextMessage
	CloseMessage = websocket.CloseMessage
)

// WSDialer dials real websockets with gorilla/websocket.
type WSDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
}

// NewWSDialer returns a dialer using gorilla's defaults.
func NewWSDialer() *WSDialer {
	return &WSDialer{Dialer: websocket.DefaultDialer}
}

func (d *WSDialer) Dial(ctx context.Context, url string) (common.Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// closeFrame is the payload for a normal websocket close.
func closeFrame() []byte {
	return websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
}

// isExpectedClose filters errors produced by our own Close.
func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
