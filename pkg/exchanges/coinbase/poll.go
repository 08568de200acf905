package coinbase

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/segmentio/encoding/json"

	"market-core/pkg/exchanges/common"
	"market-core/pkg/exchanges/stream"
)

const defaultPollInterval = 10 * time.Second

// Connect runs a polling session: the latest candle is fetched every poll
// interval and delivered as a kline message. A failed poll ends the connection
// and the supervisor reconnects after its usual delay.
func (c *Client) Connect(symbol, interval string, handler common.Handler) (func(), error) {
	g, ok := granularity[interval]
	if !ok {
		return nil, &common.UnsupportedIntervalError{Exchange: Name, Interval: interval}
	}
	product := c.FormatAPISymbol(symbol)
	every := c.opts.PollInterval
	if every <= 0 {
		every = defaultPollInterval
	}
	streamName := product + "@candles_" + strconv.Itoa(g)

	sup := stream.Start(stream.Config{
		Exchange:       Name,
		URL:            "poll://" + product,
		Dialer:         &pollDialer{client: c, product: product, granularity: g, every: every},
		ReconnectDelay: c.opts.ReconnectDelay,
		Logger:         c.log,
		OnFrame: func(data []byte) {
			var cd common.Candle
			if err := json.Unmarshal(data, &cd); err != nil {
				stream.Dropped(Name, "decode")
				return
			}
			stream.Delivered(Name, common.MessageKline)
			handler(common.StreamMessage{Stream: streamName, Type: common.MessageKline, Exchange: Name, Kline: &cd}, Name)
		},
	})
	return sup.Stop, nil
}

type pollDialer struct {
	client      *Client
	product     string
	granularity int
	every       time.Duration
}

func (d *pollDialer) Dial(ctx context.Context, _ string) (common.Conn, error) {
	pctx, cancel := context.WithCancel(ctx)
	return &pollConn{dialer: d, ctx: pctx, cancel: cancel}, nil
}

// pollConn turns periodic candle requests into inbound frames.
type pollConn struct {
	dialer *pollDialer
	ctx    context.Context
	cancel context.CancelFunc
	polled bool
}

func (p *pollConn) ReadMessage() (int, []byte, error) {
	for {
		if p.polled {
			t := time.NewTimer(p.dialer.every)
			select {
			case <-p.ctx.Done():
				t.Stop()
				return 0, nil, errors.New("poll session closed")
			case <-t.C:
			}
		}
		p.polled = true

		candles, err := p.dialer.client.fetchCandles(p.ctx, p.dialer.product, p.dialer.granularity)
		if err != nil {
			return 0, nil, err
		}
		if len(candles) == 0 {
			continue
		}
		b, err := json.Marshal(candles[len(candles)-1])
		if err != nil {
			return 0, nil, err
		}
		return stream.TextMessage, b, nil
	}
}

// WriteMessage accepts and discards outbound frames.
func (p *pollConn) WriteMessage(int, []byte) error {
	if p.ctx.Err() != nil {
		return errors.New("poll session closed")
	}
	return nil
}

func (p *pollConn) Close() error {
	p.cancel()
	return nil
}
