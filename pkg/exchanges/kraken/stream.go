package kraken

import (
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"

	"market-core/pkg/exchanges/common"
	"market-core/pkg/exchanges/stream"
)

const keepAliveInterval = 30 * time.Second

type subscription struct {
	Name     string `json:"name"`
	Depth    int    `json:"depth,omitempty"`
	Interval int    `json:"interval,omitempty"`
}

type eventFrame struct {
	Event        string       `json:"event"`
	Pair         []string     `json:"pair"`
	Subscription subscription `json:"subscription"`
}

// Connect subscribes to book, ohlc and trade channels for one pair.
func (c *Client) Connect(symbol, interval string, handler common.Handler) (func(), error) {
	mins, ok := minutes[interval]
	if !ok {
		return nil, &common.UnsupportedIntervalError{Exchange: Name, Interval: interval}
	}
	pair := c.wsName(symbol)
	subs := []subscription{
		{Name: "book", Depth: bookDepth},
		{Name: "ohlc", Interval: mins},
		{Name: "trade"},
	}
	frames := func(event string) [][]byte {
		out := make([][]byte, 0, len(subs))
		for _, s := range subs {
			b, _ := json.Marshal(eventFrame{Event: event, Pair: []string{pair}, Subscription: s})
			out = append(out, b)
		}
		return out
	}
	p := &parser{book: common.NewBook(bookDepth), intervalSec: int64(mins) * 60}

	sup := stream.Start(stream.Config{
		Exchange:          Name,
		URL:               common.Or(c.opts.WSURL, defaultWSURL),
		Dialer:            c.opts.Dialer,
		ReconnectDelay:    c.opts.ReconnectDelay,
		Logger:            c.log,
		KeepAliveInterval: keepAliveInterval,
		KeepAliveFrame:    []byte(`{"event":"ping"}`),
		OnOpen:            p.book.Reset,
		Subscribe:         func() [][]byte { return frames("subscribe") },
		Unsubscribe:       func() [][]byte { return frames("unsubscribe") },
		OnFrame: func(data []byte) {
			msgs, ok := p.parse(data)
			if !ok {
				stream.Dropped(Name, "decode")
				return
			}
			for _, m := range msgs {
				stream.Delivered(Name, m.Type)
				handler(m, Name)
			}
		},
	})
	return sup.Stop, nil
}

type parser struct {
	book        *common.Book
	intervalSec int64
}

// parse handles [channelID, payload..., channelName, pair] arrays. Event objects
// (heartbeat, status, pong) are accepted without output.
func (p *parser) parse(data []byte) ([]common.StreamMessage, bool) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var ev struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(data, &ev); err != nil || ev.Event == "" {
			return nil, false
		}
		return nil, ev.Event != "error"
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil || len(parts) < 4 {
		return nil, false
	}
	var channel, pair string
	if json.Unmarshal(parts[len(parts)-2], &channel) != nil || json.Unmarshal(parts[len(parts)-1], &pair) != nil {
		return nil, false
	}
	payloads := parts[1 : len(parts)-2]
	streamName := channel + ":" + pair

	switch {
	case strings.HasPrefix(channel, "book"):
		return p.parseBook(streamName, payloads)
	case strings.HasPrefix(channel, "ohlc"):
		return p.parseOHLC(streamName, payloads[0])
	case channel == "trade":
		return parseTrades(streamName, payloads[0])
	}
	return nil, false
}

type bookPayload struct {
	AS [][]any `json:"as"`
	BS [][]any `json:"bs"`
	A  [][]any `json:"a"`
	B  [][]any `json:"b"`
	C  string  `json:"c"`
}

// parseBook handles the snapshot ({as,bs}) and update ({a} and/or {b}) forms.
// Updates carrying both sides arrive as two payload objects.
func (p *parser) parseBook(streamName string, payloads []json.RawMessage) ([]common.StreamMessage, bool) {
	for _, raw := range payloads {
		var bp bookPayload
		if err := json.Unmarshal(raw, &bp); err != nil {
			return nil, false
		}
		if bp.AS != nil || bp.BS != nil {
			p.book.Replace(common.ParseLevels(bp.BS), common.ParseLevels(bp.AS))
			continue
		}
		p.book.Apply(common.Ask, common.ParseLevels(bp.A))
		p.book.Apply(common.Bid, common.ParseLevels(bp.B))
	}
	snap := p.book.Snapshot()
	return []common.StreamMessage{{Stream: streamName, Type: common.MessageDepth, Exchange: Name, Depth: &snap}}, true
}

// parseOHLC reads [time, etime, open, high, low, close, vwap, volume, count].
// The bar start is etime minus the interval.
func (p *parser) parseOHLC(streamName string, raw json.RawMessage) ([]common.StreamMessage, bool) {
	var row []any
	if err := json.Unmarshal(raw, &row); err != nil || len(row) < 8 {
		return nil, false
	}
	etime := int64(common.ToFloat(row[1]))
	cd := &common.Candle{
		Time:  etime - p.intervalSec,
		Open:  common.ToFloat(row[2]),
		High:  common.ToFloat(row[3]),
		Low:   common.ToFloat(row[4]),
		Close: common.ToFloat(row[5]),
	}
	cd.Value = quoteVolume(common.ToFloat(row[7]), common.ToFloat(row[6]), cd.Close)
	return []common.StreamMessage{{Stream: streamName, Type: common.MessageKline, Exchange: Name, Kline: cd}}, true
}

// parseTrades reads [[price, volume, time, side, orderType, misc], ...].
func parseTrades(streamName string, raw json.RawMessage) ([]common.StreamMessage, bool) {
	var rows [][]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, false
	}
	out := make([]common.StreamMessage, 0, len(rows))
	for _, r := range rows {
		if len(r) < 4 {
			continue
		}
		side, _ := r[3].(string)
		out = append(out, common.StreamMessage{
			Stream:   streamName,
			Type:     common.MessageTrade,
			Exchange: Name,
			Trade: &common.Trade{
				Price:        common.ToFloat(r[0]),
				Quantity:     common.ToFloat(r[1]),
				Time:         secondsToMillis(r[2]),
				IsBuyerMaker: side == "s",
			},
		})
	}
	return out, len(out) > 0
}

func secondsToMillis(v any) int64 {
	switch t := v.(type) {
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0
		}
		return int64(f * 1000)
	default:
		return int64(common.ToFloat(v) * 1000)
	}
}
