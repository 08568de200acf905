package okx

import (
	"bytes"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"

	"market-core/pkg/exchanges/common"
	"market-core/pkg/exchanges/stream"
)

const keepAliveInterval = 25 * time.Second

type arg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type opFrame struct {
	Op   string `json:"op"`
	Args []arg  `json:"args"`
}

// Connect subscribes to books, candle<bar> and trades on the public socket.
func (c *Client) Connect(symbol, interval string, handler common.Handler) (func(), error) {
	bar, ok := bars[interval]
	if !ok {
		return nil, &common.UnsupportedIntervalError{Exchange: Name, Interval: interval}
	}
	inst := c.FormatAPISymbol(symbol)
	args := []arg{
		{Channel: "books", InstID: inst},
		{Channel: "candle" + bar, InstID: inst},
		{Channel: "trades", InstID: inst},
	}
	p := &parser{book: common.NewBook(bookDepth)}

	sup := stream.Start(stream.Config{
		Exchange:          Name,
		URL:               common.Or(c.opts.WSURL, defaultWSURL),
		Dialer:            c.opts.Dialer,
		ReconnectDelay:    c.opts.ReconnectDelay,
		Logger:            c.log,
		KeepAliveInterval: keepAliveInterval,
		KeepAliveFrame:    []byte("ping"),
		OnOpen:            p.book.Reset,
		Subscribe:         func() [][]byte { return opFrames("subscribe", args) },
		Unsubscribe:       func() [][]byte { return opFrames("unsubscribe", args) },
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

func opFrames(op string, args []arg) [][]byte {
	b, _ := json.Marshal(opFrame{Op: op, Args: args})
	return [][]byte{b}
}

type pushFrame struct {
	Event  string          `json:"event"`
	Arg    arg             `json:"arg"`
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

type parser struct {
	book *common.Book
}

// parse returns the normalized messages in one frame. Control frames (pong,
// subscribe acks) yield no messages with ok=true; undecodable frames ok=false.
func (p *parser) parse(data []byte) ([]common.StreamMessage, bool) {
	if bytes.Equal(bytes.TrimSpace(data), []byte("pong")) {
		return nil, true
	}
	var f pushFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, false
	}
	if f.Event != "" {
		return nil, f.Event != "error"
	}
	if len(f.Data) == 0 {
		return nil, false
	}
	streamName := f.Arg.Channel + ":" + f.Arg.InstID

	switch {
	case f.Arg.Channel == "books":
		var books []bookData
		if err := json.Unmarshal(f.Data, &books); err != nil || len(books) == 0 {
			return nil, false
		}
		lv := books[0].levels()
		if f.Action == "update" {
			p.book.Apply(common.Bid, lv.Bids)
			p.book.Apply(common.Ask, lv.Asks)
		} else {
			p.book.Replace(lv.Bids, lv.Asks)
		}
		snap := p.book.Snapshot()
		return []common.StreamMessage{{Stream: streamName, Type: common.MessageDepth, Exchange: Name, Depth: &snap}}, true

	case strings.HasPrefix(f.Arg.Channel, "candle"):
		var rows [][]string
		if err := json.Unmarshal(f.Data, &rows); err != nil {
			return nil, false
		}
		out := make([]common.StreamMessage, 0, len(rows))
		for _, r := range rows {
			if cd, ok := candleFromRow(r); ok {
				out = append(out, common.StreamMessage{Stream: streamName, Type: common.MessageKline, Exchange: Name, Kline: &cd})
			}
		}
		return out, len(out) > 0

	case f.Arg.Channel == "trades":
		var rows []struct {
			Px   string `json:"px"`
			Sz   string `json:"sz"`
			Side string `json:"side"`
			Ts   string `json:"ts"`
		}
		if err := json.Unmarshal(f.Data, &rows); err != nil {
			return nil, false
		}
		out := make([]common.StreamMessage, 0, len(rows))
		for _, r := range rows {
			tr := &common.Trade{
				Price:        common.ToFloat(r.Px),
				Quantity:     common.ToFloat(r.Sz),
				Time:         common.ToInt64(r.Ts),
				IsBuyerMaker: r.Side == "sell",
			}
			out = append(out, common.StreamMessage{Stream: streamName, Type: common.MessageTrade, Exchange: Name, Trade: tr})
		}
		return out, len(out) > 0
	}
	return nil, false
}
