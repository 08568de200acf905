package bybit

import (
	"strings"
	"time"

	"github.com/segmentio/encoding/json"

	"market-core/pkg/exchanges/common"
	"market-core/pkg/exchanges/stream"
)

const keepAliveInterval = 20 * time.Second

// Connect subscribes to orderbook.50, kline and publicTrade topics.
func (c *Client) Connect(symbol, interval string, handler common.Handler) (func(), error) {
	iv, ok := intervals[interval]
	if !ok {
		return nil, &common.UnsupportedIntervalError{Exchange: Name, Interval: interval}
	}
	sym := c.FormatAPISymbol(symbol)
	topics := []string{
		"orderbook.50." + sym,
		"kline." + iv + "." + sym,
		"publicTrade." + sym,
	}
	frame := func(op string) [][]byte {
		b, _ := json.Marshal(map[string]any{"op": op, "args": topics})
		return [][]byte{b}
	}
	p := &parser{book: common.NewBook(bookDepth)}

	sup := stream.Start(stream.Config{
		Exchange:          Name,
		URL:               common.Or(c.opts.WSURL, defaultWSURL),
		Dialer:            c.opts.Dialer,
		ReconnectDelay:    c.opts.ReconnectDelay,
		Logger:            c.log,
		KeepAliveInterval: keepAliveInterval,
		KeepAliveFrame:    []byte(`{"op":"ping"}`),
		OnOpen:            p.book.Reset,
		Subscribe:         func() [][]byte { return frame("subscribe") },
		Unsubscribe:       func() [][]byte { return frame("unsubscribe") },
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

type pushFrame struct {
	Op    string          `json:"op"`
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
}

type parser struct {
	book *common.Book
}

func (p *parser) parse(data []byte) ([]common.StreamMessage, bool) {
	var f pushFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, false
	}
	if f.Topic == "" {
		// op acks and pongs
		return nil, f.Op != ""
	}
	if len(f.Data) == 0 {
		return nil, false
	}

	switch {
	case strings.HasPrefix(f.Topic, "orderbook."):
		var ob bookData
		if err := json.Unmarshal(f.Data, &ob); err != nil {
			return nil, false
		}
		lv := ob.levels()
		if f.Type == "delta" {
			p.book.Apply(common.Bid, lv.Bids)
			p.book.Apply(common.Ask, lv.Asks)
		} else {
			p.book.Replace(lv.Bids, lv.Asks)
		}
		snap := p.book.Snapshot()
		return []common.StreamMessage{{Stream: f.Topic, Type: common.MessageDepth, Exchange: Name, Depth: &snap}}, true

	case strings.HasPrefix(f.Topic, "kline."):
		var rows []struct {
			Start    int64  `json:"start"`
			Open     string `json:"open"`
			High     string `json:"high"`
			Low      string `json:"low"`
			Close    string `json:"close"`
			Turnover string `json:"turnover"`
		}
		if err := json.Unmarshal(f.Data, &rows); err != nil {
			return nil, false
		}
		out := make([]common.StreamMessage, 0, len(rows))
		for _, r := range rows {
			out = append(out, common.StreamMessage{
				Stream:   f.Topic,
				Type:     common.MessageKline,
				Exchange: Name,
				Kline: &common.Candle{
					Time:  r.Start / 1000,
					Open:  common.ToFloat(r.Open),
					High:  common.ToFloat(r.High),
					Low:   common.ToFloat(r.Low),
					Close: common.ToFloat(r.Close),
					Value: common.ToFloat(r.Turnover),
				},
			})
		}
		return out, len(out) > 0

	case strings.HasPrefix(f.Topic, "publicTrade."):
		var rows []struct {
			T      int64  `json:"T"`
			Symbol string `json:"s"`
			Side   string `json:"S"`
			V      string `json:"v"`
			P      string `json:"p"`
		}
		if err := json.Unmarshal(f.Data, &rows); err != nil {
			return nil, false
		}
		out := make([]common.StreamMessage, 0, len(rows))
		for _, r := range rows {
			out = append(out, common.StreamMessage{
				Stream:   f.Topic,
				Type:     common.MessageTrade,
				Exchange: Name,
				Trade: &common.Trade{
					Price:        common.ToFloat(r.P),
					Quantity:     common.ToFloat(r.V),
					Time:         r.T,
					IsBuyerMaker: r.Side == "Sell",
				},
			})
		}
		return out, len(out) > 0
	}
	return nil, false
}
