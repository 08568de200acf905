package binance

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/segmentio/encoding/json"

	"market-core/pkg/exchanges/common"
	"market-core/pkg/exchanges/stream"
)

var requestID atomic.Int64

// Connect opens the combined kline, depth20 and aggTrade streams for symbol.
func (c *Client) Connect(symbol, interval string, handler common.Handler) (func(), error) {
	if !nativeIntervals[interval] {
		return nil, &common.UnsupportedIntervalError{Exchange: Name, Interval: interval}
	}
	streams := streamNames(c.FormatAPISymbol(symbol), interval)
	u := common.Or(c.opts.WSURL, defaultWSURL) + "?streams=" + strings.Join(streams, "/")

	sup := stream.Start(stream.Config{
		Exchange:       Name,
		URL:            u,
		Dialer:         c.opts.Dialer,
		ReconnectDelay: c.opts.ReconnectDelay,
		Logger:         c.log,
		Unsubscribe: func() [][]byte {
			frame, _ := json.Marshal(map[string]any{
				"method": "UNSUBSCRIBE",
				"params": streams,
				"id":     requestID.Add(1),
			})
			return [][]byte{frame}
		},
		OnFrame: func(data []byte) {
			msg, ok := parseFrame(data)
			if !ok {
				stream.Dropped(Name, "decode")
				return
			}
			stream.Delivered(Name, msg.Type)
			handler(msg, Name)
		},
	})
	return sup.Stop, nil
}

func streamNames(apiSymbol, interval string) []string {
	s := strings.ToLower(apiSymbol)
	return []string{
		fmt.Sprintf("%s@kline_%s", s, interval),
		fmt.Sprintf("%s@depth%d@100ms", s, depthLimit),
		fmt.Sprintf("%s@aggTrade", s),
	}
}

type combinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// parseFrame normalizes one combined-stream frame. Subscription acks and
// unknown streams report ok=false.
func parseFrame(data []byte) (common.StreamMessage, bool) {
	var f combinedFrame
	if err := json.Unmarshal(data, &f); err != nil || f.Stream == "" || len(f.Data) == 0 {
		return common.StreamMessage{}, false
	}
	msg := common.StreamMessage{Stream: f.Stream, Exchange: Name}

	switch {
	case strings.Contains(f.Stream, "@kline_"):
		var k struct {
			K struct {
				T int64  `json:"t"`
				O string `json:"o"`
				H string `json:"h"`
				L string `json:"l"`
				C string `json:"c"`
				Q string `json:"q"`

				// Declared so case-insensitive matching cannot clobber t, l and q.
				CloseT      int64  `json:"T"`
				LastTradeID int64  `json:"L"`
				TakerQuote  string `json:"Q"`
			} `json:"k"`
		}
		if err := json.Unmarshal(f.Data, &k); err != nil || k.K.T == 0 {
			return msg, false
		}
		msg.Type = common.MessageKline
		msg.Kline = &common.Candle{
			Time:  k.K.T / 1000,
			Open:  common.ToFloat(k.K.O),
			High:  common.ToFloat(k.K.H),
			Low:   common.ToFloat(k.K.L),
			Close: common.ToFloat(k.K.C),
			Value: common.ToFloat(k.K.Q),
		}
	case strings.Contains(f.Stream, "@depth"):
		var d depthPayload
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return msg, false
		}
		snap := d.snapshot()
		msg.Type = common.MessageDepth
		msg.Depth = &snap
	case strings.HasSuffix(f.Stream, "@aggTrade"):
		var t struct {
			P      string `json:"p"`
			Q      string `json:"q"`
			T      int64  `json:"T"`
			M      bool   `json:"m"`
			Ignore bool   `json:"M"`
		}
		if err := json.Unmarshal(f.Data, &t); err != nil || t.P == "" {
			return msg, false
		}
		msg.Type = common.MessageTrade
		msg.Trade = &common.Trade{
			Price:        common.ToFloat(t.P),
			Quantity:     common.ToFloat(t.Q),
			Time:         t.T,
			IsBuyerMaker: t.M,
		}
	default:
		return msg, false
	}
	return msg, true
}
