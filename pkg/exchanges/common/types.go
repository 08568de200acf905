package common

import "context"

// Candle is one OHLC bar. Time is the bar start in unix seconds; Value is quote volume.
type Candle struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
	Value float64 `json:"value"`
}

// OrderBookLevel is a (price, size) pair. A zero size inside an update means "remove".
type OrderBookLevel [2]float64

func (l OrderBookLevel) Price() float64 { return l[0] }
func (l OrderBookLevel) Size() float64  { return l[1] }

// OrderBookSnapshot holds bids sorted descending and asks sorted ascending.
type OrderBookSnapshot struct {
	Bids []OrderBookLevel `json:"bids"`
	Asks []OrderBookLevel `json:"asks"`
}

// Trade is a public execution. IsBuyerMaker means the taker sold.
type Trade struct {
	Price        float64 `json:"price"`
	Quantity     float64 `json:"quantity"`
	Time         int64   `json:"time"`
	IsBuyerMaker bool    `json:"isBuyerMaker"`
}

// MessageType tags a StreamMessage payload.
type MessageType string

const (
	MessageKline MessageType = "kline"
	MessageDepth MessageType = "depth"
	MessageTrade MessageType = "trade"
)

// StreamMessage is the normalized envelope handed to stream handlers.
// Exactly one of Kline, Depth, Trade is set, matching Type.
type StreamMessage struct {
	Stream   string             `json:"stream"`
	Type     MessageType        `json:"type"`
	Exchange string             `json:"exchange"`
	Kline    *Candle            `json:"kline,omitempty"`
	Depth    *OrderBookSnapshot `json:"depth,omitempty"`
	Trade    *Trade             `json:"trade,omitempty"`
}

// Handler receives normalized messages together with the originating exchange name.
type Handler func(msg StreamMessage, exchange string)

// Adapter is the uniform contract every exchange integration implements.
type Adapter interface {
	Name() string
	// FormatAPISymbol maps a canonical "base-quote" symbol to the exchange's native form.
	FormatAPISymbol(symbol string) string
	// FormatPair maps a native symbol back to canonical form.
	FormatPair(native string) string
	FetchAllSymbols(ctx context.Context) ([]string, error)
	FetchKlines(ctx context.Context, symbol, interval string) ([]Candle, error)
	FetchOrderBook(ctx context.Context, symbol string) (OrderBookSnapshot, error)
	// Connect opens a supervised streaming session and returns its disconnect function.
	Connect(symbol, interval string, handler Handler) (func(), error)
}
