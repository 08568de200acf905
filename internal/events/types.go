package events

import "market-core/pkg/exchanges/common"

// Event enumerates topics published by the dashboard session.
type Event string

const (
	// EventStream carries every normalized message of the live session.
	EventStream Event = "stream"
	// EventFlow carries cumulative trade flow after each trade.
	EventFlow Event = "flow"
	// EventSentiment carries order book pressure after each depth update.
	EventSentiment Event = "sentiment"
	// EventSelection fires when the live session switches exchange, symbol or interval.
	EventSelection Event = "selection"
)

// Selection identifies the live session.
type Selection struct {
	Exchange string `json:"exchange"`
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}

// StreamPayload is published on EventStream.
type StreamPayload struct {
	Selection
	Message common.StreamMessage
}

// FlowPayload is published on EventFlow.
type FlowPayload struct {
	Exchange   string   `json:"exchange"`
	Symbol     string   `json:"symbol"`
	Delta      float64  `json:"delta"`
	Cumulative float64  `json:"cumulative"`
	Average5m  *float64 `json:"average5m"`
	Time       int64    `json:"time"`
}

// SentimentPayload is published on EventSentiment.
type SentimentPayload struct {
	Exchange    string  `json:"exchange"`
	Symbol      string  `json:"symbol"`
	BidNotional float64 `json:"bidNotional"`
	AskNotional float64 `json:"askNotional"`
	BidPercent  float64 `json:"bidPercent"`
	Average5m   float64 `json:"average5m"`
	SampleCount int     `json:"sampleCount"`
}
