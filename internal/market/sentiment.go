package market

import (
	"sync"
	"time"

	"market-core/pkg/exchanges/common"
)

// minAverageSamples is how many readings are needed before the rolling
// average replaces the current value.
const minAverageSamples = 5

// Pressure is the notional split of one book snapshot.
type Pressure struct {
	BidNotional float64 `json:"bidNotional"`
	AskNotional float64 `json:"askNotional"`
	BidPercent  float64 `json:"bidPercent"`
}

// BookPressure sums price*size per side. An empty book is 50/50.
func BookPressure(s common.OrderBookSnapshot) Pressure {
	var p Pressure
	for _, l := range s.Bids {
		p.BidNotional += l.Price() * l.Size()
	}
	for _, l := range s.Asks {
		p.AskNotional += l.Price() * l.Size()
	}
	total := p.BidNotional + p.AskNotional
	if total == 0 {
		p.BidPercent = 50
		return p
	}
	p.BidPercent = p.BidNotional / total * 100
	return p
}

type sample struct {
	at  time.Time
	pct float64
}

// Sentiment keeps five minutes of bid percentage readings.
type Sentiment struct {
	mu      sync.Mutex
	history []sample
	now     func() time.Time
}

func NewSentiment() *Sentiment {
	return &Sentiment{now: time.Now}
}

// Observe records a snapshot and returns its pressure, the rolling average
// (the current value until five samples exist) and the sample count.
func (s *Sentiment) Observe(snap common.OrderBookSnapshot) (Pressure, float64, int) {
	p := BookPressure(snap)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, sample{at: now, pct: p.BidPercent})
	keep := s.history[:0]
	for _, h := range s.history {
		if now.Sub(h.at) < AverageWindow {
			keep = append(keep, h)
		}
	}
	s.history = keep

	n := len(s.history)
	if n < minAverageSamples {
		return p, p.BidPercent, n
	}
	sum := 0.0
	for _, h := range s.history {
		sum += h.pct
	}
	return p, sum / float64(n), n
}

// Reset forgets all readings.
func (s *Sentiment) Reset() {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
}
