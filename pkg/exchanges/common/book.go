package common

import (
	"sort"
	"sync"
)

// Side selects one half of the book.
type Side int

const (
	Bid Side = iota
	Ask
)

// Book maintains a local order book from snapshots and incremental updates.
type Book struct {
	mu    sync.Mutex
	depth int
	bids  []OrderBookLevel
	asks  []OrderBookLevel
}

// NewBook creates an empty book whose snapshots are truncated to depth levels per side.
func NewBook(depth int) *Book {
	return &Book{depth: depth}
}

// Replace discards current state and installs a full snapshot.
func (b *Book) Replace(bids, asks []OrderBookLevel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids = upsert(nil, bids)
	b.asks = upsert(nil, asks)
	sortSide(b.bids, Bid)
	sortSide(b.asks, Ask)
}

// Apply merges incremental updates into one side. Zero size removes the price;
// removing an absent price is a no-op.
func (b *Book) Apply(side Side, updates []OrderBookLevel) {
	if len(updates) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if side == Bid {
		b.bids = upsert(b.bids, updates)
		sortSide(b.bids, Bid)
		return
	}
	b.asks = upsert(b.asks, updates)
	sortSide(b.asks, Ask)
}

// Reset empties both sides.
func (b *Book) Reset() {
	b.mu.Lock()
	b.bids, b.asks = nil, nil
	b.mu.Unlock()
}

// Snapshot returns a copy of the book truncated to the configured depth.
func (b *Book) Snapshot() OrderBookSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return OrderBookSnapshot{
		Bids: truncateCopy(b.bids, b.depth),
		Asks: truncateCopy(b.asks, b.depth),
	}
}

func upsert(levels, updates []OrderBookLevel) []OrderBookLevel {
	for _, u := range updates {
		idx := -1
		for i, l := range levels {
			if l[0] == u[0] {
				idx = i
				break
			}
		}
		switch {
		case u[1] == 0:
			if idx >= 0 {
				levels = append(levels[:idx], levels[idx+1:]...)
			}
		case idx >= 0:
			levels[idx] = u
		default:
			levels = append(levels, u)
		}
	}
	return levels
}

func sortSide(levels []OrderBookLevel, side Side) {
	if side == Bid {
		sort.Slice(levels, func(i, j int) bool { return levels[i][0] > levels[j][0] })
		return
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i][0] < levels[j][0] })
}

func truncateCopy(levels []OrderBookLevel, depth int) []OrderBookLevel {
	n := len(levels)
	if depth > 0 && n > depth {
		n = depth
	}
	out := make([]OrderBookLevel, n)
	copy(out, levels[:n])
	return out
}

// SortSnapshot orders a snapshot received in one piece and drops zero-size levels.
func SortSnapshot(s OrderBookSnapshot, depth int) OrderBookSnapshot {
	b := NewBook(depth)
	b.Replace(s.Bids, s.Asks)
	return b.Snapshot()
}
