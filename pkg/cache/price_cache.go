// Package cache keeps the last traded or closed price per exchange and symbol.
package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

const numShards = 16

// Quote is one cached price.
type Quote struct {
	Exchange  string    `json:"exchange"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PriceCache is a sharded map of exchange:symbol to Quote.
type PriceCache struct {
	shards [numShards]*priceShard
	now    func() time.Time
}

type priceShard struct {
	mu    sync.RWMutex
	items map[string]Quote
}

// NewPriceCache creates an empty cache.
func NewPriceCache() *PriceCache {
	c := &PriceCache{now: time.Now}
	for i := range c.shards {
		c.shards[i] = &priceShard{items: make(map[string]Quote)}
	}
	return c
}

func key(exchange, symbol string) string { return exchange + ":" + symbol }

func (c *PriceCache) shard(k string) *priceShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(k))
	return c.shards[h.Sum32()%numShards]
}

// Set stores price for exchange and symbol. source is the message type it came from.
func (c *PriceCache) Set(exchange, symbol string, price float64, source string) {
	if price <= 0 {
		return
	}
	k := key(exchange, symbol)
	s := c.shard(k)
	s.mu.Lock()
	s.items[k] = Quote{Exchange: exchange, Symbol: symbol, Price: price, Source: source, UpdatedAt: c.now()}
	s.mu.Unlock()
}

// Get returns the cached quote.
func (c *PriceCache) Get(exchange, symbol string) (Quote, bool) {
	k := key(exchange, symbol)
	s := c.shard(k)
	s.mu.RLock()
	q, ok := s.items[k]
	s.mu.RUnlock()
	return q, ok
}

// Delete removes one entry.
func (c *PriceCache) Delete(exchange, symbol string) {
	k := key(exchange, symbol)
	s := c.shard(k)
	s.mu.Lock()
	delete(s.items, k)
	s.mu.Unlock()
}

// Len returns total items across all shards.
func (c *PriceCache) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.RLock()
		total += len(s.items)
		s.mu.RUnlock()
	}
	return total
}

// Cleanup removes entries older than maxAge and reports how many went.
func (c *PriceCache) Cleanup(maxAge time.Duration) int {
	removed := 0
	cutoff := c.now().Add(-maxAge)
	for _, s := range c.shards {
		s.mu.Lock()
		for k, q := range s.items {
			if q.UpdatedAt.Before(cutoff) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// All returns every quote for exchange, or for all exchanges when exchange is empty.
func (c *PriceCache) All(exchange string) []Quote {
	var out []Quote
	for _, s := range c.shards {
		s.mu.RLock()
		for _, q := range s.items {
			if exchange == "" || q.Exchange == exchange {
				out = append(out, q)
			}
		}
		s.mu.RUnlock()
	}
	return out
}
