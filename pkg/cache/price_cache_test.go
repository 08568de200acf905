package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGet(t *testing.T) {
	c := NewPriceCache()
	c.Set("binance", "btc-usdt", 100, "trade")
	c.Set("kraken", "btc-usdt", 101, "kline")
	c.Set("okx", "btc-usdt", 0, "trade")

	q, ok := c.Get("binance", "btc-usdt")
	require.True(t, ok)
	assert.Equal(t, 100.0, q.Price)
	assert.Equal(t, "trade", q.Source)

	q, ok = c.Get("kraken", "btc-usdt")
	require.True(t, ok)
	assert.Equal(t, 101.0, q.Price)

	_, ok = c.Get("okx", "btc-usdt")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())
	assert.Len(t, c.All("kraken"), 1)
	assert.Len(t, c.All(""), 2)

	c.Delete("kraken", "btc-usdt")
	assert.Equal(t, 1, c.Len())
}

func TestCleanup(t *testing.T) {
	c := NewPriceCache()
	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }
	c.Set("binance", "eth-usdt", 10, "trade")

	now = now.Add(time.Minute)
	c.Set("binance", "btc-usdt", 20, "trade")

	assert.Equal(t, 1, c.Cleanup(30*time.Second))
	_, ok := c.Get("binance", "eth-usdt")
	assert.False(t, ok)
	_, ok = c.Get("binance", "btc-usdt")
	assert.True(t, ok)
}
