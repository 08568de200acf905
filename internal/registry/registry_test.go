package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-core/pkg/exchanges/common"
)

func TestGetCachesPerName(t *testing.T) {
	r := New(common.Options{}, nil, nil)

	for _, name := range AvailableExchanges {
		a, ok := r.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, name, a.Name())

		again, _ := r.Get(name)
		assert.Same(t, a, again, name)
	}
}

func TestUnknownExchange(t *testing.T) {
	r := New(common.Options{}, nil, nil)
	a, ok := r.Get("ftx")
	assert.False(t, ok)
	assert.Nil(t, a)
	assert.False(t, IsAvailable("ftx"))
	assert.True(t, IsAvailable("kraken"))
}

func TestNamesKeepsDisplayOrder(t *testing.T) {
	r := New(common.Options{}, nil, nil)
	assert.Equal(t, []string{"binance", "kraken", "bybit", "okx", "coinbase"}, r.Names())
}

func TestOverridesReachFactory(t *testing.T) {
	var got common.Options
	r := New(common.Options{ReconnectDelay: time.Second, RatePerSec: 2}, map[string]common.Options{
		"okx": {RESTURL: "http://local", PollInterval: time.Minute},
	}, nil)
	r.Register("okx", func(o common.Options) common.Adapter {
		got = o
		return DefaultFactories()["okx"](o)
	})

	_, ok := r.Get("okx")
	require.True(t, ok)
	assert.Equal(t, "http://local", got.RESTURL)
	assert.Equal(t, time.Minute, got.PollInterval)
	assert.Equal(t, time.Second, got.ReconnectDelay)
	assert.Equal(t, 2.0, got.RatePerSec)
}

func TestRegisterDropsCachedAdapter(t *testing.T) {
	r := New(common.Options{}, nil, nil)
	first, _ := r.Get("binance")

	calls := 0
	r.Register("binance", func(o common.Options) common.Adapter {
		calls++
		return DefaultFactories()["binance"](o)
	})
	second, ok := r.Get("binance")
	require.True(t, ok)
	assert.NotSame(t, first, second)
	assert.Equal(t, 1, calls)
}
