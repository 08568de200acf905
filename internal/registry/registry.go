// Package registry resolves exchange names to adapters, building each one on
// first use and keeping it for the life of the process.
package registry

import (
	"sync"

	"go.uber.org/zap"

	"market-core/pkg/exchanges/binance"
	"market-core/pkg/exchanges/bybit"
	"market-core/pkg/exchanges/coinbase"
	"market-core/pkg/exchanges/common"
	"market-core/pkg/exchanges/kraken"
	"market-core/pkg/exchanges/okx"
)

// AvailableExchanges is the selectable set, in display order.
var AvailableExchanges = []string{binance.Name, kraken.Name, bybit.Name, okx.Name, coinbase.Name}

// Factory builds one adapter.
type Factory func(opts common.Options) common.Adapter

// DefaultFactories maps every supported exchange to its constructor.
func DefaultFactories() map[string]Factory {
	return map[string]Factory{
		binance.Name:  func(o common.Options) common.Adapter { return binance.New(o) },
		kraken.Name:   func(o common.Options) common.Adapter { return kraken.New(o) },
		bybit.Name:    func(o common.Options) common.Adapter { return bybit.New(o) },
		okx.Name:      func(o common.Options) common.Adapter { return okx.New(o) },
		coinbase.Name: func(o common.Options) common.Adapter { return coinbase.New(o) },
	}
}

// Registry caches adapters by name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	options   map[string]common.Options
	base      common.Options
	adapters  map[string]common.Adapter
	log       *zap.Logger
}

// New builds a registry. base applies to every adapter; per-exchange overrides
// replace its non-empty fields.
func New(base common.Options, overrides map[string]common.Options, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	if base.Logger == nil {
		base.Logger = log
	}
	return &Registry{
		factories: DefaultFactories(),
		options:   overrides,
		base:      base,
		adapters:  make(map[string]common.Adapter),
		log:       log,
	}
}

// Register replaces the factory for name, dropping any cached adapter.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	delete(r.adapters, name)
}

// Get returns the adapter for name, constructing it on first use.
// Unknown names report false.
func (r *Registry) Get(name string) (common.Adapter, bool) {
	r.mu.RLock()
	a, ok := r.adapters[name]
	r.mu.RUnlock()
	if ok {
		return a, true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.adapters[name]; ok {
		return a, true
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, false
	}
	a = f(r.optionsFor(name))
	r.adapters[name] = a
	r.log.Info("adapter created", zap.String("exchange", name))
	return a, true
}

// Names lists the exchanges this registry can build, in display order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for _, n := range AvailableExchanges {
		if _, ok := r.factories[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

// IsAvailable reports whether name is one of AvailableExchanges.
func IsAvailable(name string) bool {
	for _, n := range AvailableExchanges {
		if n == name {
			return true
		}
	}
	return false
}

func (r *Registry) optionsFor(name string) common.Options {
	o := r.base
	ov, ok := r.options[name]
	if !ok {
		return o
	}
	if ov.RESTURL != "" {
		o.RESTURL = ov.RESTURL
	}
	if ov.WSURL != "" {
		o.WSURL = ov.WSURL
	}
	if ov.RatePerSec > 0 {
		o.RatePerSec = ov.RatePerSec
	}
	if ov.Burst > 0 {
		o.Burst = ov.Burst
	}
	if ov.PollInterval > 0 {
		o.PollInterval = ov.PollInterval
	}
	if ov.ReconnectDelay > 0 {
		o.ReconnectDelay = ov.ReconnectDelay
	}
	if ov.Dialer != nil {
		o.Dialer = ov.Dialer
	}
	return o
}
