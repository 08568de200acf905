// Package market runs the single live dashboard session and derives trade
// flow and book sentiment from it.
package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"market-core/internal/events"
	"market-core/pkg/cache"
	"market-core/pkg/exchanges/common"
)

var (
	// ErrUnknownExchange is returned when the registry has no adapter for a name.
	ErrUnknownExchange = errors.New("unknown exchange")
	// ErrNoSymbols is returned when an exchange lists nothing to select.
	ErrNoSymbols = errors.New("exchange lists no symbols")
)

// Resolver looks adapters up by exchange name.
type Resolver interface {
	Get(name string) (common.Adapter, bool)
}

// Dashboard owns at most one live session. Every Select disconnects the
// previous session before connecting the next.
type Dashboard struct {
	adapters Resolver
	bus      *events.Bus
	prices   *cache.PriceCache
	log      *zap.Logger

	flow      *Flow
	sentiment *Sentiment

	mu         sync.Mutex
	sel        events.Selection
	disconnect func()

	gen  atomic.Uint64
	book atomic.Pointer[common.OrderBookSnapshot]
}

// NewDashboard wires a dashboard to its adapters, bus and price cache.
func NewDashboard(adapters Resolver, bus *events.Bus, prices *cache.PriceCache, log *zap.Logger) *Dashboard {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dashboard{
		adapters:  adapters,
		bus:       bus,
		prices:    prices,
		log:       log,
		flow:      NewFlow(MaxFlowTrades),
		sentiment: NewSentiment(),
	}
}

// Select switches the live session. On error the previous session is already
// gone and no session runs.
func (d *Dashboard) Select(ctx context.Context, exchange, symbol, interval string) error {
	a, ok := d.adapters.Get(exchange)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownExchange, exchange)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	gen := d.gen.Add(1)
	d.flow.Reset()
	d.sentiment.Reset()
	d.book.Store(nil)

	sel := events.Selection{Exchange: exchange, Symbol: symbol, Interval: interval}
	handler := func(msg common.StreamMessage, origin string) {
		if origin != exchange || d.gen.Load() != gen {
			return
		}
		d.handle(sel, msg)
	}
	stop, err := a.Connect(symbol, interval, handler)
	if err != nil {
		return err
	}
	d.disconnect = stop
	d.sel = sel
	d.log.Info("session selected",
		zap.String("exchange", exchange),
		zap.String("symbol", symbol),
		zap.String("interval", interval))
	d.bus.Publish(events.EventSelection, sel)
	return nil
}

// Restore selects a stored preference after checking it against the live
// listing. The symbol falls back through ResolveSymbol.
func (d *Dashboard) Restore(ctx context.Context, pref events.Selection) (events.Selection, error) {
	a, ok := d.adapters.Get(pref.Exchange)
	if !ok {
		return events.Selection{}, fmt.Errorf("%w: %s", ErrUnknownExchange, pref.Exchange)
	}
	symbols, err := a.FetchAllSymbols(ctx)
	if err != nil {
		return events.Selection{}, err
	}
	sym := ResolveSymbol(symbols, pref.Symbol)
	if sym == "" {
		return events.Selection{}, ErrNoSymbols
	}
	sel := events.Selection{Exchange: pref.Exchange, Symbol: sym, Interval: pref.Interval}
	if err := d.Select(ctx, sel.Exchange, sel.Symbol, sel.Interval); err != nil {
		return events.Selection{}, err
	}
	return sel, nil
}

// Current reports the live selection and whether a session is running.
func (d *Dashboard) Current() (events.Selection, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sel, d.disconnect != nil
}

// Book returns the last depth snapshot of the live session.
func (d *Dashboard) Book() (common.OrderBookSnapshot, bool) {
	b := d.book.Load()
	if b == nil {
		return common.OrderBookSnapshot{}, false
	}
	return *b, true
}

// FlowSeries returns the running cumulative flow of the live session.
func (d *Dashboard) FlowSeries() []FlowPoint {
	return d.flow.Series()
}

// Close ends the live session.
func (d *Dashboard) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.gen.Add(1)
}

func (d *Dashboard) stopLocked() {
	if d.disconnect != nil {
		d.disconnect()
		d.disconnect = nil
	}
}

// handle runs on the adapter's session goroutine and must not take d.mu.
func (d *Dashboard) handle(sel events.Selection, msg common.StreamMessage) {
	d.bus.Publish(events.EventStream, events.StreamPayload{Selection: sel, Message: msg})

	switch msg.Type {
	case common.MessageTrade:
		if msg.Trade == nil {
			return
		}
		d.prices.Set(sel.Exchange, sel.Symbol, msg.Trade.Price, string(msg.Type))
		delta, cum := d.flow.Add(*msg.Trade)
		p := events.FlowPayload{Exchange: sel.Exchange, Symbol: sel.Symbol, Delta: delta, Cumulative: cum, Time: msg.Trade.Time}
		if avg, ok := d.flow.Average(); ok {
			p.Average5m = &avg
		}
		d.bus.Publish(events.EventFlow, p)

	case common.MessageKline:
		if msg.Kline == nil || msg.Kline.Close <= 0 {
			return
		}
		d.prices.Set(sel.Exchange, sel.Symbol, msg.Kline.Close, string(msg.Type))

	case common.MessageDepth:
		if msg.Depth == nil {
			return
		}
		snap := *msg.Depth
		d.book.Store(&snap)
		pr, avg, n := d.sentiment.Observe(snap)
		d.bus.Publish(events.EventSentiment, events.SentimentPayload{
			Exchange:    sel.Exchange,
			Symbol:      sel.Symbol,
			BidNotional: pr.BidNotional,
			AskNotional: pr.AskNotional,
			BidPercent:  pr.BidPercent,
			Average5m:   avg,
			SampleCount: n,
		})
	}
}
