// Package streamtest provides an in-memory transport for exercising adapters
// without a network.
package streamtest

import (
	"context"
	"errors"
	"sync"
	"time"

	"market-core/pkg/exchanges/common"
)

// Conn is a scripted connection. Push feeds inbound frames; Written returns
// text frames sent by the session.
type Conn struct {
	URL string

	mu      sync.Mutex
	written []string
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once
}

func newConn(url string) *Conn {
	return &Conn{URL: url, inbound: make(chan []byte, 64), closed: make(chan struct{})}
}

func (c *Conn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-c.inbound:
		return 1, b, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (c *Conn) WriteMessage(mt int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("write on closed connection")
	default:
	}
	if mt != 1 {
		return nil
	}
	c.mu.Lock()
	c.written = append(c.written, string(data))
	c.mu.Unlock()
	return nil
}

func (c *Conn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// Push queues an inbound frame.
func (c *Conn) Push(frame string) {
	c.inbound <- []byte(frame)
}

// Written returns a copy of outbound text frames.
func (c *Conn) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

// WaitWritten blocks until at least n frames were written or the timeout passes.
func (c *Conn) WaitWritten(n int, timeout time.Duration) []string {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if w := c.Written(); len(w) >= n {
			return w
		}
		time.Sleep(time.Millisecond)
	}
	return c.Written()
}

// Dialer records every dial and hands out Conns.
type Dialer struct {
	mu    sync.Mutex
	conns []*Conn
	ch    chan *Conn
}

func NewDialer() *Dialer {
	return &Dialer{ch: make(chan *Conn, 16)}
}

func (d *Dialer) Dial(ctx context.Context, url string) (common.Conn, error) {
	c := newConn(url)
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	d.ch <- c
	return c, nil
}

// Next waits for the next dial.
func (d *Dialer) Next(timeout time.Duration) (*Conn, bool) {
	select {
	case c := <-d.ch:
		return c, true
	case <-time.After(timeout):
		return nil, false
	}
}

// Count returns the number of dials so far.
func (d *Dialer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// Collector gathers handler calls.
type Collector struct {
	ch chan common.StreamMessage
}

func NewCollector() *Collector {
	return &Collector{ch: make(chan common.StreamMessage, 64)}
}

// Handle is a common.Handler.
func (c *Collector) Handle(msg common.StreamMessage, exchange string) {
	c.ch <- msg
}

// Next waits for one message.
func (c *Collector) Next(timeout time.Duration) (common.StreamMessage, bool) {
	select {
	case m := <-c.ch:
		return m, true
	case <-time.After(timeout):
		return common.StreamMessage{}, false
	}
}
