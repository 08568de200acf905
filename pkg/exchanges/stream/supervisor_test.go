package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-core/pkg/exchanges/common"
)

type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-c.inbound:
		return TextMessage, b, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (c *fakeConn) WriteMessage(mt int, data []byte) error {
	if mt != TextMessage {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) frames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.written))
	for i, b := range c.written {
		out[i] = string(b)
	}
	return out
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dialt chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialt: make(chan *fakeConn, 8)}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (common.Conn, error) {
	c := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	d.dialt <- c
	return c, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.dialt:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for dial")
		return nil
	}
}

// manualClock hands out reconnect timers the test fires explicitly.
type manualClock struct {
	mu     sync.Mutex
	delays []time.Duration
	fire   chan chan time.Time
}

func newManualClock() *manualClock {
	return &manualClock{fire: make(chan chan time.Time, 8)}
}

func (m *manualClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	m.mu.Lock()
	m.delays = append(m.delays, d)
	m.mu.Unlock()
	m.fire <- ch
	return ch
}

func (m *manualClock) requested() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.delays...)
}

func subscribeFrames() [][]byte {
	return [][]byte{[]byte("sub:kline"), []byte("sub:depth"), []byte("sub:trade")}
}

func waitState(t *testing.T, s *Supervisor, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state=%v, expected %v", s.State(), want)
}

func TestSupervisorReconnectsOnceAndResubscribes(t *testing.T) {
	dialer := newFakeDialer()
	clock := newManualClock()
	s := Start(Config{
		Exchange:  "test",
		URL:       "wss://example",
		Dialer:    dialer,
		Subscribe: subscribeFrames,
		After:     clock.After,
	})
	defer s.Stop()

	first := dialer.next(t)
	waitState(t, s, StateOpen)
	require.Eventually(t, func() bool { return len(first.frames()) == 3 }, time.Second, time.Millisecond)

	_ = first.Close()

	var timer chan time.Time
	select {
	case timer = <-clock.fire:
	case <-time.After(2 * time.Second):
		t.Fatal("no reconnect timer scheduled")
	}
	assert.Equal(t, StateReconnectPending, s.State())
	assert.Equal(t, []time.Duration{DefaultReconnectDelay}, clock.requested())
	assert.Equal(t, 1, dialer.count())

	timer <- time.Now()
	second := dialer.next(t)
	require.Eventually(t, func() bool { return len(second.frames()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"sub:kline", "sub:depth", "sub:trade"}, second.frames())
	assert.Len(t, clock.requested(), 1)
}

func TestSupervisorStopIsIdempotentAndTerminal(t *testing.T) {
	dialer := newFakeDialer()
	clock := newManualClock()
	s := Start(Config{
		Exchange:    "test",
		Dialer:      dialer,
		Subscribe:   subscribeFrames,
		Unsubscribe: func() [][]byte { return [][]byte{[]byte("unsub")} },
		After:       clock.After,
	})

	conn := dialer.next(t)
	waitState(t, s, StateOpen)

	s.Stop()
	s.Stop()

	assert.Equal(t, StateClosed, s.State())
	assert.Contains(t, conn.frames(), "unsub")
	assert.Empty(t, clock.requested())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, dialer.count())
}

func TestSupervisorStopCancelsPendingReconnect(t *testing.T) {
	dialer := newFakeDialer()
	clock := newManualClock()
	s := Start(Config{Exchange: "test", Dialer: dialer, After: clock.After})

	conn := dialer.next(t)
	waitState(t, s, StateOpen)
	_ = conn.Close()
	timer := <-clock.fire

	s.Stop()
	timer <- time.Now()
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, dialer.count())
	assert.Equal(t, StateClosed, s.State())
}

func TestSupervisorDeliversFrames(t *testing.T) {
	dialer := newFakeDialer()
	got := make(chan string, 4)
	s := Start(Config{
		Exchange: "test",
		Dialer:   dialer,
		OnFrame:  func(b []byte) { got <- string(b) },
		After:    newManualClock().After,
	})
	defer s.Stop()

	conn := dialer.next(t)
	conn.inbound <- []byte("hello")
	select {
	case msg := <-got:
		assert.Equal(t, "hello", msg)
	case <-time.After(time.Second):
		t.Fatal("frame not delivered")
	}
}

func TestSupervisorKeepAlive(t *testing.T) {
	dialer := newFakeDialer()
	s := Start(Config{
		Exchange:          "test",
		Dialer:            dialer,
		KeepAliveInterval: 5 * time.Millisecond,
		KeepAliveFrame:    []byte("ping"),
		After:             newManualClock().After,
	})

	conn := dialer.next(t)
	require.Eventually(t, func() bool {
		for _, f := range conn.frames() {
			if f == "ping" {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
	s.Stop()
}

type failingDialer struct{ calls chan struct{} }

func (d *failingDialer) Dial(ctx context.Context, url string) (common.Conn, error) {
	d.calls <- struct{}{}
	return nil, errors.New("connection refused")
}

func TestSupervisorRetriesDialFailures(t *testing.T) {
	dialer := &failingDialer{calls: make(chan struct{}, 4)}
	clock := newManualClock()
	s := Start(Config{Exchange: "test", Dialer: dialer, After: clock.After})
	defer s.Stop()

	<-dialer.calls
	timer := <-clock.fire
	timer <- time.Now()
	<-dialer.calls
	<-clock.fire

	assert.Equal(t, []time.Duration{DefaultReconnectDelay, DefaultReconnectDelay}, clock.requested())
}
