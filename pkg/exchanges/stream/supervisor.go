package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"market-core/pkg/exchanges/common"
	"market-core/pkg/metrics"
)

// DefaultReconnectDelay is the fixed wait between an unexpected close and the next dial.
const DefaultReconnectDelay = 5 * time.Second

// State is the supervisor lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateReconnectPending
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnectPending:
		return "reconnect_pending"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config describes one supervised session.
type Config struct {
	Exchange string
	URL      string
	Dialer   common.Dialer

	// Subscribe returns the frames sent after every successful open.
	Subscribe func() [][]byte
	// Unsubscribe returns frames sent best-effort on disconnect while open.
	Unsubscribe func() [][]byte
	// OnOpen runs on the loop before subscribing, e.g. to reset a local book.
	OnOpen func()
	// OnFrame receives every inbound data frame on the loop goroutine.
	OnFrame func(data []byte)

	KeepAliveInterval time.Duration
	KeepAliveFrame    []byte

	ReconnectDelay time.Duration
	// After replaces time.After; tests use it to observe and trigger backoff.
	After func(time.Duration) <-chan time.Time

	Logger *zap.Logger
}

// Supervisor owns a connection and its reconnection policy.
type Supervisor struct {
	cfg    Config
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	state  atomic.Int32
	dials  atomic.Int64
}

// Start launches the supervisor loop. The first dial happens asynchronously.
func Start(cfg Config) *Supervisor {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.After == nil {
		cfg.After = time.After
	}
	if cfg.Dialer == nil {
		cfg.Dialer = NewWSDialer()
	}
	if cfg.OnFrame == nil {
		cfg.OnFrame = func([]byte) {}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		cfg:    cfg,
		log:    log.With(zap.String("exchange", cfg.Exchange)),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))
	metrics.StreamSessions.WithLabelValues(cfg.Exchange).Inc()
	go s.run()
	return s
}

// Stop is the disconnect operation: it cancels any pending reconnect, unsubscribes
// best-effort, closes the transport and waits for the loop to exit. Safe to call
// repeatedly and after the session ended on its own. Must not be called from OnFrame.
func (s *Supervisor) Stop() {
	s.once.Do(func() {
		s.cancel()
	})
	<-s.done
}

// State reports the current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Dials reports how many connection attempts were made.
func (s *Supervisor) Dials() int64 {
	return s.dials.Load()
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Supervisor) run() {
	defer close(s.done)
	defer metrics.StreamSessions.WithLabelValues(s.cfg.Exchange).Dec()
	defer s.setState(StateClosed)

	for {
		s.setState(StateConnecting)
		s.dials.Add(1)
		conn, err := s.cfg.Dialer.Dial(s.ctx, s.cfg.URL)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.log.Warn("stream dial failed", zap.Error(errors.Join(common.ErrTransport, err)))
		} else if stopped := s.serve(conn); stopped {
			return
		}

		metrics.StreamReconnects.WithLabelValues(s.cfg.Exchange).Inc()
		s.setState(StateReconnectPending)
		select {
		case <-s.ctx.Done():
			return
		case <-s.cfg.After(s.cfg.ReconnectDelay):
		}
	}
}

// serve runs one open connection. It returns true when the session was stopped
// deliberately and false when the transport closed or failed.
func (s *Supervisor) serve(conn common.Conn) bool {
	s.setState(StateOpen)
	if s.cfg.OnOpen != nil {
		s.cfg.OnOpen()
	}
	if s.cfg.Subscribe != nil {
		for _, f := range s.cfg.Subscribe() {
			if err := conn.WriteMessage(TextMessage, f); err != nil {
				s.log.Warn("stream subscribe failed", zap.Error(err))
				_ = conn.Close()
				return false
			}
		}
	}
	s.log.Info("stream open", zap.String("url", s.cfg.URL))

	frames := make(chan []byte, 256)
	readErr := make(chan error, 1)
	quit := make(chan struct{})
	defer close(quit)

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- data:
			case <-quit:
				return
			}
		}
	}()

	var tick <-chan time.Time
	if s.cfg.KeepAliveInterval > 0 && len(s.cfg.KeepAliveFrame) > 0 {
		t := time.NewTicker(s.cfg.KeepAliveInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-s.ctx.Done():
			if s.cfg.Unsubscribe != nil {
				for _, f := range s.cfg.Unsubscribe() {
					_ = conn.WriteMessage(TextMessage, f)
				}
			}
			_ = conn.WriteMessage(CloseMessage, closeFrame())
			_ = conn.Close()
			s.log.Info("stream closed")
			return true
		case data := <-frames:
			s.cfg.OnFrame(data)
		case err := <-readErr:
			_ = conn.Close()
			if isExpectedClose(err) {
				s.log.Info("stream closed by remote", zap.Error(err))
			} else {
				s.log.Warn("stream read failed", zap.Error(errors.Join(common.ErrTransport, err)))
			}
			return false
		case <-tick:
			if err := conn.WriteMessage(TextMessage, s.cfg.KeepAliveFrame); err != nil {
				s.log.Warn("stream keep-alive failed", zap.Error(err))
				_ = conn.Close()
				return false
			}
		}
	}
}

// Dropped counts a discarded inbound frame.
func Dropped(exchange, reason string) {
	metrics.StreamDropped.WithLabelValues(exchange, reason).Inc()
}

// Delivered counts a normalized message handed to a handler.
func Delivered(exchange string, t common.MessageType) {
	metrics.StreamMessages.WithLabelValues(exchange, string(t)).Inc()
}
