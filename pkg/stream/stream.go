// Package stream maintains the live quote WebSocket feed. One Stream owns
// one connection for one ordered symbol set; it reconnects on its own after
// drops and merges inbound ticks into the shared quote cache. Transport
// failures never reach subscribers, only the connection-status flag.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/stocksurge/gosurge/pkg/logger"
	"github.com/stocksurge/gosurge/pkg/quotecache"
)

var (
	errEmptyBaseURL = errors.New("stream: base url is required")
	errNoSymbols    = errors.New("stream: at least one symbol is required")
)

// Config controls dialing and reconnect behavior. The defaults mirror the
// backend contract: a constant 5s delay and unlimited attempts. Backoff,
// jitter and an attempt ceiling are available but opt-in.
type Config struct {
	BaseURL          string        // ws:// or wss:// origin
	ReconnectDelay   time.Duration // base delay between attempts
	BackoffFactor    float64       // 1 = constant delay
	MaxDelay         time.Duration // cap when backoff grows
	Jitter           float64       // 0..1 fraction of the delay
	MaxAttempts      int           // consecutive failed dials; 0 = unlimited
	HandshakeTimeout time.Duration
}

// DefaultConfig returns the defaults for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:          baseURL,
		ReconnectDelay:   5 * time.Second,
		BackoffFactor:    1,
		HandshakeTimeout: 30 * time.Second,
	}
}

func (c *Config) fillDefaults() {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = 1
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 30 * time.Second
	}
}

// Stream is one live subscription. The symbol set is fixed at construction;
// changing it means cancelling this stream and starting another (see Feed).
type Stream struct {
	cfg     Config
	symbols []string
	url     string
	cache   *quotecache.Cache
	log     *logrus.Entry

	mu   sync.Mutex // guards conn
	conn *websocket.Conn

	connectedMu sync.RWMutex
	connected   bool

	ctx        context.Context
	cancelCtx  context.CancelFunc
	cancelOnce sync.Once
	done       chan struct{}
	started    bool
	startedMu  sync.Mutex
}

// New creates a stream for the given ordered symbol set. The subscription
// identity is the join order, so the order is preserved as given.
func New(cfg Config, cache *quotecache.Cache, symbols ...string) (*Stream, error) {
	cfg.fillDefaults()
	if cfg.BaseURL == "" {
		return nil, errEmptyBaseURL
	}
	if len(symbols) == 0 {
		return nil, errNoSymbols
	}

	owned := make([]string, len(symbols))
	copy(owned, symbols)

	ctx, cancel := context.WithCancel(context.Background())
	return &Stream{
		cfg:       cfg,
		symbols:   owned,
		url:       strings.TrimSuffix(cfg.BaseURL, "/") + "/ws/live/" + strings.Join(owned, ","),
		cache:     cache,
		log:       logger.WithComponent("stream").WithField("symbols", strings.Join(owned, ",")),
		ctx:       ctx,
		cancelCtx: cancel,
		done:      make(chan struct{}),
	}, nil
}

// Start launches the connection loop. Safe to call once.
func (s *Stream) Start() {
	s.startedMu.Lock()
	defer s.startedMu.Unlock()
	if s.started {
		return
	}
	s.started = true
	go s.run()
}

// Cancel tears the subscription down: it stops any pending reconnect, closes
// the socket and never reopens. Idempotent; safe from any goroutine.
func (s *Stream) Cancel() {
	s.cancelOnce.Do(func() {
		s.cancelCtx()
		s.mu.Lock()
		if s.conn != nil {
			_ = s.conn.Close()
			s.conn = nil
		}
		s.mu.Unlock()

		// If run() never started there is nobody to close done.
		s.startedMu.Lock()
		if !s.started {
			s.started = true
			close(s.done)
		}
		s.startedMu.Unlock()
	})
}

// Done closes when the stream has fully stopped.
func (s *Stream) Done() <-chan struct{} { return s.done }

// IsConnected reports the current connection status.
func (s *Stream) IsConnected() bool {
	s.connectedMu.RLock()
	defer s.connectedMu.RUnlock()
	return s.connected
}

// Symbols returns a copy of the subscribed symbol set in join order.
func (s *Stream) Symbols() []string {
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

func (s *Stream) setConnected(v bool) {
	s.connectedMu.Lock()
	s.connected = v
	s.connectedMu.Unlock()
}

func (s *Stream) run() {
	defer close(s.done)
	defer s.setConnected(false)

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
	attempts := 0

	for {
		if s.ctx.Err() != nil {
			return
		}

		conn, _, err := dialer.DialContext(s.ctx, s.url, nil)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			attempts++
			s.log.WithError(err).WithField("attempt", attempts).Warn("connect failed")
			if s.cfg.MaxAttempts > 0 && attempts >= s.cfg.MaxAttempts {
				s.log.Warn("max connect attempts reached, giving up")
				return
			}
			if !s.sleep(s.delayFor(attempts)) {
				return
			}
			continue
		}

		s.mu.Lock()
		if s.ctx.Err() != nil {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conn = conn
		s.mu.Unlock()

		attempts = 0
		s.setConnected(true)
		s.log.Info("connected")

		s.readLoop(conn)

		s.setConnected(false)
		s.mu.Lock()
		if s.conn == conn {
			_ = s.conn.Close()
			s.conn = nil
		}
		s.mu.Unlock()

		if s.ctx.Err() != nil {
			return
		}
		s.log.Info("disconnected, reconnecting")
		if !s.sleep(s.delayFor(1)) {
			return
		}
	}
}

// readLoop consumes messages until the connection fails or is closed.
func (s *Stream) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil &&
				websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.WithError(err).Warn("read error")
			}
			return
		}
		s.handleMessage(data)
	}
}

// handleMessage parses one payload and merges it into the cache. Malformed
// or incomplete payloads are logged and dropped; they never affect the
// connection state.
func (s *Stream) handleMessage(data []byte) {
	var tick quotecache.Tick
	if err := json.Unmarshal(data, &tick); err != nil {
		s.log.WithError(err).Debug("dropping malformed message")
		return
	}
	if tick.Error != "" {
		s.log.WithField("error", tick.Error).Warn("server reported error")
		return
	}
	if _, ok := s.cache.Apply(tick); !ok {
		s.log.Debug("dropping tick without id or price")
	}
}

// sleep waits for d or until cancellation; reports whether to continue.
func (s *Stream) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// delayFor computes the wait before attempt n (1-based), applying the
// optional backoff growth, cap and jitter.
func (s *Stream) delayFor(attempt int) time.Duration {
	d := s.cfg.ReconnectDelay
	if s.cfg.BackoffFactor > 1 {
		for i := 1; i < attempt; i++ {
			d = time.Duration(float64(d) * s.cfg.BackoffFactor)
			if s.cfg.MaxDelay > 0 && d >= s.cfg.MaxDelay {
				d = s.cfg.MaxDelay
				break
			}
		}
	}
	if s.cfg.Jitter > 0 {
		frac := s.cfg.Jitter
		if frac > 1 {
			frac = 1
		}
		d += time.Duration(rand.Float64() * frac * float64(d))
	}
	return d
}
