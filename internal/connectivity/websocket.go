package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/tonio1998/snsulms-sub001/internal/lms"
)

const (
	defaultPingInterval = 10 * time.Second
	defaultRetryDelay   = 5 * time.Second
	dialTimeout         = 10 * time.Second
)

// WebSocketMonitor treats a live websocket to the LMS as the connectivity
// signal: online while pings are answered, offline from the first failure
// until a redial succeeds.
type WebSocketMonitor struct {
	*Manual

	url          string
	token        string
	pingInterval time.Duration
	retryDelay   time.Duration
	logger       lms.Logger
}

type MonitorOption func(*WebSocketMonitor)

func WithToken(token string) MonitorOption {
	return func(m *WebSocketMonitor) { m.token = token }
}

func WithPingInterval(d time.Duration) MonitorOption {
	return func(m *WebSocketMonitor) {
		if d > 0 {
			m.pingInterval = d
		}
	}
}

func WithRetryDelay(d time.Duration) MonitorOption {
	return func(m *WebSocketMonitor) {
		if d > 0 {
			m.retryDelay = d
		}
	}
}

func WithLogger(logger lms.Logger) MonitorOption {
	return func(m *WebSocketMonitor) { m.logger = logger }
}

// NewWebSocketMonitor creates a monitor for url. It reports offline until
// Run has connected.
func NewWebSocketMonitor(url string, opts ...MonitorOption) *WebSocketMonitor {
	m := &WebSocketMonitor{
		Manual:       NewManual(false),
		url:          url,
		pingInterval: defaultPingInterval,
		retryDelay:   defaultRetryDelay,
		logger:       lms.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run keeps the connection alive until ctx is cancelled.
func (m *WebSocketMonitor) Run(ctx context.Context) error {
	for {
		err := m.session(ctx)
		m.Set(false)
		if ctx.Err() != nil {
			return nil
		}
		m.logger.Debug("connectivity lost", "url", m.url, "error", err, "retry_in", m.retryDelay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(m.retryDelay):
		}
	}
}

// Probe dials once, records the result as the current state and hangs up.
// Short-lived commands use it instead of Run.
func (m *WebSocketMonitor) Probe(ctx context.Context) bool {
	conn, err := m.dial(ctx)
	if err != nil {
		m.logger.Debug("connectivity probe failed", "url", m.url, "error", err)
		m.Set(false)
		return false
	}
	conn.Close(websocket.StatusNormalClosure, "")
	m.Set(true)
	return true
}

func (m *WebSocketMonitor) dial(ctx context.Context) (*websocket.Conn, error) {
	opts := &websocket.DialOptions{}
	if m.token != "" {
		opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + m.token}}
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, m.url, opts)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", m.url, err)
	}
	return conn, nil
}

func (m *WebSocketMonitor) session(ctx context.Context) error {
	conn, err := m.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(1 << 20)

	// Pongs are only processed while a read is in flight.
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()

	m.Set(true)
	m.logger.Debug("connectivity established", "url", m.url)

	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return fmt.Errorf("reading: %w", err)
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, m.pingInterval)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}
