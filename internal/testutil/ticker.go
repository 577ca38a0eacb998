package testutil

import (
	"sync"
	"time"
)

// ManualTicker fires only when Tick is called.
type ManualTicker struct {
	Interval time.Duration

	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *ManualTicker) C() <-chan time.Time { return t.ch }

func (t *ManualTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

// Stopped reports whether Stop has been called.
func (t *ManualTicker) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Tick delivers one tick and blocks until the receiver takes it. It
// returns false without sending if the ticker is stopped or nobody
// receives within a second.
func (t *ManualTicker) Tick(now time.Time) bool {
	if t.Stopped() {
		return false
	}
	select {
	case t.ch <- now:
		return true
	case <-time.After(time.Second):
		return false
	}
}

// ManualTickers hands out ManualTickers and remembers them.
type ManualTickers struct {
	mu      sync.Mutex
	tickers []*ManualTicker
}

// New creates a ManualTicker for interval d.
func (m *ManualTickers) New(d time.Duration) *ManualTicker {
	t := &ManualTicker{Interval: d, ch: make(chan time.Time)}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickers = append(m.tickers, t)
	return t
}

// Count returns how many tickers have been created.
func (m *ManualTickers) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickers)
}

// Last returns the most recently created ticker, or nil.
func (m *ManualTickers) Last() *ManualTicker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tickers) == 0 {
		return nil
	}
	return m.tickers[len(m.tickers)-1]
}

// Eventually polls cond until it holds or the deadline passes.
func Eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
