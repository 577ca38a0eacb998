// Package connectivity provides lms.Connectivity signals.
package connectivity

import (
	"sync"

	"github.com/tonio1998/snsulms-sub001/internal/lms"
)

// Manual is a connectivity signal driven by explicit Set calls. Embedders
// that already know the network state (and tests) use it directly; the
// websocket monitor uses it for its bookkeeping.
type Manual struct {
	mu        sync.Mutex
	online    bool
	nextID    int
	listeners map[int]func(bool)
}

var _ lms.Connectivity = (*Manual)(nil)

// NewManual creates a signal with the given initial state.
func NewManual(online bool) *Manual {
	return &Manual{online: online, listeners: make(map[int]func(bool))}
}

func (m *Manual) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set changes the state. Listeners are called synchronously, outside the
// lock, and only when the state actually changes.
func (m *Manual) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	fns := make([]func(bool), 0, len(m.listeners))
	for id := 0; id < m.nextID; id++ {
		if fn, ok := m.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

func (m *Manual) Subscribe(fn func(online bool)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.listeners, id)
		})
	}
}
