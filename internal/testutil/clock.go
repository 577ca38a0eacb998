package testutil

import (
	"fmt"
	"sync"
	"time"
)

// SchoolMorning is the instant FixedClock starts at.
var SchoolMorning = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// StubClock is an lms.Clock that only moves when told to.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewStubClock creates a StubClock reading t.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock at SchoolMorning.
func FixedClock() *StubClock {
	return NewStubClock(SchoolMorning)
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set jumps to t, backwards included.
func (c *StubClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// StubIDGenerator hands out "<prefix>-1", "<prefix>-2", ... and remembers them.
type StubIDGenerator struct {
	Prefix string

	mu     sync.Mutex
	issued []string
}

// NewStubIDGenerator returns a generator with the prefix "id".
func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{Prefix: "id"}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := fmt.Sprintf("%s-%d", g.Prefix, len(g.issued)+1)
	g.issued = append(g.issued, id)
	return id
}

// Issued returns every id handed out so far.
func (g *StubIDGenerator) Issued() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.issued...)
}
