package testutil

import (
	"fmt"
	"sync"
	"time"
)

// StubClock is a manually advanced clock for tests. Document timestamps
// and token expiries derive from it, so tests can assert exact values.
// Safe for concurrent use.
type StubClock struct {
	mu   sync.Mutex
	time time.Time
}

// NewStubClock returns a StubClock frozen at t.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{time: t}
}

// FixedClock returns a StubClock frozen at 2024-01-15 10:30:00 UTC, the
// reference instant used across the test suite.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.time
}

// Advance moves the clock forward by d. Use this to cross expiry
// boundaries (pairing codes, access tokens) deterministically.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time = c.time.Add(d)
}

// Set jumps the clock to an absolute instant.
func (c *StubClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time = t
}

// StubIDGenerator hands out "id-1", "id-2", ... so generated document
// IDs are predictable in assertions.
type StubIDGenerator struct {
	mu   sync.Mutex
	next int
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("id-%d", g.next)
}
