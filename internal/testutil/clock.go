package testutil

import (
	"sync"
	"time"
)

// DeterministicClock is a manually advanced wall clock for tests.
//
// Interpreters read the host time only to enforce particle TTLs, so a fixed
// clock keeps every turn of a scenario reproducible.
//
// Thread-safety: all methods are safe for concurrent use.
type DeterministicClock struct {
	mu sync.Mutex
	ms int64
}

// NewDeterministicClock creates a clock frozen at ms milliseconds since the epoch.
func NewDeterministicClock(ms int64) *DeterministicClock {
	return &DeterministicClock{ms: ms}
}

// Now returns the current time. It has the signature interpreter.WithClock expects.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.UnixMilli(c.ms)
}

// Millis returns the current time in milliseconds.
func (c *DeterministicClock) Millis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ms
}

// Advance moves the clock forward by d.
func (c *DeterministicClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms += d.Milliseconds()
}
