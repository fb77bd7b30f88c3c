package testutil

import (
	"sync"
	"time"
)

// Clock is a thread-safe, manually advanced time source for tests.
//
// Components that take a now-func (the virtual attribute cache does)
// can be pointed at Clock.Now to make expiry deterministic: the same
// test produces the same hits and misses on every run.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current test time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
