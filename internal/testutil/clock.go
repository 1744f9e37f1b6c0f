// Package testutil provides deterministic clocks for tests.
package testutil

import (
	"sync"
	"time"
)

// Clock is a controllable wall clock for tests.
//
// Components accept a now func() time.Time; tests inject clock.Now to make
// every stamped timestamp reproducible.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

// NewClock creates a clock frozen at t.
func NewClock(t time.Time) *Clock {
	return &Clock{t: t}
}

// NewSteppingClock creates a clock that advances by step on every Now call,
// so successive timestamps are distinct but still deterministic.
func NewSteppingClock(t time.Time, step time.Duration) *Clock {
	return &Clock{t: t, step: step}
}

// Now returns the current simulated time, advancing it if stepping.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.t
	c.t = c.t.Add(c.step)
	return t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
