// Package testutil provides deterministic test doubles shared across
// packages: a manual wall clock and fixed identities.
package testutil

import (
	"sync"
	"time"
)

// ManualClock is a wall clock that only moves when told to.
//
// Tests pin time so committed timestamps, typing-staleness windows, and
// golden transcripts are exactly reproducible.
//
// Thread-safety: all methods are safe for concurrent use via internal
// mutex, matching the engine's Clock contract.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// Epoch is the default starting instant for manual clocks: a fixed,
// round-number UTC millisecond timestamp.
var Epoch = time.UnixMilli(1700000000000).UTC()

// NewManualClock creates a clock pinned at Epoch.
func NewManualClock() *ManualClock {
	return &ManualClock{now: Epoch}
}

// NewManualClockAt creates a clock pinned at a specific instant.
func NewManualClockAt(at time.Time) *ManualClock {
	return &ManualClock{now: at}
}

// Now returns the pinned instant.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set pins the clock to a specific instant.
func (c *ManualClock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at
}
