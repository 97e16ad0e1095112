package clock

import (
	"sync"
	"time"
)

// Clock abstracts the wall clock so session and record timestamps are
// deterministic in tests. Production code injects Real(); tests inject
// Fake().
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) *time.Ticker
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) *time.Ticker { return time.NewTicker(d) }

// FakeClock is a deterministic Clock. Time moves only through Advance,
// or by Step on every Now call when a step is configured.
//
// FakeClock is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

// Fake returns a FakeClock initialized to the given time.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// Now returns the current fake time, then advances by the configured step.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.current
	c.current = c.current.Add(c.step)
	return now
}

// NewTicker returns a real ticker; fake time does not drive tickers.
func (c *FakeClock) NewTicker(d time.Duration) *time.Ticker {
	return time.NewTicker(d)
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// SetStep makes every Now call advance the clock by d afterwards, so
// successive timestamps are strictly increasing.
func (c *FakeClock) SetStep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = d
}
