package scouter

import (
	"sync"
	"time"
)

// Clock abstracts time so that the scheduler and the stores can be driven by
// a virtual clock in tests.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) (<-chan time.Time, func())
	NewTimer(d time.Duration) (<-chan time.Time, func() bool)
	Since(t time.Time) time.Duration
}

// RealClock implements Clock with the time package.
type RealClock struct{}

// NewClock returns a Clock backed by the wall clock.
func NewClock() *RealClock {
	return &RealClock{}
}

func (c *RealClock) Now() time.Time {
	return time.Now()
}

func (c *RealClock) NewTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

func (c *RealClock) NewTimer(d time.Duration) (<-chan time.Time, func() bool) {
	t := time.NewTimer(d)
	return t.C, t.Stop
}

func (c *RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

type testTimer struct {
	deadline time.Time
	ch       chan time.Time
	stopped  bool
}

type testTicker struct {
	nextTick time.Time
	interval time.Duration
	ch       chan time.Time
	stopped  bool
}

// TestClock is a Clock whose time only moves when Add or Set is called.
// Timers and tickers fire synchronously from within those calls.
type TestClock struct {
	mu      sync.Mutex
	time    time.Time
	timers  []*testTimer
	tickers []*testTicker
}

// NewTestClock returns a TestClock positioned at the given time.
func NewTestClock(t time.Time) *TestClock {
	return &TestClock{time: t}
}

func (c *TestClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.time
}

func (c *TestClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

func (c *TestClock) NewTimer(d time.Duration) (<-chan time.Time, func() bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	timer := &testTimer{deadline: c.time.Add(d), ch: ch}

	// A non-positive duration fires straight away, like time.NewTimer.
	if d <= 0 {
		ch <- c.time
		return ch, func() bool { return false }
	}

	c.timers = append(c.timers, timer)
	stop := func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, t := range c.timers {
			if t == timer {
				c.timers = append(c.timers[:i], c.timers[i+1:]...)
				timer.stopped = true
				return true
			}
		}
		return false
	}
	return ch, stop
}

func (c *TestClock) NewTicker(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		panic("non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ticker := &testTicker{nextTick: c.time.Add(d), interval: d, ch: ch}
	c.tickers = append(c.tickers, ticker)
	stop := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		ticker.stopped = true
	}
	return ch, stop
}

// Add moves the clock forward and fires every timer and ticker that expired.
func (c *TestClock) Add(d time.Duration) {
	c.Set(c.Now().Add(d))
}

// Set moves the clock to t. Moving backwards does not fire anything.
func (c *TestClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.Before(c.time) {
		c.time = t
		return
	}
	c.time = t

	remaining := c.timers[:0]
	for _, timer := range c.timers {
		if timer.deadline.After(c.time) {
			remaining = append(remaining, timer)
			continue
		}
		select {
		case timer.ch <- c.time:
		default:
		}
	}
	c.timers = remaining

	for _, ticker := range c.tickers {
		if ticker.stopped || ticker.nextTick.After(c.time) {
			continue
		}
		select {
		case ticker.ch <- c.time:
		default:
		}
		for !ticker.nextTick.After(c.time) {
			ticker.nextTick = ticker.nextTick.Add(ticker.interval)
		}
	}
}

// NumTimers returns the number of armed timers.
func (c *TestClock) NumTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}
