package testutils

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	deadline time.Time
	ch       chan time.Time
}

// FakeClock is a manually driven clock.  Timers only fire when Advance moves
// the current time past their deadline.
type FakeClock struct {
	lock   sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()

	timer := &fakeTimer{
		deadline: c.now.Add(d),
		ch:       make(chan time.Time, 1),
	}
	if d <= 0 {
		timer.ch <- c.now
		return timer.ch
	}

	c.timers = append(c.timers, timer)
	return timer.ch
}

// Advance moves the clock forward and fires every timer that is now due.
func (c *FakeClock) Advance(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.now = c.now.Add(d)

	pending := c.timers[:0]
	for _, timer := range c.timers {
		if timer.deadline.After(c.now) {
			pending = append(pending, timer)
			continue
		}
		timer.ch <- c.now
	}
	c.timers = pending
}

// PendingTimers returns how many timers have not fired yet.  Timers whose
// reader gave up are still counted.
func (c *FakeClock) PendingTimers() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.timers)
}

// WaitForTimers blocks the test until at least n timers are pending.
func (c *FakeClock) WaitForTimers(t testing.TB, n int) {
	require.Eventually(t, func() bool {
		return c.PendingTimers() >= n
	}, 5*time.Second, time.Millisecond, "expected %d pending timers", n)
}
