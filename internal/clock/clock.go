// Package clock abstracts time so timer-driven code can be tested
// deterministically.
package clock

import (
	"sort"
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	// Stop reports whether the call prevented the timer from firing.
	Stop() bool
}

type RealClock struct{}

func NewRealClock() *RealClock {
	return &RealClock{}
}

func (c *RealClock) Now() time.Time {
	return time.Now()
}

func (c *RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// StubClock only moves when told to. Timers fire synchronously inside
// Advance, on the caller's goroutine, in deadline order.
type StubClock struct {
	lock   sync.Mutex
	now    time.Time
	seq    int
	timers []*stubTimer
}

func NewStubClock() *StubClock {
	return &StubClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *StubClock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *StubClock) AfterFunc(d time.Duration, f func()) Timer {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.seq++
	t := &stubTimer{clock: c, at: c.now.Add(d), seq: c.seq, fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Pending returns the number of armed timers.
func (c *StubClock) Pending() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.timers)
}

// Advance moves the clock forward by d, firing every timer that comes due.
// Timers armed by a callback fire too if they fall inside the window.
func (c *StubClock) Advance(d time.Duration) {
	c.lock.Lock()
	end := c.now.Add(d)
	c.lock.Unlock()

	for {
		c.lock.Lock()
		sort.Slice(c.timers, func(i, j int) bool {
			if c.timers[i].at.Equal(c.timers[j].at) {
				return c.timers[i].seq < c.timers[j].seq
			}
			return c.timers[i].at.Before(c.timers[j].at)
		})
		if len(c.timers) == 0 || c.timers[0].at.After(end) {
			c.now = end
			c.lock.Unlock()
			return
		}
		t := c.timers[0]
		c.timers = c.timers[1:]
		c.now = t.at
		c.lock.Unlock()

		t.fn()
	}
}

func (c *StubClock) remove(t *stubTimer) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	for i, other := range c.timers {
		if other == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return true
		}
	}
	return false
}

type stubTimer struct {
	clock *StubClock
	at    time.Time
	seq   int
	fn    func()
}

func (t *stubTimer) Stop() bool {
	return t.clock.remove(t)
}
