package clock

import (
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Callbacks run synchronously on the
// goroutine calling Advance or Step, in deadline order (ties in arming order),
// and never while the fake's lock is held, so a callback may arm new timers.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*fakeTimer
}

type fakeTimer struct {
	c    *Fake
	when time.Time
	seq  uint64
	f    func()
	done bool
}

// NewFake returns a fake clock reading start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	if d < 0 {
		d = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{c: c, when: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Pending returns the number of armed timers that have neither fired nor
// been stopped.
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Advance moves the clock forward by d, firing every timer whose deadline
// falls within the window, including timers armed by callbacks during the
// advance. A chain that keeps rearming with a zero delay never lets Advance
// return; use Step for those.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		t := c.earliestLocked()
		if t == nil || t.when.After(target) {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.fireLocked(t)
		c.mu.Unlock()
		t.f()
	}
}

// Step fires the single earliest armed timer, moving the clock to its
// deadline if that lies in the future. It returns false when nothing is armed.
func (c *Fake) Step() bool {
	c.mu.Lock()
	t := c.earliestLocked()
	if t == nil {
		c.mu.Unlock()
		return false
	}
	c.fireLocked(t)
	c.mu.Unlock()
	t.f()
	return true
}

// NextDeadline returns the deadline of the earliest armed timer.
func (c *Fake) NextDeadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.earliestLocked()
	if t == nil {
		return time.Time{}, false
	}
	return t.when, true
}

func (c *Fake) earliestLocked() *fakeTimer {
	var best *fakeTimer
	for _, t := range c.timers {
		if best == nil || t.when.Before(best.when) || (t.when.Equal(best.when) && t.seq < best.seq) {
			best = t
		}
	}
	return best
}

func (c *Fake) fireLocked(t *fakeTimer) {
	c.removeLocked(t)
	t.done = true
	if t.when.After(c.now) {
		c.now = t.when
	}
}

func (c *Fake) removeLocked(t *fakeTimer) {
	for i, x := range c.timers {
		if x == t {
			last := len(c.timers) - 1
			c.timers[i] = c.timers[last]
			c.timers[last] = nil
			c.timers = c.timers[:last]
			return
		}
	}
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.c.removeLocked(t)
	return true
}
