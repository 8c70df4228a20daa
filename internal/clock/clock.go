// Package clock abstracts the timer primitive used by the poller so tests can
// drive time by hand instead of sleeping.
package clock

import "time"

// Clock arms one-shot callbacks and reports the current time.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f in its own goroutine (real clock) or on the advancing
	// goroutine (fake clock) once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the handle returned by AfterFunc. Stop reports whether the call
// prevented the callback from running.
type Timer interface {
	Stop() bool
}

type realClock struct{}

// Real returns the wall clock backed by package time.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
