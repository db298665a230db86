// Package timer provides interval gates for periodic robot operations.
package timer

import "time"

// Clock reports the current time. time.Now carries a monotonic reading,
// so comparisons between two Now values are immune to wall-clock jumps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System is the default clock.
var System Clock = systemClock{}

// Timer is an interval gate. It expires once the configured interval has
// elapsed since the last Start and stays expired until Start is called again.
type Timer struct {
	interval time.Duration
	clock    Clock
	armed    time.Time
}

// New creates a timer on the system clock.
func New(interval time.Duration) *Timer {
	return NewWithClock(interval, System)
}

// NewWithClock creates a timer reading time from clock.
func NewWithClock(interval time.Duration, clock Clock) *Timer {
	if clock == nil {
		clock = System
	}
	return &Timer{interval: interval, clock: clock}
}

// Start re-arms the timer from now.
func (t *Timer) Start() {
	t.armed = t.clock.Now()
}

// Expired reports whether the interval has elapsed since the last Start.
// A timer that was never started is expired.
func (t *Timer) Expired() bool {
	if t.armed.IsZero() {
		return true
	}
	return !t.clock.Now().Before(t.armed.Add(t.interval))
}

// Interval returns the configured interval.
func (t *Timer) Interval() time.Duration {
	return t.interval
}
