package timer

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestTimer_Expired(t *testing.T) {
	intervals := []time.Duration{
		time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		2 * time.Second,
	}

	for _, interval := range intervals {
		clock := &fakeClock{now: time.Unix(1000, 0)}
		tm := NewWithClock(interval, clock)
		tm.Start()

		if tm.Expired() {
			t.Errorf("interval %v: expired immediately after Start", interval)
		}

		clock.Advance(interval - time.Nanosecond)
		if tm.Expired() {
			t.Errorf("interval %v: expired one nanosecond early", interval)
		}

		clock.Advance(time.Nanosecond)
		if !tm.Expired() {
			t.Errorf("interval %v: not expired at exactly the interval", interval)
		}

		// Stays expired until re-armed.
		clock.Advance(10 * interval)
		if !tm.Expired() {
			t.Errorf("interval %v: expiry did not persist", interval)
		}

		tm.Start()
		if tm.Expired() {
			t.Errorf("interval %v: still expired after re-arm", interval)
		}
	}
}

func TestTimer_NeverStartedIsExpired(t *testing.T) {
	tm := NewWithClock(time.Hour, &fakeClock{now: time.Unix(1, 0)})
	if !tm.Expired() {
		t.Error("never-started timer should be expired")
	}
}

func TestTimer_Independent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 1)}
	fast := NewWithClock(10*time.Millisecond, clock)
	slow := NewWithClock(100*time.Millisecond, clock)
	fast.Start()
	slow.Start()

	clock.Advance(20 * time.Millisecond)
	if !fast.Expired() {
		t.Error("fast timer should be expired")
	}
	if slow.Expired() {
		t.Error("slow timer should not be expired")
	}

	fast.Start()
	clock.Advance(80 * time.Millisecond)
	if !slow.Expired() {
		t.Error("slow timer should be expired")
	}
	if fast.Interval() != 10*time.Millisecond {
		t.Errorf("Interval() = %v", fast.Interval())
	}
}

func TestTimer_RealClock(t *testing.T) {
	tm := New(5 * time.Millisecond)
	tm.Start()
	if tm.Expired() {
		t.Fatal("expired immediately")
	}
	time.Sleep(10 * time.Millisecond)
	if !tm.Expired() {
		t.Fatal("not expired after sleeping past the interval")
	}
}
