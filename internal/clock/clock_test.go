package clock

import (
	"testing"
	"time"
)

func TestFakeFiresInDeadlineOrder(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	var order []string

	c.AfterFunc(30*time.Millisecond, func() { order = append(order, "c") })
	c.AfterFunc(10*time.Millisecond, func() { order = append(order, "a") })
	c.AfterFunc(20*time.Millisecond, func() { order = append(order, "b") })

	c.Advance(25 * time.Millisecond)
	if got := len(order); got != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("expected [a b], got %v", order)
	}
	c.Advance(5 * time.Millisecond)
	if len(order) != 3 || order[2] != "c" {
		t.Fatalf("expected c to fire at its deadline, got %v", order)
	}
}

func TestFakeStop(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	fired := false
	tm := c.AfterFunc(time.Second, func() { fired = true })

	if !tm.Stop() {
		t.Error("expected Stop to report an active timer")
	}
	if tm.Stop() {
		t.Error("expected second Stop to report inactive")
	}
	c.Advance(2 * time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
	if c.Pending() != 0 {
		t.Errorf("expected no pending timers, got %d", c.Pending())
	}
}

func TestFakeRearmingCallback(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	var ticks []time.Time

	var tick func()
	tick = func() {
		ticks = append(ticks, c.Now())
		c.AfterFunc(time.Second, tick)
	}
	c.AfterFunc(time.Second, tick)

	c.Advance(3500 * time.Millisecond)
	if len(ticks) != 3 {
		t.Fatalf("expected 3 ticks, got %d", len(ticks))
	}
	for i, ts := range ticks {
		want := time.Unix(int64(i+1), 0)
		if !ts.Equal(want) {
			t.Errorf("tick %d at %v, want %v", i, ts, want)
		}
	}
	if !c.Now().Equal(time.Unix(3, 500*int64(time.Millisecond))) {
		t.Errorf("unexpected final time %v", c.Now())
	}
}
