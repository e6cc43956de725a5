package store

import (
	"testing"
	"time"

	"shopsim.ai/internal/sim/tuning"
)

func TestClock_HoursAndTimeUntilClose(t *testing.T) {
	c := NewClock(tuning.Tuning{TickRateHz: 10, DayTicks: 100, OpenTick: 10, CloseTick: 60})

	cases := []struct {
		tick       uint64
		open       bool
		untilClose time.Duration
		since      uint64
	}{
		{tick: 0, open: false, since: 40},
		{tick: 10, open: true, untilClose: 5 * time.Second},
		{tick: 50, open: true, untilClose: time.Second},
		{tick: 59, open: true, untilClose: 100 * time.Millisecond},
		{tick: 60, open: false, since: 0},
		{tick: 70, open: false, since: 10},
		{tick: 105, open: false, since: 45},
		{tick: 120, open: true, untilClose: 4 * time.Second},
	}
	for _, tc := range cases {
		c.Set(tc.tick)
		if c.IsOpen() != tc.open {
			t.Fatalf("tick %d: open=%v", tc.tick, c.IsOpen())
		}
		if got := c.TimeUntilClose(); got != tc.untilClose {
			t.Fatalf("tick %d: until close=%v want %v", tc.tick, got, tc.untilClose)
		}
		since, closed := c.TicksSinceClose()
		if closed == tc.open || (closed && since != tc.since) {
			t.Fatalf("tick %d: since=%d closed=%v", tc.tick, since, closed)
		}
	}
	c.Set(250)
	if c.Day() != 2 || c.DayTick() != 50 {
		t.Fatalf("day=%d daytick=%d", c.Day(), c.DayTick())
	}
}
