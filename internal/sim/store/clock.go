package store

import (
	"time"

	"shopsim.ai/internal/sim/tuning"
)

// Clock maps ticks onto store days. It is advanced by the store loop only.
type Clock struct {
	dayTicks  uint64
	openTick  uint64
	closeTick uint64
	step      time.Duration

	now uint64
}

func NewClock(t tuning.Tuning) *Clock {
	return &Clock{
		dayTicks:  uint64(t.DayTicks),
		openTick:  uint64(t.OpenTick),
		closeTick: uint64(t.CloseTick),
		step:      t.TickDuration(),
	}
}

func (c *Clock) Set(nowTick uint64) { c.now = nowTick }
func (c *Clock) Now() uint64        { return c.now }

func (c *Clock) Day() uint64     { return c.now / c.dayTicks }
func (c *Clock) DayTick() uint64 { return c.now % c.dayTicks }

func (c *Clock) IsOpen() bool {
	dt := c.DayTick()
	return dt >= c.openTick && dt < c.closeTick
}

// TimeUntilClose is zero whenever the store is closed.
func (c *Clock) TimeUntilClose() time.Duration {
	if !c.IsOpen() {
		return 0
	}
	return time.Duration(c.closeTick-c.DayTick()) * c.step
}

// TicksSinceClose reports how long the store has been closed, or false while
// it is open.
func (c *Clock) TicksSinceClose() (uint64, bool) {
	dt := c.DayTick()
	switch {
	case dt >= c.closeTick:
		return dt - c.closeTick, true
	case dt < c.openTick:
		return dt + c.dayTicks - c.closeTick, true
	}
	return 0, false
}
