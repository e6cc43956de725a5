package customer

import (
	"sort"

	"shopsim.ai/internal/sim/nav"
)

const maxExitAttempts = 3

// Leaving walks the customer out. It is terminal: once here, the customer
// only finishes and is removed.
type Leaving struct{ baseBehavior }

func (Leaving) OnEnter(c *Context) error {
	c.Exit = ExitProgress{}
	headForExit(c)
	return nil
}

func (Leaving) OnUpdate(c *Context) error {
	if c.Done {
		return nil
	}
	if c.Arrived {
		finish(c, "left through "+c.Exit.ExitID)
		return nil
	}
	if c.NavFailure != "" {
		c.Logf("exit route failed: %s", c.NavFailure)
		c.NavFailure = ""
		headForExit(c)
	}
	return nil
}

func (Leaving) CanTransitionTo(State, *Context) bool { return false }

// headForExit tries the exits nearest first, then the default exit. When no
// exit can be reached, or too many routes have failed, the customer is
// removed where it stands.
func headForExit(c *Context) {
	c.Exit.Attempts++
	if c.Exit.Attempts <= maxExitAttempts {
		from := c.position()
		exits := append([]Spot(nil), c.Floor.Exits()...)
		sort.SliceStable(exits, func(i, j int) bool {
			di, dj := nav.DistXZ(from, exits[i].Pos), nav.DistXZ(from, exits[j].Pos)
			if di != dj {
				return di < dj
			}
			return exits[i].ID < exits[j].ID
		})
		for _, e := range exits {
			if c.moveTo(e.ID, e.Pos) {
				c.Exit.ExitID = e.ID
				return
			}
		}
		if d := c.Floor.DefaultExit(); d.ID != "" && c.moveTo(d.ID, d.Pos) {
			c.Exit.ExitID = d.ID
			return
		}
	}
	c.Exit.InPlace = true
	finish(c, "no exit reachable")
}

func finish(c *Context, reason string) {
	if len(c.Selected) > 0 {
		released := c.Selected
		c.Selected = nil
		c.Items.ReleaseUnpurchased(released)
		c.emit(Event{Kind: EventItemsReleased, Reason: reason, Amount: int64(len(released))})
	}
	c.Done = true
	c.emit(Event{Kind: EventExited, Reason: reason})
}
