package customer

// Entering walks a new customer from the door to a browse spot.
type Entering struct{ baseBehavior }

func (Entering) OnEnter(c *Context) error {
	c.Entry = EntryProgress{}
	c.Target = nil
	c.TargetSpot = ""
	c.Entry.Attempts++
	pickBrowseSpot(c, "")
	return nil
}

func (Entering) OnUpdate(c *Context) error {
	if !c.Clock.IsOpen() {
		return c.RequestTransition(StateLeaving, ReasonStoreClosed)
	}
	if c.Target != nil {
		if c.Arrived {
			return c.RequestTransition(StateShopping, "arrived at "+c.TargetSpot)
		}
		return nil
	}
	if c.PhaseTimer >= c.Params.EntryTimeout {
		return c.RequestTransition(StateLeaving, ReasonNoDestination)
	}
	c.Entry.Attempts++
	pickBrowseSpot(c, "")
	return nil
}

func (Entering) CanTransitionTo(to State, _ *Context) bool {
	return to == StateShopping || to == StateLeaving
}

// pickBrowseSpot tries the browse spots in random order, skipping `except`,
// and heads for the first one the navigator accepts.
func pickBrowseSpot(c *Context, except string) bool {
	spots := c.Floor.BrowseSpots()
	for _, i := range c.rng.Perm(len(spots)) {
		s := spots[i]
		if s.ID == except {
			continue
		}
		if c.moveTo(s.ID, s.Pos) {
			return true
		}
	}
	return false
}
