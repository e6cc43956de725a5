package customer

// Shopping browses spots and picks up items until the customer's time runs
// out, the store is about to close, or it closes.
type Shopping struct{ baseBehavior }

func (Shopping) OnEnter(c *Context) error {
	c.Shop = ShopProgress{
		Target:      c.randDuration(c.Params.ShopMin, c.Params.ShopMax),
		SinceSelect: c.Params.SelectInterval,
	}
	return nil
}

func (Shopping) OnUpdate(c *Context) error {
	if !c.Clock.IsOpen() {
		return c.RequestTransition(StateLeaving, ReasonStoreClosed)
	}

	closing := c.Clock.TimeUntilClose() <= c.Params.HurryThreshold
	if closing && len(c.Selected) > 0 {
		return c.RequestTransition(StatePurchasing, ReasonStoreClosing)
	}
	if closing && !c.Shop.Hurried {
		// One nudge only: halve whatever browsing time is left.
		if left := c.Shop.Target - c.PhaseTimer; left > 0 {
			c.Shop.Target = c.PhaseTimer + left/2
		}
		c.Shop.Hurried = true
	}

	if c.PhaseTimer >= c.Shop.Target {
		if len(c.Selected) > 0 {
			return c.RequestTransition(StatePurchasing, "done shopping")
		}
		return c.RequestTransition(StateLeaving, ReasonNothingSelected)
	}

	if c.Shop.Moving {
		if !c.Arrived {
			return nil
		}
		c.Shop.Moving = false
		c.Arrived = false
		c.Shop.SinceSelect = c.Params.SelectInterval
	}

	if c.Shop.SinceSelect >= c.Params.SelectInterval {
		c.Shop.SinceSelect = 0
		trySelect(c)
		if c.rng.Float64() < c.Params.RetargetChance && pickBrowseSpot(c, c.TargetSpot) {
			c.Shop.Moving = true
			c.Shop.Retargets++
		}
	}
	c.Shop.SinceSelect += c.Step
	return nil
}

func (Shopping) CanTransitionTo(to State, _ *Context) bool {
	return to == StatePurchasing || to == StateLeaving
}

func trySelect(c *Context) {
	if c.SpendingLimitReached || c.TargetSpot == "" {
		return
	}
	if c.rng.Float64() > c.Params.PurchaseProbability {
		return
	}
	it, ok := c.Items.TrySelect(c.TargetSpot, func(it ItemRef) bool {
		return it.Price <= c.Budget && !c.holds(it.ID)
	})
	if !ok {
		return
	}
	c.Budget -= it.Price
	c.Selected = append(c.Selected, it)
	if c.Budget <= 0 {
		c.SpendingLimitReached = true
	}
	c.emit(Event{Kind: EventItemSelected, Item: &it, Amount: it.Price})
}
