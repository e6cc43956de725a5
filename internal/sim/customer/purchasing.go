package customer

import (
	"errors"
	"time"

	"shopsim.ai/internal/sim/checkout"
)

// Purchasing takes the customer through checkout: walk to a counter, wait in
// line, put items down, wait for payment and leave. Every wait is a phase
// re-checked each tick.
type Purchasing struct{ baseBehavior }

func (Purchasing) OnEnter(c *Context) error {
	c.Purchase = PurchaseProgress{Phase: PhaseApproach}
	spec, ok := c.Counters.Select(c.position())
	if !ok {
		return c.RequestTransition(StateLeaving, ReasonNoCounter)
	}
	c.Purchase.CounterID = spec.ID
	if !c.moveTo(spec.ID, spec.Pos) {
		return c.RequestTransition(StateLeaving, ReasonNavigationFailure+": counter "+spec.ID+" unreachable")
	}
	return nil
}

func (Purchasing) OnUpdate(c *Context) error {
	p := &c.Purchase
	switch p.Phase {
	case PhaseApproach:
		if !c.Arrived {
			return nil
		}
		c.Arrived = false
		adm, err := c.Counters.Arrive(c.AgentID, p.CounterID)
		if err != nil {
			if errors.Is(err, checkout.ErrCounterDisabled) || errors.Is(err, checkout.ErrUnknownCounter) {
				return c.RequestTransition(StateLeaving, ReasonCounterInvalid)
			}
			return err
		}
		if adm.Granted {
			c.Queue = QueueState{Status: QueueGranted, CounterID: p.CounterID}
			enterPhase(c, PhaseTransact)
			return transact(c)
		}
		c.Queue = QueueState{Status: QueueWaiting, CounterID: p.CounterID, Position: adm.Position}
		enterPhase(c, PhaseQueue)
		return nil

	case PhaseQueue:
		if c.Queue.Status == QueueGranted {
			p.QueueWaited = phaseElapsed(c)
			enterPhase(c, PhaseTransact)
			return transact(c)
		}
		if c.Queue.Status == QueueNone || p.Abandoned {
			return nil
		}
		if phaseElapsed(c) >= c.Params.MaxQueueWait {
			p.Abandoned = true
			p.QueueWaited = phaseElapsed(c)
			c.Queue = QueueState{}
			if err := c.Counters.Abandon(c.AgentID, p.CounterID); err != nil {
				return err
			}
			c.emit(Event{Kind: EventQueueAbandon, Reason: ReasonQueueTimeout})
			return c.RequestTransition(StateLeaving, ReasonQueueTimeout)
		}
		return nil

	case PhaseTransact:
		return transact(c)
	}
	return nil
}

// OnExit gives back any counter place still held, which only happens when the
// customer is pulled out of checkout early.
func (Purchasing) OnExit(c *Context) error {
	q := c.Queue
	c.Queue = QueueState{}
	switch q.Status {
	case QueueGranted:
		return c.Counters.Depart(c.AgentID, q.CounterID)
	case QueueWaiting:
		return c.Counters.Abandon(c.AgentID, q.CounterID)
	}
	return nil
}

func transact(c *Context) error {
	p := &c.Purchase
	if !p.PlacementSent {
		n := len(c.Selected)
		if c.Params.PlacementDelay > 0 {
			n = int(phaseElapsed(c) / c.Params.PlacementDelay)
		}
		if n > len(c.Selected) {
			n = len(c.Selected)
		}
		p.Placed = n
		if p.Placed < len(c.Selected) {
			return nil
		}
		p.Total = c.selectedTotal()
		p.PlacementSent = true
		p.PaymentStart = c.PhaseTimer
		if err := c.Counters.PlacementComplete(c.AgentID, p.CounterID, len(c.Selected), p.Total); err != nil {
			return err
		}
	}
	if !p.PaymentConfirmed {
		if c.PhaseTimer-p.PaymentStart < c.Params.PaymentTimeout {
			return nil
		}
		p.PaymentTimedOut = true
	}
	enterPhase(c, PhaseDepart)
	return depart(c)
}

func depart(c *Context) error {
	p := &c.Purchase
	if p.Departed {
		return nil
	}
	p.Departed = true
	if p.PaymentConfirmed || c.Params.ChargesOnPaymentTimeout() {
		score := satisfaction(c)
		c.Purchased = append(c.Purchased, c.Selected...)
		c.Selected = nil
		c.Sales.ReportSale(p.Total, score)
		c.emit(Event{Kind: EventSale, Amount: p.Total, Score: score})
	}
	var err error
	if c.Queue.Status == QueueGranted {
		err = c.Counters.Depart(c.AgentID, c.Queue.CounterID)
	}
	c.Queue = QueueState{}
	return errors.Join(err, c.RequestTransition(StateLeaving, ReasonPurchaseComplete))
}

func enterPhase(c *Context, ph Phase) {
	c.Purchase.Phase = ph
	c.Purchase.PhaseStart = c.PhaseTimer
}

func phaseElapsed(c *Context) time.Duration {
	return c.PhaseTimer - c.Purchase.PhaseStart
}

// satisfaction scores a visit in [0,1]: long waits, an unconfirmed payment
// and being hurried all cost something.
func satisfaction(c *Context) float64 {
	score := 1.0
	if c.Params.MaxQueueWait > 0 {
		score -= 0.5 * float64(c.Purchase.QueueWaited) / float64(c.Params.MaxQueueWait)
	}
	if c.Purchase.PaymentTimedOut {
		score -= 0.2
	}
	if c.Shop.Hurried {
		score -= 0.1
	}
	if score < 0 {
		return 0
	}
	return score
}
