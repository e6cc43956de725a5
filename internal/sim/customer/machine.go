package customer

import (
	"errors"
	"fmt"

	"shopsim.ai/internal/sim/checkout"
)

type pending struct {
	to     State
	reason string
	forced bool
}

// Machine drives one customer. Transition requests are queued and applied at
// the start of the next Tick, so a state's OnUpdate always finishes under the
// state it started in.
type Machine struct {
	reg  *Registry
	ctx  *Context
	hist *History

	current     State
	initialized bool
	shutdown    bool
	queue       []pending
}

func NewMachine(reg *Registry, ctx *Context, historyCap int) *Machine {
	m := &Machine{
		reg:  reg,
		ctx:  ctx,
		hist: NewHistory(historyCap),
	}
	ctx.request = m.RequestTransition
	return m
}

func (m *Machine) ID() string          { return m.ctx.AgentID }
func (m *Machine) Context() *Context   { return m.ctx }
func (m *Machine) CurrentState() State { return m.current }
func (m *Machine) Active() bool        { return m.initialized && !m.shutdown }

func (m *Machine) RecentHistory(n int) []TransitionRecord { return m.hist.Recent(n) }

// Pending returns the queued target states in the order they will be tried.
func (m *Machine) Pending() []State {
	out := make([]State, 0, len(m.queue))
	for _, p := range m.queue {
		out = append(out, p.to)
	}
	return out
}

// Initialize enters start. A second call while initialized only logs.
func (m *Machine) Initialize(start State) error {
	if m.shutdown {
		return ErrMachineInactive
	}
	if m.initialized {
		m.ctx.Logf("initialize(%s) ignored: already in %s", start, m.current)
		return nil
	}
	b, ok := m.reg.Lookup(start)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnregisteredState, start)
	}
	m.current = start
	m.initialized = true
	m.resetForEntry()
	return m.call(start, "enter", b.OnEnter)
}

// RequestTransition queues a move to `to`. A nil error means the request was
// accepted; it is validated again when applied.
func (m *Machine) RequestTransition(to State, reason string) error {
	if !m.Active() {
		return ErrMachineInactive
	}
	for _, p := range m.queue {
		if p.to == to {
			return nil
		}
	}
	if err := m.validate(to); err != nil {
		m.reject(to, reason, err)
		return err
	}
	m.queue = append(m.queue, pending{to: to, reason: reason})
	return nil
}

// ForceTransition queues a move that skips validation, ahead of any ordinary
// request. Nothing leaves a terminal state, forced or not.
func (m *Machine) ForceTransition(to State, reason string) error {
	if !m.Active() {
		return ErrMachineInactive
	}
	if _, ok := m.reg.Lookup(to); !ok {
		return fmt.Errorf("%w: %s", ErrUnregisteredState, to)
	}
	if m.current.IsTerminal() || to == m.current {
		err := fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.current, to)
		m.reject(to, "forced: "+reason, err)
		return err
	}
	i := 0
	for i < len(m.queue) && m.queue[i].forced {
		i++
	}
	p := pending{to: to, reason: "forced: " + reason, forced: true}
	m.queue = append(m.queue[:i], append([]pending{p}, m.queue[i:]...)...)
	return nil
}

// Tick applies queued transitions, then runs the current state's OnUpdate.
// Callback errors and panics are returned joined; they never escape as panics.
func (m *Machine) Tick(nowTick uint64) error {
	if !m.Active() {
		return ErrMachineInactive
	}
	m.ctx.Now = nowTick

	var errs []error
	// Applying one transition can queue another; keep going until empty.
	for len(m.queue) > 0 && !m.shutdown {
		p := m.queue[0]
		m.queue = m.queue[1:]
		if err := m.apply(p); err != nil {
			errs = append(errs, err)
		}
	}

	m.ctx.PhaseTimer += m.ctx.Step
	if b, ok := m.reg.Lookup(m.current); ok {
		if err := m.call(m.current, "update", b.OnUpdate); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shutdown runs the current state's OnExit once and stops the machine.
func (m *Machine) Shutdown(clearHistory bool) error {
	if m.shutdown {
		return nil
	}
	var err error
	if m.initialized {
		if b, ok := m.reg.Lookup(m.current); ok {
			err = m.call(m.current, "exit", b.OnExit)
		}
	}
	m.shutdown = true
	m.reg = nil
	m.queue = nil
	m.ctx.request = nil
	if clearHistory {
		m.hist.Clear()
	}
	return err
}

func (m *Machine) HandleNavArrived() {
	m.ctx.Arrived = true
}

// HandleNavFailed routes a navigation failure to an emergency exit. A customer
// already leaving handles the failure itself by trying another way out.
func (m *Machine) HandleNavFailed(reason string) {
	m.ctx.NavFailure = reason
	if !m.Active() || m.current == StateLeaving {
		return
	}
	_ = m.RequestTransition(StateLeaving, ReasonNavigationFailure+": "+reason)
}

// HandleCheckout folds a coordinator event into the customer's queue state.
func (m *Machine) HandleCheckout(ev checkout.Event) {
	c := m.ctx
	switch ev.Kind {
	case checkout.EventGranted:
		c.Queue = QueueState{Status: QueueGranted, CounterID: ev.CounterID}
	case checkout.EventPositionChanged:
		if c.Queue.Status == QueueWaiting && c.Queue.CounterID == ev.CounterID {
			c.Queue.Position = ev.Position
		}
	case checkout.EventPaymentComplete:
		if c.Queue.Status == QueueGranted && c.Queue.CounterID == ev.CounterID {
			c.Purchase.PaymentConfirmed = true
		}
	case checkout.EventInvalidated:
		if c.Queue.CounterID != ev.CounterID {
			return
		}
		c.Queue = QueueState{}
		if m.Active() && m.current == StatePurchasing {
			_ = m.RequestTransition(StateLeaving, ReasonCounterInvalid)
		}
	}
}

func (m *Machine) validate(to State) error {
	if _, ok := m.reg.Lookup(to); !ok {
		return fmt.Errorf("%w: %s", ErrUnregisteredState, to)
	}
	if to == m.current {
		return fmt.Errorf("%w: already in %s", ErrInvalidTransition, to)
	}
	b, ok := m.reg.Lookup(m.current)
	if !ok || !m.allows(b, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.current, to)
	}
	return nil
}

func (m *Machine) allows(b Behavior, to State) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.ctx.Logf("validator %s panicked: %v", m.current, r)
			ok = false
		}
	}()
	return b.CanTransitionTo(to, m.ctx)
}

// apply runs exit then enter for one queued transition. Requests made stale
// by an earlier transition are recorded as rejected and dropped.
func (m *Machine) apply(p pending) error {
	if p.forced {
		if m.current.IsTerminal() || p.to == m.current {
			m.reject(p.to, p.reason, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.current, p.to))
			return nil
		}
	} else if err := m.validate(p.to); err != nil {
		m.reject(p.to, p.reason, err)
		return nil
	}

	from := m.current
	var errs []error
	if b, ok := m.reg.Lookup(from); ok {
		if err := m.call(from, "exit", b.OnExit); err != nil {
			errs = append(errs, err)
		}
	}
	m.current = p.to
	m.resetForEntry()
	m.hist.Add(TransitionRecord{From: from, To: p.to, Reason: p.reason, AtTick: m.ctx.Now, Accepted: true})
	m.ctx.emit(Event{Kind: EventTransition, From: from, To: p.to, Reason: p.reason})

	b, _ := m.reg.Lookup(p.to)
	if err := m.call(p.to, "enter", b.OnEnter); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (m *Machine) resetForEntry() {
	m.ctx.PhaseTimer = 0
	m.ctx.Arrived = false
	m.ctx.NavFailure = ""
}

func (m *Machine) reject(to State, reason string, err error) {
	m.hist.Add(TransitionRecord{From: m.current, To: to, Reason: reason, AtTick: m.ctx.Now, Accepted: false})
	m.ctx.Logf("transition %s -> %s rejected (%s): %v", m.current, to, reason, err)
	m.ctx.emit(Event{Kind: EventRejected, From: m.current, To: to, Reason: reason, Err: err})
}

func (m *Machine) call(s State, phase string, fn func(*Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s %s: panic: %v", ErrCallback, s, phase, r)
		}
		if err != nil {
			m.ctx.Logf("%v", err)
			m.ctx.emit(Event{Kind: EventError, From: s, To: s, Reason: phase, Err: err})
		}
	}()
	if e := fn(m.ctx); e != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrCallback, s, phase, e)
	}
	return nil
}
