package customer

import (
	"errors"
	"testing"
	"time"
)

func newScriptedMachine(t *testing.T, states map[State]*scripted) *Machine {
	t.Helper()
	reg := NewRegistry()
	for s, b := range states {
		if err := reg.Register(s, b); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	ctx := NewContext(Options{ID: "A1", Step: time.Second})
	return NewMachine(reg, ctx, 5)
}

func TestInitialize_UnregisteredAndIdempotent(t *testing.T) {
	m := newScriptedMachine(t, map[State]*scripted{})
	if err := m.Initialize(StateEntering); !errors.Is(err, ErrUnregisteredState) {
		t.Fatalf("err=%v", err)
	}

	entering := &scripted{}
	m = newScriptedMachine(t, map[State]*scripted{StateEntering: entering, StateShopping: {}})
	if err := m.Initialize(StateEntering); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := m.Initialize(StateShopping); err != nil {
		t.Fatalf("second Initialize should not fail: %v", err)
	}
	if m.CurrentState() != StateEntering || entering.enters != 1 {
		t.Fatalf("state=%s enters=%d", m.CurrentState(), entering.enters)
	}
}

func TestRequestTransition_QueuedUntilTick(t *testing.T) {
	entering := &scripted{allow: []State{StateShopping, StateLeaving}}
	shopping := &scripted{}
	m := newScriptedMachine(t, map[State]*scripted{StateEntering: entering, StateShopping: shopping})
	if err := m.Initialize(StateEntering); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	cases := []struct {
		to   State
		want error
	}{
		{StateEntering, ErrInvalidTransition},
		{StatePurchasing, ErrUnregisteredState},
		{State("BOGUS"), ErrUnregisteredState},
	}
	for _, tc := range cases {
		if err := m.RequestTransition(tc.to, "test"); !errors.Is(err, tc.want) {
			t.Fatalf("RequestTransition(%s) err=%v want %v", tc.to, err, tc.want)
		}
	}

	if err := m.RequestTransition(StateShopping, "arrived"); err != nil {
		t.Fatalf("RequestTransition: %v", err)
	}
	if m.CurrentState() != StateEntering || !samePending(m.Pending(), StateShopping) {
		t.Fatalf("applied too early: state=%s pending=%v", m.CurrentState(), m.Pending())
	}
	mustTick(t, m, 1)
	if m.CurrentState() != StateShopping || entering.exits != 1 || shopping.enters != 1 || shopping.updates != 1 {
		t.Fatalf("state=%s entering=%+v shopping=%+v", m.CurrentState(), entering, shopping)
	}

	hist := m.RecentHistory(10)
	if len(hist) != 4 {
		t.Fatalf("history=%+v", hist)
	}
	for _, r := range hist[:3] {
		if r.Accepted {
			t.Fatalf("rejection recorded as accepted: %+v", r)
		}
	}
	if last := hist[3]; !last.Accepted || last.From != StateEntering || last.To != StateShopping || last.AtTick != 1 {
		t.Fatalf("last record=%+v", last)
	}
}

func TestTick_DrainsTransitionsQueuedDuringDrain(t *testing.T) {
	states := map[State]*scripted{
		StateEntering: {allow: []State{StateShopping}},
		StateShopping: {allow: []State{StateLeaving}},
		StateLeaving:  {},
	}
	states[StateShopping].onEnter = func(c *Context) error {
		return c.RequestTransition(StateLeaving, "changed mind")
	}
	m := newScriptedMachine(t, states)
	_ = m.Initialize(StateEntering)
	_ = m.RequestTransition(StateShopping, "arrived")
	mustTick(t, m, 1)
	if m.CurrentState() != StateLeaving || len(m.Pending()) != 0 {
		t.Fatalf("state=%s pending=%v", m.CurrentState(), m.Pending())
	}
	if states[StateShopping].updates != 0 || states[StateLeaving].updates != 1 {
		t.Fatalf("update ran under the wrong state")
	}
}

func TestForceTransition_JumpsQueueAndStaleRequestsAreDropped(t *testing.T) {
	h := newHarness(t)
	m := h.spawn("A1", testParams(), 50)
	if err := m.Initialize(StateShopping); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := m.RequestTransition(StatePurchasing, "done shopping"); err != nil {
		t.Fatalf("RequestTransition: %v", err)
	}
	if err := m.ForceTransition(StateLeaving, ReasonStoreClosing); err != nil {
		t.Fatalf("ForceTransition: %v", err)
	}
	if !samePending(m.Pending(), StateLeaving, StatePurchasing) {
		t.Fatalf("pending=%v", m.Pending())
	}
	mustTick(t, m, 7)
	if m.CurrentState() != StateLeaving {
		t.Fatalf("state=%s", m.CurrentState())
	}
	hist := m.RecentHistory(2)
	if hist[0].Reason != "forced: store closing" || !hist[0].Accepted {
		t.Fatalf("forced record=%+v", hist[0])
	}
	if hist[1].To != StatePurchasing || hist[1].Accepted {
		t.Fatalf("stale record=%+v", hist[1])
	}
	if err := m.ForceTransition(StateShopping, "again"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("forced exit from terminal state err=%v", err)
	}
}

func TestLeaving_HasNoOutgoingTransitions(t *testing.T) {
	h := newHarness(t)
	m := h.spawn("A1", testParams(), 50)
	if err := m.Initialize(StateLeaving); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	for _, s := range AllStates() {
		if (Leaving{}).CanTransitionTo(s, m.Context()) {
			t.Fatalf("Leaving allows %s", s)
		}
		if err := m.RequestTransition(s, "test"); err == nil {
			t.Fatalf("RequestTransition(%s) accepted", s)
		}
		if err := m.ForceTransition(s, "test"); err == nil {
			t.Fatalf("ForceTransition(%s) accepted", s)
		}
	}
	if !StateLeaving.IsTerminal() || StateShopping.IsTerminal() {
		t.Fatalf("IsTerminal wrong")
	}
}

func TestHistory_EvictsOldestFirst(t *testing.T) {
	h := NewHistory(DefaultHistoryCap)
	for i := 0; i < 60; i++ {
		h.Add(TransitionRecord{AtTick: uint64(i)})
	}
	if h.Len() != 50 || h.Cap() != 50 {
		t.Fatalf("len=%d cap=%d", h.Len(), h.Cap())
	}
	all := h.Recent(100)
	if len(all) != 50 || all[0].AtTick != 10 || all[49].AtTick != 59 {
		t.Fatalf("oldest=%d newest=%d len=%d", all[0].AtTick, all[49].AtTick, len(all))
	}
	last := h.Recent(3)
	if last[0].AtTick != 57 || last[2].AtTick != 59 {
		t.Fatalf("recent=%+v", last)
	}
	h.Clear()
	if h.Len() != 0 || h.Recent(5) != nil {
		t.Fatalf("history not cleared")
	}
}

func TestMachine_HistoryStaysCapped(t *testing.T) {
	m := newScriptedMachine(t, map[State]*scripted{StateEntering: {}})
	_ = m.Initialize(StateEntering)
	for i := 0; i < 20; i++ {
		_ = m.RequestTransition(StateEntering, "noop")
	}
	if got := len(m.RecentHistory(100)); got != 5 {
		t.Fatalf("history len=%d want 5", got)
	}
}

func TestTick_RecoversCallbackPanics(t *testing.T) {
	boom := &scripted{onUpdate: func(*Context) error { panic("shelf fell over") }}
	m := newScriptedMachine(t, map[State]*scripted{StateShopping: boom})
	var errs []Event
	m.Context().hook = func(ev Event) {
		if ev.Kind == EventError {
			errs = append(errs, ev)
		}
	}
	_ = m.Initialize(StateShopping)
	for tick := uint64(1); tick <= 2; tick++ {
		if err := m.Tick(tick); !errors.Is(err, ErrCallback) {
			t.Fatalf("tick %d err=%v", tick, err)
		}
	}
	if len(errs) != 2 || !m.Active() {
		t.Fatalf("error events=%d active=%v", len(errs), m.Active())
	}
}

func TestShutdown_ExitsOnceAndDeactivates(t *testing.T) {
	shopping := &scripted{}
	m := newScriptedMachine(t, map[State]*scripted{StateShopping: shopping, StateLeaving: {}})
	_ = m.Initialize(StateShopping)
	_ = m.RequestTransition(StateLeaving, "bye")
	if err := m.Shutdown(true); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	_ = m.Shutdown(false)
	if shopping.exits != 1 {
		t.Fatalf("exits=%d", shopping.exits)
	}
	if err := m.Tick(1); !errors.Is(err, ErrMachineInactive) {
		t.Fatalf("Tick err=%v", err)
	}
	if err := m.RequestTransition(StateLeaving, "bye"); !errors.Is(err, ErrMachineInactive) {
		t.Fatalf("RequestTransition err=%v", err)
	}
	if len(m.Pending()) != 0 || len(m.RecentHistory(10)) != 0 {
		t.Fatalf("queue or history survived shutdown")
	}
}
