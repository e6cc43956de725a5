package customer

import (
	"testing"
	"time"

	"shopsim.ai/internal/sim/checkout"
	"shopsim.ai/internal/sim/nav"
	"shopsim.ai/internal/sim/tuning"
)

type fakeNav struct {
	pos    map[string]nav.Pos
	reject map[nav.Pos]bool
	last   map[string]nav.Pos
}

func (n *fakeNav) RequestMove(agentID string, dest nav.Pos) bool {
	if n.reject[dest] {
		return false
	}
	n.last[agentID] = dest
	return true
}

func (n *fakeNav) Position(agentID string) (nav.Pos, bool) {
	return n.pos[agentID], true
}

type fakeClock struct {
	open  bool
	until time.Duration
}

func (c *fakeClock) IsOpen() bool                  { return c.open }
func (c *fakeClock) TimeUntilClose() time.Duration { return c.until }

type fakeShelves struct {
	stock    map[string][]ItemRef
	released []ItemRef
}

func (s *fakeShelves) TrySelect(spot string, accept func(ItemRef) bool) (ItemRef, bool) {
	items := s.stock[spot]
	for i, it := range items {
		if accept(it) {
			s.stock[spot] = append(items[:i:i], items[i+1:]...)
			return it, true
		}
	}
	return ItemRef{}, false
}

func (s *fakeShelves) ReleaseUnpurchased(items []ItemRef) {
	s.released = append(s.released, items...)
}

type fakeSales struct {
	totals []int64
	scores []float64
}

func (s *fakeSales) ReportSale(total int64, satisfaction float64) {
	s.totals = append(s.totals, total)
	s.scores = append(s.scores, satisfaction)
}

type fakeFloor struct {
	spots []Spot
	exits []Spot
	def   Spot
}

func (f *fakeFloor) BrowseSpots() []Spot { return f.spots }
func (f *fakeFloor) Exits() []Spot       { return f.exits }
func (f *fakeFloor) DefaultExit() Spot   { return f.def }

// countingCounters counts Abandon calls on top of a real coordinator.
type countingCounters struct {
	*checkout.Coordinator
	abandons int
}

func (c *countingCounters) Abandon(agentID, counterID string) error {
	c.abandons++
	return c.Coordinator.Abandon(agentID, counterID)
}

type harness struct {
	nav      *fakeNav
	clock    *fakeClock
	shelves  *fakeShelves
	sales    *fakeSales
	floor    *fakeFloor
	co       *checkout.Coordinator
	counters *countingCounters
	reg      *Registry
	machines map[string]*Machine
	events   []Event
}

func newHarness(t *testing.T, counters ...checkout.CounterSpec) *harness {
	t.Helper()
	h := &harness{
		nav:     &fakeNav{pos: map[string]nav.Pos{}, reject: map[nav.Pos]bool{}, last: map[string]nav.Pos{}},
		clock:   &fakeClock{open: true, until: time.Hour},
		shelves: &fakeShelves{stock: map[string][]ItemRef{}},
		sales:   &fakeSales{},
		floor: &fakeFloor{
			spots: []Spot{{ID: "S1", Pos: nav.Pos{X: 2, Z: 2}}, {ID: "S2", Pos: nav.Pos{X: 8, Z: 2}}},
			exits: []Spot{{ID: "front", Pos: nav.Pos{X: 5, Z: 0}}, {ID: "side", Pos: nav.Pos{X: 0, Z: 5}}},
			def:   Spot{ID: "front", Pos: nav.Pos{X: 5, Z: 0}},
		},
		reg:      DefaultRegistry(),
		machines: map[string]*Machine{},
	}
	h.co = checkout.New(checkout.Config{ScanTicksPerItem: 2}, func(ev checkout.Event) {
		if m := h.machines[ev.AgentID]; m != nil {
			m.HandleCheckout(ev)
		}
	}, nil)
	for _, s := range counters {
		if err := h.co.AddCounter(s); err != nil {
			t.Fatalf("AddCounter: %v", err)
		}
	}
	h.counters = &countingCounters{Coordinator: h.co}
	return h
}

func testParams() tuning.Customer {
	return tuning.Customer{
		BudgetMin:           50,
		BudgetMax:           50,
		EntryTimeout:        3 * time.Second,
		ShopMin:             10 * time.Minute,
		ShopMax:             10 * time.Minute,
		SelectInterval:      time.Second,
		PurchaseProbability: 1,
		MaxQueueWait:        5 * time.Second,
		PaymentTimeout:      3 * time.Second,
	}
}

func (h *harness) spawn(id string, params tuning.Customer, budget int64) *Machine {
	ctx := NewContext(Options{
		ID: id,
		Deps: Deps{
			Nav:      h.nav,
			Clock:    h.clock,
			Items:    h.shelves,
			Sales:    h.sales,
			Floor:    h.floor,
			Counters: h.counters,
		},
		Params: params,
		Step:   time.Second,
		Budget: budget,
		Seed:   1,
		Hook:   func(ev Event) { h.events = append(h.events, ev) },
	})
	m := NewMachine(h.reg, ctx, DefaultHistoryCap)
	h.machines[id] = m
	return m
}

func (h *harness) eventsOf(kind EventKind) []Event {
	var out []Event
	for _, ev := range h.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func mustTick(t *testing.T, m *Machine, tick uint64) {
	t.Helper()
	if err := m.Tick(tick); err != nil {
		t.Fatalf("tick %d: %v", tick, err)
	}
}

func samePending(got []State, want ...State) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// scripted is a behavior whose callbacks are counted and optionally scripted.
type scripted struct {
	enters, updates, exits int
	allow                  []State
	onEnter                func(*Context) error
	onUpdate               func(*Context) error
}

func (s *scripted) OnEnter(c *Context) error {
	s.enters++
	if s.onEnter != nil {
		return s.onEnter(c)
	}
	return nil
}

func (s *scripted) OnUpdate(c *Context) error {
	s.updates++
	if s.onUpdate != nil {
		return s.onUpdate(c)
	}
	return nil
}

func (s *scripted) OnExit(*Context) error {
	s.exits++
	return nil
}

func (s *scripted) CanTransitionTo(to State, _ *Context) bool {
	for _, a := range s.allow {
		if a == to {
			return true
		}
	}
	return false
}
