package store

import (
	"encoding/json"
	"testing"
	"time"

	"shopsim.ai/internal/observerproto"
	"shopsim.ai/internal/persistence/snapshot"
	"shopsim.ai/internal/sim/customer"
	"shopsim.ai/internal/sim/layout"
	"shopsim.ai/internal/sim/tuning"
)

func testTuning() tuning.Tuning {
	return tuning.Tuning{
		TickRateHz:           1,
		DayTicks:             1000,
		OpenTick:             0,
		CloseTick:            200,
		ForceCloseGraceTicks: 50,
		ArrivalEveryTicks:    10,
		MaxCustomers:         5,
		SnapshotEveryTicks:   100,
		Customer: tuning.Customer{
			BudgetMin:           50,
			BudgetMax:           100,
			EntryTimeout:        30 * time.Second,
			ShopMin:             20 * time.Second,
			ShopMax:             40 * time.Second,
			HurryThreshold:      30 * time.Second,
			SelectInterval:      2 * time.Second,
			PurchaseProbability: 1,
			MaxQueueWait:        60 * time.Second,
			PlacementDelay:      time.Second,
			PaymentTimeout:      30 * time.Second,
		},
		Checkout: tuning.Checkout{ScanTicksPerItem: 1},
	}
}

func newTestStore(t *testing.T, seed int64) *Store {
	t.Helper()
	s, err := New(Config{ID: "store_test", Seed: seed, Tuning: testTuning(), Layout: layout.Default()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

type tickRecorder struct{ entries []TickLogEntry }

func (r *tickRecorder) WriteTick(e TickLogEntry) error {
	r.entries = append(r.entries, e)
	return nil
}

type eventRecorder struct{ entries []EventEntry }

func (r *eventRecorder) WriteEvent(e EventEntry) error {
	r.entries = append(r.entries, e)
	return nil
}

func TestStore_FullDayEmptiesAndBalancesTheBooks(t *testing.T) {
	s := newTestStore(t, 42)
	ticks := &tickRecorder{}
	events := &eventRecorder{}
	s.SetTickLogger(ticks)
	s.SetEventLogger(events)

	prices := map[string]int64{}
	for _, st := range s.shelves.Stock() {
		for _, it := range st.Items {
			prices[it.ID] = it.Price
		}
	}

	for i := 0; i < 400; i++ {
		s.StepOnce()
		if err := s.co.CheckInvariants(); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if len(s.customers) > s.cfg.Tuning.MaxCustomers {
			t.Fatalf("tick %d: %d customers", i, len(s.customers))
		}
	}

	if len(s.customers) != 0 {
		t.Fatalf("customers still inside after close: %d", len(s.customers))
	}
	if len(ticks.entries) != 400 || ticks.entries[0].Tick != 0 || ticks.entries[399].Digest == "" {
		t.Fatalf("tick log len=%d", len(ticks.entries))
	}

	// Everything missing from the shelves was sold, at its shelf price.
	onShelf := map[string]bool{}
	for _, st := range s.shelves.Stock() {
		for _, it := range st.Items {
			onShelf[it.ID] = true
		}
	}
	var sold int64
	for id, price := range prices {
		if !onShelf[id] {
			sold += price
		}
	}
	totals := s.ledger.Totals(s.shelves.Returned())
	if totals.Sales == 0 || totals.Revenue != sold {
		t.Fatalf("sales=%d revenue=%d sold=%d", totals.Sales, totals.Revenue, sold)
	}
	if totals.MeanSatisfaction < 0 || totals.MeanSatisfaction > 1 {
		t.Fatalf("mean satisfaction=%v", totals.MeanSatisfaction)
	}

	var transitions, exits, sales int
	for _, e := range events.entries {
		switch customer.EventKind(e.Kind) {
		case customer.EventTransition:
			transitions++
		case customer.EventExited:
			exits++
		case customer.EventSale:
			sales++
		}
	}
	if transitions == 0 || exits != int(s.nextCustomer) || sales != totals.Sales {
		t.Fatalf("transitions=%d exits=%d/%d sales=%d/%d", transitions, exits, s.nextCustomer, sales, totals.Sales)
	}
}

func TestStore_SameSeedSameDigests(t *testing.T) {
	a := newTestStore(t, 7)
	b := newTestStore(t, 7)
	for i := 0; i < 300; i++ {
		ta, da := a.StepOnce()
		tb, db := b.StepOnce()
		if ta != tb || da != db {
			t.Fatalf("tick %d diverged: %s vs %s", ta, da, db)
		}
	}
	if a.RunID() == b.RunID() {
		t.Fatalf("run ids should be unique per store")
	}
}

func TestStore_ForcedCloseMovesEveryoneToLeaving(t *testing.T) {
	s := newTestStore(t, 3)
	// Closed at 200, grace of 50: the force happens on tick 250.
	for i := 0; i <= 250; i++ {
		s.StepOnce()
	}
	for id, rec := range s.customers {
		if rec.m.CurrentState() != customer.StateLeaving && !pendingLeave(rec.m) {
			t.Fatalf("%s still %s after the grace period", id, rec.m.CurrentState())
		}
	}
}

func TestStore_AdminRequests(t *testing.T) {
	s := newTestStore(t, 1)
	snaps := make(chan snapshot.StoreV1, 4)
	s.SetSnapshotSink(snaps)

	resp := make(chan adminResp, 4)
	s.stepInternal([]adminReq{
		{Kind: adminCounter, CounterID: "C1", On: false, Resp: resp},
		{Kind: adminCounter, CounterID: "nope", On: false, Resp: resp},
		{Kind: adminSpawn, Budget: 30, Resp: resp},
		{Kind: adminSnapshot, Resp: resp},
	})
	if r := <-resp; r.Err != "" {
		t.Fatalf("disable C1: %s", r.Err)
	}
	if r := <-resp; r.Err == "" {
		t.Fatalf("unknown counter accepted")
	}
	spawned := <-resp
	if spawned.Err != "" || spawned.AgentID != "A000001" {
		t.Fatalf("spawn=%+v", spawned)
	}
	if r := <-resp; r.Err != "" || r.Tick != 0 {
		t.Fatalf("snapshot=%+v", r)
	}
	snap := <-snaps
	if snap.Header.StoreID != "store_test" || snap.Header.RunID != s.RunID() || len(snap.Counters) != 3 || snap.Counters[0].Enabled {
		t.Fatalf("snapshot header=%+v counters=%+v", snap.Header, snap.Counters)
	}

	m := s.Metrics()
	if m.Tick != 1 || m.CountersEnabled != 2 {
		t.Fatalf("metrics=%+v", m)
	}
	// Tick 0 also brought in the scheduled arrival.
	if m.Customers != 2 || s.customers["A000001"].m.Context().Budget != 30 {
		t.Fatalf("customers=%d", m.Customers)
	}
}

func TestStore_SnapshotCadence(t *testing.T) {
	s := newTestStore(t, 5)
	snaps := make(chan snapshot.StoreV1, 4)
	s.SetSnapshotSink(snaps)
	for i := 0; i <= 100; i++ {
		s.StepOnce()
	}
	select {
	case snap := <-snaps:
		if snap.Header.Tick != 100 || snap.Header.Version != snapshot.Version || len(snap.Shelves) != 5 {
			t.Fatalf("snapshot header=%+v", snap.Header)
		}
		if len(snap.Customers) != len(s.customers) {
			t.Fatalf("customers=%d want %d", len(snap.Customers), len(s.customers))
		}
	default:
		t.Fatalf("no snapshot at tick 100")
	}
	select {
	case snap := <-snaps:
		t.Fatalf("unexpected extra snapshot at %d", snap.Header.Tick)
	default:
	}
}

func TestStore_ObserverReceivesTicks(t *testing.T) {
	s := newTestStore(t, 9)
	out := make(chan []byte, 8)
	s.handleObserverJoin(ObserverJoinRequest{SessionID: "O1", TickOut: out, HistoryDepth: 5})
	for i := 0; i < 20; i++ {
		s.StepOnce()
	}
	if len(out) != 8 {
		t.Fatalf("buffered=%d, want the newest 8", len(out))
	}
	var last observerproto.TickMsg
	for len(out) > 0 {
		if err := json.Unmarshal(<-out, &last); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
	}
	if last.Type != "TICK" || last.Tick != 19 || !last.Open || len(last.Counters) != 3 {
		t.Fatalf("tick msg=%+v", last)
	}
	if len(last.Customers) != len(s.customers) || len(last.Customers) == 0 {
		t.Fatalf("customers=%d", len(last.Customers))
	}
	if last.Customers[0].ID != "A000001" {
		t.Fatalf("customers not sorted: %s", last.Customers[0].ID)
	}

	s.handleObserverLeave("O1")
	if _, ok := <-out; ok {
		t.Fatalf("tick channel should be closed after leave")
	}
}

func TestNew_RejectsBadLayout(t *testing.T) {
	l := layout.Default()
	l.Exits = nil
	if _, err := New(Config{Tuning: testTuning(), Layout: l}); err == nil {
		t.Fatalf("expected layout error")
	}
}

func TestStore_ReplayFromTickLogMatchesDigests(t *testing.T) {
	live := newTestStore(t, 21)
	ticks := &tickRecorder{}
	live.SetTickLogger(ticks)
	for i := 0; i < 120; i++ {
		var reqs []adminReq
		switch i {
		case 5:
			reqs = []adminReq{{Kind: adminSpawn}, {Kind: adminCounter, CounterID: "C9"}}
		case 30:
			reqs = []adminReq{{Kind: adminCounter, CounterID: "C1", On: false}}
		case 60:
			reqs = []adminReq{{Kind: adminBlock, Pos: live.cfg.Layout.Spots[0].Pos, On: true}}
		}
		live.stepInternal(reqs)
	}
	if got := ticks.entries[5].Admin; len(got) != 1 || got[0].Kind != ActionSpawn || got[0].AgentID == "" {
		t.Fatalf("tick 5 admin=%+v", got)
	}

	replay := newTestStore(t, 21)
	for _, e := range ticks.entries {
		tick, digest := replay.StepReplay(e.Admin)
		if tick != e.Tick || digest != e.Digest {
			t.Fatalf("tick %d: digest %s, logged %s", e.Tick, digest, e.Digest)
		}
	}
}
