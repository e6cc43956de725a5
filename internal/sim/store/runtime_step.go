package store

import (
	"time"

	"shopsim.ai/internal/sim/customer"
)

func (s *Store) stepInternal(adminReqs []adminReq) {
	stepStart := time.Now()
	nowTick := s.tick.Load()

	s.events = s.events[:0]
	s.arrivals = s.arrivals[:0]
	s.departures = s.departures[:0]
	s.applied = s.applied[:0]

	s.clock.Set(nowTick)
	s.handleAdminRequests(nowTick, adminReqs)

	// Arrivals while open, at a fixed cadence from the seeded stream.
	if s.clock.IsOpen() && nowTick%uint64(s.cfg.Tuning.ArrivalEveryTicks) == 0 &&
		len(s.customers) < s.cfg.Tuning.MaxCustomers {
		if _, err := s.spawn(nowTick, 0); err != nil {
			s.log.Printf("spawn: %v", err)
		}
	}
	s.forceCloseIfDue()

	// Systems: movement -> counters -> customers. Out-of-band outcomes are
	// routed before the customers tick so they see them this tick.
	for _, ev := range s.grid.Step(nowTick) {
		s.routeNav(ev)
	}
	s.co.Tick(nowTick)

	ids := s.sortedCustomerIDs()
	for _, id := range ids {
		if err := s.customers[id].m.Tick(nowTick); err != nil {
			s.log.Printf("customer %s tick %d: %v", id, nowTick, err)
		}
	}
	for _, id := range ids {
		if rec := s.customers[id]; rec != nil && rec.m.Context().Done {
			s.removeCustomer(id)
		}
	}
	if err := s.co.CheckInvariants(); err != nil {
		if s.cfg.Tuning.Checkout.Strict {
			panic(err)
		}
		s.log.Printf("tick %d: %v", nowTick, err)
	}

	if s.eventLogger != nil {
		for _, e := range s.events {
			_ = s.eventLogger.WriteEvent(e)
		}
	}

	// Observer stream (read-only).
	s.stepObservers(nowTick)

	totals := s.ledger.Totals(s.shelves.Returned())
	if s.tickLogger != nil {
		_ = s.tickLogger.WriteTick(TickLogEntry{
			Tick:       nowTick,
			Open:       s.clock.IsOpen(),
			Arrivals:   append([]string(nil), s.arrivals...),
			Departures: append([]string(nil), s.departures...),
			Admin:      append([]AdminAction(nil), s.applied...),
			Customers:  len(s.customers),
			Revenue:    totals.Revenue,
			Sales:      totals.Sales,
			Digest:     s.stateDigest(nowTick),
		})
	}

	// Snapshot every N ticks, starting after tick 0, and on the last tick of
	// each day so the day can be archived.
	if s.snapshotSink != nil && s.snapshotDue(nowTick) {
		select {
		case s.snapshotSink <- s.ExportSnapshot(nowTick):
		default:
			// Drop snapshot if sink is backed up.
		}
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextTick := s.tick.Add(1)
	s.storeMetrics(nextTick, totals, stepMS)
}

func (s *Store) snapshotDue(nowTick uint64) bool {
	t := s.cfg.Tuning
	if (nowTick+1)%uint64(t.DayTicks) == 0 {
		return true
	}
	return nowTick != 0 && t.SnapshotEveryTicks > 0 && nowTick%uint64(t.SnapshotEveryTicks) == 0
}

// forceCloseIfDue pulls every customer not already leaving out of the store
// once it has been closed for longer than the grace period.
func (s *Store) forceCloseIfDue() {
	since, closed := s.clock.TicksSinceClose()
	if !closed || since < uint64(s.cfg.Tuning.ForceCloseGraceTicks) {
		return
	}
	for _, id := range s.sortedCustomerIDs() {
		m := s.customers[id].m
		if m.CurrentState() == customer.StateLeaving || pendingLeave(m) {
			continue
		}
		if err := m.ForceTransition(customer.StateLeaving, customer.ReasonStoreClosed); err != nil {
			s.log.Printf("force close %s: %v", id, err)
		}
	}
}

func pendingLeave(m *customer.Machine) bool {
	for _, st := range m.Pending() {
		if st == customer.StateLeaving {
			return true
		}
	}
	return false
}
