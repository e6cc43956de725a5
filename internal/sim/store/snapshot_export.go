package store

import (
	"shopsim.ai/internal/persistence/snapshot"
	"shopsim.ai/internal/sim/customer"
)

func (s *Store) ExportSnapshot(nowTick uint64) snapshot.StoreV1 {
	// Snapshot must be called from the store loop goroutine.
	t := s.cfg.Tuning
	snap := snapshot.StoreV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			StoreID: s.cfg.ID,
			RunID:   s.runID,
			Tick:    nowTick,
		},
		Seed:               s.cfg.Seed,
		TickRate:           t.TickRateHz,
		DayTicks:           t.DayTicks,
		OpenTick:           t.OpenTick,
		CloseTick:          t.CloseTick,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
		NextCustomer:       s.nextCustomer,
	}

	for _, id := range s.sortedCustomerIDs() {
		rec := s.customers[id]
		c := rec.m.Context()
		pos, _ := s.grid.Position(id)
		cs := snapshot.CustomerV1{
			ID:          id,
			State:       string(rec.m.CurrentState()),
			Pos:         posArr(pos),
			Budget:      c.Budget,
			EnteredTick: rec.enteredTick,
			Selected:    itemsV1(c.Selected),
			Purchased:   itemsV1(c.Purchased),
		}
		if rec.m.CurrentState() == customer.StatePurchasing {
			cs.Phase = string(c.Purchase.Phase)
		}
		if q, ok := s.co.Position(id); ok {
			cs.QueueCounter = q.CounterID
			cs.QueuePosition = q.Position
			cs.QueueStatus = string(customer.QueueWaiting)
			if q.Occupant {
				cs.QueueStatus = string(customer.QueueGranted)
			}
		}
		for _, r := range rec.m.RecentHistory(t.HistoryCap) {
			cs.History = append(cs.History, snapshot.TransitionV1{
				From:     string(r.From),
				To:       string(r.To),
				Reason:   r.Reason,
				Tick:     r.AtTick,
				Accepted: r.Accepted,
			})
		}
		snap.Customers = append(snap.Customers, cs)
	}

	for _, v := range s.co.Counters() {
		snap.Counters = append(snap.Counters, snapshot.CounterV1{
			ID:       v.ID,
			Pos:      posArr(v.Pos),
			Staffed:  v.Staffed,
			Enabled:  v.Enabled,
			Occupant: v.Occupant,
			WaitLine: v.WaitLine,
			Scanning: v.Scanning,
		})
	}

	for _, st := range s.shelves.Stock() {
		snap.Shelves = append(snap.Shelves, snapshot.ShelfV1{Spot: st.Spot, Items: itemsV1(st.Items)})
	}

	totals := s.ledger.Totals(s.shelves.Returned())
	snap.Ledger = snapshot.LedgerV1{
		Revenue:         totals.Revenue,
		Sales:           totals.Sales,
		SatisfactionSum: totals.SatisfactionSum,
		QueueAbandons:   totals.QueueAbandons,
		ItemsReturned:   totals.ItemsReturned,
	}
	return snap
}

func itemsV1(items []customer.ItemRef) []snapshot.ItemV1 {
	if len(items) == 0 {
		return nil
	}
	out := make([]snapshot.ItemV1, 0, len(items))
	for _, it := range items {
		out = append(out, snapshot.ItemV1{ID: it.ID, SKU: it.SKU, Spot: it.Spot, Price: it.Price})
	}
	return out
}
