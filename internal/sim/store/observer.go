package store

import (
	"encoding/json"
	"strings"

	"shopsim.ai/internal/observerproto"
	"shopsim.ai/internal/sim/customer"
	"shopsim.ai/internal/sim/nav"
)

const maxObserverHistory = customer.DefaultHistoryCap

// ObserverJoinRequest registers a read-only observer session that receives
// one TICK message per tick on TickOut.
//
// All observer state is maintained by the store loop goroutine.
type ObserverJoinRequest struct {
	SessionID string
	TickOut   chan []byte

	HistoryDepth int
	FocusAgentID string
}

// ObserverSubscribeRequest updates an existing observer session subscription settings.
type ObserverSubscribeRequest struct {
	SessionID string

	HistoryDepth int
	FocusAgentID string
}

type observerClient struct {
	id      string
	tickOut chan []byte

	historyDepth int
	focusAgentID string
}

func clampHistory(n int) int {
	if n < 0 {
		return 0
	}
	if n > maxObserverHistory {
		return maxObserverHistory
	}
	return n
}

func (s *Store) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.TickOut == nil {
		return
	}
	// Replace existing session id if any.
	if old := s.observers[req.SessionID]; old != nil {
		close(old.tickOut)
	}
	s.observers[req.SessionID] = &observerClient{
		id:           req.SessionID,
		tickOut:      req.TickOut,
		historyDepth: clampHistory(req.HistoryDepth),
		focusAgentID: strings.TrimSpace(req.FocusAgentID),
	}
}

func (s *Store) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := s.observers[req.SessionID]
	if c == nil {
		return
	}
	c.historyDepth = clampHistory(req.HistoryDepth)
	c.focusAgentID = strings.TrimSpace(req.FocusAgentID)
}

func (s *Store) handleObserverLeave(sessionID string) {
	c := s.observers[sessionID]
	if c == nil {
		return
	}
	delete(s.observers, sessionID)
	close(c.tickOut)
}

func (s *Store) stepObservers(nowTick uint64) {
	if len(s.observers) == 0 {
		return
	}
	base := s.observerTick(nowTick)
	for _, c := range s.observers {
		msg := base
		if c.historyDepth > 0 {
			msg.Customers = s.withHistory(base.Customers, c.historyDepth, c.focusAgentID)
		}
		b, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		sendLatest(c.tickOut, b)
	}
}

func (s *Store) observerTick(nowTick uint64) observerproto.TickMsg {
	ids := s.sortedCustomerIDs()
	customers := make([]observerproto.CustomerState, 0, len(ids))
	for _, id := range ids {
		m := s.customers[id].m
		c := m.Context()
		pos, _ := s.grid.Position(id)
		cs := observerproto.CustomerState{
			ID:     id,
			State:  string(m.CurrentState()),
			Pos:    posArr(pos),
			Budget: c.Budget,
			Items:  len(c.Selected),
		}
		if m.CurrentState() == customer.StatePurchasing {
			cs.Phase = string(c.Purchase.Phase)
		}
		if q, ok := s.co.Position(id); ok {
			cs.Queue = &observerproto.QueueInfo{CounterID: q.CounterID, Granted: q.Occupant, Position: q.Position}
		}
		customers = append(customers, cs)
	}

	views := s.co.Counters()
	counters := make([]observerproto.CounterState, 0, len(views))
	for _, v := range views {
		counters = append(counters, observerproto.CounterState{
			ID:       v.ID,
			Enabled:  v.Enabled,
			Staffed:  v.Staffed,
			Occupant: v.Occupant,
			WaitLine: v.WaitLine,
			Scanning: v.Scanning,
		})
	}

	t := s.ledger.Totals(s.shelves.Returned())
	return observerproto.TickMsg{
		Type:            "TICK",
		ProtocolVersion: observerproto.Version,
		Tick:            nowTick,
		Open:            s.clock.IsOpen(),
		MSUntilClose:    s.clock.TimeUntilClose().Milliseconds(),
		Customers:       customers,
		Counters:        counters,
		Ledger: observerproto.LedgerState{
			Revenue:          t.Revenue,
			Sales:            t.Sales,
			MeanSatisfaction: t.MeanSatisfaction,
			QueueAbandons:    t.QueueAbandons,
			ItemsReturned:    t.ItemsReturned,
		},
		Arrivals:   append([]string(nil), s.arrivals...),
		Departures: append([]string(nil), s.departures...),
	}
}

// withHistory copies states and attaches recent transitions, to every
// customer or only to focus when set.
func (s *Store) withHistory(states []observerproto.CustomerState, depth int, focus string) []observerproto.CustomerState {
	out := make([]observerproto.CustomerState, len(states))
	copy(out, states)
	for i := range out {
		if focus != "" && out[i].ID != focus {
			continue
		}
		rec := s.customers[out[i].ID]
		if rec == nil {
			continue
		}
		for _, r := range rec.m.RecentHistory(depth) {
			out[i].History = append(out[i].History, observerproto.TransitionInfo{
				From:     string(r.From),
				To:       string(r.To),
				Reason:   r.Reason,
				Tick:     r.AtTick,
				Accepted: r.Accepted,
			})
		}
	}
	return out
}

func posArr(p nav.Pos) [2]int { return [2]int{p.X, p.Z} }
