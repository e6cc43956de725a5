package checkout

import (
	"fmt"
	"strings"

	"shopsim.ai/internal/sim/nav"
)

type CounterView struct {
	ID       string   `json:"id"`
	Pos      nav.Pos  `json:"pos"`
	Staffed  bool     `json:"staffed"`
	Enabled  bool     `json:"enabled"`
	Occupant string   `json:"occupant,omitempty"`
	WaitLine []string `json:"wait_line,omitempty"`
	Scanning bool     `json:"scanning,omitempty"`
}

// QueueInfo describes where an agent stands. Position is 0 for the occupant.
type QueueInfo struct {
	CounterID string
	Occupant  bool
	Position  int
}

// Counters returns every counter ordered by id.
func (co *Coordinator) Counters() []CounterView {
	out := make([]CounterView, 0, len(co.order))
	for _, id := range co.order {
		out = append(out, co.view(co.counters[id]))
	}
	return out
}

func (co *Coordinator) Counter(id string) (CounterView, bool) {
	c := co.counters[id]
	if c == nil {
		return CounterView{}, false
	}
	return co.view(c), true
}

func (co *Coordinator) view(c *counter) CounterView {
	return CounterView{
		ID:       c.spec.ID,
		Pos:      c.spec.Pos,
		Staffed:  c.spec.Staffed,
		Enabled:  c.enabled,
		Occupant: c.occupant,
		WaitLine: append([]string(nil), c.waitLine...),
		Scanning: c.scanning,
	}
}

func (co *Coordinator) Position(agentID string) (QueueInfo, bool) {
	id, ok := co.member[agentID]
	if !ok {
		return QueueInfo{}, false
	}
	c := co.counters[id]
	if c.occupant == agentID {
		return QueueInfo{CounterID: id, Occupant: true}, true
	}
	return QueueInfo{CounterID: id, Position: indexOf(c.waitLine, agentID) + 1}, true
}

// Select picks the enabled counter with the shortest effective wait, breaking
// ties by walking distance from `from` and then by id.
func (co *Coordinator) Select(from nav.Pos) (CounterSpec, bool) {
	var best *counter
	bestWait, bestDist := 0, 0
	for _, id := range co.order {
		c := co.counters[id]
		if !c.enabled {
			continue
		}
		wait := len(c.waitLine)
		if c.occupant != "" {
			wait++
		}
		dist := nav.DistXZ(from, c.spec.Pos)
		if best == nil || wait < bestWait || (wait == bestWait && dist < bestDist) {
			best, bestWait, bestDist = c, wait, dist
		}
	}
	if best == nil {
		return CounterSpec{}, false
	}
	return best.spec, true
}

// CheckInvariants verifies occupant and wait-line bookkeeping across all
// counters. It never mutates.
func (co *Coordinator) CheckInvariants() error {
	var problems []string
	seen := map[string]string{}
	note := func(agent, where string) {
		if prev, ok := seen[agent]; ok {
			problems = append(problems, fmt.Sprintf("agent %s held at %s and %s", agent, prev, where))
			return
		}
		seen[agent] = where
	}
	for _, id := range co.order {
		c := co.counters[id]
		if !c.enabled && (c.occupant != "" || len(c.waitLine) > 0) {
			problems = append(problems, fmt.Sprintf("disabled counter %s still holds agents", id))
		}
		if c.enabled && c.occupant == "" && len(c.waitLine) > 0 {
			problems = append(problems, fmt.Sprintf("counter %s is free with %d waiting", id, len(c.waitLine)))
		}
		if c.occupant != "" {
			note(c.occupant, id)
		}
		for _, a := range c.waitLine {
			note(a, id)
		}
	}
	for agent, where := range seen {
		if co.member[agent] != where {
			problems = append(problems, fmt.Sprintf("index has %s at %q, counters have it at %s", agent, co.member[agent], where))
		}
	}
	for agent, where := range co.member {
		if _, ok := seen[agent]; !ok {
			problems = append(problems, fmt.Sprintf("index has %s at %s but no counter holds it", agent, where))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvariant, strings.Join(problems, "; "))
}
