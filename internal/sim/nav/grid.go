package nav

import "sort"

type EventKind string

const (
	EventArrived EventKind = "ARRIVED"
	EventFailed  EventKind = "FAILED"
)

// Event is an out-of-band movement outcome for one agent.
type Event struct {
	AgentID string
	Kind    EventKind
	Reason  string
}

type Config struct {
	Min     Pos
	Max     Pos
	Blocked []Pos

	CellsPerTick int
	// MaxSearchNodes bounds path planning; 0 means the whole floor.
	MaxSearchNodes int
}

type mover struct {
	pos    Pos
	target Pos
	path   []Pos
	moving bool
}

// Grid walks agents along shortest paths over a bounded floor. Moves are
// planned when requested, so RequestMove rejects unreachable destinations up
// front. Cells blocked later force a replan; a failed replan reports
// EventFailed. Grid is not safe for concurrent use; the store loop owns it.
type Grid struct {
	cfg     Config
	blocked map[Pos]bool
	movers  map[string]*mover
}

func NewGrid(cfg Config) *Grid {
	if cfg.CellsPerTick <= 0 {
		cfg.CellsPerTick = 1
	}
	g := &Grid{
		cfg:     cfg,
		blocked: make(map[Pos]bool, len(cfg.Blocked)),
		movers:  map[string]*mover{},
	}
	for _, p := range cfg.Blocked {
		g.blocked[p] = true
	}
	return g
}

func (g *Grid) InBounds(p Pos) bool {
	return p.X >= g.cfg.Min.X && p.X <= g.cfg.Max.X && p.Z >= g.cfg.Min.Z && p.Z <= g.cfg.Max.Z
}

func (g *Grid) Walkable(p Pos) bool {
	return g.InBounds(p) && !g.blocked[p]
}

// Block marks a cell impassable at runtime (spill, display being restocked).
func (g *Grid) Block(p Pos)   { g.blocked[p] = true }
func (g *Grid) Unblock(p Pos) { delete(g.blocked, p) }

// Place puts an agent on the floor, replacing any previous state.
func (g *Grid) Place(agentID string, p Pos) {
	g.movers[agentID] = &mover{pos: p}
}

func (g *Grid) Forget(agentID string) {
	delete(g.movers, agentID)
}

func (g *Grid) Position(agentID string) (Pos, bool) {
	m := g.movers[agentID]
	if m == nil {
		return Pos{}, false
	}
	return m.pos, true
}

// Moving reports whether the agent has an unfinished move.
func (g *Grid) Moving(agentID string) bool {
	m := g.movers[agentID]
	return m != nil && m.moving
}

// Reachable reports whether a path exists from the agent's cell to dest.
func (g *Grid) Reachable(agentID string, dest Pos) bool {
	m := g.movers[agentID]
	if m == nil {
		return false
	}
	_, ok := planPath(m.pos, dest, g.cfg.MaxSearchNodes, g.Walkable)
	return ok
}

// RequestMove starts (or retargets) a move. Unknown agents and unreachable
// destinations are rejected. A move to the current cell is accepted and
// reports arrival on the next Step.
func (g *Grid) RequestMove(agentID string, dest Pos) bool {
	m := g.movers[agentID]
	if m == nil {
		return false
	}
	path, ok := planPath(m.pos, dest, g.cfg.MaxSearchNodes, g.Walkable)
	if !ok {
		return false
	}
	m.target = dest
	m.path = path
	m.moving = true
	return true
}

// Step advances every moving agent and returns the arrivals and failures
// produced this tick, ordered by agent id.
func (g *Grid) Step(nowTick uint64) []Event {
	ids := make([]string, 0, len(g.movers))
	for id, m := range g.movers {
		if m.moving {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var out []Event
	for _, id := range ids {
		if ev, done := g.advance(id, g.movers[id]); done {
			out = append(out, ev)
		}
	}
	return out
}

func (g *Grid) advance(id string, m *mover) (Event, bool) {
	for step := 0; step < g.cfg.CellsPerTick && len(m.path) > 0; step++ {
		next := m.path[0]
		if !g.Walkable(next) {
			path, ok := planPath(m.pos, m.target, g.cfg.MaxSearchNodes, g.Walkable)
			if !ok {
				m.moving = false
				m.path = nil
				return Event{AgentID: id, Kind: EventFailed, Reason: "path blocked"}, true
			}
			m.path = path
			if len(path) == 0 {
				break
			}
			next = path[0]
		}
		m.pos = next
		m.path = m.path[1:]
	}
	if len(m.path) == 0 {
		m.moving = false
		return Event{AgentID: id, Kind: EventArrived}, true
	}
	return Event{}, false
}
