package checkout

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sort"

	"shopsim.ai/internal/sim/nav"
)

var (
	ErrUnknownCounter  = errors.New("unknown counter")
	ErrCounterDisabled = errors.New("counter disabled")
	ErrNotOccupant     = errors.New("not the counter occupant")
	ErrInvariant       = errors.New("checkout invariant violated")
)

type CounterSpec struct {
	ID      string
	Pos     nav.Pos
	Staffed bool
}

type Config struct {
	// ScanTicksPerItem is how long a staffed counter takes per placed item
	// before it confirms payment.
	ScanTicksPerItem int
	// Strict panics on invariant violations instead of correcting them.
	Strict bool
}

// Admission is the outcome of Arrive. Position is 1-based and only set when
// the agent was queued.
type Admission struct {
	Granted  bool
	Position int
}

type counter struct {
	spec     CounterSpec
	enabled  bool
	occupant string
	waitLine []string

	scanning bool
	scanLeft int
	amount   int64
}

// Coordinator owns every counter's occupant slot and FIFO wait line. All
// methods must be called from the store loop goroutine; each call is one
// atomic step with respect to other agents.
type Coordinator struct {
	cfg  Config
	log  *log.Logger
	sink EventSink

	counters map[string]*counter
	order    []string
	// member maps an agent to the single counter it occupies or waits at.
	member map[string]string
}

func New(cfg Config, sink EventSink, logger *log.Logger) *Coordinator {
	if cfg.ScanTicksPerItem <= 0 {
		cfg.ScanTicksPerItem = 1
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Coordinator{
		cfg:      cfg,
		log:      logger,
		sink:     sink,
		counters: map[string]*counter{},
		member:   map[string]string{},
	}
}

// SetSink replaces the event sink. Events are delivered synchronously, after
// the mutation that produced them is complete.
func (co *Coordinator) SetSink(sink EventSink) { co.sink = sink }

func (co *Coordinator) AddCounter(spec CounterSpec) error {
	if spec.ID == "" {
		return fmt.Errorf("counter id must not be empty")
	}
	if _, ok := co.counters[spec.ID]; ok {
		return fmt.Errorf("duplicate counter id: %s", spec.ID)
	}
	co.counters[spec.ID] = &counter{spec: spec, enabled: true}
	co.order = append(co.order, spec.ID)
	sort.Strings(co.order)
	return nil
}

// Arrive admits agent at the counter: it becomes the occupant when the
// counter is free, otherwise it joins the back of the wait line.
func (co *Coordinator) Arrive(agentID, counterID string) (Admission, error) {
	c, err := co.lookup(counterID)
	if err != nil {
		return Admission{}, err
	}
	if !c.enabled {
		return Admission{}, fmt.Errorf("%w: %s", ErrCounterDisabled, counterID)
	}

	if cur, ok := co.member[agentID]; ok {
		if cur == counterID {
			co.violation("agent %s arrived twice at %s", agentID, counterID)
			if c.occupant == agentID {
				return Admission{Granted: true}, nil
			}
			return Admission{Position: indexOf(c.waitLine, agentID) + 1}, nil
		}
		co.violation("agent %s arrived at %s while held by %s", agentID, counterID, cur)
		co.Remove(agentID)
	}

	if c.occupant == "" && len(c.waitLine) == 0 {
		c.occupant = agentID
		co.member[agentID] = counterID
		return Admission{Granted: true}, nil
	}
	c.waitLine = append(c.waitLine, agentID)
	co.member[agentID] = counterID
	return Admission{Position: len(c.waitLine)}, nil
}

// Depart releases the counter held by agent and, in the same step, grants it
// to the head of the wait line.
func (co *Coordinator) Depart(agentID, counterID string) error {
	c, err := co.lookup(counterID)
	if err != nil {
		return err
	}
	if c.occupant != agentID {
		return fmt.Errorf("%w: %s at %s", ErrNotOccupant, agentID, counterID)
	}
	c.occupant = ""
	c.scanning, c.scanLeft, c.amount = false, 0, 0
	delete(co.member, agentID)
	co.emit(co.promote(c)...)
	return nil
}

// Abandon takes agent out of the wait line. Occupants and agents not in the
// line are left alone.
func (co *Coordinator) Abandon(agentID, counterID string) error {
	c, err := co.lookup(counterID)
	if err != nil {
		return err
	}
	i := indexOf(c.waitLine, agentID)
	if i < 0 {
		return nil
	}
	c.waitLine = append(c.waitLine[:i], c.waitLine[i+1:]...)
	delete(co.member, agentID)
	co.emit(positionEvents(c, i)...)
	return nil
}

// Remove drops every reference to agent, releasing or leaving whatever it
// holds. It reports whether anything was held.
func (co *Coordinator) Remove(agentID string) bool {
	counterID, ok := co.member[agentID]
	if !ok {
		return false
	}
	c := co.counters[counterID]
	if c.occupant == agentID {
		_ = co.Depart(agentID, counterID)
	} else {
		_ = co.Abandon(agentID, counterID)
	}
	return true
}

// PlacementComplete tells the counter the occupant has put down all items.
// Staffed counters then scan and confirm payment with EventPaymentComplete;
// unstaffed counters never confirm.
func (co *Coordinator) PlacementComplete(agentID, counterID string, items int, amount int64) error {
	c, err := co.lookup(counterID)
	if err != nil {
		return err
	}
	if c.occupant != agentID {
		return fmt.Errorf("%w: %s at %s", ErrNotOccupant, agentID, counterID)
	}
	if !c.spec.Staffed {
		return nil
	}
	if items < 1 {
		items = 1
	}
	c.scanning = true
	c.scanLeft = items * co.cfg.ScanTicksPerItem
	c.amount = amount
	return nil
}

// Tick advances payment scanning on every counter.
func (co *Coordinator) Tick(nowTick uint64) {
	var evs []Event
	for _, id := range co.order {
		c := co.counters[id]
		if !c.scanning {
			continue
		}
		c.scanLeft--
		if c.scanLeft > 0 {
			continue
		}
		c.scanning = false
		evs = append(evs, Event{Kind: EventPaymentComplete, AgentID: c.occupant, CounterID: id, Amount: c.amount, Tick: nowTick})
	}
	co.emit(evs...)
}

// Disable takes a counter out of service. Its occupant and every queued agent
// receive EventInvalidated and hold nothing afterwards.
func (co *Coordinator) Disable(counterID string) error {
	c, err := co.lookup(counterID)
	if err != nil {
		return err
	}
	if !c.enabled {
		return nil
	}
	c.enabled = false
	var evs []Event
	if c.occupant != "" {
		evs = append(evs, Event{Kind: EventInvalidated, AgentID: c.occupant, CounterID: counterID})
		delete(co.member, c.occupant)
	}
	for _, id := range c.waitLine {
		evs = append(evs, Event{Kind: EventInvalidated, AgentID: id, CounterID: counterID})
		delete(co.member, id)
	}
	c.occupant = ""
	c.waitLine = nil
	c.scanning, c.scanLeft, c.amount = false, 0, 0
	co.emit(evs...)
	return nil
}

func (co *Coordinator) Enable(counterID string) error {
	c, err := co.lookup(counterID)
	if err != nil {
		return err
	}
	c.enabled = true
	return nil
}

// RemoveCounter disables the counter and forgets it.
func (co *Coordinator) RemoveCounter(counterID string) error {
	if err := co.Disable(counterID); err != nil {
		return err
	}
	delete(co.counters, counterID)
	co.order = co.order[:0]
	for id := range co.counters {
		co.order = append(co.order, id)
	}
	sort.Strings(co.order)
	return nil
}

func (co *Coordinator) lookup(counterID string) (*counter, error) {
	c := co.counters[counterID]
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCounter, counterID)
	}
	return c, nil
}

// promote grants a free counter to the head of its wait line and returns the
// events to deliver.
func (co *Coordinator) promote(c *counter) []Event {
	if c.occupant != "" || !c.enabled || len(c.waitLine) == 0 {
		return nil
	}
	head := c.waitLine[0]
	c.waitLine = c.waitLine[1:]
	c.occupant = head
	evs := []Event{{Kind: EventGranted, AgentID: head, CounterID: c.spec.ID}}
	return append(evs, positionEvents(c, 0)...)
}

// positionEvents reports the new position of every waiting agent from index
// from onwards.
func positionEvents(c *counter, from int) []Event {
	var evs []Event
	for i := from; i < len(c.waitLine); i++ {
		evs = append(evs, Event{Kind: EventPositionChanged, AgentID: c.waitLine[i], CounterID: c.spec.ID, Position: i + 1})
	}
	return evs
}

func (co *Coordinator) emit(evs ...Event) {
	if co.sink == nil {
		return
	}
	for _, ev := range evs {
		co.sink(ev)
	}
}

func (co *Coordinator) violation(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if co.cfg.Strict {
		panic(fmt.Errorf("%w: %s", ErrInvariant, msg))
	}
	co.log.Printf("checkout: corrected: %s", msg)
}

func indexOf(xs []string, v string) int {
	for i, x := range xs {
		if x == v {
			return i
		}
	}
	return -1
}
