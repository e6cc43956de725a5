package customer

import (
	"io"
	"log"
	"math/rand"
	"time"

	"shopsim.ai/internal/sim/nav"
	"shopsim.ai/internal/sim/tuning"
)

type QueueStatus string

const (
	QueueNone    QueueStatus = ""
	QueueWaiting QueueStatus = "WAITING"
	QueueGranted QueueStatus = "GRANTED"
)

// QueueState is where the customer stands at checkout. A single value per
// customer means it can wait at, or hold, at most one counter.
type QueueState struct {
	Status    QueueStatus `json:"status,omitempty"`
	CounterID string      `json:"counter_id,omitempty"`
	Position  int         `json:"position,omitempty"`
}

type EntryProgress struct {
	Attempts int
}

type ShopProgress struct {
	Target      time.Duration
	Hurried     bool
	Moving      bool
	SinceSelect time.Duration
	Retargets   int
}

type Phase string

const (
	PhaseApproach Phase = "APPROACH"
	PhaseQueue    Phase = "QUEUE"
	PhaseTransact Phase = "TRANSACT"
	PhaseDepart   Phase = "DEPART"
)

type PurchaseProgress struct {
	Phase      Phase
	CounterID  string
	PhaseStart time.Duration

	QueueWaited      time.Duration
	Abandoned        bool
	Placed           int
	PlacementSent    bool
	PaymentStart     time.Duration
	PaymentConfirmed bool
	PaymentTimedOut  bool
	Total            int64
	Departed         bool
}

type ExitProgress struct {
	ExitID   string
	Attempts int
	InPlace  bool
}

// Context is the mutable data of one customer. Only that customer's machine
// and the state behaviors it runs touch it.
type Context struct {
	Deps

	AgentID string
	Params  tuning.Customer
	// Step is the simulated time one tick covers.
	Step time.Duration
	Now  uint64

	Budget               int64
	SpendingLimitReached bool
	Selected             []ItemRef
	Purchased            []ItemRef

	Target     *nav.Pos
	TargetSpot string
	PhaseTimer time.Duration
	Queue      QueueState

	// Signals delivered between ticks; cleared on every state entry.
	Arrived    bool
	NavFailure string

	Entry    EntryProgress
	Shop     ShopProgress
	Purchase PurchaseProgress
	Exit     ExitProgress

	// Done is set once the customer has left and may be removed.
	Done bool

	rng     *rand.Rand
	log     *log.Logger
	hook    EventHook
	request func(State, string) error
}

type Options struct {
	ID     string
	Deps   Deps
	Params tuning.Customer
	Step   time.Duration
	Budget int64
	Seed   int64
	Logger *log.Logger
	Hook   EventHook
}

func NewContext(o Options) *Context {
	logger := o.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Context{
		Deps:    o.Deps,
		AgentID: o.ID,
		Params:  o.Params,
		Step:    o.Step,
		Budget:  o.Budget,
		rng:     rand.New(rand.NewSource(o.Seed)),
		log:     logger,
		hook:    o.Hook,
	}
}

// RequestTransition asks the owning machine to move to another state once the
// current callback has returned.
func (c *Context) RequestTransition(to State, reason string) error {
	if c.request == nil {
		return ErrMachineInactive
	}
	return c.request(to, reason)
}

func (c *Context) Logf(format string, args ...any) { c.log.Printf(format, args...) }

func (c *Context) emit(ev Event) {
	if c.hook == nil {
		return
	}
	ev.AgentID = c.AgentID
	ev.Tick = c.Now
	c.hook(ev)
}

func (c *Context) holds(itemID string) bool {
	for _, it := range c.Selected {
		if it.ID == itemID {
			return true
		}
	}
	return false
}

func (c *Context) selectedTotal() int64 {
	var total int64
	for _, it := range c.Selected {
		total += it.Price
	}
	return total
}

func (c *Context) position() nav.Pos {
	if c.Nav == nil {
		return nav.Pos{}
	}
	p, _ := c.Nav.Position(c.AgentID)
	return p
}

func (c *Context) moveTo(spotID string, p nav.Pos) bool {
	if c.Nav == nil || !c.Nav.RequestMove(c.AgentID, p) {
		return false
	}
	target := p
	c.Target = &target
	c.TargetSpot = spotID
	c.Arrived = false
	return true
}

// randDuration draws uniformly from [lo, hi].
func (c *Context) randDuration(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(c.rng.Int63n(int64(hi-lo)+1))
}
