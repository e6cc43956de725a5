package store

import (
	"fmt"
	"io"
	"log"
	"math/rand"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"shopsim.ai/internal/persistence/snapshot"
	"shopsim.ai/internal/sim/checkout"
	"shopsim.ai/internal/sim/customer"
	"shopsim.ai/internal/sim/layout"
	"shopsim.ai/internal/sim/nav"
	"shopsim.ai/internal/sim/tuning"
)

type Config struct {
	ID     string
	RunID  string
	Seed   int64
	Tuning tuning.Tuning
	Layout layout.Layout
	Logger *log.Logger
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type EventLogger interface {
	WriteEvent(entry EventEntry) error
}

type TickLogEntry struct {
	Tick       uint64        `json:"tick"`
	Open       bool          `json:"open"`
	Arrivals   []string      `json:"arrivals,omitempty"`
	Departures []string      `json:"departures,omitempty"`
	Admin      []AdminAction `json:"admin,omitempty"`
	Customers  int           `json:"customers"`
	Revenue    int64         `json:"revenue"`
	Sales      int           `json:"sales"`
	Digest     string        `json:"digest"`
}

// EventEntry is one customer event as written to the event log and index.
type EventEntry struct {
	Tick    uint64  `json:"tick"`
	AgentID string  `json:"agent_id"`
	Kind    string  `json:"kind"`
	From    string  `json:"from,omitempty"`
	To      string  `json:"to,omitempty"`
	Reason  string  `json:"reason,omitempty"`
	Error   string  `json:"error,omitempty"`
	ItemID  string  `json:"item_id,omitempty"`
	SKU     string  `json:"sku,omitempty"`
	Amount  int64   `json:"amount,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

type customerRec struct {
	m           *customer.Machine
	enteredTick uint64
}

// Store owns the whole simulation: the floor, shelves, counters and every
// customer machine. All of it is touched by the loop goroutine only; other
// goroutines talk to it through request channels.
type Store struct {
	cfg   Config
	log   *log.Logger
	runID string

	tick atomic.Uint64

	clock   *Clock
	grid    *nav.Grid
	shelves *Shelves
	ledger  *Ledger
	floor   *floor
	co      *checkout.Coordinator
	reg     *customer.Registry
	rng     *rand.Rand

	customers    map[string]*customerRec
	nextCustomer uint64

	// Per-tick buffers.
	events     []EventEntry
	arrivals   []string
	departures []string
	applied    []AdminAction

	admin         chan adminReq
	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	observers     map[string]*observerClient
	stop          chan struct{}

	tickLogger   TickLogger
	eventLogger  EventLogger
	snapshotSink chan<- snapshot.StoreV1

	metrics atomic.Value
}

func New(cfg Config) (*Store, error) {
	cfg.Tuning.ApplyDefaults()
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("tuning: %w", err)
	}
	cfg.Layout.Normalize()
	if err := cfg.Layout.Validate(); err != nil {
		return nil, fmt.Errorf("layout: %w", err)
	}
	if strings.TrimSpace(cfg.ID) == "" {
		cfg.ID = "store_1"
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	s := &Store{
		cfg:           cfg,
		log:           logger,
		runID:         cfg.RunID,
		clock:         NewClock(cfg.Tuning),
		shelves:       NewShelves(cfg.Layout),
		ledger:        NewLedger(),
		floor:         newFloor(cfg.Layout),
		reg:           customer.DefaultRegistry(),
		rng:           rand.New(rand.NewSource(cfg.Seed)),
		customers:     map[string]*customerRec{},
		admin:         make(chan adminReq, 64),
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerSub:   make(chan ObserverSubscribeRequest, 16),
		observerLeave: make(chan string, 16),
		observers:     map[string]*observerClient{},
		stop:          make(chan struct{}),
	}

	navCfg := cfg.Layout.NavConfig()
	navCfg.CellsPerTick = 1
	s.grid = nav.NewGrid(navCfg)

	s.co = checkout.New(checkout.Config{
		ScanTicksPerItem: cfg.Tuning.Checkout.ScanTicksPerItem,
		Strict:           cfg.Tuning.Checkout.Strict,
	}, s.routeCheckout, log.New(logger.Writer(), logger.Prefix()+"[checkout] ", logger.Flags()))
	for _, c := range cfg.Layout.Counters {
		if err := s.co.AddCounter(checkout.CounterSpec{ID: c.ID, Pos: c.Pos, Staffed: c.Staffed}); err != nil {
			return nil, fmt.Errorf("counter %s: %w", c.ID, err)
		}
	}
	s.metrics.Store(StoreMetrics{})
	return s, nil
}

func (s *Store) SetTickLogger(l TickLogger)                 { s.tickLogger = l }
func (s *Store) SetEventLogger(l EventLogger)               { s.eventLogger = l }
func (s *Store) SetSnapshotSink(ch chan<- snapshot.StoreV1) { s.snapshotSink = ch }

func (s *Store) ObserverJoin() chan<- ObserverJoinRequest           { return s.observerJoin }
func (s *Store) ObserverSubscribe() chan<- ObserverSubscribeRequest { return s.observerSub }
func (s *Store) ObserverLeave() chan<- string                       { return s.observerLeave }

func (s *Store) ID() string            { return s.cfg.ID }
func (s *Store) RunID() string         { return s.runID }
func (s *Store) Seed() int64           { return s.cfg.Seed }
func (s *Store) Tuning() tuning.Tuning { return s.cfg.Tuning }
func (s *Store) CurrentTick() uint64   { return s.tick.Load() }

// Layout returns a copy of the floor plan.
func (s *Store) Layout() layout.Layout {
	l := s.cfg.Layout
	l.Blocked = append([]nav.Pos(nil), l.Blocked...)
	l.Spots = append([]layout.SpotSpec(nil), l.Spots...)
	l.Counters = append([]layout.CounterSpec(nil), l.Counters...)
	l.Exits = append([]layout.ExitSpec(nil), l.Exits...)
	return l
}

// spawn brings a new customer in through the entrance. budget <= 0 draws one
// from the tuning range.
func (s *Store) spawn(nowTick uint64, budget int64) (string, error) {
	if len(s.customers) >= s.cfg.Tuning.MaxCustomers {
		return "", fmt.Errorf("store full (%d customers)", len(s.customers))
	}
	p := s.cfg.Tuning.Customer
	if budget <= 0 {
		budget = p.BudgetMin
		if p.BudgetMax > p.BudgetMin {
			budget += s.rng.Int63n(p.BudgetMax - p.BudgetMin + 1)
		}
	}
	s.nextCustomer++
	id := fmt.Sprintf("A%06d", s.nextCustomer)
	seed := s.rng.Int63()

	s.grid.Place(id, s.cfg.Layout.Entrance)
	ctx := customer.NewContext(customer.Options{
		ID: id,
		Deps: customer.Deps{
			Nav:      s.grid,
			Clock:    s.clock,
			Items:    s.shelves,
			Sales:    s.ledger,
			Floor:    s.floor,
			Counters: s.co,
		},
		Params: p,
		Step:   s.cfg.Tuning.TickDuration(),
		Budget: budget,
		Seed:   seed,
		Logger: log.New(s.log.Writer(), s.log.Prefix()+"["+id+"] ", s.log.Flags()),
		Hook:   s.onCustomerEvent,
	})
	ctx.Now = nowTick
	m := customer.NewMachine(s.reg, ctx, s.cfg.Tuning.HistoryCap)
	s.customers[id] = &customerRec{m: m, enteredTick: nowTick}
	if err := m.Initialize(customer.StateEntering); err != nil {
		s.removeCustomer(id)
		return "", err
	}
	s.arrivals = append(s.arrivals, id)
	return id, nil
}

func (s *Store) removeCustomer(id string) {
	rec := s.customers[id]
	if rec == nil {
		return
	}
	if s.co.Remove(id) {
		s.log.Printf("customer %s removed while still at a counter", id)
	}
	s.grid.Forget(id)
	if err := rec.m.Shutdown(false); err != nil {
		s.log.Printf("customer %s shutdown: %v", id, err)
	}
	delete(s.customers, id)
	s.departures = append(s.departures, id)
}

func (s *Store) routeCheckout(ev checkout.Event) {
	if rec := s.customers[ev.AgentID]; rec != nil {
		rec.m.HandleCheckout(ev)
	}
}

func (s *Store) routeNav(ev nav.Event) {
	rec := s.customers[ev.AgentID]
	if rec == nil {
		return
	}
	switch ev.Kind {
	case nav.EventArrived:
		rec.m.HandleNavArrived()
	case nav.EventFailed:
		rec.m.HandleNavFailed(ev.Reason)
	}
}

func (s *Store) onCustomerEvent(ev customer.Event) {
	if ev.Kind == customer.EventQueueAbandon {
		s.ledger.noteAbandon()
	}
	e := EventEntry{
		Tick:    ev.Tick,
		AgentID: ev.AgentID,
		Kind:    string(ev.Kind),
		From:    string(ev.From),
		To:      string(ev.To),
		Reason:  ev.Reason,
		Amount:  ev.Amount,
		Score:   ev.Score,
	}
	if ev.Err != nil {
		e.Error = ev.Err.Error()
	}
	if ev.Item != nil {
		e.ItemID = ev.Item.ID
		e.SKU = ev.Item.SKU
	}
	s.events = append(s.events, e)
}

func (s *Store) sortedCustomerIDs() []string {
	ids := make([]string, 0, len(s.customers))
	for id := range s.customers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
