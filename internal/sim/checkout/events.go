package checkout

type EventKind string

const (
	// EventGranted: the agent now occupies the counter.
	EventGranted EventKind = "GRANTED"
	// EventPositionChanged: the agent moved up the wait line; Position is its
	// new 1-based place.
	EventPositionChanged EventKind = "POSITION_CHANGED"
	// EventPaymentComplete: a staffed counter finished scanning the occupant's
	// items.
	EventPaymentComplete EventKind = "PAYMENT_COMPLETE"
	// EventInvalidated: the counter went out of service; the agent no longer
	// holds or waits for it.
	EventInvalidated EventKind = "INVALIDATED"
)

type Event struct {
	Kind      EventKind
	AgentID   string
	CounterID string
	Position  int
	Amount    int64
	Tick      uint64
}

// EventSink receives coordinator events synchronously on the store loop.
type EventSink func(Event)
