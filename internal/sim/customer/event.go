package customer

type EventKind string

const (
	EventTransition    EventKind = "TRANSITION"
	EventRejected      EventKind = "REJECTED"
	EventError         EventKind = "ERROR"
	EventItemSelected  EventKind = "ITEM_SELECTED"
	EventQueueAbandon  EventKind = "QUEUE_ABANDONED"
	EventSale          EventKind = "SALE"
	EventItemsReleased EventKind = "ITEMS_RELEASED"
	EventExited        EventKind = "EXITED"
)

// Event is what a customer reports to whoever watches the store: transitions,
// rejections, callback failures and a few domain milestones.
type Event struct {
	AgentID string
	Tick    uint64
	Kind    EventKind
	From    State
	To      State
	Reason  string
	Err     error
	Item    *ItemRef
	Amount  int64
	Score   float64
}

type EventHook func(Event)
