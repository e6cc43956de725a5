package observerproto

// Version is the observer protocol version.
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// HistoryDepth is how many recent transitions to include per customer (0..50).
	HistoryDepth int `json:"history_depth,omitempty"`
	// Optional: only the focused customer carries history.
	FocusAgentID string `json:"focus_agent_id,omitempty"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	StoreID         string      `json:"store_id"`
	RunID           string      `json:"run_id"`
	Tick            uint64      `json:"tick"`
	StoreParams     StoreParams `json:"store_params"`
	Layout          LayoutInfo  `json:"layout"`
}

type StoreParams struct {
	TickRateHz   int   `json:"tick_rate_hz"`
	DayTicks     int   `json:"day_ticks"`
	OpenTick     int   `json:"open_tick"`
	CloseTick    int   `json:"close_tick"`
	MaxCustomers int   `json:"max_customers"`
	Seed         int64 `json:"seed"`
}

type LayoutInfo struct {
	Width    int      `json:"width"`
	Depth    int      `json:"depth"`
	Entrance [2]int   `json:"entrance"`
	Blocked  [][2]int `json:"blocked,omitempty"`
	Spots    []Place  `json:"spots"`
	Counters []Place  `json:"counters"`
	Exits    []Place  `json:"exits"`
}

type Place struct {
	ID      string `json:"id"`
	Pos     [2]int `json:"pos"`
	Staffed bool   `json:"staffed,omitempty"`
}

// Server -> Client. Sent every tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	Open         bool  `json:"open"`
	MSUntilClose int64 `json:"ms_until_close"`

	Customers  []CustomerState `json:"customers"`
	Counters   []CounterState  `json:"counters"`
	Ledger     LedgerState     `json:"ledger"`
	Arrivals   []string        `json:"arrivals,omitempty"`
	Departures []string        `json:"departures,omitempty"`
}

type CustomerState struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Phase  string `json:"phase,omitempty"`
	Pos    [2]int `json:"pos"`
	Budget int64  `json:"budget"`
	Items  int    `json:"items"`

	Queue   *QueueInfo       `json:"queue,omitempty"`
	History []TransitionInfo `json:"history,omitempty"`
}

type QueueInfo struct {
	CounterID string `json:"counter_id"`
	Granted   bool   `json:"granted"`
	Position  int    `json:"position"`
}

type TransitionInfo struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Reason   string `json:"reason"`
	Tick     uint64 `json:"tick"`
	Accepted bool   `json:"accepted"`
}

type CounterState struct {
	ID       string   `json:"id"`
	Enabled  bool     `json:"enabled"`
	Staffed  bool     `json:"staffed"`
	Occupant string   `json:"occupant,omitempty"`
	WaitLine []string `json:"wait_line,omitempty"`
	Scanning bool     `json:"scanning,omitempty"`
}

type LedgerState struct {
	Revenue          int64   `json:"revenue"`
	Sales            int     `json:"sales"`
	MeanSatisfaction float64 `json:"mean_satisfaction"`
	QueueAbandons    int     `json:"queue_abandons"`
	ItemsReturned    int     `json:"items_returned"`
}
