package customer

import (
	"time"

	"shopsim.ai/internal/sim/checkout"
	"shopsim.ai/internal/sim/nav"
)

// Navigator moves a customer across the floor. Arrival and failure come back
// out of band through Machine.HandleNavArrived and Machine.HandleNavFailed.
type Navigator interface {
	RequestMove(agentID string, dest nav.Pos) bool
	Position(agentID string) (nav.Pos, bool)
}

type StoreClock interface {
	IsOpen() bool
	TimeUntilClose() time.Duration
}

type ItemRef struct {
	ID    string `json:"id"`
	SKU   string `json:"sku"`
	Spot  string `json:"spot"`
	Price int64  `json:"price"`
}

// ItemSource hands out stocked items. TrySelect offers candidates at spot to
// accept and removes the first accepted one in the same call, so no other
// customer can see it between the check and the take.
type ItemSource interface {
	TrySelect(spot string, accept func(ItemRef) bool) (ItemRef, bool)
	ReleaseUnpurchased(items []ItemRef)
}

type SaleReporter interface {
	ReportSale(total int64, satisfaction float64)
}

type Spot struct {
	ID  string
	Pos nav.Pos
}

// Floor lists the fixed places a customer can head for.
type Floor interface {
	BrowseSpots() []Spot
	Exits() []Spot
	DefaultExit() Spot
}

// Counters is the part of the checkout coordinator a customer drives.
type Counters interface {
	Select(from nav.Pos) (checkout.CounterSpec, bool)
	Arrive(agentID, counterID string) (checkout.Admission, error)
	Depart(agentID, counterID string) error
	Abandon(agentID, counterID string) error
	PlacementComplete(agentID, counterID string, items int, amount int64) error
}

// Deps are the collaborators a customer talks to. They are injected per
// customer so tests can supply fakes.
type Deps struct {
	Nav      Navigator
	Clock    StoreClock
	Items    ItemSource
	Sales    SaleReporter
	Floor    Floor
	Counters Counters
}
