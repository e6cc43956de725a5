package store

import (
	"shopsim.ai/internal/sim/customer"
	"shopsim.ai/internal/sim/layout"
)

type floor struct {
	spots []customer.Spot
	exits []customer.Spot
	def   customer.Spot
}

func newFloor(l layout.Layout) *floor {
	f := &floor{}
	for _, s := range l.Spots {
		f.spots = append(f.spots, customer.Spot{ID: s.ID, Pos: s.Pos})
	}
	for _, e := range l.Exits {
		f.exits = append(f.exits, customer.Spot{ID: e.ID, Pos: e.Pos})
	}
	if e, ok := l.Exit(l.DefaultExit); ok {
		f.def = customer.Spot{ID: e.ID, Pos: e.Pos}
	}
	return f
}

func (f *floor) BrowseSpots() []customer.Spot { return f.spots }
func (f *floor) Exits() []customer.Spot       { return f.exits }
func (f *floor) DefaultExit() customer.Spot   { return f.def }
