package store

import (
	"fmt"

	"shopsim.ai/internal/sim/customer"
	"shopsim.ai/internal/sim/layout"
)

type shelf struct {
	id    string
	items []customer.ItemRef
}

// Shelves holds the stocked items of every browse spot. Items are unique
// instances; a taken item exists only in one customer's basket until it is
// bought or put back.
type Shelves struct {
	spots map[string]*shelf
	order []string

	nextItem uint64
	returned int
}

func NewShelves(l layout.Layout) *Shelves {
	s := &Shelves{spots: map[string]*shelf{}}
	for _, sp := range l.Spots {
		sh := &shelf{id: sp.ID}
		for _, st := range sp.Stock {
			for i := 0; i < st.Count; i++ {
				s.nextItem++
				sh.items = append(sh.items, customer.ItemRef{
					ID:    fmt.Sprintf("I%06d", s.nextItem),
					SKU:   st.SKU,
					Spot:  sp.ID,
					Price: st.Price,
				})
			}
		}
		s.spots[sp.ID] = sh
		s.order = append(s.order, sp.ID)
	}
	return s
}

// TrySelect offers the items at spot to accept in shelf order and takes the
// first accepted one.
func (s *Shelves) TrySelect(spot string, accept func(customer.ItemRef) bool) (customer.ItemRef, bool) {
	sh := s.spots[spot]
	if sh == nil || accept == nil {
		return customer.ItemRef{}, false
	}
	for i, it := range sh.items {
		if !accept(it) {
			continue
		}
		sh.items = append(sh.items[:i], sh.items[i+1:]...)
		return it, true
	}
	return customer.ItemRef{}, false
}

// ReleaseUnpurchased puts items back on the spot they came from. Items from
// an unknown spot are dropped.
func (s *Shelves) ReleaseUnpurchased(items []customer.ItemRef) {
	for _, it := range items {
		sh := s.spots[it.Spot]
		if sh == nil {
			continue
		}
		sh.items = append(sh.items, it)
		s.returned++
	}
}

func (s *Shelves) Count(spot string) int {
	if sh := s.spots[spot]; sh != nil {
		return len(sh.items)
	}
	return 0
}

func (s *Shelves) Returned() int { return s.returned }

type SpotStock struct {
	Spot  string
	Items []customer.ItemRef
}

// Stock copies the current shelf contents in layout order.
func (s *Shelves) Stock() []SpotStock {
	out := make([]SpotStock, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, SpotStock{Spot: id, Items: append([]customer.ItemRef(nil), s.spots[id].items...)})
	}
	return out
}
