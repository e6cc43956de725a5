package store

import (
	"testing"

	"shopsim.ai/internal/sim/customer"
	"shopsim.ai/internal/sim/layout"
	"shopsim.ai/internal/sim/nav"
)

func TestShelves_TrySelectTakesFirstAcceptedAndReleaseRestocks(t *testing.T) {
	s := NewShelves(layout.Layout{Spots: []layout.SpotSpec{{
		ID:  "produce",
		Pos: nav.Pos{X: 1, Z: 1},
		Stock: []layout.StockSpec{
			{SKU: "APPLE", Price: 2, Count: 2},
			{SKU: "MELON", Price: 6, Count: 1},
		},
	}}})
	if s.Count("produce") != 3 {
		t.Fatalf("count=%d", s.Count("produce"))
	}

	it, ok := s.TrySelect("produce", func(it customer.ItemRef) bool { return it.Price > 5 })
	if !ok || it.SKU != "MELON" || it.ID != "I000003" || it.Spot != "produce" {
		t.Fatalf("selected=%+v ok=%v", it, ok)
	}
	if _, ok := s.TrySelect("produce", func(it customer.ItemRef) bool { return it.Price > 5 }); ok {
		t.Fatalf("the only melon was taken twice")
	}
	if _, ok := s.TrySelect("nowhere", func(customer.ItemRef) bool { return true }); ok {
		t.Fatalf("unknown spot yielded an item")
	}

	s.ReleaseUnpurchased([]customer.ItemRef{it, {ID: "X", Spot: "gone"}})
	if s.Count("produce") != 3 || s.Returned() != 1 {
		t.Fatalf("count=%d returned=%d", s.Count("produce"), s.Returned())
	}
	stock := s.Stock()
	if len(stock) != 1 || stock[0].Items[2].ID != "I000003" {
		t.Fatalf("stock=%+v", stock)
	}
}
