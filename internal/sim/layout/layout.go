package layout

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"shopsim.ai/internal/sim/nav"
)

// Layout describes the store floor. All positions are standing cells: the
// cell a customer occupies while using the shelf, counter or exit.
type Layout struct {
	Width       int           `yaml:"width"`
	Depth       int           `yaml:"depth"`
	Entrance    nav.Pos       `yaml:"entrance"`
	Blocked     []nav.Pos     `yaml:"blocked,omitempty"`
	Spots       []SpotSpec    `yaml:"spots"`
	Counters    []CounterSpec `yaml:"counters"`
	Exits       []ExitSpec    `yaml:"exits"`
	DefaultExit string        `yaml:"default_exit"`
}

type SpotSpec struct {
	ID    string      `yaml:"id"`
	Pos   nav.Pos     `yaml:",inline"`
	Stock []StockSpec `yaml:"stock"`
}

type StockSpec struct {
	SKU   string `yaml:"sku"`
	Price int64  `yaml:"price"`
	Count int    `yaml:"count"`
}

type CounterSpec struct {
	ID      string  `yaml:"id"`
	Pos     nav.Pos `yaml:",inline"`
	Staffed bool    `yaml:"staffed"`
}

type ExitSpec struct {
	ID  string  `yaml:"id"`
	Pos nav.Pos `yaml:",inline"`
}

func Load(path string) (Layout, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	var l Layout
	b, err := os.ReadFile(path)
	if err != nil {
		return l, err
	}
	if err := yaml.Unmarshal(b, &l); err != nil {
		return l, fmt.Errorf("layout.yaml: %w", err)
	}
	l.Normalize()
	if err := l.Validate(); err != nil {
		return l, fmt.Errorf("layout.yaml: %w", err)
	}
	return l, nil
}

// Default is a small two-aisle store with three counters, one of them
// unstaffed.
func Default() Layout {
	l := Layout{
		Width:    20,
		Depth:    14,
		Entrance: nav.Pos{X: 10, Z: 0},
		Spots: []SpotSpec{
			{ID: "produce", Pos: nav.Pos{X: 4, Z: 3}, Stock: []StockSpec{{SKU: "APPLE", Price: 2, Count: 40}, {SKU: "MELON", Price: 6, Count: 10}}},
			{ID: "bakery", Pos: nav.Pos{X: 4, Z: 7}, Stock: []StockSpec{{SKU: "BREAD", Price: 4, Count: 20}, {SKU: "CAKE", Price: 18, Count: 4}}},
			{ID: "dairy", Pos: nav.Pos{X: 15, Z: 3}, Stock: []StockSpec{{SKU: "MILK", Price: 3, Count: 30}, {SKU: "CHEESE", Price: 9, Count: 12}}},
			{ID: "pantry", Pos: nav.Pos{X: 15, Z: 7}, Stock: []StockSpec{{SKU: "RICE", Price: 5, Count: 25}, {SKU: "COFFEE", Price: 14, Count: 8}}},
			{ID: "household", Pos: nav.Pos{X: 10, Z: 9}, Stock: []StockSpec{{SKU: "SOAP", Price: 3, Count: 20}, {SKU: "LAMP", Price: 45, Count: 2}}},
		},
		Counters: []CounterSpec{
			{ID: "C1", Pos: nav.Pos{X: 3, Z: 12}, Staffed: true},
			{ID: "C2", Pos: nav.Pos{X: 8, Z: 12}, Staffed: true},
			{ID: "C3", Pos: nav.Pos{X: 13, Z: 12}},
		},
		Exits: []ExitSpec{
			{ID: "front", Pos: nav.Pos{X: 10, Z: 0}},
			{ID: "side", Pos: nav.Pos{X: 19, Z: 6}},
		},
		DefaultExit: "front",
	}
	// Shelving: two aisles of four cells on each side, plus the counter desk row.
	for _, z := range []int{4, 8} {
		for x := 2; x <= 6; x++ {
			l.Blocked = append(l.Blocked, nav.Pos{X: x, Z: z})
		}
		for x := 13; x <= 17; x++ {
			l.Blocked = append(l.Blocked, nav.Pos{X: x, Z: z})
		}
	}
	for x := 2; x <= 14; x++ {
		l.Blocked = append(l.Blocked, nav.Pos{X: x, Z: 13})
	}
	return l
}

func (l *Layout) Normalize() {
	if strings.TrimSpace(l.DefaultExit) == "" && len(l.Exits) > 0 {
		l.DefaultExit = l.Exits[0].ID
	}
}

func (l Layout) InBounds(p nav.Pos) bool {
	return p.X >= 0 && p.X < l.Width && p.Z >= 0 && p.Z < l.Depth
}

func (l Layout) Validate() error {
	if l.Width <= 0 || l.Depth <= 0 {
		return fmt.Errorf("width and depth must be > 0")
	}
	blocked := make(map[nav.Pos]bool, len(l.Blocked))
	for _, p := range l.Blocked {
		blocked[p] = true
	}
	standing := func(kind, id string, p nav.Pos) error {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%s id must not be empty", kind)
		}
		if !l.InBounds(p) {
			return fmt.Errorf("%s %s at (%d,%d) is out of bounds", kind, id, p.X, p.Z)
		}
		if blocked[p] {
			return fmt.Errorf("%s %s at (%d,%d) is blocked", kind, id, p.X, p.Z)
		}
		return nil
	}
	if err := standing("entrance", "entrance", l.Entrance); err != nil {
		return err
	}
	if len(l.Spots) == 0 || len(l.Counters) == 0 || len(l.Exits) == 0 {
		return fmt.Errorf("layout needs at least one spot, counter and exit")
	}
	seen := map[string]bool{}
	unique := func(kind, id string) error {
		key := kind + "/" + id
		if seen[key] {
			return fmt.Errorf("duplicate %s id: %s", kind, id)
		}
		seen[key] = true
		return nil
	}
	for _, s := range l.Spots {
		if err := standing("spot", s.ID, s.Pos); err != nil {
			return err
		}
		if err := unique("spot", s.ID); err != nil {
			return err
		}
		for _, st := range s.Stock {
			if st.SKU == "" || st.Price <= 0 || st.Count < 0 {
				return fmt.Errorf("spot %s: bad stock entry %+v", s.ID, st)
			}
		}
	}
	for _, c := range l.Counters {
		if err := standing("counter", c.ID, c.Pos); err != nil {
			return err
		}
		if err := unique("counter", c.ID); err != nil {
			return err
		}
	}
	exitFound := false
	for _, e := range l.Exits {
		if err := standing("exit", e.ID, e.Pos); err != nil {
			return err
		}
		if err := unique("exit", e.ID); err != nil {
			return err
		}
		exitFound = exitFound || e.ID == l.DefaultExit
	}
	if !exitFound {
		return fmt.Errorf("default_exit %q is not a declared exit", l.DefaultExit)
	}
	return nil
}

// Exit returns the exit with the given id.
func (l Layout) Exit(id string) (ExitSpec, bool) {
	for _, e := range l.Exits {
		if e.ID == id {
			return e, true
		}
	}
	return ExitSpec{}, false
}

// NavConfig returns the grid configuration for this floor.
func (l Layout) NavConfig() nav.Config {
	return nav.Config{
		Min:     nav.Pos{},
		Max:     nav.Pos{X: l.Width - 1, Z: l.Depth - 1},
		Blocked: append([]nav.Pos(nil), l.Blocked...),
	}
}
