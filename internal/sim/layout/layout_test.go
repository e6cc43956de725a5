package layout

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"shopsim.ai/internal/sim/nav"
)

func TestDefault_IsValidAndConnected(t *testing.T) {
	l := Default()
	if err := l.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	g := nav.NewGrid(l.NavConfig())
	g.Place("probe", l.Entrance)
	var targets []nav.Pos
	for _, s := range l.Spots {
		targets = append(targets, s.Pos)
	}
	for _, c := range l.Counters {
		targets = append(targets, c.Pos)
	}
	for _, e := range l.Exits {
		targets = append(targets, e.Pos)
	}
	for _, p := range targets {
		if !g.Reachable("probe", p) {
			t.Fatalf("(%d,%d) unreachable from entrance", p.X, p.Z)
		}
	}
}

func TestLoad_InlinePositions(t *testing.T) {
	p := filepath.Join(t.TempDir(), "layout.yaml")
	body := `
width: 6
depth: 4
entrance: {x: 0, z: 0}
blocked:
  - {x: 2, z: 1}
spots:
  - id: shelf
    x: 3
    z: 2
    stock:
      - {sku: TEA, price: 4, count: 3}
counters:
  - {id: C1, x: 5, z: 3, staffed: true}
exits:
  - {id: door, x: 0, z: 3}
`
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	l, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if l.Spots[0].Pos != (nav.Pos{X: 3, Z: 2}) || l.Spots[0].Stock[0].Count != 3 {
		t.Fatalf("spot=%+v", l.Spots[0])
	}
	if !l.Counters[0].Staffed || l.Counters[0].Pos != (nav.Pos{X: 5, Z: 3}) {
		t.Fatalf("counter=%+v", l.Counters[0])
	}
	if l.DefaultExit != "door" {
		t.Fatalf("default exit=%q", l.DefaultExit)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Layout)
		want   string
	}{
		{"blocked spot", func(l *Layout) { l.Spots[0].Pos = l.Blocked[0] }, "is blocked"},
		{"out of bounds counter", func(l *Layout) { l.Counters[0].Pos = nav.Pos{X: -1} }, "out of bounds"},
		{"duplicate counter", func(l *Layout) { l.Counters[1].ID = l.Counters[0].ID }, "duplicate counter"},
		{"unknown default exit", func(l *Layout) { l.DefaultExit = "roof" }, "default_exit"},
		{"no counters", func(l *Layout) { l.Counters = nil }, "at least one"},
		{"bad stock", func(l *Layout) { l.Spots[0].Stock[0].Price = 0 }, "bad stock"},
	}
	for _, tc := range cases {
		l := Default()
		tc.mutate(&l)
		err := l.Validate()
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: got %v, want error containing %q", tc.name, err, tc.want)
		}
	}
}

func TestLoad_EmptyPathUsesDefault(t *testing.T) {
	l, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(l.Counters) != 3 {
		t.Fatalf("counters=%d", len(l.Counters))
	}
}

func TestLoad_ShippedLayoutMatchesDefault(t *testing.T) {
	l, err := Load(filepath.Join("..", "..", "..", "configs", "layout.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(l, Default()) {
		t.Fatalf("configs/layout.yaml drifted from Default():\n%+v\n%+v", l, Default())
	}
}
