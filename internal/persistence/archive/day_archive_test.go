package archive

import (
	"os"
	"path/filepath"
	"testing"

	"shopsim.ai/internal/persistence/snapshot"
)

func writeDummySnapshot(t *testing.T, storeDir, name string) string {
	t.Helper()
	src := filepath.Join(storeDir, "snapshots", name)
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatalf("mkdir snapshots: %v", err)
	}
	if err := os.WriteFile(src, []byte("dummy"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}
	return src
}

func TestArchiveDaySnapshot_CopiesDayEndSnapshot(t *testing.T) {
	storeDir := filepath.Join(t.TempDir(), "stores", "s1")
	src := writeDummySnapshot(t, storeDir, "5.snap.zst")

	snap := snapshot.StoreV1{
		Header:    snapshot.Header{Version: snapshot.Version, StoreID: "s1", RunID: "r1", Tick: 5},
		Seed:      42,
		DayTicks:  3,
		Ledger:    snapshot.LedgerV1{Revenue: 120, Sales: 4, QueueAbandons: 1},
		Customers: []snapshot.CustomerV1{{ID: "A000009"}},
	}

	day, archivedPath, ok, err := ArchiveDaySnapshot(storeDir, src, snap)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !ok || day != 1 {
		t.Fatalf("archived=%v day=%d, want day 1", ok, day)
	}
	if want := filepath.Join(storeDir, "archives", "day_001", "5.snap.zst"); archivedPath != want {
		t.Fatalf("path=%s want %s", archivedPath, want)
	}
	got, err := os.ReadFile(archivedPath)
	if err != nil || string(got) != "dummy" {
		t.Fatalf("archived content=%q err=%v", got, err)
	}

	meta, err := ReadDayMeta(filepath.Dir(archivedPath))
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if meta.Day != 1 || meta.EndTick != 5 || meta.Revenue != 120 || meta.Sales != 4 || meta.CustomersInside != 1 || meta.RunID != "r1" {
		t.Fatalf("meta=%+v", meta)
	}
}

func TestArchiveDaySnapshot_SkipsMidDay(t *testing.T) {
	storeDir := t.TempDir()
	src := writeDummySnapshot(t, storeDir, "4.snap.zst")

	_, _, ok, err := ArchiveDaySnapshot(storeDir, src, snapshot.StoreV1{
		Header:   snapshot.Header{Tick: 4},
		DayTicks: 3,
	})
	if err != nil || ok {
		t.Fatalf("archived=%v err=%v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(storeDir, "archives")); !os.IsNotExist(err) {
		t.Fatalf("archives dir should not exist: %v", err)
	}
}
