package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func TestWriteReadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots", "120.snap.zst")
	in := StoreV1{
		Header:   Header{Version: Version, StoreID: "store_1", RunID: "run-a", Tick: 120},
		Seed:     7,
		TickRate: 10,
		DayTicks: 600,
		Customers: []CustomerV1{{
			ID: "A000001", State: "PURCHASING", Phase: "QUEUE", Pos: [2]int{3, 11}, Budget: 40,
			Selected:    []ItemV1{{ID: "I000003", SKU: "APPLE", Spot: "produce", Price: 2}},
			QueueStatus: "WAITING", QueueCounter: "C1", QueuePosition: 2,
			History: []TransitionV1{{From: "ENTERING", To: "SHOPPING", Reason: "arrived at produce", Tick: 14, Accepted: true}},
		}},
		Counters: []CounterV1{{ID: "C1", Enabled: true, Staffed: true, Occupant: "A000002", WaitLine: []string{"A000003", "A000001"}}},
		Shelves:  []ShelfV1{{Spot: "produce", Items: []ItemV1{{ID: "I000004", SKU: "APPLE", Spot: "produce", Price: 2}}}},
		Ledger:   LedgerV1{Revenue: 12, Sales: 1, SatisfactionSum: 0.9},
	}
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h != in.Header {
		t.Fatalf("header=%+v", h)
	}

	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if out.Header.Tick != 120 || len(out.Customers) != 1 || out.Customers[0].QueuePosition != 2 {
		t.Fatalf("snapshot=%+v", out)
	}
	if got := out.Counters[0].WaitLine; len(got) != 2 || got[1] != "A000001" {
		t.Fatalf("wait line=%v", got)
	}
	if out.Ledger.Revenue != 12 || out.Shelves[0].Items[0].ID != "I000004" {
		t.Fatalf("ledger=%+v shelves=%+v", out.Ledger, out.Shelves)
	}
}

func TestReadSnapshot_RejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "1.snap.zst")
	if err := WriteSnapshot(path, StoreV1{Header: Header{Version: 99, Tick: 1}}); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected version error")
	}
}

func TestReadSnapshot_Garbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.snap.zst")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	enc, _ := zstd.NewWriter(f)
	_, _ = enc.Write([]byte("{\"version\":1}\nnot gob"))
	_ = enc.Close()
	_ = f.Close()
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected decode error")
	}
}
