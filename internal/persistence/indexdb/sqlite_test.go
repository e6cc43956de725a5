package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"shopsim.ai/internal/persistence/snapshot"
	"shopsim.ai/internal/sim/store"
	"shopsim.ai/internal/sim/tuning"
)

func openTestIndex(t *testing.T) (*SQLiteIndex, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	return idx, path
}

func openRaw(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteIndex_TicksVisitsEventsAndSales(t *testing.T) {
	idx, path := openTestIndex(t)

	_ = idx.WriteEvent(store.EventEntry{Tick: 5, AgentID: "A000001", Kind: "TRANSITION", From: "ENTERING", To: "SHOPPING", Reason: "arrived at spot"})
	_ = idx.WriteTick(store.TickLogEntry{Tick: 5, Open: true, Arrivals: []string{"A000001"}, Customers: 1, Digest: "d5"})
	_ = idx.WriteEvent(store.EventEntry{Tick: 40, AgentID: "A000001", Kind: "SALE", Amount: 37, Score: 0.8})
	_ = idx.WriteEvent(store.EventEntry{Tick: 40, AgentID: "A000001", Kind: "EXITED", Reason: "left through front"})
	_ = idx.WriteTick(store.TickLogEntry{Tick: 40, Open: true, Departures: []string{"A000001"}, Revenue: 37, Sales: 1, Digest: "d40"})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db := openRaw(t, path)

	var ticks int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ticks`).Scan(&ticks); err != nil || ticks != 2 {
		t.Fatalf("ticks=%d err=%v", ticks, err)
	}

	var entered, left int64
	if err := db.QueryRow(`SELECT entered_tick,left_tick FROM visits WHERE agent_id='A000001'`).Scan(&entered, &left); err != nil {
		t.Fatalf("visit: %v", err)
	}
	if entered != 5 || left != 40 {
		t.Fatalf("visit entered=%d left=%d", entered, left)
	}

	var seq int
	if err := db.QueryRow(`SELECT seq FROM events WHERE tick=40 AND kind='EXITED'`).Scan(&seq); err != nil || seq != 1 {
		t.Fatalf("exit seq=%d err=%v", seq, err)
	}

	var amount int64
	var score float64
	if err := db.QueryRow(`SELECT amount,satisfaction FROM sales WHERE agent_id='A000001'`).Scan(&amount, &score); err != nil {
		t.Fatalf("sale: %v", err)
	}
	if amount != 37 || score != 0.8 {
		t.Fatalf("sale amount=%d score=%v", amount, score)
	}
}

func TestSQLiteIndex_SnapshotsDaysAndMeta(t *testing.T) {
	idx, path := openTestIndex(t)

	if err := idx.UpsertMeta("store_1", "run-1", tuning.Defaults()); err != nil {
		t.Fatalf("UpsertMeta: %v", err)
	}
	idx.RecordSnapshot("/data/snapshots/100.snap.zst", snapshot.StoreV1{
		Header:    snapshot.Header{Version: snapshot.Version, StoreID: "store_1", Tick: 100},
		Seed:      42,
		Customers: []snapshot.CustomerV1{{ID: "A000001"}, {ID: "A000002"}},
		Counters:  []snapshot.CounterV1{{ID: "C1", WaitLine: []string{"A000002"}}},
		Shelves:   []snapshot.ShelfV1{{Spot: "S1", Items: []snapshot.ItemV1{{ID: "I000001"}, {ID: "I000002"}}}},
		Ledger:    snapshot.LedgerV1{Revenue: 99, Sales: 3},
	})
	idx.RecordDay(0, 8639, "/data/archives/day_000/8639.snap.zst", 42)
	idx.RecordDay(1, 17279, "", 42)
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db := openRaw(t, path)

	var customers, waiting, onShelves, sales int
	var revenue int64
	row := db.QueryRow(`SELECT customers,waiting,on_shelves,revenue,sales FROM snapshots WHERE tick=100`)
	if err := row.Scan(&customers, &waiting, &onShelves, &revenue, &sales); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if customers != 2 || waiting != 1 || onShelves != 2 || revenue != 99 || sales != 3 {
		t.Fatalf("snapshot row: %d %d %d %d %d", customers, waiting, onShelves, revenue, sales)
	}

	var days int
	if err := db.QueryRow(`SELECT COUNT(*) FROM days`).Scan(&days); err != nil || days != 1 {
		t.Fatalf("days=%d err=%v", days, err)
	}

	var storeID, digest string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key='store_id'`).Scan(&storeID); err != nil || storeID != "store_1" {
		t.Fatalf("store_id=%q err=%v", storeID, err)
	}
	if err := db.QueryRow(`SELECT value FROM meta WHERE key='tuning_digest'`).Scan(&digest); err != nil || len(digest) != 64 {
		t.Fatalf("tuning_digest=%q err=%v", digest, err)
	}
}

func TestSQLiteIndex_DropsWhenQueueFull(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: store.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(store.TickLogEntry{Tick: 2})
	_ = s.WriteEvent(store.EventEntry{Tick: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.StoreV1{})
	s.RecordDay(0, 2, "/tmp/2.snap.zst", 42)

	st := s.Stats()
	if st.DropTickTotal != 1 || st.DropEventTotal != 1 || st.DropSnapshotTotal != 1 || st.DropDayTotal != 1 {
		t.Fatalf("drops=%+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_NilIsNoop(t *testing.T) {
	var s *SQLiteIndex
	if err := s.WriteTick(store.TickLogEntry{}); err != nil {
		t.Fatalf("WriteTick: %v", err)
	}
	if err := s.WriteEvent(store.EventEntry{}); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	s.RecordSnapshot("x", snapshot.StoreV1{})
	if st := s.Stats(); st != (Stats{}) {
		t.Fatalf("stats=%+v", st)
	}
}
