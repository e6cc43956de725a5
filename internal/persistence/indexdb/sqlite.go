package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"shopsim.ai/internal/persistence/snapshot"
	"shopsim.ai/internal/sim/customer"
	"shopsim.ai/internal/sim/store"
	"shopsim.ai/internal/sim/tuning"
)

// SQLiteIndex is a secondary, queryable copy of the tick and customer logs.
// Writes are queued and applied by one goroutine; when the queue is full the
// row is dropped and counted. The JSONL logs remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropEvent    atomic.Uint64
	dropSnapshot atomic.Uint64
	dropDay      atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqEvent
	reqSnapshot
	reqDay
)

type req struct {
	kind reqKind

	tick     store.TickLogEntry
	event    store.EventEntry
	snapshot snapshotRow
	day      dayRow
}

type snapshotRow struct {
	Tick      uint64
	Path      string
	Seed      int64
	Customers int
	Waiting   int
	OnShelves int
	Revenue   int64
	Sales     int
}

type dayRow struct {
	Day        uint64
	EndTick    uint64
	Path       string
	Seed       int64
	RecordedAt string
}

// Stats reports queue pressure for /metrics.
type Stats struct {
	QueueDepth    int
	QueueCapacity int

	DropTickTotal     uint64
	DropEventTotal    uint64
	DropSnapshotTotal uint64
	DropDayTotal      uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Closing hour can produce a burst of exits and releases in one tick.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			open INTEGER NOT NULL,
			customers INTEGER NOT NULL,
			arrivals INTEGER NOT NULL,
			departures INTEGER NOT NULL,
			revenue INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS visits (
			agent_id TEXT PRIMARY KEY,
			entered_tick INTEGER NOT NULL,
			left_tick INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			from_state TEXT,
			to_state TEXT,
			reason TEXT,
			error TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_agent_tick ON events(agent_id, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_events_kind_tick ON events(kind, tick);`,
		`CREATE TABLE IF NOT EXISTS sales (
			tick INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			amount INTEGER NOT NULL,
			satisfaction REAL NOT NULL,
			PRIMARY KEY (tick, agent_id)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			customers INTEGER NOT NULL,
			waiting INTEGER NOT NULL,
			on_shelves INTEGER NOT NULL,
			revenue INTEGER NOT NULL,
			sales INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS days (
			day INTEGER PRIMARY KEY,
			end_tick INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			snapshot_path TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropEventTotal:    s.dropEvent.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		DropDayTotal:      s.dropDay.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) WriteTick(entry store.TickLogEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqTick, tick: entry}, &s.dropTick)
	return nil
}

func (s *SQLiteIndex) WriteEvent(entry store.EventEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqEvent, event: entry}, &s.dropEvent)
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.StoreV1) {
	if s == nil {
		return
	}
	r := snapshotRow{
		Tick:      snap.Header.Tick,
		Path:      path,
		Seed:      snap.Seed,
		Customers: len(snap.Customers),
		Revenue:   snap.Ledger.Revenue,
		Sales:     snap.Ledger.Sales,
	}
	for _, c := range snap.Counters {
		r.Waiting += len(c.WaitLine)
	}
	for _, sh := range snap.Shelves {
		r.OnShelves += len(sh.Items)
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: r}, &s.dropSnapshot)
}

// RecordDay notes the archived end-of-day snapshot for day.
func (s *SQLiteIndex) RecordDay(day, endTick uint64, archivedSnapshotPath string, seed int64) {
	if s == nil || archivedSnapshotPath == "" {
		return
	}
	r := dayRow{
		Day:        day,
		EndTick:    endTick,
		Path:       archivedSnapshotPath,
		Seed:       seed,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	s.enqueue(req{kind: reqDay, day: r}, &s.dropDay)
}

// UpsertMeta records which store and run this index belongs to and the
// tuning actually applied (canonical JSON plus its digest). It is written
// synchronously at startup.
func (s *SQLiteIndex) UpsertMeta(storeID, runID string, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, kv := range [][2]string{
		{"schema_version", "1"},
		{"store_id", storeID},
		{"run_id", runID},
		{"tuning", string(b)},
		{"tuning_digest", hex.EncodeToString(sum[:])},
	} {
		if _, err := stmt.Exec(kv[0], kv[1]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,open,customers,arrivals,departures,revenue,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertEnter, _ := s.db.Prepare(`INSERT OR REPLACE INTO visits(agent_id,entered_tick,left_tick) VALUES(?,?,NULL)`)
	updateLeave, _ := s.db.Prepare(`UPDATE visits SET left_tick=? WHERE agent_id=?`)
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(tick,seq,agent_id,kind,from_state,to_state,reason,error,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertSale, _ := s.db.Prepare(`INSERT OR REPLACE INTO sales(tick,agent_id,amount,satisfaction) VALUES(?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,seed,customers,waiting,on_shelves,revenue,sales) VALUES(?,?,?,?,?,?,?,?)`)
	insertDay, _ := s.db.Prepare(`INSERT OR REPLACE INTO days(day,end_tick,seed,snapshot_path,recorded_at) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertEnter, updateLeave, insertEvent, insertSale, insertSnapshot, insertDay} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastEventTick uint64
		eventSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return true
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			t := r.tick
			b, _ := json.Marshal(t)
			if !exec(insertTick, int64(t.Tick), t.Digest, boolInt(t.Open), t.Customers, len(t.Arrivals), len(t.Departures), t.Revenue, string(b)) {
				continue
			}
			ok := true
			for _, id := range t.Arrivals {
				if ok = exec(insertEnter, id, int64(t.Tick)); !ok {
					break
				}
			}
			for _, id := range t.Departures {
				if !ok {
					break
				}
				ok = exec(updateLeave, int64(t.Tick), id)
			}

		case reqEvent:
			e := r.event
			if e.Tick != lastEventTick {
				lastEventTick = e.Tick
				eventSeq = 0
			}
			seq := eventSeq
			eventSeq++
			raw, _ := json.Marshal(e)
			if !exec(insertEvent, int64(e.Tick), seq, e.AgentID, e.Kind, e.From, e.To, e.Reason, e.Error, string(raw)) {
				continue
			}
			if customer.EventKind(e.Kind) == customer.EventSale {
				exec(insertSale, int64(e.Tick), e.AgentID, e.Amount, e.Score)
			}

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.Seed, sn.Customers, sn.Waiting, sn.OnShelves, sn.Revenue, sn.Sales)

		case reqDay:
			d := r.day
			exec(insertDay, int64(d.Day), int64(d.EndTick), d.Seed, d.Path, d.RecordedAt)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
