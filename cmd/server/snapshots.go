package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"shopsim.ai/internal/persistence/archive"
	"shopsim.ai/internal/persistence/snapshot"
	"shopsim.ai/internal/sim/store"
)

// runSnapshotWriter drains the store's snapshot sink until ctx is done.
func runSnapshotWriter(ctx context.Context, storeDir string, snaps <-chan snapshot.StoreV1, idx runtimeIndex, logger *log.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-snaps:
			if _, err := persistSnapshot(storeDir, snap, idx, logger); err != nil {
				logger.Printf("snapshot write: %v", err)
			}
		}
	}
}

// persistSnapshot writes snap under storeDir/snapshots, indexes it, and
// archives it when it closes a day. The archive happens with or without an
// index.
func persistSnapshot(storeDir string, snap snapshot.StoreV1, idx runtimeIndex, logger *log.Logger) (string, error) {
	path := filepath.Join(storeDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", err
	}
	if idx != nil {
		idx.RecordSnapshot(path, snap)
	}
	day, archivedPath, ok, err := archive.ArchiveDaySnapshot(storeDir, path, snap)
	if err != nil {
		logger.Printf("archive day snapshot: %v", err)
		return path, nil
	}
	if ok {
		logger.Printf("archived day %d at tick %d: revenue=%d sales=%d", day, snap.Header.Tick, snap.Ledger.Revenue, snap.Ledger.Sales)
		if idx != nil {
			idx.RecordDay(day, snap.Header.Tick, archivedPath, snap.Seed)
		}
	}
	return path, nil
}

func latestSnapshot(storeDir string) string {
	dir := filepath.Join(storeDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

type multiTickLogger struct {
	a store.TickLogger
	b store.TickLogger
}

func (m multiTickLogger) WriteTick(entry store.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiEventLogger struct {
	a store.EventLogger
	b store.EventLogger
}

func (m multiEventLogger) WriteEvent(entry store.EventEntry) error {
	if m.a != nil {
		_ = m.a.WriteEvent(entry)
	}
	if m.b != nil {
		_ = m.b.WriteEvent(entry)
	}
	return nil
}
