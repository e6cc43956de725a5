package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"shopsim.ai/internal/persistence/indexdb"
	"shopsim.ai/internal/persistence/snapshot"
	"shopsim.ai/internal/sim/store"
	"shopsim.ai/internal/sim/tuning"
)

type runtimeIndex interface {
	store.TickLogger
	store.EventLogger
	Close() error
	UpsertMeta(storeID, runID string, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.StoreV1)
	RecordDay(day, endTick uint64, archivedSnapshotPath string, seed int64)
	Stats() indexdb.Stats
}

func openRuntimeIndex(storeDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("SHOP_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(filepath.Join(storeDir, "index", "store.sqlite"))
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported SHOP_INDEX_BACKEND: %s", backend)
	}
}
