package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"shopsim.ai/internal/persistence/snapshot"
)

// DayArchiveMeta sits next to the archived snapshot as meta.json.
type DayArchiveMeta struct {
	Day       uint64 `json:"day"`
	EndTick   uint64 `json:"end_tick"`
	StoreID   string `json:"store_id"`
	RunID     string `json:"run_id"`
	Seed      int64  `json:"seed"`
	Snapshot  string `json:"snapshot"`
	CreatedAt string `json:"created_at"`
	DayTicks  int    `json:"day_ticks"`

	Revenue         int64 `json:"revenue"`
	Sales           int   `json:"sales"`
	QueueAbandons   int   `json:"queue_abandons"`
	ItemsReturned   int   `json:"items_returned"`
	CustomersInside int   `json:"customers_inside"`
}

// ArchiveDaySnapshot copies a day-end snapshot into `storeDir/archives/day_<NNN>/`.
// It returns (day, archivedPath, archived=true) when the snapshot is the last
// tick of a day; other snapshots are left alone.
func ArchiveDaySnapshot(storeDir, snapshotPath string, snap snapshot.StoreV1) (day uint64, archivedPath string, archived bool, err error) {
	if snap.DayTicks <= 0 {
		return 0, "", false, nil
	}
	dayLen := uint64(snap.DayTicks)
	// Snapshots represent the last executed tick, so day d ends at tick dayLen*(d+1) - 1.
	if (snap.Header.Tick+1)%dayLen != 0 {
		return 0, "", false, nil
	}
	day = (snap.Header.Tick+1)/dayLen - 1

	archiveDir := filepath.Join(storeDir, "archives", fmt.Sprintf("day_%03d", day))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return 0, "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return 0, "", false, err
	}

	meta := DayArchiveMeta{
		Day:             day,
		EndTick:         snap.Header.Tick,
		StoreID:         snap.Header.StoreID,
		RunID:           snap.Header.RunID,
		Seed:            snap.Seed,
		Snapshot:        filepath.Base(dst),
		CreatedAt:       time.Now().UTC().Format(time.RFC3339Nano),
		DayTicks:        snap.DayTicks,
		Revenue:         snap.Ledger.Revenue,
		Sales:           snap.Ledger.Sales,
		QueueAbandons:   snap.Ledger.QueueAbandons,
		ItemsReturned:   snap.Ledger.ItemsReturned,
		CustomersInside: len(snap.Customers),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}

	return day, dst, true, nil
}

// ReadDayMeta loads the meta.json of an archived day.
func ReadDayMeta(archiveDir string) (DayArchiveMeta, error) {
	var m DayArchiveMeta
	b, err := os.ReadFile(filepath.Join(archiveDir, "meta.json"))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("%s: %w", archiveDir, err)
	}
	return m, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
