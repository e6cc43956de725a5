package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	persistlog "shopsim.ai/internal/persistence/log"
	"shopsim.ai/internal/persistence/snapshot"
	"shopsim.ai/internal/sim/layout"
	"shopsim.ai/internal/sim/store"
	"shopsim.ai/internal/sim/tuning"
)

// replay re-runs a store from tick 0 with the recorded seed, tuning and
// layout, applies the admin actions found in the tick log and checks every
// tick digest against the logged one.
func main() {
	var (
		ticksDir   = flag.String("ticks", "", "dir containing ticks-*.jsonl.zst")
		seed       = flag.Int64("seed", 1337, "seed the run was started with")
		snapPath   = flag.String("snapshot", "", "any snapshot of the run; its seed and store id override -seed (optional)")
		tuningPath = flag.String("tuning", "", "tuning.yaml the run used (default: built-in defaults)")
		layoutPath = flag.String("layout", "", "layout.yaml the run used (default: built-in floor)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *ticksDir == "" {
		fmt.Fprintln(os.Stderr, "missing -ticks")
		os.Exit(2)
	}

	storeID := ""
	if *snapPath != "" {
		snap, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		h := snap.Header
		*seed = snap.Seed
		storeID = h.StoreID
		fmt.Printf("snapshot v%d store=%s run=%s tick=%d seed=%d\n", h.Version, h.StoreID, h.RunID, h.Tick, snap.Seed)
	}

	tune := tuning.Defaults()
	if *tuningPath != "" {
		t, err := tuning.Load(*tuningPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = t
	}
	floor, err := layout.Load(*layoutPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load layout:", err)
		os.Exit(1)
	}

	s, err := store.New(store.Config{ID: storeID, Seed: *seed, Tuning: tune, Layout: floor})
	if err != nil {
		fmt.Fprintln(os.Stderr, "store:", err)
		os.Exit(1)
	}

	files, err := listTickFiles(*ticksDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list ticks:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no tick files found in", *ticksDir)
		os.Exit(1)
	}

	checked, err := replayFiles(s, files, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks\n", checked)
}

func listTickFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "ticks-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

var errDone = errors.New("done")

func replayFiles(s *store.Store, files []string, toTick uint64) (uint64, error) {
	var checked uint64
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(line []byte) error {
			var entry store.TickLogEntry
			if err := json.Unmarshal(line, &entry); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			if toTick != 0 && entry.Tick > toTick {
				return errDone
			}
			if entry.Tick != s.CurrentTick() {
				return fmt.Errorf("tick mismatch: want=%d got=%d (file=%s)", s.CurrentTick(), entry.Tick, filepath.Base(path))
			}
			tick, got := s.StepReplay(entry.Admin)
			if got != entry.Digest {
				return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, got, entry.Digest)
			}
			checked++
			return nil
		})
		if errors.Is(err, errDone) {
			return checked, nil
		}
		if err != nil {
			return checked, err
		}
	}
	return checked, nil
}
