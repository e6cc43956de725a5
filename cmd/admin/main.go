package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"shopsim.ai/internal/persistence/archive"
	persistlog "shopsim.ai/internal/persistence/log"
	"shopsim.ai/internal/persistence/snapshot"
	"shopsim.ai/internal/sim/store"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "logs":
			logsCmd(os.Args[2:])
			return
		case "days":
			daysCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state", "snapshot", "spawn", "counter", "block":
			httpCmd(os.Args[1], os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "stores"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Println(e.Name())
		}
	}
}

func storeDirFlag(fs *flag.FlagSet) func() string {
	dataDir := fs.String("data", "./data", "runtime data directory")
	storeID := fs.String("store", "store_1", "store id")
	return func() string { return filepath.Join(*dataDir, "stores", *storeID) }
}

// inspect prints a snapshot summary, or the whole snapshot as JSON with -json.
func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	storeDir := storeDirFlag(fs)
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	asJSON := fs.Bool("json", false, "dump the full snapshot as JSON")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		path = latestSnapshot(storeDir())
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	if *asJSON {
		printJSON(snap)
		return
	}
	writeSummary(os.Stdout, snap)
}

func writeSummary(w io.Writer, snap snapshot.StoreV1) {
	h := snap.Header
	fmt.Fprintf(w, "snapshot v%d store=%s run=%s tick=%d seed=%d day_ticks=%d hours=[%d,%d)\n",
		h.Version, h.StoreID, h.RunID, h.Tick, snap.Seed, snap.DayTicks, snap.OpenTick, snap.CloseTick)

	l := snap.Ledger
	mean := 0.0
	if l.Sales > 0 {
		mean = l.SatisfactionSum / float64(l.Sales)
	}
	fmt.Fprintf(w, "ledger revenue=%d sales=%d mean_satisfaction=%.3f queue_abandons=%d items_returned=%d\n",
		l.Revenue, l.Sales, mean, l.QueueAbandons, l.ItemsReturned)

	for _, c := range snap.Counters {
		fmt.Fprintf(w, "counter %s enabled=%v staffed=%v occupant=%q waiting=%d scanning=%v\n",
			c.ID, c.Enabled, c.Staffed, c.Occupant, len(c.WaitLine), c.Scanning)
	}
	stock := 0
	for _, sh := range snap.Shelves {
		stock += len(sh.Items)
	}
	fmt.Fprintf(w, "shelves spots=%d items=%d\n", len(snap.Shelves), stock)

	byState := map[string]int{}
	for _, c := range snap.Customers {
		byState[c.State]++
	}
	states := make([]string, 0, len(byState))
	for st := range byState {
		states = append(states, st)
	}
	sort.Strings(states)
	parts := make([]string, 0, len(states))
	for _, st := range states {
		parts = append(parts, fmt.Sprintf("%s=%d", st, byState[st]))
	}
	fmt.Fprintf(w, "customers total=%d %s\n", len(snap.Customers), strings.Join(parts, " "))
	for _, c := range snap.Customers {
		line := fmt.Sprintf("  %s %s", c.ID, c.State)
		if c.Phase != "" {
			line += "/" + c.Phase
		}
		line += fmt.Sprintf(" pos=(%d,%d) budget=%d selected=%d", c.Pos[0], c.Pos[1], c.Budget, len(c.Selected))
		if c.QueueCounter != "" {
			line += fmt.Sprintf(" queue=%s:%s#%d", c.QueueCounter, c.QueueStatus, c.QueuePosition)
		}
		fmt.Fprintln(w, line)
	}
}

// logs dumps tick or customer-event JSONL, filtered.
func logsCmd(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	storeDir := storeDirFlag(fs)
	stream := fs.String("stream", "customers", "ticks|customers")
	agent := fs.String("agent", "", "only this customer (customers stream)")
	kind := fs.String("kind", "", "only this event kind, e.g. SALE (customers stream)")
	from := fs.Uint64("from_tick", 0, "from tick (inclusive)")
	to := fs.Uint64("to_tick", 0, "to tick (inclusive, optional)")
	_ = fs.Parse(args)

	if *stream != "ticks" && *stream != "customers" {
		fmt.Fprintln(os.Stderr, "unknown -stream:", *stream)
		os.Exit(2)
	}
	f := eventFilter{AgentID: *agent, Kind: strings.ToUpper(*kind), From: *from, To: *to}
	n, err := dumpLogs(os.Stdout, filepath.Join(storeDir(), *stream), *stream, f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logs:", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "%d entries\n", n)
}

type eventFilter struct {
	AgentID string
	Kind    string
	From    uint64
	To      uint64
}

func (f eventFilter) tickOK(t uint64) bool {
	return t >= f.From && (f.To == 0 || t <= f.To)
}

func dumpLogs(w io.Writer, dir, prefix string, f eventFilter) (int, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var names []string
	for _, e := range ents {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix+"-") && strings.HasSuffix(e.Name(), ".jsonl.zst") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	n := 0
	for _, name := range names {
		err := persistlog.ReadJSONL(filepath.Join(dir, name), func(line []byte) error {
			if prefix == "ticks" {
				var e store.TickLogEntry
				if err := json.Unmarshal(line, &e); err != nil {
					return err
				}
				if !f.tickOK(e.Tick) {
					return nil
				}
			} else {
				var e store.EventEntry
				if err := json.Unmarshal(line, &e); err != nil {
					return err
				}
				if !f.tickOK(e.Tick) || (f.AgentID != "" && e.AgentID != f.AgentID) || (f.Kind != "" && e.Kind != f.Kind) {
					return nil
				}
			}
			n++
			_, err := fmt.Fprintf(w, "%s\n", line)
			return err
		})
		if err != nil {
			return n, fmt.Errorf("%s: %w", name, err)
		}
	}
	return n, nil
}

func daysCmd(args []string) {
	fs := flag.NewFlagSet("days", flag.ExitOnError)
	storeDir := storeDirFlag(fs)
	_ = fs.Parse(args)

	metas, err := listDays(storeDir())
	if err != nil {
		fmt.Fprintln(os.Stderr, "days:", err)
		os.Exit(1)
	}
	for _, m := range metas {
		printJSON(m)
	}
}

func listDays(storeDir string) ([]archive.DayArchiveMeta, error) {
	dir := filepath.Join(storeDir, "archives")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []archive.DayArchiveMeta
	for _, e := range ents {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "day_") {
			continue
		}
		m, err := archive.ReadDayMeta(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
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

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
