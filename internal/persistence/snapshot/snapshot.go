package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	StoreID string `json:"store_id"`
	RunID   string `json:"run_id"`
	Tick    uint64 `json:"tick"`
}

type StoreV1 struct {
	Header Header `json:"header"`

	Seed               int64 `json:"seed"`
	TickRate           int   `json:"tick_rate_hz"`
	DayTicks           int   `json:"day_ticks"`
	OpenTick           int   `json:"open_tick"`
	CloseTick          int   `json:"close_tick"`
	SnapshotEveryTicks int   `json:"snapshot_every_ticks,omitempty"`

	Customers []CustomerV1 `json:"customers"`
	Counters  []CounterV1  `json:"counters"`
	Shelves   []ShelfV1    `json:"shelves"`
	Ledger    LedgerV1     `json:"ledger"`

	NextCustomer uint64 `json:"next_customer"`
}

type ItemV1 struct {
	ID    string `json:"id"`
	SKU   string `json:"sku"`
	Spot  string `json:"spot"`
	Price int64  `json:"price"`
}

type CustomerV1 struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Phase  string `json:"phase,omitempty"`
	Pos    [2]int `json:"pos"`
	Budget int64  `json:"budget"`

	EnteredTick uint64   `json:"entered_tick"`
	Selected    []ItemV1 `json:"selected,omitempty"`
	Purchased   []ItemV1 `json:"purchased,omitempty"`

	QueueStatus   string `json:"queue_status,omitempty"`
	QueueCounter  string `json:"queue_counter,omitempty"`
	QueuePosition int    `json:"queue_position,omitempty"`

	History []TransitionV1 `json:"history,omitempty"`
}

type TransitionV1 struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Reason   string `json:"reason"`
	Tick     uint64 `json:"tick"`
	Accepted bool   `json:"accepted"`
}

type CounterV1 struct {
	ID       string   `json:"id"`
	Pos      [2]int   `json:"pos"`
	Staffed  bool     `json:"staffed"`
	Enabled  bool     `json:"enabled"`
	Occupant string   `json:"occupant,omitempty"`
	WaitLine []string `json:"wait_line,omitempty"`
	Scanning bool     `json:"scanning,omitempty"`
}

type ShelfV1 struct {
	Spot  string   `json:"spot"`
	Items []ItemV1 `json:"items"`
}

type LedgerV1 struct {
	Revenue         int64   `json:"revenue"`
	Sales           int     `json:"sales"`
	SatisfactionSum float64 `json:"satisfaction_sum"`
	QueueAbandons   int     `json:"queue_abandons"`
	ItemsReturned   int     `json:"items_returned"`
}

func WriteSnapshot(path string, snap StoreV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (StoreV1, error) {
	var snap StoreV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line is repeated inside the gob payload.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader reads only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
