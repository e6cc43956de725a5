package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	storeDir := storeDirFlag(fs)
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	agent := fs.String("agent", "", "customer filter (events)")
	kind := fs.String("kind", "", "event kind filter (events)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(storeDir(), "index", "store.sqlite")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}
	if err := runQuery(db, q, queryArgs{Agent: *agent, Kind: strings.ToUpper(*kind), Limit: *limit}, printJSON); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if strings.HasPrefix(err.Error(), "unknown query") {
			fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-store ID|-db PATH] snapshots|sales|summary|days|visits|events")
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type queryArgs struct {
	Agent string
	Kind  string
	Limit int
}

func runQuery(db *sql.DB, q string, a queryArgs, emit func(any)) error {
	switch q {
	case "snapshots":
		rows, err := db.Query(`SELECT tick,path,seed,customers,waiting,on_shelves,revenue,sales FROM snapshots ORDER BY tick DESC LIMIT ?`, a.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick      int64  `json:"tick"`
				Path      string `json:"path"`
				Seed      int64  `json:"seed"`
				Customers int    `json:"customers"`
				Waiting   int    `json:"waiting"`
				OnShelves int    `json:"on_shelves"`
				Revenue   int64  `json:"revenue"`
				Sales     int    `json:"sales"`
			}
			if err := rows.Scan(&r.Tick, &r.Path, &r.Seed, &r.Customers, &r.Waiting, &r.OnShelves, &r.Revenue, &r.Sales); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "sales":
		rows, err := db.Query(`SELECT tick,agent_id,amount,satisfaction FROM sales ORDER BY tick DESC LIMIT ?`, a.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick         int64   `json:"tick"`
				AgentID      string  `json:"agent_id"`
				Amount       int64   `json:"amount"`
				Satisfaction float64 `json:"satisfaction"`
			}
			if err := rows.Scan(&r.Tick, &r.AgentID, &r.Amount, &r.Satisfaction); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "summary":
		var r struct {
			Sales           int     `json:"sales"`
			Revenue         int64   `json:"revenue"`
			MeanSale        float64 `json:"mean_sale"`
			MeanSatisfy     float64 `json:"mean_satisfaction"`
			Visits          int     `json:"visits"`
			MeanVisitTicks  float64 `json:"mean_visit_ticks"`
			QueueAbandons   int     `json:"queue_abandons"`
			RejectedChanges int     `json:"rejected_transitions"`
		}
		row := db.QueryRow(`SELECT COUNT(*),COALESCE(SUM(amount),0),COALESCE(AVG(amount),0),COALESCE(AVG(satisfaction),0) FROM sales`)
		if err := row.Scan(&r.Sales, &r.Revenue, &r.MeanSale, &r.MeanSatisfy); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		row = db.QueryRow(`SELECT COUNT(*),COALESCE(AVG(left_tick-entered_tick),0) FROM visits WHERE left_tick IS NOT NULL`)
		if err := row.Scan(&r.Visits, &r.MeanVisitTicks); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		row = db.QueryRow(`SELECT COALESCE(SUM(kind='QUEUE_ABANDONED'),0),COALESCE(SUM(kind='REJECTED'),0) FROM events`)
		if err := row.Scan(&r.QueueAbandons, &r.RejectedChanges); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		emit(r)
		return nil

	case "days":
		rows, err := db.Query(`SELECT day,end_tick,seed,snapshot_path,recorded_at FROM days ORDER BY day DESC LIMIT ?`, a.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Day        int64  `json:"day"`
				EndTick    int64  `json:"end_tick"`
				Seed       int64  `json:"seed"`
				Path       string `json:"snapshot_path"`
				RecordedAt string `json:"recorded_at"`
			}
			if err := rows.Scan(&r.Day, &r.EndTick, &r.Seed, &r.Path, &r.RecordedAt); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "visits":
		rows, err := db.Query(`SELECT agent_id,entered_tick,left_tick FROM visits ORDER BY entered_tick DESC LIMIT ?`, a.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				AgentID     string        `json:"agent_id"`
				EnteredTick int64         `json:"entered_tick"`
				LeftTick    sql.NullInt64 `json:"left_tick"`
			}
			if err := rows.Scan(&r.AgentID, &r.EnteredTick, &r.LeftTick); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "events":
		query := `SELECT tick,seq,agent_id,kind,raw_json FROM events WHERE (?='' OR agent_id=?) AND (?='' OR kind=?) ORDER BY tick DESC, seq DESC LIMIT ?`
		rows, err := db.Query(query, a.Agent, a.Agent, a.Kind, a.Kind, a.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick    int64  `json:"tick"`
				Seq     int    `json:"seq"`
				AgentID string `json:"agent_id"`
				Kind    string `json:"kind"`
				Raw     string `json:"raw"`
			}
			if err := rows.Scan(&r.Tick, &r.Seq, &r.AgentID, &r.Kind, &r.Raw); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()
	}
	return fmt.Errorf("unknown query: %s", q)
}
