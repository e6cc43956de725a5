package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"shopsim.ai/internal/sim/nav"
	"shopsim.ai/internal/sim/store"
	"shopsim.ai/internal/transport/observer"
)

type muxConfig struct {
	Store    *store.Store
	Index    runtimeIndex
	Observer *observer.Server
	Logger   *log.Logger

	EnableAdmin bool
	EnablePprof bool
}

func newMux(cfg muxConfig) *http.ServeMux {
	s := cfg.Store
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, s, cfg.Index, cfg.Observer)
	})

	if cfg.Observer != nil {
		mux.HandleFunc("/v1/observer/bootstrap", cfg.Observer.BootstrapHandler())
		mux.HandleFunc("/v1/observer/ws", cfg.Observer.WSHandler())
	}

	if cfg.EnableAdmin {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", adminOnly(http.MethodGet, func(rw http.ResponseWriter, r *http.Request) {
			writeJSON(rw, http.StatusOK, struct {
				StoreID string             `json:"store_id"`
				RunID   string             `json:"run_id"`
				Tick    uint64             `json:"tick"`
				Metrics store.StoreMetrics `json:"metrics"`
			}{
				StoreID: s.ID(),
				RunID:   s.RunID(),
				Tick:    s.CurrentTick(),
				Metrics: s.Metrics(),
			})
		}))
		mux.HandleFunc("/admin/v1/snapshot", adminOnly(http.MethodPost, func(rw http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			tick, err := s.RequestSnapshot(ctx)
			adminResult(rw, map[string]any{"tick": tick}, err)
		}))
		mux.HandleFunc("/admin/v1/spawn", adminOnly(http.MethodPost, func(rw http.ResponseWriter, r *http.Request) {
			var budget int64
			if v := strings.TrimSpace(r.URL.Query().Get("budget")); v != "" {
				n, err := strconv.ParseInt(v, 10, 64)
				if err != nil || n < 0 {
					http.Error(rw, "bad budget", http.StatusBadRequest)
					return
				}
				budget = n
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			id, err := s.RequestSpawn(ctx, budget)
			adminResult(rw, map[string]any{"agent_id": id}, err)
		}))
		mux.HandleFunc("/admin/v1/counter", adminOnly(http.MethodPost, func(rw http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			id := strings.TrimSpace(q.Get("id"))
			enabled, err := strconv.ParseBool(q.Get("enabled"))
			if id == "" || err != nil {
				http.Error(rw, "need id and enabled=true|false", http.StatusBadRequest)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			err = s.SetCounterEnabled(ctx, id, enabled)
			adminResult(rw, map[string]any{"counter": id, "enabled": enabled}, err)
		}))
		mux.HandleFunc("/admin/v1/block", adminOnly(http.MethodPost, func(rw http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			x, errX := strconv.Atoi(q.Get("x"))
			z, errZ := strconv.Atoi(q.Get("z"))
			blocked, errB := strconv.ParseBool(q.Get("blocked"))
			if errX != nil || errZ != nil || errB != nil {
				http.Error(rw, "need x, z and blocked=true|false", http.StatusBadRequest)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			err := s.SetCellBlocked(ctx, nav.Pos{X: x, Z: z}, blocked)
			adminResult(rw, map[string]any{"x": x, "z": z, "blocked": blocked}, err)
		}))
	} else if cfg.Logger != nil {
		cfg.Logger.Printf("admin endpoints disabled (SHOP_ENABLE_ADMIN_HTTP=false)")
	}

	if cfg.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

func adminOnly(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func adminResult(rw http.ResponseWriter, body map[string]any, err error) {
	if err != nil {
		body["ok"] = false
		body["error"] = err.Error()
		writeJSON(rw, http.StatusServiceUnavailable, body)
		return
	}
	body["ok"] = true
	writeJSON(rw, http.StatusOK, body)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeMetrics(rw http.ResponseWriter, s *store.Store, idx runtimeIndex, obs *observer.Server) {
	id := s.ID()
	m := s.Metrics()
	tick := s.CurrentTick()
	if m.Tick != 0 {
		tick = m.Tick
	}

	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP shopsim_store_tick Current store tick.\n")
	fmt.Fprintf(rw, "# TYPE shopsim_store_tick gauge\n")
	fmt.Fprintf(rw, "shopsim_store_tick{store=%q} %d\n", id, tick)

	fmt.Fprintf(rw, "# HELP shopsim_store_open Whether the store is open (1) or closed (0).\n")
	fmt.Fprintf(rw, "# TYPE shopsim_store_open gauge\n")
	fmt.Fprintf(rw, "shopsim_store_open{store=%q} %d\n", id, boolGauge(m.Open))

	fmt.Fprintf(rw, "# HELP shopsim_customers Customers inside the store.\n")
	fmt.Fprintf(rw, "# TYPE shopsim_customers gauge\n")
	fmt.Fprintf(rw, "shopsim_customers{store=%q} %d\n", id, m.Customers)

	states := make([]string, 0, len(m.ByState))
	for st := range m.ByState {
		states = append(states, st)
	}
	sort.Strings(states)
	fmt.Fprintf(rw, "# HELP shopsim_customers_by_state Customers per behaviour state.\n")
	fmt.Fprintf(rw, "# TYPE shopsim_customers_by_state gauge\n")
	for _, st := range states {
		fmt.Fprintf(rw, "shopsim_customers_by_state{store=%q,state=%q} %d\n", id, st, m.ByState[st])
	}

	fmt.Fprintf(rw, "# HELP shopsim_revenue_total Revenue reported by completed purchases.\n")
	fmt.Fprintf(rw, "# TYPE shopsim_revenue_total counter\n")
	fmt.Fprintf(rw, "shopsim_revenue_total{store=%q} %d\n", id, m.Revenue)

	fmt.Fprintf(rw, "# HELP shopsim_sales_total Completed purchases.\n")
	fmt.Fprintf(rw, "# TYPE shopsim_sales_total counter\n")
	fmt.Fprintf(rw, "shopsim_sales_total{store=%q} %d\n", id, m.Sales)

	fmt.Fprintf(rw, "# HELP shopsim_mean_satisfaction Mean satisfaction of completed purchases (0..1).\n")
	fmt.Fprintf(rw, "# TYPE shopsim_mean_satisfaction gauge\n")
	fmt.Fprintf(rw, "shopsim_mean_satisfaction{store=%q} %.6f\n", id, m.MeanSatisfaction)

	fmt.Fprintf(rw, "# HELP shopsim_queue_abandons_total Customers who gave up waiting in line.\n")
	fmt.Fprintf(rw, "# TYPE shopsim_queue_abandons_total counter\n")
	fmt.Fprintf(rw, "shopsim_queue_abandons_total{store=%q} %d\n", id, m.QueueAbandons)

	fmt.Fprintf(rw, "# HELP shopsim_items_returned_total Unpurchased items put back on the shelves.\n")
	fmt.Fprintf(rw, "# TYPE shopsim_items_returned_total counter\n")
	fmt.Fprintf(rw, "shopsim_items_returned_total{store=%q} %d\n", id, m.ItemsReturned)

	fmt.Fprintf(rw, "# HELP shopsim_counters_enabled Counters currently open.\n")
	fmt.Fprintf(rw, "# TYPE shopsim_counters_enabled gauge\n")
	fmt.Fprintf(rw, "shopsim_counters_enabled{store=%q} %d\n", id, m.CountersEnabled)

	fmt.Fprintf(rw, "# HELP shopsim_queue_waiting Customers waiting in counter lines.\n")
	fmt.Fprintf(rw, "# TYPE shopsim_queue_waiting gauge\n")
	fmt.Fprintf(rw, "shopsim_queue_waiting{store=%q} %d\n", id, m.Waiting)

	fmt.Fprintf(rw, "# HELP shopsim_observers Connected observer sessions.\n")
	fmt.Fprintf(rw, "# TYPE shopsim_observers gauge\n")
	fmt.Fprintf(rw, "shopsim_observers{store=%q} %d\n", id, m.Observers)
	if obs != nil {
		fmt.Fprintf(rw, "shopsim_observer_sockets{store=%q} %d\n", id, obs.Sessions())
	}

	fmt.Fprintf(rw, "# HELP shopsim_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE shopsim_step_ms gauge\n")
	fmt.Fprintf(rw, "shopsim_step_ms{store=%q} %.3f\n", id, m.StepMS)

	if idx == nil {
		return
	}
	st := idx.Stats()
	fmt.Fprintf(rw, "# HELP shopsim_index_queue_depth Index writer backlog.\n")
	fmt.Fprintf(rw, "# TYPE shopsim_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "shopsim_index_queue_depth{store=%q} %d\n", id, st.QueueDepth)
	fmt.Fprintf(rw, "# HELP shopsim_index_dropped_total Rows dropped because the index queue was full.\n")
	fmt.Fprintf(rw, "# TYPE shopsim_index_dropped_total counter\n")
	fmt.Fprintf(rw, "shopsim_index_dropped_total{store=%q,kind=%q} %d\n", id, "tick", st.DropTickTotal)
	fmt.Fprintf(rw, "shopsim_index_dropped_total{store=%q,kind=%q} %d\n", id, "event", st.DropEventTotal)
	fmt.Fprintf(rw, "shopsim_index_dropped_total{store=%q,kind=%q} %d\n", id, "snapshot", st.DropSnapshotTotal)
	fmt.Fprintf(rw, "shopsim_index_dropped_total{store=%q,kind=%q} %d\n", id, "day", st.DropDayTotal)
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
