package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	persistlog "shopsim.ai/internal/persistence/log"
	"shopsim.ai/internal/persistence/snapshot"
	"shopsim.ai/internal/sim/layout"
	"shopsim.ai/internal/sim/store"
	"shopsim.ai/internal/sim/tuning"
	"shopsim.ai/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		storeID    = flag.String("store", "store_1", "store id")
		seed       = flag.Int64("seed", 1337, "simulation seed")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		layoutPath = flag.String("layout", "", "path to layout.yaml (default: <configs>/layout.yaml, built-in floor if missing)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (ticks, events, sales, snapshot metadata)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	storeDir := filepath.Join(*dataDir, "stores", *storeID)
	_ = os.MkdirAll(storeDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	lp := strings.TrimSpace(*layoutPath)
	if lp == "" {
		lp = filepath.Join(*configDir, "layout.yaml")
		if _, err := os.Stat(lp); os.IsNotExist(err) {
			logger.Printf("layout not found (%s); using the built-in floor", lp)
			lp = ""
		}
	}
	floor, err := layout.Load(lp)
	if err != nil {
		logger.Fatalf("load layout: %v", err)
	}

	// Runs always start fresh; an earlier run's snapshots stay on disk for cmd/admin inspect.
	if prev := latestSnapshot(storeDir); prev != "" {
		if h, err := snapshot.ReadHeader(prev); err == nil {
			logger.Printf("previous run %s reached tick %d (%s)", h.RunID, h.Tick, filepath.Base(prev))
		}
	}

	storeLog := log.New(os.Stdout, "[store] ", log.LstdFlags|log.Lmicroseconds)
	s, err := store.New(store.Config{
		ID:     *storeID,
		Seed:   *seed,
		Tuning: tune,
		Layout: floor,
		Logger: storeLog,
	})
	if err != nil {
		logger.Fatalf("store: %v", err)
	}

	// Optional read-model index (does not affect sim determinism).
	idx, err := openRuntimeIndex(storeDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertMeta(s.ID(), s.RunID(), s.Tuning()); err != nil {
			logger.Printf("index backend: upsert meta: %v", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(storeDir)
	eventLog := persistlog.NewEventLogger(storeDir)
	defer tickLog.Close()
	defer eventLog.Close()
	s.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
	s.SetEventLogger(multiEventLogger{a: eventLog, b: idx})

	snapCh := make(chan snapshot.StoreV1, 2)
	s.SetSnapshotSink(snapCh)
	go runSnapshotWriter(ctx, storeDir, snapCh, idx, logger)

	go func() {
		if err := s.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("store stopped: %v", err)
		}
	}()

	obs := observer.NewServer(s, log.New(os.Stdout, "[observer] ", log.LstdFlags|log.Lmicroseconds))
	obs.AllowRemote = envBool("SHOP_OBSERVER_ALLOW_REMOTE", false)
	mux := newMux(muxConfig{
		Store:       s,
		Index:       idx,
		Observer:    obs,
		Logger:      logger,
		EnableAdmin: envBool("SHOP_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()),
		EnablePprof: envBool("SHOP_ENABLE_PPROF_HTTP", false),
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("store=%s run=%s seed=%d listening on %s", s.ID(), s.RunID(), s.Seed(), *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
