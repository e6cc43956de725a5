package store

import (
	"context"
	"time"
)

func (s *Store) Run(ctx context.Context) error {
	interval := s.cfg.Tuning.TickDuration()
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingAdmin []adminReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case req := <-s.observerJoin:
			s.handleObserverJoin(req)
		case req := <-s.observerSub:
			s.handleObserverSubscribe(req)
		case id := <-s.observerLeave:
			s.handleObserverLeave(id)
		case req := <-s.admin:
			pendingAdmin = append(pendingAdmin, req)
		case <-ticker.C:
			s.stepInternal(pendingAdmin)
			pendingAdmin = pendingAdmin[:0]
		}
	}
}

func (s *Store) Stop() { close(s.stop) }

// StepOnce advances the store by a single tick using the same ordering as
// Run. It is meant for tests and offline replays; do not mix it with Run.
func (s *Store) StepOnce() (tick uint64, digest string) {
	tick = s.tick.Load()
	s.stepInternal(nil)
	return tick, s.stateDigest(tick)
}

// StepReplay advances one tick applying admin actions read back from a tick
// log, in their logged order.
func (s *Store) StepReplay(actions []AdminAction) (tick uint64, digest string) {
	reqs := make([]adminReq, 0, len(actions))
	for _, a := range actions {
		if r, ok := a.request(); ok {
			reqs = append(reqs, r)
		}
	}
	tick = s.tick.Load()
	s.stepInternal(reqs)
	return tick, s.stateDigest(tick)
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
