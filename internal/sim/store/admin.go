package store

import (
	"context"
	"errors"
	"fmt"

	"shopsim.ai/internal/sim/nav"
)

type adminKind int

const (
	adminSnapshot adminKind = iota + 1
	adminSpawn
	adminCounter
	adminBlock
)

type adminReq struct {
	Kind adminKind

	Budget    int64
	CounterID string
	Pos       nav.Pos
	On        bool

	Resp chan adminResp
}

type adminResp struct {
	Tick    uint64
	AgentID string
	Err     string
}

var ErrAdminUnavailable = errors.New("store admin not available")

// AdminAction is a state-changing admin request as applied on a tick. It is
// recorded in the tick log so a replay can apply the same requests.
type AdminAction struct {
	Kind      string `json:"kind"`
	Budget    int64  `json:"budget,omitempty"`
	AgentID   string `json:"agent_id,omitempty"`
	CounterID string `json:"counter_id,omitempty"`
	X         int    `json:"x,omitempty"`
	Z         int    `json:"z,omitempty"`
	On        bool   `json:"on,omitempty"`
}

const (
	ActionSpawn   = "SPAWN"
	ActionCounter = "COUNTER"
	ActionBlock   = "BLOCK"
)

func (a AdminAction) request() (adminReq, bool) {
	switch a.Kind {
	case ActionSpawn:
		return adminReq{Kind: adminSpawn, Budget: a.Budget}, true
	case ActionCounter:
		return adminReq{Kind: adminCounter, CounterID: a.CounterID, On: a.On}, true
	case ActionBlock:
		return adminReq{Kind: adminBlock, Pos: nav.Pos{X: a.X, Z: a.Z}, On: a.On}, true
	}
	return adminReq{}, false
}

func (s *Store) request(ctx context.Context, req adminReq) (adminResp, error) {
	if s == nil || s.admin == nil {
		return adminResp{}, ErrAdminUnavailable
	}
	resp := make(chan adminResp, 1)
	req.Resp = resp

	select {
	case s.admin <- req:
	case <-ctx.Done():
		return adminResp{}, ctx.Err()
	}

	select {
	case r := <-resp:
		if r.Err != "" {
			return r, errors.New(r.Err)
		}
		return r, nil
	case <-ctx.Done():
		return adminResp{}, ctx.Err()
	}
}

// RequestSnapshot asks the store loop to export a snapshot of the last
// completed tick to the snapshot sink.
func (s *Store) RequestSnapshot(ctx context.Context) (uint64, error) {
	r, err := s.request(ctx, adminReq{Kind: adminSnapshot})
	return r.Tick, err
}

// RequestSpawn admits one customer at the next tick boundary, open or not.
// budget <= 0 draws one from the tuning range.
func (s *Store) RequestSpawn(ctx context.Context, budget int64) (string, error) {
	r, err := s.request(ctx, adminReq{Kind: adminSpawn, Budget: budget})
	return r.AgentID, err
}

// SetCounterEnabled closes or reopens a counter. Closing invalidates the
// occupant and everyone waiting.
func (s *Store) SetCounterEnabled(ctx context.Context, counterID string, enabled bool) error {
	_, err := s.request(ctx, adminReq{Kind: adminCounter, CounterID: counterID, On: enabled})
	return err
}

// SetCellBlocked blocks or clears a floor cell. Customers walking through it
// replan, or give up when no route is left.
func (s *Store) SetCellBlocked(ctx context.Context, p nav.Pos, blocked bool) error {
	_, err := s.request(ctx, adminReq{Kind: adminBlock, Pos: p, On: blocked})
	return err
}

func (s *Store) handleAdminRequests(nowTick uint64, reqs []adminReq) {
	for _, req := range reqs {
		resp := adminResp{Tick: nowTick}
		var err error
		switch req.Kind {
		case adminSnapshot:
			resp.Tick, err = s.snapshotNow()
		case adminSpawn:
			resp.AgentID, err = s.spawn(nowTick, req.Budget)
		case adminCounter:
			if req.On {
				err = s.co.Enable(req.CounterID)
			} else {
				err = s.co.Disable(req.CounterID)
			}
		case adminBlock:
			if !s.grid.InBounds(req.Pos) {
				err = fmt.Errorf("cell (%d,%d) is out of bounds", req.Pos.X, req.Pos.Z)
			} else if req.On {
				s.grid.Block(req.Pos)
			} else {
				s.grid.Unblock(req.Pos)
			}
		default:
			err = fmt.Errorf("unknown admin request %d", req.Kind)
		}
		if err != nil {
			resp.Err = err.Error()
			s.log.Printf("admin request %d: %v", req.Kind, err)
		} else if a, ok := appliedAction(req, resp); ok {
			s.applied = append(s.applied, a)
		}
		if req.Resp == nil {
			continue
		}
		select {
		case req.Resp <- resp:
		default:
			// Client timed out; don't block the store loop.
		}
	}
}

func appliedAction(req adminReq, resp adminResp) (AdminAction, bool) {
	switch req.Kind {
	case adminSpawn:
		return AdminAction{Kind: ActionSpawn, Budget: req.Budget, AgentID: resp.AgentID}, true
	case adminCounter:
		return AdminAction{Kind: ActionCounter, CounterID: req.CounterID, On: req.On}, true
	case adminBlock:
		return AdminAction{Kind: ActionBlock, X: req.Pos.X, Z: req.Pos.Z, On: req.On}, true
	}
	return AdminAction{}, false
}

func (s *Store) snapshotNow() (uint64, error) {
	cur := s.tick.Load()
	snapTick := uint64(0)
	if cur > 0 {
		snapTick = cur - 1
	}
	if s.snapshotSink == nil {
		return snapTick, errors.New("snapshot sink not configured")
	}
	select {
	case s.snapshotSink <- s.ExportSnapshot(snapTick):
		return snapTick, nil
	default:
		return snapTick, errors.New("snapshot sink backpressure")
	}
}
