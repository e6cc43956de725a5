package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"shopsim.ai/internal/observerproto"
	"shopsim.ai/internal/sim/layout"
	"shopsim.ai/internal/sim/nav"
	"shopsim.ai/internal/sim/store"
)

type Server struct {
	store *store.Store
	log   *log.Logger

	// Only loopback peers are served unless AllowRemote is set.
	AllowRemote bool

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	sessions atomic.Int64
}

func NewServer(s *store.Store, logger *log.Logger) *Server {
	return &Server{
		store: s,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Sessions reports the number of connected observer sockets.
func (s *Server) Sessions() int64 { return s.sessions.Load() }

func (s *Server) allowed(r *http.Request) bool {
	return s.AllowRemote || isLoopbackRemote(r.RemoteAddr)
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		t := s.store.Tuning()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			StoreID:         s.store.ID(),
			RunID:           s.store.RunID(),
			Tick:            s.store.CurrentTick(),
			StoreParams: observerproto.StoreParams{
				TickRateHz:   t.TickRateHz,
				DayTicks:     t.DayTicks,
				OpenTick:     t.OpenTick,
				CloseTick:    t.CloseTick,
				MaxCustomers: t.MaxCustomers,
				Seed:         s.store.Seed(),
			},
			Layout: layoutInfo(s.store.Layout()),
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func layoutInfo(l layout.Layout) observerproto.LayoutInfo {
	info := observerproto.LayoutInfo{
		Width:    l.Width,
		Depth:    l.Depth,
		Entrance: xz(l.Entrance),
		Spots:    make([]observerproto.Place, 0, len(l.Spots)),
		Counters: make([]observerproto.Place, 0, len(l.Counters)),
		Exits:    make([]observerproto.Place, 0, len(l.Exits)),
	}
	for _, p := range l.Blocked {
		info.Blocked = append(info.Blocked, xz(p))
	}
	for _, sp := range l.Spots {
		info.Spots = append(info.Spots, observerproto.Place{ID: sp.ID, Pos: xz(sp.Pos)})
	}
	for _, c := range l.Counters {
		info.Counters = append(info.Counters, observerproto.Place{ID: c.ID, Pos: xz(c.Pos), Staffed: c.Staffed})
	}
	for _, e := range l.Exits {
		info.Exits = append(info.Exits, observerproto.Place{ID: e.ID, Pos: xz(e.Pos)})
	}
	return info
}

func xz(p nav.Pos) [2]int { return [2]int{p.X, p.Z} }

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		tickOut := make(chan []byte, 8)

		joinReq := store.ObserverJoinRequest{
			SessionID:    sid,
			TickOut:      tickOut,
			HistoryDepth: sub.HistoryDepth,
			FocusAgentID: sub.FocusAgentID,
		}
		select {
		case s.store.ObserverJoin() <- joinReq:
		default:
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server busy"), time.Now().Add(time.Second))
			return
		}
		s.sessions.Add(1)
		defer s.sessions.Add(-1)
		defer func() {
			select {
			case s.store.ObserverLeave() <- sid:
			default:
				// Store loop is stopping; nothing else to do.
			}
		}()
		if s.log != nil {
			s.log.Printf("observer %s joined from %s", sid, r.RemoteAddr)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b, ok := <-tickOut:
					if !ok {
						writeErr <- nil
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var sub observerproto.SubscribeMsg
			if err := json.Unmarshal(msg, &sub); err != nil {
				continue
			}
			if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
				continue
			}
			req := store.ObserverSubscribeRequest{
				SessionID:    sid,
				HistoryDepth: sub.HistoryDepth,
				FocusAgentID: sub.FocusAgentID,
			}
			select {
			case s.store.ObserverSubscribe() <- req:
			default:
				// Drop updates under load; the client may resend.
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
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
