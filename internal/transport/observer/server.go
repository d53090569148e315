// Package observer serves the read-only websocket stream: SUBSCRIBE
// handshake, then one EVENTS batch and one TICK heartbeat per sim tick.
// Frames are fanned out from a state-store subscription on the world
// goroutine; a session that cannot keep up is disconnected rather than
// ever blocking the sim.
package observer

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"fauna.ai/internal/protocol"
	"fauna.ai/internal/sim/resources"
	"fauna.ai/internal/sim/state"
	"fauna.ai/internal/sim/tuning"
)

type session struct {
	id  string
	out chan []byte

	slowOnce sync.Once
	slowC    chan struct{}

	mu     sync.Mutex
	kinds  map[string]bool
	agents map[string]bool
}

func (s *session) markSlow() {
	s.slowOnce.Do(func() { close(s.slowC) })
}

func (s *session) setFilter(kinds, agents []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = toSet(kinds)
	s.agents = toSet(agents)
}

func toSet(vals []string) map[string]bool {
	if len(vals) == 0 {
		return nil
	}
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}

// filter returns the subset of events this session asked for. A nil
// kind/agent set means "all".
func (s *session) filter(events []protocol.ChangeEvent) []protocol.ChangeEvent {
	s.mu.Lock()
	kinds, agents := s.kinds, s.agents
	s.mu.Unlock()
	if kinds == nil && agents == nil {
		return events
	}
	var out []protocol.ChangeEvent
	for _, ev := range events {
		if kinds != nil && !kinds[ev.Kind] {
			continue
		}
		if agents != nil && !agents[ev.AgentID] {
			continue
		}
		out = append(out, ev)
	}
	return out
}

type Server struct {
	st  *state.Store
	res *resources.Registry
	cfg tuning.Tuning

	seed int64
	log  *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu       sync.Mutex
	sessions map[string]*session

	lastTick   atomic.Uint64
	agentCount atomic.Int64
	aliveCount atomic.Int64
}

func NewServer(st *state.Store, res *resources.Registry, cfg tuning.Tuning, seed int64, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "[observer] ", log.LstdFlags)
	}
	s := &Server{
		st:       st,
		res:      res,
		cfg:      cfg,
		seed:     seed,
		log:      logger,
		sessions: map[string]*session{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	st.Subscribe(s.fanout)
	return s
}

// fanout runs on the world goroutine inside the store flush. It must
// never block: full session buffers mark the session slow instead.
func (s *Server) fanout(events []protocol.ChangeEvent) {
	if len(events) == 0 {
		return
	}
	tick := events[len(events)-1].Tick
	s.lastTick.Store(tick)

	agents := s.st.AllAgents()
	alive := 0
	for _, a := range agents {
		if a.Alive {
			alive++
		}
	}
	s.agentCount.Store(int64(len(agents)))
	s.aliveCount.Store(int64(alive))

	heartbeat, _ := json.Marshal(protocol.TickMsg{
		Type:            protocol.TypeTick,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		Agents:          len(agents),
		Alive:           alive,
	})

	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		frames := make([][]byte, 0, 2)
		if evs := sess.filter(events); len(evs) > 0 {
			b, _ := json.Marshal(protocol.EventBatchMsg{
				Type:            protocol.TypeEvents,
				ProtocolVersion: protocol.Version,
				Tick:            tick,
				Events:          evs,
			})
			frames = append(frames, b)
		}
		frames = append(frames, heartbeat)
		for _, b := range frames {
			select {
			case sess.out <- b:
			default:
				sess.markSlow()
			}
		}
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		resp := protocol.BootstrapResponse{
			ProtocolVersion: protocol.Version,
			Tick:            s.lastTick.Load(),
			TickRateHz:      1000 / s.cfg.TickMs,
			Seed:            s.seed,
			Agents:          int(s.agentCount.Load()),
			ResourceNodes:   s.res.NodeCount(),
			WorldRadius:     s.cfg.WorldRadius,
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
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
		base, err := protocol.DecodeBase(msg)
		if err != nil || base.Type != protocol.TypeSubscribe || base.ProtocolVersion != protocol.Version {
			s.writeError(conn, protocol.ErrBadSubscribe, "expected SUBSCRIBE")
			return
		}
		var sub protocol.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			s.writeError(conn, protocol.ErrBadSubscribe, "expected SUBSCRIBE")
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		sess := &session{
			id:    sid,
			out:   make(chan []byte, 256),
			slowC: make(chan struct{}),
		}
		sess.setFilter(sub.Kinds, sub.AgentIDs)

		s.mu.Lock()
		s.sessions[sid] = sess
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.sessions, sid)
			s.mu.Unlock()
		}()
		s.log.Printf("observer %s connected from %s", sid, r.RemoteAddr)

		done := make(chan struct{})
		defer close(done)

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-done:
					writeErr <- nil
					return
				case <-sess.slowC:
					s.writeError(conn, protocol.ErrSlowConsumer, "event buffer overflow")
					writeErr <- nil
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates to narrow the filter.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			select {
			case <-sess.slowC:
			default:
				base, err := protocol.DecodeBase(msg)
				if err != nil || base.Type != protocol.TypeSubscribe || base.ProtocolVersion != protocol.Version {
					continue
				}
				var upd protocol.SubscribeMsg
				if err := json.Unmarshal(msg, &upd); err != nil {
					continue
				}
				sess.setFilter(upd.Kinds, upd.AgentIDs)
				continue
			}
			break
		}

		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait so the writer doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) writeError(conn *websocket.Conn, code, msg string) {
	b, _ := json.Marshal(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         msg,
	})
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = conn.WriteMessage(websocket.TextMessage, b)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code), time.Now().Add(time.Second))
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
