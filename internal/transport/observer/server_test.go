package observer

import (
	"encoding/json"
	"io"
	"log"
	"testing"
	"time"

	"fauna.ai/internal/protocol"
	"fauna.ai/internal/sim/genetics"
	"fauna.ai/internal/sim/resources"
	"fauna.ai/internal/sim/state"
	"fauna.ai/internal/sim/tuning"
)

func newTestServer() (*Server, *state.Store) {
	st := state.NewStore()
	res := resources.NewRegistry(1)
	return NewServer(st, res, tuning.Default(), 42, log.New(io.Discard, "", 0)), st
}

func addSession(s *Server, id string, buf int) *session {
	sess := &session{id: id, out: make(chan []byte, buf), slowC: make(chan struct{})}
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	return sess
}

func testAgent(id string) *state.Agent {
	return &state.Agent{
		ID: id, Name: id,
		Traits:    genetics.Traits{Size: 1, Generation: 1},
		Stats:     state.Stats{Health: 90, Hunger: 20, Energy: 80, Happiness: 70, Thirst: 20},
		Inventory: state.Inventory{MaxCapacity: 40},
		BornAt:    time.Now(),
		Lifespan:  time.Hour,
		Alive:     true,
	}
}

func TestFilterByKindAndAgent(t *testing.T) {
	sess := &session{slowC: make(chan struct{})}
	events := []protocol.ChangeEvent{
		{Kind: protocol.ChangeStats, AgentID: "A1"},
		{Kind: protocol.ChangePosition, AgentID: "A1"},
		{Kind: protocol.ChangeStats, AgentID: "A2"},
	}

	if got := sess.filter(events); len(got) != 3 {
		t.Fatalf("no filter should pass everything, got %d", len(got))
	}

	sess.setFilter([]string{protocol.ChangeStats}, nil)
	if got := sess.filter(events); len(got) != 2 {
		t.Fatalf("kind filter: expected 2, got %d", len(got))
	}

	sess.setFilter([]string{protocol.ChangeStats}, []string{"A2"})
	got := sess.filter(events)
	if len(got) != 1 || got[0].AgentID != "A2" {
		t.Fatalf("combined filter: expected one A2 stats event, got %+v", got)
	}
}

func TestFanoutDeliversBatchAndHeartbeat(t *testing.T) {
	s, st := newTestServer()
	sess := addSession(s, "O1", 8)

	st.SetAgent(testAgent("A1"))
	st.Flush(7)

	if n := len(sess.out); n != 2 {
		t.Fatalf("expected events frame plus heartbeat, got %d frames", n)
	}
	var batch protocol.EventBatchMsg
	if err := json.Unmarshal(<-sess.out, &batch); err != nil {
		t.Fatalf("bad events frame: %v", err)
	}
	if batch.Type != protocol.TypeEvents || batch.Tick != 7 || len(batch.Events) != 1 {
		t.Fatalf("unexpected batch: %+v", batch)
	}
	var hb protocol.TickMsg
	if err := json.Unmarshal(<-sess.out, &hb); err != nil {
		t.Fatalf("bad heartbeat: %v", err)
	}
	if hb.Type != protocol.TypeTick || hb.Agents != 1 || hb.Alive != 1 {
		t.Fatalf("unexpected heartbeat: %+v", hb)
	}
	if s.lastTick.Load() != 7 {
		t.Fatalf("bootstrap tick cache not updated: %d", s.lastTick.Load())
	}
}

func TestSlowSessionIsMarkedNotBlocked(t *testing.T) {
	s, st := newTestServer()
	sess := addSession(s, "O1", 1)
	sess.out <- []byte("{}") // fill the buffer

	done := make(chan struct{})
	go func() {
		st.SetAgent(testAgent("A1"))
		st.Flush(1)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("fanout blocked on a slow session")
	}
	select {
	case <-sess.slowC:
	default:
		t.Fatalf("overflowing session should be marked slow")
	}
}
