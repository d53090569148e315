package state

import (
	"testing"
	"time"

	"fauna.ai/internal/protocol"
	"fauna.ai/internal/sim/resources"
)

func testAgent(id string) *Agent {
	return &Agent{
		ID:    id,
		Name:  "test-" + id,
		Stats: Stats{Health: 80, Hunger: 20, Energy: 70, Happiness: 60, Thirst: 30},
		Pos:   Position{X: 1, Z: 2},
		Inventory: Inventory{
			MaxCapacity: 20,
		},
		BornAt:        time.Now(),
		Lifespan:      time.Hour,
		Alive:         true,
		CurrentAction: "idle",
	}
}

func TestStatsClamped(t *testing.T) {
	s := NewStore()
	s.SetAgent(testAgent("A1"))

	if !s.UpdateStats("A1", StatDeltas{Hunger: 500, Health: -500}, "test") {
		t.Fatalf("update on existing agent must succeed")
	}
	a, _ := s.Agent("A1")
	if a.Stats.Hunger != 100 {
		t.Fatalf("hunger not clamped to 100: %v", a.Stats.Hunger)
	}
	if a.Stats.Health != 0 {
		t.Fatalf("health not clamped to 0: %v", a.Stats.Health)
	}
}

func TestMissingAgentIsNoop(t *testing.T) {
	s := NewStore()
	if s.UpdateStats("ghost", StatDeltas{Hunger: 1}, "test") {
		t.Fatalf("expected false for missing agent")
	}
	if s.UpdatePosition("ghost", Position{}, "test") {
		t.Fatalf("expected false for missing agent")
	}
	if s.UpdateAge("ghost", 0.5, true) {
		t.Fatalf("expected false for missing agent")
	}
	if s.UpdateFromActionResult("ghost", ActionEffects{}, "idle", "test") {
		t.Fatalf("expected false for missing agent")
	}
}

func TestMutationsAreOrthogonal(t *testing.T) {
	s := NewStore()
	a := testAgent("A1")
	a.Inventory.Add(resources.TypeFood, 2, 50)
	s.SetAgent(a)

	s.UpdateStats("A1", StatDeltas{Energy: -10}, "test")
	got, _ := s.Agent("A1")
	if got.Pos != a.Pos {
		t.Fatalf("stats update disturbed position")
	}
	if got.Inventory.Count(resources.TypeFood) != 2 {
		t.Fatalf("stats update disturbed inventory")
	}
	if got.CurrentAction != "idle" {
		t.Fatalf("stats update disturbed action label")
	}

	s.UpdatePosition("A1", Position{X: 9}, "test")
	got, _ = s.Agent("A1")
	if got.Stats.Energy != 60 {
		t.Fatalf("position update disturbed stats: %v", got.Stats.Energy)
	}
}

func TestFlushBatchesAndDefers(t *testing.T) {
	s := NewStore()
	s.SetAgent(testAgent("A1"))
	s.UpdateStats("A1", StatDeltas{Hunger: 1}, "tick")
	s.UpdateStats("A1", StatDeltas{Hunger: 1}, "tick")
	s.UpdatePosition("A1", Position{X: 3}, "action")

	var batches [][]protocol.ChangeEvent
	s.Subscribe(func(evs []protocol.ChangeEvent) {
		batches = append(batches, evs)
		// A subscriber reacting with another mutation must not see its
		// own event in the current batch.
		if len(batches) == 1 {
			s.UpdateAction("A1", "sleeping", "subscriber")
		}
	})

	s.Flush(7)
	if len(batches) != 1 {
		t.Fatalf("expected one batched callback, got %d", len(batches))
	}
	if len(batches[0]) != 4 {
		t.Fatalf("expected 4 events in batch, got %d", len(batches[0]))
	}
	for _, ev := range batches[0] {
		if ev.Tick != 7 {
			t.Fatalf("expected tick 7 on event, got %d", ev.Tick)
		}
	}

	// The deferred subscriber event arrives on the next flush.
	s.Flush(8)
	if len(batches) != 2 {
		t.Fatalf("expected second flush to fire, got %d batches", len(batches))
	}
	if len(batches[1]) != 1 || batches[1][0].Kind != protocol.ChangeAction {
		t.Fatalf("expected deferred ACTION event, got %+v", batches[1])
	}

	// Nothing left.
	if got := s.Flush(9); got != nil {
		t.Fatalf("expected empty flush, got %d events", len(got))
	}
}

func TestUpdateFromActionResultTransactional(t *testing.T) {
	s := NewStore()
	a := testAgent("A1")
	a.Inventory.Add(resources.TypeBerries, 3, 70)
	s.SetAgent(a)

	pos := Position{X: 5, Z: 5}
	ok := s.UpdateFromActionResult("A1", ActionEffects{
		Stats:       StatDeltas{Hunger: -25, Happiness: 5},
		NewPosition: &pos,
		Consumed:    &ItemChange{Type: resources.TypeBerries, Quantity: 1},
	}, "eating", "action")
	if !ok {
		t.Fatalf("expected success")
	}

	got, _ := s.Agent("A1")
	if got.Stats.Hunger != 0 {
		t.Fatalf("expected hunger 0 after -25 from 20 (clamped), got %v", got.Stats.Hunger)
	}
	if got.Inventory.Count(resources.TypeBerries) != 2 {
		t.Fatalf("expected 2 berries left, got %d", got.Inventory.Count(resources.TypeBerries))
	}
	if got.Pos != pos {
		t.Fatalf("position not applied: %+v", got.Pos)
	}
	if got.CurrentAction != "eating" {
		t.Fatalf("action label not applied: %q", got.CurrentAction)
	}
}

func TestInventoryWeightInvariant(t *testing.T) {
	inv := Inventory{MaxCapacity: 10}
	if !inv.Add(resources.TypeStone, 3, 50) { // 9.0
		t.Fatalf("expected add to succeed")
	}
	if inv.Add(resources.TypeStone, 1, 50) { // would be 12.0
		t.Fatalf("expected capacity rejection")
	}
	if inv.CurrentWeight != 9 {
		t.Fatalf("expected weight 9, got %v", inv.CurrentWeight)
	}
	inv.Remove(resources.TypeStone, 2)
	if inv.CurrentWeight != 3 {
		t.Fatalf("expected weight 3 after removal, got %v", inv.CurrentWeight)
	}
	if len(inv.Items) != 1 || inv.Items[0].Quantity != 1 {
		t.Fatalf("unexpected inventory: %+v", inv.Items)
	}
}

func TestRemoveAgent(t *testing.T) {
	s := NewStore()
	s.SetAgent(testAgent("A1"))
	if !s.Remove("A1") {
		t.Fatalf("expected removal to succeed")
	}
	if s.Remove("A1") {
		t.Fatalf("expected second removal to report false")
	}
	if _, ok := s.Agent("A1"); ok {
		t.Fatalf("agent still present after removal")
	}
}
