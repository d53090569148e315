package action

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"fauna.ai/internal/sim/perception"
	"fauna.ai/internal/sim/plan"
	"fauna.ai/internal/sim/resources"
	"fauna.ai/internal/sim/state"
	"fauna.ai/internal/sim/tuning"
)

type fixture struct {
	res  *resources.Registry
	st   *state.Store
	perc *perception.Builder
	exec *Executor
}

func newFixture() *fixture {
	res := resources.NewRegistry(1)
	st := state.NewStore()
	mem := perception.NewMemoryStore(20)
	perc := perception.NewBuilder(res, st, mem, tuning.Default().Perception)
	exec := NewExecutor(res, perc, rand.New(rand.NewSource(7)), 200)
	return &fixture{res: res, st: st, perc: perc, exec: exec}
}

func (f *fixture) agent(x, z float64) *state.Agent {
	a := &state.Agent{
		ID:        "A1",
		Name:      "test",
		Pos:       state.Position{X: x, Z: z},
		Stats:     state.Stats{Health: 80, Hunger: 40, Energy: 80, Happiness: 50, Thirst: 40},
		Inventory: state.Inventory{MaxCapacity: 30},
		Alive:     true,
	}
	f.st.SetAgent(a)
	return a
}

func (f *fixture) snapshot(a *state.Agent) perception.Snapshot {
	return f.perc.Build(a, time.Now())
}

func TestHarvestRangeRevalidation(t *testing.T) {
	f := newFixture()
	f.res.AddNode(resources.Node{ID: "R1", Type: resources.TypeBerries, X: 5, Quantity: 5, Harvestable: true, Quality: 60})

	// Distance 5 with harvest radius 4: structured failure, no depletion.
	a := f.agent(0, 0)
	res := f.exec.Execute(a, plan.ActionHarvesting, plan.Params{ResourceID: "R1"}, f.snapshot(a))
	if res.Success {
		t.Fatalf("expected out-of-range failure")
	}
	n, _ := f.res.Node("R1")
	if n.Quantity != 5 {
		t.Fatalf("failed harvest must not touch quantity, got %v", n.Quantity)
	}

	// Moved to distance 2: success with yield <= 5.
	a.Pos.X = 3
	f.st.SetAgent(a)
	res = f.exec.Execute(a, plan.ActionHarvesting, plan.Params{ResourceID: "R1"}, f.snapshot(a))
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Message)
	}
	if res.HarvestAmount <= 0 || res.HarvestAmount > 5 {
		t.Fatalf("yield out of bounds: %v", res.HarvestAmount)
	}
	if res.Effects.Harvested == nil || res.Effects.Harvested.Type != resources.TypeBerries {
		t.Fatalf("expected harvested item grant, got %+v", res.Effects)
	}

	// Applying the result depletes the node by exactly the yield.
	got := f.res.Harvest(res.ResourceID, res.HarvestAmount)
	if !got.Success || got.Amount != res.HarvestAmount {
		t.Fatalf("registry application mismatch: %+v", got)
	}
	n, _ = f.res.Node("R1")
	if n.Quantity != 5-res.HarvestAmount {
		t.Fatalf("expected quantity %v, got %v", 5-res.HarvestAmount, n.Quantity)
	}
}

func TestHarvestCapacityCheck(t *testing.T) {
	f := newFixture()
	f.res.AddNode(resources.Node{ID: "R1", Type: resources.TypeStone, X: 2, Quantity: 10, Harvestable: true})
	a := f.agent(0, 0)
	a.Inventory.MaxCapacity = 1 // one stone weighs 3
	f.st.SetAgent(a)

	res := f.exec.Execute(a, plan.ActionHarvesting, plan.Params{ResourceID: "R1"}, f.snapshot(a))
	if res.Success {
		t.Fatalf("expected capacity failure")
	}
	if !strings.Contains(res.Message, "carrying too much") {
		t.Fatalf("unexpected message: %q", res.Message)
	}
}

func TestEatDrinkInventoryGated(t *testing.T) {
	f := newFixture()
	a := f.agent(0, 0)

	res := f.exec.Execute(a, plan.ActionEating, plan.Params{}, f.snapshot(a))
	if res.Success {
		t.Fatalf("eating with empty inventory must fail")
	}
	if res.Effects.Stats != (state.StatDeltas{}) {
		t.Fatalf("failed eating must carry no stat change, got %+v", res.Effects.Stats)
	}

	res = f.exec.Execute(a, plan.ActionDrinking, plan.Params{}, f.snapshot(a))
	if res.Success {
		t.Fatalf("drinking with empty inventory must fail")
	}

	// Grant one item of each and retry.
	a.Inventory.Add(resources.TypeFood, 1, 50)
	a.Inventory.Add(resources.TypeWater, 1, 50)
	f.st.SetAgent(a)

	res = f.exec.Execute(a, plan.ActionEating, plan.Params{}, f.snapshot(a))
	if !res.Success || res.Effects.Stats.Hunger >= 0 {
		t.Fatalf("expected hunger reduction, got %+v (%q)", res.Effects.Stats, res.Message)
	}
	if res.Effects.Consumed == nil || res.Effects.Consumed.Type != resources.TypeFood {
		t.Fatalf("expected food consumption, got %+v", res.Effects.Consumed)
	}

	res = f.exec.Execute(a, plan.ActionDrinking, plan.Params{}, f.snapshot(a))
	if !res.Success || res.Effects.Stats.Thirst >= 0 {
		t.Fatalf("expected thirst reduction, got %+v", res.Effects.Stats)
	}
}

func TestMoveCostsEnergyByDistance(t *testing.T) {
	f := newFixture()
	a := f.agent(0, 0)
	a.Traits.Size = 1
	f.st.SetAgent(a)

	res := f.exec.Execute(a, plan.ActionMoving, plan.Params{Target: &plan.Target{X: 10, Z: 0}}, f.snapshot(a))
	if !res.Success {
		t.Fatalf("expected move success, got %q", res.Message)
	}
	if res.Effects.NewPosition == nil || res.Effects.NewPosition.X != 10 {
		t.Fatalf("expected position at target, got %+v", res.Effects.NewPosition)
	}
	if res.Effects.Stats.Energy >= 0 {
		t.Fatalf("expected energy cost, got %v", res.Effects.Stats.Energy)
	}

	a.Stats.Energy = 1
	f.st.SetAgent(a)
	res = f.exec.Execute(a, plan.ActionMoving, plan.Params{Target: &plan.Target{X: 100, Z: 0}}, f.snapshot(a))
	if res.Success {
		t.Fatalf("expected exhaustion failure")
	}
}

func TestMoveClampedToWorldRadius(t *testing.T) {
	f := newFixture()
	a := f.agent(0, 0)
	res := f.exec.Execute(a, plan.ActionMoving, plan.Params{Target: &plan.Target{X: 1000, Z: 0}}, f.snapshot(a))
	if res.Success {
		// The clamp lands on the boundary; the move may still fail on
		// energy, but a successful one must not leave the world.
		if res.Effects.NewPosition.X > 200.01 {
			t.Fatalf("position outside world radius: %v", res.Effects.NewPosition.X)
		}
	}
}

func TestUnknownActionRoutesToIdle(t *testing.T) {
	f := newFixture()
	a := f.agent(0, 0)
	res := f.exec.Execute(a, plan.Action("levitating"), plan.Params{}, f.snapshot(a))
	if !res.Success || res.Effects.Stats.Energy <= 0 {
		t.Fatalf("unknown action must fall through to idle, got %+v", res)
	}
}

func TestSocializeNeedsCompany(t *testing.T) {
	f := newFixture()
	a := f.agent(0, 0)
	res := f.exec.Execute(a, plan.ActionSocializing, plan.Params{}, f.snapshot(a))
	if res.Success {
		t.Fatalf("socializing alone must fail")
	}

	other := &state.Agent{ID: "A2", Name: "buddy", Pos: state.Position{X: 2}, Alive: true,
		Inventory: state.Inventory{MaxCapacity: 10}}
	f.st.SetAgent(other)
	res = f.exec.Execute(a, plan.ActionSocializing, plan.Params{}, f.snapshot(a))
	if !res.Success || res.Effects.Stats.Happiness <= 0 {
		t.Fatalf("expected happy socializing, got %+v (%q)", res.Effects.Stats, res.Message)
	}

	res = f.exec.Execute(a, plan.ActionSocializing, plan.Params{PartnerID: "A9"}, f.snapshot(a))
	if res.Success {
		t.Fatalf("naming an absent partner must fail")
	}
}

func TestBuildConsumesMaterials(t *testing.T) {
	f := newFixture()
	a := f.agent(0, 0)

	res := f.exec.Execute(a, plan.ActionBuilding, plan.Params{}, f.snapshot(a))
	if res.Success {
		t.Fatalf("building without materials must fail")
	}

	a.Inventory.Add(resources.TypeWood, 3, 50)
	f.st.SetAgent(a)
	res = f.exec.Execute(a, plan.ActionBuilding, plan.Params{}, f.snapshot(a))
	if !res.Success || !res.NewStructure {
		t.Fatalf("expected new structure, got %+v", res)
	}
	if res.Effects.Consumed == nil || res.Effects.Consumed.Quantity != 2 {
		t.Fatalf("expected 2 wood consumed, got %+v", res.Effects.Consumed)
	}
}

func TestWorkAdvancesNearbyShelter(t *testing.T) {
	f := newFixture()
	a := f.agent(0, 0)
	f.res.AddStructure(resources.Structure{ID: "S1", Type: resources.TypeShelter, X: 2, Progress: 0.5})

	res := f.exec.Execute(a, plan.ActionWorking, plan.Params{}, f.snapshot(a))
	if !res.Success || res.StructureID != "S1" || res.StructureDelta <= 0 {
		t.Fatalf("expected shelter progress, got %+v", res)
	}
}

func TestHarvestRejectsFractionalRemainder(t *testing.T) {
	f := newFixture()
	f.res.AddNode(resources.Node{ID: "R1", Type: resources.TypeWater, X: 2, Quantity: 0.5, Harvestable: true, Regenerates: true})
	a := f.agent(0, 0)

	res := f.exec.Execute(a, plan.ActionHarvesting, plan.Params{ResourceID: "R1"}, f.snapshot(a))
	if res.Success {
		t.Fatalf("expected failure on a sub-unit node")
	}
	if res.HarvestAmount != 0 {
		t.Fatalf("no yield may be claimed from a sub-unit node, got %v", res.HarvestAmount)
	}
	n, _ := f.res.Node("R1")
	if n.Quantity != 0.5 {
		t.Fatalf("remainder must stay for regeneration, got %v", n.Quantity)
	}

	// Whole units on top of a fraction: only the whole part is taken.
	f.res.AddNode(resources.Node{ID: "R2", Type: resources.TypeWater, X: 2, Quantity: 1.5, Harvestable: true, Regenerates: true})
	res = f.exec.Execute(a, plan.ActionHarvesting, plan.Params{ResourceID: "R2"}, f.snapshot(a))
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Message)
	}
	if res.HarvestAmount != 1 {
		t.Fatalf("expected a single whole unit, got %v", res.HarvestAmount)
	}
	got := f.res.Harvest(res.ResourceID, res.HarvestAmount)
	if !got.Success || got.Amount != 1 {
		t.Fatalf("registry settle mismatch: %+v", got)
	}
	n, _ = f.res.Node("R2")
	if n.Quantity != 0.5 {
		t.Fatalf("expected 0.5 left, got %v", n.Quantity)
	}
}
