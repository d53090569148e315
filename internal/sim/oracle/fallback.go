package oracle

import (
	"fmt"

	"github.com/google/uuid"

	"fauna.ai/internal/sim/perception"
	"fauna.ai/internal/sim/plan"
	"fauna.ai/internal/sim/resources"
	"fauna.ai/internal/sim/state"
)

// Need thresholds for the deterministic fallback.
const (
	fallbackThirstUrgent = 70.0
	fallbackHungerUrgent = 70.0
	fallbackEnergyLow    = 30.0
	fallbackHappinessLow = 30.0
)

// FallbackPlan is the deterministic rule-based plan used whenever the
// oracle is unreachable or unusable: thirst, hunger, energy, shelter,
// mood, then exploration, in that priority order.
func (o *Adapter) FallbackPlan(a *state.Agent, snap perception.Snapshot) plan.Plan {
	p := plan.Plan{
		ID:      uuid.NewString(),
		AgentID: a.ID,
		Type:    plan.TypeFallback,
	}

	add := func(act plan.Action, params plan.Params, priority int, reason string) {
		p.Steps = append(p.Steps, plan.Step{
			ID:       uuid.NewString(),
			Action:   act,
			Params:   params,
			Priority: priority,
			Reason:   reason,
		})
	}

	if a.Stats.Thirst >= fallbackThirstUrgent {
		o.needSteps(a, snap, resources.TypeWater, plan.ActionDrinking, add)
		return p
	}
	if a.Stats.Hunger >= fallbackHungerUrgent {
		o.needSteps(a, snap, resources.TypeFood, plan.ActionEating, add)
		return p
	}
	if a.Stats.Energy <= fallbackEnergyLow {
		add(plan.ActionSleeping, plan.Params{}, 8, "energy low")
		return p
	}

	if needsShelter(snap) {
		if a.Inventory.Count(resources.TypeWood) >= 2 || a.Inventory.Count(resources.TypeStone) >= 2 {
			add(plan.ActionBuilding, plan.Params{}, 6, "no shelter nearby, materials on hand")
		} else {
			// One consistent rule: go find materials rather than idling.
			add(plan.ActionExploring, plan.Params{}, 6, "no shelter and no materials, searching")
		}
		return p
	}

	if a.Stats.Happiness <= fallbackHappinessLow {
		if len(snap.Agents) > 0 {
			add(plan.ActionSocializing, plan.Params{}, 5, "low spirits, company nearby")
		} else {
			add(plan.ActionPlaying, plan.Params{}, 5, "low spirits")
		}
		return p
	}

	add(plan.ActionExploring, plan.Params{}, 4, "nothing pressing")
	return p
}

// needSteps plans relief for one urgent consumable need: consume from
// inventory when possible; otherwise harvest a reachable node first
// (consumption is inventory-gated); otherwise close distance or search.
func (o *Adapter) needSteps(a *state.Agent, snap perception.Snapshot, want resources.Type, consume plan.Action,
	add func(plan.Action, plan.Params, int, string)) {

	haveItem := a.Inventory.Count(want) > 0
	if want == resources.TypeFood && !haveItem {
		haveItem = a.Inventory.Count(resources.TypeBerries) > 0
	}
	if haveItem {
		add(consume, plan.Params{}, 9, fmt.Sprintf("%s in inventory", want))
		return
	}

	matches := func(t resources.Type) bool {
		if t == want {
			return true
		}
		return want == resources.TypeFood && t == resources.TypeBerries
	}

	for _, r := range snap.Resources {
		if matches(r.Type) && r.CanHarvestNow {
			add(plan.ActionHarvesting, plan.Params{ResourceID: r.ID}, 9, fmt.Sprintf("%s within reach", r.Type))
			add(consume, plan.Params{}, 9, "consume after harvest")
			return
		}
	}
	for _, r := range snap.Resources {
		if matches(r.Type) && r.TooFarToHarvest {
			add(plan.ActionExploring, plan.Params{}, 8, fmt.Sprintf("%s visible but out of reach", r.Type))
			return
		}
	}
	add(plan.ActionExploring, plan.Params{}, 8, fmt.Sprintf("searching for %s", want))
}

// needsShelter: nothing shelter-like in sight.
func needsShelter(snap perception.Snapshot) bool {
	for _, s := range snap.Structures {
		if s.Type == resources.TypeShelter {
			return false
		}
	}
	for _, r := range snap.Resources {
		if r.Type == resources.TypeShelter {
			return false
		}
	}
	return true
}
