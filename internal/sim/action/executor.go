package action

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"fauna.ai/internal/sim/perception"
	"fauna.ai/internal/sim/plan"
	"fauna.ai/internal/sim/resources"
	"fauna.ai/internal/sim/state"
)

// WorldQuery is the read side of the resource registry the executor
// revalidates against; quantity mutation stays with the caller.
type WorldQuery interface {
	Node(id string) (resources.Node, bool)
}

// Result is everything one executed action wants to happen. Handlers
// never mutate the agent or the world; the tick controller applies
// Effects, ResourceID/HarvestAmount, and the structure fields in one
// transactional pass before advancing the plan cursor.
type Result struct {
	Success bool
	Message string

	Effects state.ActionEffects

	// harvesting: deplete this node by HarvestAmount.
	ResourceID    string
	HarvestAmount float64

	// building/working: create or advance a structure.
	NewStructure   bool
	StructureID    string
	StructureDelta float64

	// Duration is animation pacing only, never scheduling.
	Duration time.Duration
}

func failure(msg string) Result {
	return Result{Message: msg, Duration: time.Second}
}

// Executor runs one handler per action in the closed vocabulary.
type Executor struct {
	query WorldQuery
	perc  *perception.Builder
	rng   *rand.Rand

	worldRadius float64
}

func NewExecutor(query WorldQuery, perc *perception.Builder, rng *rand.Rand, worldRadius float64) *Executor {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Executor{query: query, perc: perc, rng: rng, worldRadius: worldRadius}
}

// Execute dispatches to the action's handler. Unknown actions route to
// idle; a panicking handler is converted into a structured failure so
// one agent's fault never halts the tick loop.
func (e *Executor) Execute(a *state.Agent, act plan.Action, params plan.Params, snap perception.Snapshot) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = failure(fmt.Sprintf("action %s panicked: %v", act, r))
		}
	}()

	switch act {
	case plan.ActionEating:
		return e.eat(a)
	case plan.ActionDrinking:
		return e.drink(a)
	case plan.ActionSleeping:
		return e.sleep(a)
	case plan.ActionPlaying:
		return e.play(a)
	case plan.ActionMoving:
		return e.move(a, params)
	case plan.ActionExploring:
		return e.explore(a, params, snap)
	case plan.ActionSocializing:
		return e.socialize(a, params, snap)
	case plan.ActionWorking:
		return e.work(a, snap)
	case plan.ActionMating:
		return e.mate(a, params, snap)
	case plan.ActionHarvesting:
		return e.harvest(a, params, snap)
	case plan.ActionBuilding:
		return e.build(a, params, snap)
	default:
		return e.idle(a)
	}
}

func (e *Executor) idle(a *state.Agent) Result {
	return Result{
		Success:  true,
		Message:  "resting in place",
		Effects:  state.ActionEffects{Stats: state.StatDeltas{Energy: 2}},
		Duration: 2 * time.Second,
	}
}

// eat consumes one food (or berries) item already in inventory. The
// inventory gate is hard: no item, no stat change — sequencing harvest
// before consumption is the planning layer's problem.
func (e *Executor) eat(a *state.Agent) Result {
	t := resources.TypeFood
	if a.Inventory.Count(t) == 0 {
		t = resources.TypeBerries
	}
	if a.Inventory.Count(t) == 0 {
		return failure("nothing edible in inventory")
	}
	quality := a.Inventory.QualityOf(t)
	return Result{
		Success: true,
		Message: fmt.Sprintf("ate %s", t),
		Effects: state.ActionEffects{
			Stats:    state.StatDeltas{Hunger: -(25 + quality*0.15), Happiness: 3},
			Consumed: &state.ItemChange{Type: t, Quantity: 1},
		},
		Duration: 3 * time.Second,
	}
}

func (e *Executor) drink(a *state.Agent) Result {
	if a.Inventory.Count(resources.TypeWater) == 0 {
		return failure("no water in inventory")
	}
	quality := a.Inventory.QualityOf(resources.TypeWater)
	return Result{
		Success: true,
		Message: "drank water",
		Effects: state.ActionEffects{
			Stats:    state.StatDeltas{Thirst: -(30 + quality*0.1), Happiness: 1},
			Consumed: &state.ItemChange{Type: resources.TypeWater, Quantity: 1},
		},
		Duration: 2 * time.Second,
	}
}

func (e *Executor) sleep(a *state.Agent) Result {
	return Result{
		Success:  true,
		Message:  "slept",
		Effects:  state.ActionEffects{Stats: state.StatDeltas{Energy: 40, Happiness: 2}},
		Duration: 8 * time.Second,
	}
}

func (e *Executor) play(a *state.Agent) Result {
	if a.Stats.Energy < 15 {
		return failure("too tired to play")
	}
	return Result{
		Success: true,
		Message: "played",
		Effects: state.ActionEffects{
			Stats: state.StatDeltas{
				Happiness: 12 + a.Traits.Playfulness*10,
				Energy:    -10,
			},
		},
		Duration: 4 * time.Second,
	}
}

// moveCost scales with distance, body size, and (inversely) agility.
func moveCost(a *state.Agent, dist float64) float64 {
	return dist * 0.3 * a.Traits.Size / (1 + a.Traits.Agility/100)
}

func (e *Executor) clampToWorld(x, z float64) (float64, float64) {
	if e.worldRadius <= 0 {
		return x, z
	}
	d := math.Sqrt(x*x + z*z)
	if d <= e.worldRadius {
		return x, z
	}
	scale := e.worldRadius / d
	return x * scale, z * scale
}

func (e *Executor) moveTo(a *state.Agent, tx, tz float64, verb string) Result {
	tx, tz = e.clampToWorld(tx, tz)
	dist := resources.PlanarDistance(a.Pos.X, a.Pos.Z, tx, tz)
	cost := moveCost(a, dist)
	if a.Stats.Energy < cost {
		return failure(fmt.Sprintf("not enough energy to travel %.1f", dist))
	}
	rot := math.Atan2(tz-a.Pos.Z, tx-a.Pos.X)
	pos := state.Position{X: tx, Y: a.Pos.Y, Z: tz, Rotation: rot}
	return Result{
		Success: true,
		Message: fmt.Sprintf("%s %.1f", verb, dist),
		Effects: state.ActionEffects{
			Stats:       state.StatDeltas{Energy: -cost},
			NewPosition: &pos,
		},
		Duration: time.Duration(dist*200) * time.Millisecond,
	}
}

func (e *Executor) move(a *state.Agent, params plan.Params) Result {
	if params.Target == nil {
		return failure("moving requires a target")
	}
	return e.moveTo(a, params.Target.X, params.Target.Z, "moved")
}

// explore moves toward an explicit target, or asks the perception
// goal heuristic for one, and remembers what turned up at the far end.
func (e *Executor) explore(a *state.Agent, params plan.Params, snap perception.Snapshot) Result {
	var tx, tz float64
	reason := "directed"
	if params.Target != nil {
		tx, tz = params.Target.X, params.Target.Z
	} else {
		goal := e.perc.ExplorationGoal(a, snap, urgentNeed(a), e.rng, snap.SightRadius)
		tx, tz, reason = goal.X, goal.Z, goal.Reason
	}

	res := e.moveTo(a, tx, tz, "explored")
	if !res.Success {
		return res
	}
	res.Message = fmt.Sprintf("explored toward %s", reason)

	// Anything new within reach of the destination becomes a memory.
	if found := e.discoveryAt(a, snap, tx, tz); found != nil {
		e.perc.Memories().Record(a.ID, *found)
	}
	return res
}

// urgentNeed maps pressing stats to the resource type that relieves them.
func urgentNeed(a *state.Agent) resources.Type {
	switch {
	case a.Stats.Thirst >= 70:
		return resources.TypeWater
	case a.Stats.Hunger >= 70:
		return resources.TypeFood
	default:
		return ""
	}
}

func (e *Executor) discoveryAt(a *state.Agent, snap perception.Snapshot, tx, tz float64) *perception.Memory {
	for _, r := range snap.Resources {
		if !r.TooFarToHarvest {
			continue
		}
		n, ok := e.query.Node(r.ID)
		if !ok {
			continue
		}
		if resources.PlanarDistance(tx, tz, n.X, n.Z) <= snap.HarvestRadius*2 {
			return &perception.Memory{
				Kind:         perception.MemoryDiscovery,
				ResourceType: n.Type,
				X:            n.X,
				Z:            n.Z,
				At:           time.Now(),
				Note:         fmt.Sprintf("found %s while exploring", n.Type),
				Reliability:  0.8,
			}
		}
	}
	return nil
}

func (e *Executor) socialize(a *state.Agent, params plan.Params, snap perception.Snapshot) Result {
	if len(snap.Agents) == 0 {
		return failure("no one nearby to socialize with")
	}
	partner := snap.Agents[0]
	if params.PartnerID != "" {
		found := false
		for _, n := range snap.Agents {
			if n.ID == params.PartnerID {
				partner, found = n, true
				break
			}
		}
		if !found {
			return failure(fmt.Sprintf("%s is not nearby", params.PartnerID))
		}
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("socialized with %s", partner.Name),
		Effects: state.ActionEffects{
			Stats: state.StatDeltas{
				Happiness: 8 + a.Traits.Sociability*0.1,
				Energy:    -4,
			},
		},
		Duration: 5 * time.Second,
	}
}

func (e *Executor) work(a *state.Agent, snap perception.Snapshot) Result {
	if a.Stats.Energy < 12 {
		return failure("too tired to work")
	}
	res := Result{
		Success: true,
		Message: "worked",
		Effects: state.ActionEffects{
			Stats: state.StatDeltas{Energy: -10, Happiness: 1},
		},
		Duration: 6 * time.Second,
	}
	// Working next to an unfinished shelter advances it.
	for _, s := range snap.Structures {
		if s.Progress < 1 && s.Distance <= snap.HarvestRadius {
			res.StructureID = s.ID
			res.StructureDelta = 0.1 + a.Traits.Strength/1000
			res.Message = "worked on shelter"
			break
		}
	}
	return res
}

func (e *Executor) mate(a *state.Agent, params plan.Params, snap perception.Snapshot) Result {
	if a.Stats.Energy < 30 {
		return failure("not enough energy to mate")
	}
	if len(snap.Agents) == 0 {
		return failure("no potential mate nearby")
	}
	partner := snap.Agents[0]
	if params.PartnerID != "" {
		found := false
		for _, n := range snap.Agents {
			if n.ID == params.PartnerID {
				partner, found = n, true
				break
			}
		}
		if !found {
			return failure(fmt.Sprintf("%s is not nearby", params.PartnerID))
		}
	}
	// Offspring creation belongs to the breeding system; the action only
	// spends the effort and signals intent.
	return Result{
		Success: true,
		Message: fmt.Sprintf("courted %s", partner.Name),
		Effects: state.ActionEffects{
			Stats: state.StatDeltas{Energy: -20, Happiness: 15},
		},
		Duration: 6 * time.Second,
	}
}

// harvest revalidates everything at execution time: the node must still
// be in sight, harvestable, non-empty, and within harvest radius. The
// world may have changed since the plan was made.
func (e *Executor) harvest(a *state.Agent, params plan.Params, snap perception.Snapshot) Result {
	if params.ResourceID == "" {
		return failure("harvesting requires a resource id")
	}
	if _, ok := snap.Resource(params.ResourceID); !ok {
		return failure(fmt.Sprintf("resource %s is not in sight", params.ResourceID))
	}
	node, ok := e.query.Node(params.ResourceID)
	if !ok || !node.Harvestable || node.Quantity <= 0 {
		return failure(fmt.Sprintf("resource %s is no longer harvestable", params.ResourceID))
	}
	dist := resources.PlanarDistance(a.Pos.X, a.Pos.Z, node.X, node.Z)
	if dist > snap.HarvestRadius {
		return failure(fmt.Sprintf("resource %s is out of reach (%.1f away)", params.ResourceID, dist))
	}

	// Only whole units leave a node: a fractional remainder stays put
	// until regeneration tops it back up.
	avail := math.Floor(node.Quantity)
	if avail < 1 {
		return failure(fmt.Sprintf("resource %s is nearly depleted", params.ResourceID))
	}
	yield := 1 + math.Floor((a.Traits.Strength+a.Traits.Intelligence)/50)
	if yield > avail {
		yield = avail
	}
	qty := int(yield)
	if !a.Inventory.CanCarry(node.Type, qty) {
		return failure(fmt.Sprintf("carrying too much to take %d %s", qty, node.Type))
	}
	return Result{
		Success:       true,
		Message:       fmt.Sprintf("harvested %d %s", qty, node.Type),
		ResourceID:    node.ID,
		HarvestAmount: float64(qty),
		Effects: state.ActionEffects{
			Stats:     state.StatDeltas{Energy: -5},
			Harvested: &state.ItemChange{Type: node.Type, Quantity: qty, Quality: node.Quality},
		},
		Duration: 4 * time.Second,
	}
}

// build spends materials on a shelter: advancing the named one when
// given, otherwise starting fresh where the agent stands.
func (e *Executor) build(a *state.Agent, params plan.Params, snap perception.Snapshot) Result {
	material := resources.TypeWood
	if a.Inventory.Count(material) < 2 {
		material = resources.TypeStone
	}
	if a.Inventory.Count(material) < 2 {
		return failure("not enough materials to build (need 2 wood or stone)")
	}
	if a.Stats.Energy < 15 {
		return failure("not enough energy to build")
	}

	res := Result{
		Success: true,
		Effects: state.ActionEffects{
			Stats:    state.StatDeltas{Energy: -15, Happiness: 4},
			Consumed: &state.ItemChange{Type: material, Quantity: 2},
		},
		Duration: 10 * time.Second,
	}
	if params.StructureID != "" {
		for _, s := range snap.Structures {
			if s.ID == params.StructureID && s.Distance <= snap.HarvestRadius {
				res.StructureID = s.ID
				res.StructureDelta = 0.25
				res.Message = "built onto shelter"
				return res
			}
		}
		return failure(fmt.Sprintf("structure %s is not within reach", params.StructureID))
	}
	res.NewStructure = true
	res.StructureDelta = 0.25
	res.Message = "started a shelter"
	return res
}
