package oracle

import (
	"encoding/json"
	"fmt"
	"time"

	"fauna.ai/internal/sim/perception"
	"fauna.ai/internal/sim/plan"
	"fauna.ai/internal/sim/state"
)

const systemPrompt = `You are the decision-making mind of a wild animal in a survival simulation.
You receive the animal's traits, needs, inventory, and what it can currently see.
Hunger and thirst rise toward 100 (bad); health, energy and happiness fall toward 0 (bad).
Respond with JSON only:
{"reasoning":"...","plan":{"type":"survival|explore|social|build","steps":[
  {"action":"<one of: idle moving eating drinking sleeping playing exploring socializing working mating harvesting building>",
   "priority":1-10,"turn_offset":0,"reason":"...",
   "resource_id":"(harvesting)","target":{"x":0,"z":0},"structure_id":"(building)","partner_id":"(socializing/mating)"}]}}
Eating and drinking consume inventory items; harvest before you consume.
Keep plans short (at most 6 steps).`

// request DTOs: a compact, stable projection of the sim state for the
// oracle. Field names are part of the prompt contract.
type reqAgent struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Traits    map[string]float64 `json:"traits"`
	Stats     map[string]float64 `json:"stats"`
	Age       float64            `json:"age"`
	Position  map[string]float64 `json:"position"`
	Inventory []reqItem          `json:"inventory"`
	Capacity  float64            `json:"capacity_left"`
	Action    string             `json:"current_action"`
}

type reqItem struct {
	Type     string  `json:"type"`
	Quantity int     `json:"quantity"`
	Quality  float64 `json:"quality"`
}

type reqResource struct {
	ID              string  `json:"id"`
	Type            string  `json:"type"`
	Distance        float64 `json:"distance"`
	Direction       string  `json:"direction"`
	Quantity        float64 `json:"quantity"`
	CanHarvestNow   bool    `json:"can_harvest_now"`
	TooFarToHarvest bool    `json:"too_far_to_harvest"`
}

type reqPerception struct {
	SightRadius   float64       `json:"sight_radius"`
	HarvestRadius float64       `json:"harvest_radius"`
	Resources     []reqResource `json:"resources"`
	Agents        []string      `json:"nearby_agents"`
	Structures    []string      `json:"nearby_structures"`
	Environment   string        `json:"environment"`
	Memories      []string      `json:"memories"`
}

type reqPlan struct {
	Type       string   `json:"type"`
	Confidence float64  `json:"confidence"`
	Done       int      `json:"steps_done"`
	Remaining  []string `json:"steps_remaining"`
}

type oracleRequest struct {
	Agent       reqAgent       `json:"agent"`
	Perception  reqPerception  `json:"perception"`
	CurrentPlan *reqPlan       `json:"current_plan,omitempty"`
	NeedNewPlan bool           `json:"need_new_plan"`
}

func (o *Adapter) buildRequest(a *state.Agent, snap perception.Snapshot, existing *plan.Plan) (system, user string, err error) {
	needNew := existing == nil || existing.Exhausted() ||
		existing.Confidence < o.cfg.LowConfidence ||
		(o.cfg.StaleAfter > 0 && time.Since(existing.CreatedAt) > o.cfg.StaleAfter)
	req := oracleRequest{
		Agent: reqAgent{
			ID:   a.ID,
			Name: a.Name,
			Traits: map[string]float64{
				"strength": a.Traits.Strength, "agility": a.Traits.Agility,
				"intelligence": a.Traits.Intelligence, "curiosity": a.Traits.Curiosity,
				"sociability": a.Traits.Sociability, "resilience": a.Traits.Resilience,
			},
			Stats: map[string]float64{
				"health": a.Stats.Health, "hunger": a.Stats.Hunger, "energy": a.Stats.Energy,
				"happiness": a.Stats.Happiness, "thirst": a.Stats.Thirst,
			},
			Age:      a.Age,
			Position: map[string]float64{"x": a.Pos.X, "z": a.Pos.Z},
			Capacity: a.Inventory.MaxCapacity - a.Inventory.CurrentWeight,
			Action:   a.CurrentAction,
		},
		Perception: reqPerception{
			SightRadius:   snap.SightRadius,
			HarvestRadius: snap.HarvestRadius,
			Environment:   fmt.Sprintf("%s, %s", snap.Environment.TimeOfDay, snap.Environment.Weather),
		},
		NeedNewPlan: needNew,
	}
	for _, it := range a.Inventory.Items {
		req.Agent.Inventory = append(req.Agent.Inventory, reqItem{
			Type: string(it.Type), Quantity: it.Quantity, Quality: it.Quality,
		})
	}
	for _, r := range snap.Resources {
		req.Perception.Resources = append(req.Perception.Resources, reqResource{
			ID: r.ID, Type: string(r.Type), Distance: r.Distance, Direction: r.Direction,
			Quantity: r.Quantity, CanHarvestNow: r.CanHarvestNow, TooFarToHarvest: r.TooFarToHarvest,
		})
	}
	for _, n := range snap.Agents {
		req.Perception.Agents = append(req.Perception.Agents,
			fmt.Sprintf("%s (%s) %.1f away, %s", n.Name, n.ID, n.Distance, n.Direction))
	}
	for _, s := range snap.Structures {
		req.Perception.Structures = append(req.Perception.Structures,
			fmt.Sprintf("%s %s %.1f away, progress %.0f%%", s.ID, s.Type, s.Distance, s.Progress*100))
	}
	for _, m := range snap.Memories {
		req.Perception.Memories = append(req.Perception.Memories,
			fmt.Sprintf("%s: %s %s at (%.0f,%.0f)", m.Kind, m.Note, m.ResourceType, m.X, m.Z))
	}
	if existing != nil {
		rp := reqPlan{
			Type:       string(existing.Type),
			Confidence: existing.Confidence,
			Done:       existing.Cursor,
		}
		for _, st := range existing.Steps[min(existing.Cursor, len(existing.Steps)):] {
			rp.Remaining = append(rp.Remaining, string(st.Action))
		}
		req.CurrentPlan = &rp
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", "", fmt.Errorf("marshal oracle request: %w", err)
	}
	return systemPrompt, string(body), nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
