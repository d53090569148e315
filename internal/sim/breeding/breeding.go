// Package breeding is the agent lifecycle factory: it spawns the
// founding population and, on its own cadence, pairs up eligible
// animals to produce offspring with blended traits.
package breeding

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"fauna.ai/internal/sim/genetics"
	"fauna.ai/internal/sim/resources"
	"fauna.ai/internal/sim/state"
)

const (
	breedCooldown = 2 * time.Minute
	pairRadius    = 8.0

	minEnergy  = 50.0
	maxHunger  = 60.0
	maxThirst  = 60.0
	minAgeFrac = 0.15
	maxAgeFrac = 0.85
)

type Breeder struct {
	st  *state.Store
	gen *genetics.Factory
	rng *rand.Rand
	log *log.Logger

	lastBred map[string]time.Time
	seq      int
}

func New(st *state.Store, gen *genetics.Factory, rng *rand.Rand, logger *log.Logger) *Breeder {
	if logger == nil {
		logger = log.New(log.Writer(), "[breeding] ", log.LstdFlags)
	}
	return &Breeder{
		st:       st,
		gen:      gen,
		rng:      rng,
		log:      logger,
		lastBred: map[string]time.Time{},
	}
}

func carryCapacity(t genetics.Traits) float64 {
	return 20 + t.Strength*0.3
}

func (b *Breeder) newAgent(t genetics.Traits, x, z float64, now time.Time) *state.Agent {
	b.seq++
	health, hunger, energy, happiness, thirst := b.gen.InitialStats(t)
	return &state.Agent{
		ID:     fmt.Sprintf("A%d", b.seq),
		Name:   b.gen.Name(b.seq),
		Traits: t,
		Stats: state.Stats{
			Health:    health,
			Hunger:    hunger,
			Energy:    energy,
			Happiness: happiness,
			Thirst:    thirst,
		},
		Pos:       state.Position{X: x, Z: z},
		Inventory: state.Inventory{MaxCapacity: carryCapacity(t)},
		BornAt:    now,
		Lifespan:  b.gen.Lifespan(),
		Alive:     true,
	}
}

// Spawn creates a founder with random traits at the given position.
func (b *Breeder) Spawn(x, z float64, now time.Time) *state.Agent {
	return b.newAgent(b.gen.Random(), x, z, now)
}

func (b *Breeder) eligible(a state.Agent, now time.Time) bool {
	if !a.Alive || a.Age < minAgeFrac || a.Age > maxAgeFrac {
		return false
	}
	if a.Stats.Energy < minEnergy || a.Stats.Hunger > maxHunger || a.Stats.Thirst > maxThirst {
		return false
	}
	if last, ok := b.lastBred[a.ID]; ok && now.Sub(last) < breedCooldown {
		return false
	}
	return true
}

// Tick pairs the closest eligible couple within pairRadius and produces
// at most one child per invocation. Both parents pay an energy cost and
// enter a cooldown.
func (b *Breeder) Tick(now time.Time) []*state.Agent {
	agents := b.st.AllAgents()
	var pool []state.Agent
	for _, a := range agents {
		if b.eligible(a, now) {
			pool = append(pool, a)
		}
	}
	if len(pool) < 2 {
		return nil
	}

	bestI, bestJ := -1, -1
	bestDist := pairRadius
	for i := 0; i < len(pool); i++ {
		for j := i + 1; j < len(pool); j++ {
			d := resources.PlanarDistance(pool[i].Pos.X, pool[i].Pos.Z, pool[j].Pos.X, pool[j].Pos.Z)
			if d <= bestDist {
				bestDist = d
				bestI, bestJ = i, j
			}
		}
	}
	if bestI < 0 {
		return nil
	}

	pa, pb := pool[bestI], pool[bestJ]
	traits := b.gen.Breed(pa.Traits, pb.Traits, pa.ID, pb.ID)
	x := (pa.Pos.X+pb.Pos.X)/2 + b.rng.Float64()*2 - 1
	z := (pa.Pos.Z+pb.Pos.Z)/2 + b.rng.Float64()*2 - 1
	child := b.newAgent(traits, x, z, now)

	cost := state.StatDeltas{Energy: -20, Happiness: 10}
	b.st.UpdateStats(pa.ID, cost, "breeding")
	b.st.UpdateStats(pb.ID, cost, "breeding")
	b.lastBred[pa.ID] = now
	b.lastBred[pb.ID] = now

	b.log.Printf("%s and %s bred: %s (gen %d)", pa.ID, pb.ID, child.ID, traits.Generation)
	return []*state.Agent{child}
}

// Forget clears cooldown bookkeeping for a removed agent.
func (b *Breeder) Forget(agentID string) {
	delete(b.lastBred, agentID)
}
