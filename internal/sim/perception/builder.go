package perception

import (
	"math"
	"sort"
	"time"

	"fauna.ai/internal/sim/resources"
	"fauna.ai/internal/sim/state"
	"fauna.ai/internal/sim/tuning"
)

// the minimum decayed reliability a memory needs to make it into a snapshot.
const snapshotMinReliability = 0.15

type NearbyAgent struct {
	ID        string
	Name      string
	Distance  float64
	Direction string
}

type NearbyResource struct {
	ID       string
	Type     resources.Type
	Distance float64
	Direction string
	Quantity float64
	Quality  float64

	// Exactly one of these (or neither, for visible-but-unharvestable
	// nodes) is true.
	CanHarvestNow   bool
	TooFarToHarvest bool
}

type NearbyStructure struct {
	ID        string
	Type      resources.Type
	Distance  float64
	Direction string
	Progress  float64
}

type Summary struct {
	VisibleByType  map[resources.Type]int
	HarvestableNow int
}

type Environment struct {
	TimeOfDay string
	Weather   string
}

// Snapshot is one agent's ephemeral, radius-bounded view of the world.
// Rebuilt for every decision, never persisted.
type Snapshot struct {
	AgentID string
	X, Y, Z float64

	SightRadius   float64
	HarvestRadius float64

	Agents     []NearbyAgent
	Resources  []NearbyResource
	Summary    Summary
	Structures []NearbyStructure

	Environment Environment
	Memories    []Memory
}

// Resource finds an entry by node id (executor revalidation).
func (s *Snapshot) Resource(id string) (NearbyResource, bool) {
	for _, r := range s.Resources {
		if r.ID == id {
			return r, true
		}
	}
	return NearbyResource{}, false
}

// Builder computes perception snapshots against the live world.
type Builder struct {
	res *resources.Registry
	st  *state.Store
	mem *MemoryStore
	cfg tuning.Perception

	// Env supplies the current environment summary; the tick controller
	// wires this to its day/weather clock.
	Env func() Environment
}

func NewBuilder(res *resources.Registry, st *state.Store, mem *MemoryStore, cfg tuning.Perception) *Builder {
	return &Builder{
		res: res,
		st:  st,
		mem: mem,
		cfg: cfg,
		Env: func() Environment { return Environment{TimeOfDay: "day", Weather: "clear"} },
	}
}

// Memories exposes the underlying store for recording discoveries and
// failures during execution.
func (b *Builder) Memories() *MemoryStore { return b.mem }

// SightRadius grows with intelligence and curiosity and shrinks with
// age (younger animals see farther), floored at the tuned minimum.
func (b *Builder) SightRadius(a *state.Agent) float64 {
	r := b.cfg.SightMin + a.Traits.Intelligence*0.15 + a.Traits.Curiosity*0.1 + (1-a.Age)*5
	if r < b.cfg.SightMin {
		r = b.cfg.SightMin
	}
	return r
}

// direction reduces a planar offset to its dominant axis. +X is east,
// +Z is south; exact diagonals resolve toward east, then south.
func direction(dx, dz float64) string {
	adx, adz := math.Abs(dx), math.Abs(dz)
	switch {
	case adx > adz:
		if dx >= 0 {
			return "east"
		}
		return "west"
	case adz > adx:
		if dz >= 0 {
			return "south"
		}
		return "north"
	default:
		if dx > 0 {
			return "east"
		}
		if dz > 0 {
			return "south"
		}
		if dx < 0 {
			return "west"
		}
		return "north"
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

// Build computes the agent's current snapshot.
func (b *Builder) Build(a *state.Agent, now time.Time) Snapshot {
	sight := b.SightRadius(a)
	harvest := b.cfg.HarvestRadius
	if harvest > sight {
		harvest = sight
	}

	snap := Snapshot{
		AgentID:       a.ID,
		X:             a.Pos.X,
		Y:             a.Pos.Y,
		Z:             a.Pos.Z,
		SightRadius:   sight,
		HarvestRadius: harvest,
		Summary:       Summary{VisibleByType: map[resources.Type]int{}},
		Environment:   b.Env(),
	}

	for _, n := range b.res.QueryNearby(a.Pos.X, a.Pos.Z, sight) {
		dist := resources.PlanarDistance(a.Pos.X, a.Pos.Z, n.X, n.Z)
		nr := NearbyResource{
			ID:        n.ID,
			Type:      n.Type,
			Distance:  round1(dist),
			Direction: direction(n.X-a.Pos.X, n.Z-a.Pos.Z),
			Quantity:  n.Quantity,
			Quality:   n.Quality,
		}
		if n.Harvestable && n.Quantity > 0 {
			if dist <= harvest {
				nr.CanHarvestNow = true
			} else {
				nr.TooFarToHarvest = true
			}
		}
		snap.Resources = append(snap.Resources, nr)
		snap.Summary.VisibleByType[n.Type]++
		if nr.CanHarvestNow {
			snap.Summary.HarvestableNow++
		}
	}

	for _, other := range b.st.AllAgents() {
		if other.ID == a.ID || !other.Alive {
			continue
		}
		dist := resources.PlanarDistance(a.Pos.X, a.Pos.Z, other.Pos.X, other.Pos.Z)
		if dist > sight {
			continue
		}
		snap.Agents = append(snap.Agents, NearbyAgent{
			ID:        other.ID,
			Name:      other.Name,
			Distance:  round1(dist),
			Direction: direction(other.Pos.X-a.Pos.X, other.Pos.Z-a.Pos.Z),
		})
	}
	// QueryNearby sorts for us; agents come from the id-ordered store.
	sort.Slice(snap.Agents, func(i, j int) bool {
		if snap.Agents[i].Distance != snap.Agents[j].Distance {
			return snap.Agents[i].Distance < snap.Agents[j].Distance
		}
		return snap.Agents[i].ID < snap.Agents[j].ID
	})

	for _, s := range b.res.StructuresNearby(a.Pos.X, a.Pos.Z, sight) {
		dist := resources.PlanarDistance(a.Pos.X, a.Pos.Z, s.X, s.Z)
		snap.Structures = append(snap.Structures, NearbyStructure{
			ID:        s.ID,
			Type:      s.Type,
			Distance:  round1(dist),
			Direction: direction(s.X-a.Pos.X, s.Z-a.Pos.Z),
			Progress:  s.Progress,
		})
	}

	snap.Memories = b.mem.Relevant(a.ID, a.Pos.X, a.Pos.Z, now, b.cfg.MemoryMaxDist, snapshotMinReliability, b.cfg.MemoryWindow)
	return snap
}
