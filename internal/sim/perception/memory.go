package perception

import (
	"math"
	"sort"
	"time"

	"fauna.ai/internal/sim/resources"
)

type MemoryKind string

const (
	MemoryDiscovery MemoryKind = "discovery"
	MemoryFailure   MemoryKind = "failure"
)

// Memory is one remembered discovery or failure. Reliability is the
// base score at recording time; relevance decays with age and distance.
type Memory struct {
	Kind         MemoryKind
	ResourceType resources.Type
	X, Z         float64
	At           time.Time
	Note         string
	Reliability  float64 // 0..1
}

// reliability half-life: a memory loses half its weight every 5 minutes.
const memoryHalfLife = 5 * time.Minute

// EffectiveReliability is the base score decayed by age and by distance
// from the asking position (linear falloff to zero at maxDist).
func (m Memory) EffectiveReliability(x, z float64, now time.Time, maxDist float64) float64 {
	age := now.Sub(m.At)
	if age < 0 {
		age = 0
	}
	timeDecay := math.Pow(0.5, float64(age)/float64(memoryHalfLife))
	dist := resources.PlanarDistance(x, z, m.X, m.Z)
	if dist >= maxDist {
		return 0
	}
	return m.Reliability * timeDecay * (1 - dist/maxDist)
}

// MemoryStore holds a bounded window of memories per agent. Lives on
// the world goroutine; no locking.
type MemoryStore struct {
	byAgent map[string][]Memory
	maxPer  int
}

func NewMemoryStore(maxPerAgent int) *MemoryStore {
	if maxPerAgent <= 0 {
		maxPerAgent = 20
	}
	return &MemoryStore{byAgent: map[string][]Memory{}, maxPer: maxPerAgent}
}

// Record appends, discarding the oldest entry beyond the per-agent cap.
func (ms *MemoryStore) Record(agentID string, m Memory) {
	mems := append(ms.byAgent[agentID], m)
	if n := len(mems) - ms.maxPer; n > 0 {
		mems = mems[n:]
	}
	ms.byAgent[agentID] = mems
}

// Relevant returns up to limit memories within maxDist and above
// minReliability after decay, best first.
func (ms *MemoryStore) Relevant(agentID string, x, z float64, now time.Time, maxDist, minReliability float64, limit int) []Memory {
	type scored struct {
		m     Memory
		score float64
	}
	var keep []scored
	for _, m := range ms.byAgent[agentID] {
		sc := m.EffectiveReliability(x, z, now, maxDist)
		if sc >= minReliability {
			keep = append(keep, scored{m, sc})
		}
	}
	sort.Slice(keep, func(i, j int) bool { return keep[i].score > keep[j].score })
	if limit > 0 && len(keep) > limit {
		keep = keep[:limit]
	}
	out := make([]Memory, 0, len(keep))
	for _, s := range keep {
		out = append(out, s.m)
	}
	return out
}

// All returns the raw window (used by the exploration heuristic).
func (ms *MemoryStore) All(agentID string) []Memory {
	return append([]Memory(nil), ms.byAgent[agentID]...)
}

// Remove drops an agent's whole window.
func (ms *MemoryStore) Remove(agentID string) {
	delete(ms.byAgent, agentID)
}
