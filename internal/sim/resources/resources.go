package resources

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// Type is a resource/item type from the closed catalog.
type Type string

const (
	TypeFood    Type = "food"
	TypeWater   Type = "water"
	TypeWood    Type = "wood"
	TypeStone   Type = "stone"
	TypeBerries Type = "berries"
	TypeShelter Type = "shelter"
)

// UnitWeight returns the inventory weight of one unit of the type.
func UnitWeight(t Type) float64 {
	switch t {
	case TypeWater:
		return 1.0
	case TypeFood, TypeBerries:
		return 0.5
	case TypeWood:
		return 2.0
	case TypeStone:
		return 3.0
	default:
		return 1.0
	}
}

// regenCeiling is the per-type quantity a regenerating node trends back toward.
func regenCeiling(t Type) float64 {
	switch t {
	case TypeWater:
		return 100
	case TypeBerries:
		return 12
	case TypeFood:
		return 20
	case TypeWood:
		return 40
	case TypeStone:
		return 60
	default:
		return 10
	}
}

// Node is one harvestable/consumable resource in the world.
type Node struct {
	ID          string
	Type        Type
	X, Y, Z     float64
	Quantity    float64
	Harvestable bool
	Regenerates bool
	Quality     float64 // 0..100
}

// Structure is a built thing (currently only shelters).
type Structure struct {
	ID       string
	Type     Type
	X, Y, Z  float64
	Progress float64 // 0..1
	Owner    string
}

// Registry holds every resource node and structure in the world.
// Harvest is the only quantity-decreasing mutation; RegenerateTick the
// only increasing one.
type Registry struct {
	mu         sync.Mutex
	nodes      map[string]*Node
	structures map[string]*Structure
	regenRate  float64 // units restored per regen tick

	nextStruct int
}

func NewRegistry(regenRate float64) *Registry {
	if regenRate <= 0 {
		regenRate = 1
	}
	return &Registry{
		nodes:      map[string]*Node{},
		structures: map[string]*Structure{},
		regenRate:  regenRate,
	}
}

func (r *Registry) AddNode(n Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n.Quantity < 0 {
		n.Quantity = 0
	}
	cp := n
	r.nodes[n.ID] = &cp
}

// Node returns a copy of the node, or false if it does not exist.
func (r *Registry) Node(id string) (Node, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// PlanarDistance is the x/z distance between two points; y is terrain
// detail and does not affect reach.
func PlanarDistance(ax, az, bx, bz float64) float64 {
	dx := ax - bx
	dz := az - bz
	return math.Sqrt(dx*dx + dz*dz)
}

// QueryNearby returns copies of all nodes with quantity > 0 within radius
// (planar) of the given position, sorted nearest first.
func (r *Registry) QueryNearby(x, z, radius float64) []Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Node, 0, 8)
	for _, n := range r.nodes {
		if n.Quantity <= 0 {
			continue
		}
		if PlanarDistance(x, z, n.X, n.Z) <= radius {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		di := PlanarDistance(x, z, out[i].X, out[i].Z)
		dj := PlanarDistance(x, z, out[j].X, out[j].Z)
		if di != dj {
			return di < dj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// HarvestResult reports what a harvest attempt actually yielded.
type HarvestResult struct {
	Success  bool
	Type     Type
	Amount   float64
	Quality  float64
	Message  string
}

// Harvest removes up to amount units from the node. It fails without
// mutation when the node is missing, not harvestable, or empty.
func (r *Registry) Harvest(id string, amount float64) HarvestResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return HarvestResult{Message: fmt.Sprintf("resource %s does not exist", id)}
	}
	if !n.Harvestable {
		return HarvestResult{Message: fmt.Sprintf("resource %s is not harvestable", id)}
	}
	if n.Quantity <= 0 {
		return HarvestResult{Message: fmt.Sprintf("resource %s is depleted", id)}
	}
	if amount <= 0 {
		return HarvestResult{Message: "harvest amount must be positive"}
	}
	got := amount
	if got > n.Quantity {
		got = n.Quantity
	}
	n.Quantity -= got
	return HarvestResult{Success: true, Type: n.Type, Amount: got, Quality: n.Quality}
}

// RegenerateTick restores quantity on regenerating nodes, bounded by the
// per-type ceiling.
func (r *Registry) RegenerateTick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.nodes {
		if !n.Regenerates {
			continue
		}
		ceil := regenCeiling(n.Type)
		if n.Quantity >= ceil {
			continue
		}
		n.Quantity += r.regenRate
		if n.Quantity > ceil {
			n.Quantity = ceil
		}
	}
}

// AddStructure registers a new structure and returns its id.
func (r *Registry) AddStructure(s Structure) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == "" {
		r.nextStruct++
		s.ID = fmt.Sprintf("S%d", r.nextStruct)
	}
	cp := s
	r.structures[s.ID] = &cp
	return s.ID
}

// AdvanceStructure adds progress (clamped to 1) and returns the new value.
func (r *Registry) AdvanceStructure(id string, delta float64) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.structures[id]
	if !ok {
		return 0, false
	}
	s.Progress += delta
	if s.Progress > 1 {
		s.Progress = 1
	}
	return s.Progress, true
}

// StructuresNearby returns copies of structures within radius, nearest first.
func (r *Registry) StructuresNearby(x, z, radius float64) []Structure {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Structure, 0, 4)
	for _, s := range r.structures {
		if PlanarDistance(x, z, s.X, s.Z) <= radius {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		di := PlanarDistance(x, z, out[i].X, out[i].Z)
		dj := PlanarDistance(x, z, out[j].X, out[j].Z)
		if di != dj {
			return di < dj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// NodeCount is used by the bootstrap endpoint and the index writer.
func (r *Registry) NodeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nodes)
}
