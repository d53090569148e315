package state

import (
	"time"

	"fauna.ai/internal/protocol"
	"fauna.ai/internal/sim/genetics"
	"fauna.ai/internal/sim/resources"
)

// Stats are the survival needs. All fields are clamped to [0,100];
// hunger/thirst grow toward 100 (bad), the rest shrink toward 0 (bad).
type Stats struct {
	Health    float64
	Hunger    float64
	Energy    float64
	Happiness float64
	Thirst    float64
}

func clampStat(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func (s *Stats) clamp() {
	s.Health = clampStat(s.Health)
	s.Hunger = clampStat(s.Hunger)
	s.Energy = clampStat(s.Energy)
	s.Happiness = clampStat(s.Happiness)
	s.Thirst = clampStat(s.Thirst)
}

type Position struct {
	X, Y, Z  float64
	Rotation float64
}

type Item struct {
	Type     resources.Type
	Quantity int
	Quality  float64
}

// Inventory keeps an ordered item list. CurrentWeight always equals the
// sum of quantity times per-type unit weight.
type Inventory struct {
	Items         []Item
	CurrentWeight float64
	MaxCapacity   float64
}

func (inv *Inventory) recalc() {
	w := 0.0
	for _, it := range inv.Items {
		w += float64(it.Quantity) * resources.UnitWeight(it.Type)
	}
	inv.CurrentWeight = w
}

// Count sums quantity across all stacks of the type.
func (inv *Inventory) Count(t resources.Type) int {
	n := 0
	for _, it := range inv.Items {
		if it.Type == t {
			n += it.Quantity
		}
	}
	return n
}

// CanCarry reports whether qty more units of t fit under MaxCapacity.
func (inv *Inventory) CanCarry(t resources.Type, qty int) bool {
	return inv.CurrentWeight+float64(qty)*resources.UnitWeight(t) <= inv.MaxCapacity
}

// Add merges into an existing stack of the same type (averaging quality)
// or appends a new one. Returns false without mutation when the weight
// capacity would be exceeded.
func (inv *Inventory) Add(t resources.Type, qty int, quality float64) bool {
	if qty <= 0 {
		return false
	}
	if !inv.CanCarry(t, qty) {
		return false
	}
	for i := range inv.Items {
		if inv.Items[i].Type == t {
			prev := inv.Items[i]
			total := prev.Quantity + qty
			inv.Items[i].Quality = (prev.Quality*float64(prev.Quantity) + quality*float64(qty)) / float64(total)
			inv.Items[i].Quantity = total
			inv.recalc()
			return true
		}
	}
	inv.Items = append(inv.Items, Item{Type: t, Quantity: qty, Quality: quality})
	inv.recalc()
	return true
}

// Remove takes qty units of t, dropping emptied stacks. Returns false
// without mutation when fewer than qty units are held.
func (inv *Inventory) Remove(t resources.Type, qty int) bool {
	if qty <= 0 || inv.Count(t) < qty {
		return false
	}
	remaining := qty
	out := inv.Items[:0]
	for _, it := range inv.Items {
		if it.Type == t && remaining > 0 {
			take := it.Quantity
			if take > remaining {
				take = remaining
			}
			it.Quantity -= take
			remaining -= take
		}
		if it.Quantity > 0 {
			out = append(out, it)
		}
	}
	inv.Items = out
	inv.recalc()
	return true
}

// QualityOf returns the quality of the first stack of t (0 when absent).
func (inv *Inventory) QualityOf(t resources.Type) float64 {
	for _, it := range inv.Items {
		if it.Type == t {
			return it.Quality
		}
	}
	return 0
}

// Agent is the full record for one animal. Instances handed out by the
// store are copies; mutation flows back through store methods.
type Agent struct {
	ID   string
	Name string

	Traits genetics.Traits
	Stats  Stats
	Pos    Position

	Inventory Inventory

	BornAt   time.Time
	Lifespan time.Duration
	Age      float64 // 0..1 fraction of lifespan

	CurrentAction string
	Alive         bool
}

func (a *Agent) clone() *Agent {
	cp := *a
	cp.Inventory.Items = append([]Item(nil), a.Inventory.Items...)
	return &cp
}

func (a *Agent) statsView() protocol.StatsView {
	return protocol.StatsView{
		Health:    a.Stats.Health,
		Hunger:    a.Stats.Hunger,
		Energy:    a.Stats.Energy,
		Happiness: a.Stats.Happiness,
		Thirst:    a.Stats.Thirst,
	}
}

func (a *Agent) positionView() protocol.PositionView {
	return protocol.PositionView{X: a.Pos.X, Y: a.Pos.Y, Z: a.Pos.Z, Rotation: a.Pos.Rotation}
}

func (a *Agent) inventoryView() protocol.InventoryView {
	items := make([]protocol.InventoryItemView, 0, len(a.Inventory.Items))
	for _, it := range a.Inventory.Items {
		items = append(items, protocol.InventoryItemView{
			Type:     string(it.Type),
			Quantity: it.Quantity,
			Quality:  it.Quality,
		})
	}
	return protocol.InventoryView{
		Items:         items,
		CurrentWeight: a.Inventory.CurrentWeight,
		MaxCapacity:   a.Inventory.MaxCapacity,
	}
}

// View builds the full renderable record for the presentation boundary.
func (a *Agent) View() protocol.AgentView {
	return protocol.AgentView{
		ID:         a.ID,
		Name:       a.Name,
		Generation: a.Traits.Generation,
		Color:      a.Traits.Color,
		Size:       a.Traits.Size,
		Stats:      a.statsView(),
		Position:   a.positionView(),
		Inventory:  a.inventoryView(),
		Action:     a.CurrentAction,
		Age:        a.Age,
		Alive:      a.Alive,
		BornAt:     a.BornAt,
	}
}
