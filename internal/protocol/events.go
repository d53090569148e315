package protocol

import "time"

// Change event kinds delivered on the presentation boundary.
const (
	ChangeFull      = "FULL"
	ChangeStats     = "STATS"
	ChangePosition  = "POSITION"
	ChangeAction    = "ACTION"
	ChangeInventory = "INVENTORY"
)

// ChangeEvent is one typed state-store mutation notification. Exactly one
// of the payload pointers matching Kind is set (Agent for FULL).
type ChangeEvent struct {
	Kind    string `json:"kind"`
	AgentID string `json:"agent_id"`
	Source  string `json:"source,omitempty"`
	Tick    uint64 `json:"tick,omitempty"`

	Agent     *AgentView     `json:"agent,omitempty"`
	Stats     *StatsView     `json:"stats,omitempty"`
	Position  *PositionView  `json:"position,omitempty"`
	Action    string         `json:"action,omitempty"`
	Inventory *InventoryView `json:"inventory,omitempty"`
}

// AgentView is the full renderable record for one animal.
type AgentView struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Generation int           `json:"generation"`
	Color      string        `json:"color"`
	Size       float64       `json:"size"`
	Stats      StatsView     `json:"stats"`
	Position   PositionView  `json:"position"`
	Inventory  InventoryView `json:"inventory"`
	Action     string        `json:"action"`
	Age        float64       `json:"age"`
	Alive      bool          `json:"alive"`
	BornAt     time.Time     `json:"born_at"`
}

type StatsView struct {
	Health    float64 `json:"health"`
	Hunger    float64 `json:"hunger"`
	Energy    float64 `json:"energy"`
	Happiness float64 `json:"happiness"`
	Thirst    float64 `json:"thirst"`
}

type PositionView struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Rotation float64 `json:"rotation"`
}

type InventoryItemView struct {
	Type     string  `json:"type"`
	Quantity int     `json:"quantity"`
	Quality  float64 `json:"quality"`
}

type InventoryView struct {
	Items         []InventoryItemView `json:"items"`
	CurrentWeight float64             `json:"current_weight"`
	MaxCapacity   float64             `json:"max_capacity"`
}
