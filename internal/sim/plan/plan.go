package plan

import "time"

// Action is one entry in the closed action vocabulary.
type Action string

const (
	ActionIdle        Action = "idle"
	ActionMoving      Action = "moving"
	ActionEating      Action = "eating"
	ActionDrinking    Action = "drinking"
	ActionSleeping    Action = "sleeping"
	ActionPlaying     Action = "playing"
	ActionExploring   Action = "exploring"
	ActionSocializing Action = "socializing"
	ActionWorking     Action = "working"
	ActionMating      Action = "mating"
	ActionHarvesting  Action = "harvesting"
	ActionBuilding    Action = "building"
)

var vocabulary = map[Action]struct{}{
	ActionIdle: {}, ActionMoving: {}, ActionEating: {}, ActionDrinking: {},
	ActionSleeping: {}, ActionPlaying: {}, ActionExploring: {}, ActionSocializing: {},
	ActionWorking: {}, ActionMating: {}, ActionHarvesting: {}, ActionBuilding: {},
}

func IsValidAction(a Action) bool {
	_, ok := vocabulary[a]
	return ok
}

// Actions lists the vocabulary in fallback-scan order: concrete survival
// actions first so keyword recovery prefers them over idle.
func Actions() []Action {
	return []Action{
		ActionHarvesting, ActionDrinking, ActionEating, ActionSleeping,
		ActionExploring, ActionMoving, ActionBuilding, ActionSocializing,
		ActionPlaying, ActionWorking, ActionMating, ActionIdle,
	}
}

// Target is a planar movement destination.
type Target struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

// Params carries only the fields the step's action needs; anything else
// stays zero. Validated at the oracle boundary, trusted downstream.
type Params struct {
	// harvesting
	ResourceID string `json:"resource_id,omitempty"`
	// moving / exploring
	Target *Target `json:"target,omitempty"`
	// building / working
	StructureID string `json:"structure_id,omitempty"`
	// socializing / mating
	PartnerID string `json:"partner_id,omitempty"`
}

// Step is one atomic planned action. A step is in flight iff StartedAt
// is set and CompletedAt is not.
type Step struct {
	ID         string
	Action     Action
	Params     Params
	Priority   int // 1..10
	TurnOffset int // 0 = eligible now
	Reason     string

	StartedAt   time.Time
	CompletedAt time.Time
}

func (s *Step) InFlight() bool {
	return !s.StartedAt.IsZero() && s.CompletedAt.IsZero()
}

// Type is the categorical plan kind.
type Type string

const (
	TypeSurvival Type = "survival"
	TypeExplore  Type = "explore"
	TypeSocial   Type = "social"
	TypeBuild    Type = "build"
	TypeFallback Type = "fallback"
)

// Plan is one agent's ordered step sequence. Cursor is the only
// legitimate read/write position; steps behind it are immutable history.
type Plan struct {
	ID      string
	AgentID string
	Type    Type

	Steps  []Step
	Cursor int

	Confidence float64 // 0.1..1.0

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Exhausted reports whether the cursor has passed the last step.
func (p *Plan) Exhausted() bool { return p.Cursor >= len(p.Steps) }

func (p *Plan) clone() Plan {
	cp := *p
	cp.Steps = append([]Step(nil), p.Steps...)
	return cp
}
