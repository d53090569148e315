package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"fauna.ai/internal/sim/perception"
	"fauna.ai/internal/sim/plan"
	"fauna.ai/internal/sim/state"
)

const maxPlanSteps = 6

type Config struct {
	Timeout          time.Duration
	MaxExploreRadius float64
	// LowConfidence and StaleAfter mirror the plan store's replanning
	// thresholds so the request can say whether a fresh plan is needed
	// or the current one may simply continue.
	LowConfidence float64
	StaleAfter    time.Duration
	// Schema validates the response shape when present; violations are
	// logged and recovery continues leniently.
	Schema *jsonschema.Schema
}

// Decision is what the adapter hands back: always a usable plan, even
// when the oracle misbehaved.
type Decision struct {
	Plan      plan.Plan
	Reasoning string
	Fallback  bool
}

// Adapter turns untrusted oracle output into validated plans.
type Adapter struct {
	client Client
	cfg    Config
	log    *log.Logger
}

func NewAdapter(client Client, cfg Config, logger *log.Logger) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxExploreRadius <= 0 {
		cfg.MaxExploreRadius = 20
	}
	if cfg.LowConfidence <= 0 {
		cfg.LowConfidence = 0.3
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[oracle] ", log.LstdFlags)
	}
	return &Adapter{client: client, cfg: cfg, log: logger}
}

// Decide consults the oracle for the agent's next plan. Transport
// failures, timeouts, and malformed responses all degrade to defined
// fallbacks; the agent is never left without forward progress.
func (o *Adapter) Decide(ctx context.Context, a *state.Agent, snap perception.Snapshot, existing *plan.Plan) Decision {
	system, user, err := o.buildRequest(a, snap, existing)
	if err != nil {
		o.log.Printf("agent=%s request build failed: %v", a.ID, err)
		return Decision{Plan: o.FallbackPlan(a, snap), Reasoning: "local fallback: request build failed", Fallback: true}
	}

	cctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	raw, err := o.complete(cctx, system, user)
	if err != nil {
		o.log.Printf("agent=%s oracle call failed: %v", a.ID, err)
		return Decision{Plan: o.FallbackPlan(a, snap), Reasoning: fmt.Sprintf("local fallback: %v", err), Fallback: true}
	}

	return o.parse(raw, a, snap)
}

// complete guards the client call: a panicking client is a transport
// failure, not a crash.
func (o *Adapter) complete(ctx context.Context, system, user string) (raw string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("oracle client panicked: %v", r)
		}
	}()
	return o.client.Complete(ctx, system, user)
}

// wire shapes: every field optional, nothing trusted.
type wireTarget struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

type wireStep struct {
	Action      string      `json:"action"`
	Priority    int         `json:"priority"`
	TurnOffset  int         `json:"turn_offset"`
	Reason      string      `json:"reason"`
	ResourceID  string      `json:"resource_id"`
	Target      *wireTarget `json:"target"`
	StructureID string      `json:"structure_id"`
	PartnerID   string      `json:"partner_id"`
}

type wireResponse struct {
	Reasoning string `json:"reasoning"`
	Plan      *struct {
		Type  string     `json:"type"`
		Steps []wireStep `json:"steps"`
	} `json:"plan"`

	// Single-action shorthand some respondents use instead of a plan.
	Action string      `json:"action"`
	Target *wireTarget `json:"target"`
}

func (o *Adapter) parse(raw string, a *state.Agent, snap perception.Snapshot) Decision {
	body := extractJSON(raw)

	var resp wireResponse
	if body == "" || json.Unmarshal([]byte(body), &resp) != nil {
		if act, ok := keywordAction(raw); ok {
			o.log.Printf("agent=%s unparseable response, keyword-recovered %q", a.ID, act)
			return Decision{
				Plan:      o.singleStepPlan(a, snap, act, "recovered from free-text response"),
				Reasoning: "keyword recovery",
			}
		}
		o.log.Printf("agent=%s unparseable response, substituting idle", a.ID)
		return Decision{
			Plan:      o.singleStepPlan(a, snap, plan.ActionIdle, "response unparseable"),
			Reasoning: "safe default",
		}
	}

	if o.cfg.Schema != nil {
		var v any
		if err := json.Unmarshal([]byte(body), &v); err == nil {
			if err := o.cfg.Schema.Validate(v); err != nil {
				o.log.Printf("agent=%s response violates schema (continuing leniently): %v", a.ID, err)
			}
		}
	}

	var steps []wireStep
	planType := plan.TypeSurvival
	switch {
	case resp.Plan != nil && len(resp.Plan.Steps) > 0:
		steps = resp.Plan.Steps
		if t := plan.Type(resp.Plan.Type); t != "" {
			planType = t
		}
	case resp.Action != "":
		steps = []wireStep{{Action: resp.Action, Target: resp.Target}}
	default:
		if act, ok := keywordAction(raw); ok {
			steps = []wireStep{{Action: string(act)}}
		} else {
			steps = []wireStep{{Action: string(plan.ActionIdle), Reason: "empty plan from oracle"}}
		}
	}
	if len(steps) > maxPlanSteps {
		steps = steps[:maxPlanSteps]
	}

	p := plan.Plan{
		ID:      uuid.NewString(),
		AgentID: a.ID,
		Type:    planType,
	}
	for _, ws := range steps {
		p.Steps = append(p.Steps, o.normalizeStep(ws, a))
	}
	return Decision{Plan: p, Reasoning: resp.Reasoning}
}

// normalizeStep coerces one untrusted step into the internal shape:
// unknown actions become idle, missing metadata gets defaults, and
// exploration targets are pulled back onto the movement radius.
func (o *Adapter) normalizeStep(ws wireStep, a *state.Agent) plan.Step {
	act := plan.Action(strings.ToLower(strings.TrimSpace(ws.Action)))
	if !plan.IsValidAction(act) {
		act = plan.ActionIdle
	}

	st := plan.Step{
		ID:         uuid.NewString(),
		Action:     act,
		Priority:   ws.Priority,
		TurnOffset: ws.TurnOffset,
		Reason:     ws.Reason,
	}
	if st.Priority < 1 || st.Priority > 10 {
		st.Priority = 5
	}
	if st.TurnOffset < 0 {
		st.TurnOffset = 0
	}
	if st.Reason == "" {
		st.Reason = "proposed by oracle"
	}

	switch act {
	case plan.ActionHarvesting:
		st.Params.ResourceID = ws.ResourceID
	case plan.ActionMoving, plan.ActionExploring:
		if ws.Target != nil {
			tx, tz := o.clampTarget(a.Pos.X, a.Pos.Z, ws.Target.X, ws.Target.Z)
			st.Params.Target = &plan.Target{X: tx, Z: tz}
		}
	case plan.ActionBuilding, plan.ActionWorking:
		st.Params.StructureID = ws.StructureID
	case plan.ActionSocializing, plan.ActionMating:
		st.Params.PartnerID = ws.PartnerID
	}
	return st
}

// clampTarget projects an out-of-range destination back onto the
// maximum radius along the same bearing; never rejected outright.
func (o *Adapter) clampTarget(ax, az, tx, tz float64) (float64, float64) {
	dx, dz := tx-ax, tz-az
	dist := math.Sqrt(dx*dx + dz*dz)
	if dist <= o.cfg.MaxExploreRadius || dist == 0 {
		return tx, tz
	}
	scale := o.cfg.MaxExploreRadius / dist
	return ax + dx*scale, az + dz*scale
}

func (o *Adapter) singleStepPlan(a *state.Agent, snap perception.Snapshot, act plan.Action, reason string) plan.Plan {
	return plan.Plan{
		ID:      uuid.NewString(),
		AgentID: a.ID,
		Type:    plan.TypeSurvival,
		Steps: []plan.Step{{
			ID:       uuid.NewString(),
			Action:   act,
			Priority: 5,
			Reason:   reason,
		}},
	}
}

// extractJSON pulls the outermost {...} block out of a possibly chatty
// response (markdown fences, prose around the payload).
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

// keywordAction scans free text for the first recognizable action name.
func keywordAction(raw string) (plan.Action, bool) {
	lower := strings.ToLower(raw)
	for _, act := range plan.Actions() {
		if strings.Contains(lower, string(act)) {
			return act, true
		}
	}
	// Common verb stems that do not match the vocabulary exactly, in
	// fixed precedence order.
	stems := []struct {
		stem string
		act  plan.Action
	}{
		{"harvest", plan.ActionHarvesting},
		{"drink", plan.ActionDrinking},
		{"eat", plan.ActionEating},
		{"sleep", plan.ActionSleeping},
		{"rest", plan.ActionSleeping},
		{"explore", plan.ActionExploring},
		{"move", plan.ActionMoving},
		{"build", plan.ActionBuilding},
		{"play", plan.ActionPlaying},
	}
	for _, s := range stems {
		if strings.Contains(lower, s.stem) {
			return s.act, true
		}
	}
	return "", false
}
