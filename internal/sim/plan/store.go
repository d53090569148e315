package plan

import "time"

// Confidence moves multiplicatively per completed step and is clamped to
// [0.1, 1.0].
const (
	confidenceReward  = 1.1
	confidencePenalty = 0.85
	confidenceFloor   = 0.1
	confidenceCeil    = 1.0

	defaultConfidence = 0.7
)

type Config struct {
	MinStepDelay     time.Duration
	LowConfidence    float64
	StaleAfter       time.Duration
	HistoryRetention int
}

// Store holds one active plan per agent and drives step lifecycle. It is
// the sole authority on whether replanning is required and on whether an
// agent may act at all this turn. Not safe for concurrent use; it lives
// on the world goroutine.
type Store struct {
	cfg Config
	now func() time.Time

	plans         map[string]*Plan
	history       map[string][]Plan
	lastCompleted map[string]time.Time
}

func NewStore(cfg Config, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	if cfg.HistoryRetention <= 0 {
		cfg.HistoryRetention = 5
	}
	return &Store{
		cfg:           cfg,
		now:           now,
		plans:         map[string]*Plan{},
		history:       map[string][]Plan{},
		lastCompleted: map[string]time.Time{},
	}
}

// Plan returns a copy of the agent's active plan.
func (s *Store) Plan(agentID string) (Plan, bool) {
	p, ok := s.plans[agentID]
	if !ok {
		return Plan{}, false
	}
	return p.clone(), true
}

// History returns copies of retired plans, newest last.
func (s *Store) History(agentID string) []Plan {
	hist := s.history[agentID]
	out := make([]Plan, 0, len(hist))
	for i := range hist {
		out = append(out, hist[i].clone())
	}
	return out
}

// NeedsNewPlan is the sole authority on replanning: no plan, an
// exhausted one, collapsed confidence, or a stale plan all require a new
// one. A merely suboptimal plan never does.
func (s *Store) NeedsNewPlan(agentID string) bool {
	p, ok := s.plans[agentID]
	if !ok {
		return true
	}
	if p.Exhausted() {
		return true
	}
	if p.Confidence < s.cfg.LowConfidence {
		return true
	}
	if s.cfg.StaleAfter > 0 && s.now().Sub(p.CreatedAt) > s.cfg.StaleAfter {
		return true
	}
	return false
}

// CurrentStep returns a copy of the step at the cursor, but only once
// its turn offset has reached zero; a future-scheduled step is invisible
// to the executor.
func (s *Store) CurrentStep(agentID string) (Step, bool) {
	p, ok := s.plans[agentID]
	if !ok || p.Exhausted() {
		return Step{}, false
	}
	st := p.Steps[p.Cursor]
	if st.TurnOffset > 0 {
		return Step{}, false
	}
	return st, true
}

// IsExecutingStep reports whether the current step is in flight.
func (s *Store) IsExecutingStep(agentID string) bool {
	p, ok := s.plans[agentID]
	if !ok || p.Exhausted() {
		return false
	}
	return p.Steps[p.Cursor].InFlight()
}

// CanMakeNewDecision is the single gate the tick controller consults
// before doing anything for an agent: false while a step is in flight,
// false inside the minimum delay after the previous completion, true
// otherwise (including when no plan exists at all).
func (s *Store) CanMakeNewDecision(agentID string) bool {
	if s.IsExecutingStep(agentID) {
		return false
	}
	if last, ok := s.lastCompleted[agentID]; ok {
		if s.now().Sub(last) < s.cfg.MinStepDelay {
			return false
		}
	}
	return true
}

// StartStep stamps the step's start time. No-op if the plan or step is
// gone (the plan may have been replaced since the caller looked).
func (s *Store) StartStep(agentID, stepID string) {
	p, ok := s.plans[agentID]
	if !ok || p.Exhausted() {
		return
	}
	st := &p.Steps[p.Cursor]
	if st.ID != stepID || !st.StartedAt.IsZero() {
		return
	}
	st.StartedAt = s.now()
	p.UpdatedAt = st.StartedAt
}

// CompleteCurrentStep stamps completion on the current step, moves
// confidence, advances the cursor, and pulls every remaining step one
// turn closer. Callers invoke it exactly once per executed step whether
// the execution succeeded, failed, or panicked.
func (s *Store) CompleteCurrentStep(agentID string, success bool) bool {
	p, ok := s.plans[agentID]
	if !ok || p.Exhausted() {
		return false
	}
	now := s.now()
	st := &p.Steps[p.Cursor]
	if !st.CompletedAt.IsZero() {
		return false
	}
	st.CompletedAt = now

	if success {
		p.Confidence *= confidenceReward
	} else {
		p.Confidence *= confidencePenalty
	}
	if p.Confidence > confidenceCeil {
		p.Confidence = confidenceCeil
	}
	if p.Confidence < confidenceFloor {
		p.Confidence = confidenceFloor
	}

	p.Cursor++
	for i := p.Cursor; i < len(p.Steps); i++ {
		if p.Steps[i].TurnOffset > 0 {
			p.Steps[i].TurnOffset--
		}
	}
	p.UpdatedAt = now
	s.lastCompleted[agentID] = now
	return true
}

// PassTurn consumes one scheduling turn for an agent whose current step
// is still future-scheduled, pulling every pending offset one turn
// closer. No-op while a step is in flight.
func (s *Store) PassTurn(agentID string) {
	p, ok := s.plans[agentID]
	if !ok || p.Exhausted() {
		return
	}
	if p.Steps[p.Cursor].InFlight() {
		return
	}
	for i := p.Cursor; i < len(p.Steps); i++ {
		if p.Steps[i].TurnOffset > 0 {
			p.Steps[i].TurnOffset--
		}
	}
	p.UpdatedAt = s.now()
}

// StorePlan replaces the agent's plan wholesale (no merge) and retires
// the previous one into a bounded history ring.
func (s *Store) StorePlan(p Plan) {
	now := s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	p.Cursor = 0
	if p.Confidence <= 0 {
		p.Confidence = defaultConfidence
	}

	if prev, ok := s.plans[p.AgentID]; ok {
		hist := append(s.history[p.AgentID], prev.clone())
		if n := len(hist) - s.cfg.HistoryRetention; n > 0 {
			hist = hist[n:]
		}
		s.history[p.AgentID] = hist
	}
	s.plans[p.AgentID] = &p
}

// Remove drops the agent's plan, history, and delay bookkeeping.
func (s *Store) Remove(agentID string) {
	delete(s.plans, agentID)
	delete(s.history, agentID)
	delete(s.lastCompleted, agentID)
}
