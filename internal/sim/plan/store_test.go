package plan

import (
	"fmt"
	"testing"
	"time"
)

// fakeClock lets tests move time explicitly.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time            { return c.t }
func (c *fakeClock) advance(d time.Duration)   { c.t = c.t.Add(d) }

func newTestStore(clk *fakeClock) *Store {
	return NewStore(Config{
		MinStepDelay:     2 * time.Second,
		LowConfidence:    0.3,
		StaleAfter:       time.Minute,
		HistoryRetention: 2,
	}, clk.now)
}

func threeStepPlan(agentID string) Plan {
	steps := make([]Step, 3)
	for i := range steps {
		steps[i] = Step{
			ID:       fmt.Sprintf("s%d", i+1),
			Action:   ActionExploring,
			Priority: 5,
		}
	}
	return Plan{ID: "p1", AgentID: agentID, Type: TypeExplore, Steps: steps}
}

func TestNoPlanNeedsNewPlan(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	s := newTestStore(clk)
	if !s.NeedsNewPlan("A1") {
		t.Fatalf("agent without plan must need a new one")
	}
	if !s.CanMakeNewDecision("A1") {
		t.Fatalf("agent without plan must be allowed to decide")
	}
	if _, ok := s.CurrentStep("A1"); ok {
		t.Fatalf("no step expected without a plan")
	}
}

func TestStepLifecycle(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	s := newTestStore(clk)
	s.StorePlan(threeStepPlan("A1"))

	if s.NeedsNewPlan("A1") {
		t.Fatalf("fresh plan must not need replanning")
	}

	for i := 0; i < 3; i++ {
		st, ok := s.CurrentStep("A1")
		if !ok {
			t.Fatalf("step %d not eligible", i)
		}
		s.StartStep("A1", st.ID)
		if !s.IsExecutingStep("A1") {
			t.Fatalf("step %d not marked in flight after start", i)
		}
		if s.CanMakeNewDecision("A1") {
			t.Fatalf("decision gate open while step %d in flight", i)
		}
		if !s.CompleteCurrentStep("A1", true) {
			t.Fatalf("completion %d rejected", i)
		}
		if s.CanMakeNewDecision("A1") {
			t.Fatalf("decision gate open inside minimum delay")
		}
		clk.advance(3 * time.Second)
		if !s.CanMakeNewDecision("A1") {
			t.Fatalf("decision gate closed after minimum delay")
		}
	}

	if !s.NeedsNewPlan("A1") {
		t.Fatalf("exhausted plan must need a new one")
	}
	if s.CompleteCurrentStep("A1", true) {
		t.Fatalf("completion past last step must report false")
	}
}

func TestCursorMonotonicAndExactlyOnce(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	s := newTestStore(clk)
	s.StorePlan(threeStepPlan("A1"))

	st, _ := s.CurrentStep("A1")
	s.StartStep("A1", st.ID)
	if !s.CompleteCurrentStep("A1", false) {
		t.Fatalf("first completion rejected")
	}
	p, _ := s.Plan("A1")
	if p.Cursor != 1 {
		t.Fatalf("expected cursor 1, got %d", p.Cursor)
	}
	// Completing again advances the NEXT step, never rewinds.
	s.CompleteCurrentStep("A1", true)
	p, _ = s.Plan("A1")
	if p.Cursor != 2 {
		t.Fatalf("expected cursor 2, got %d", p.Cursor)
	}
}

func TestTurnOffsetGatesEligibility(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	s := newTestStore(clk)
	p := threeStepPlan("A1")
	p.Steps[1].TurnOffset = 2
	s.StorePlan(p)

	st, _ := s.CurrentStep("A1")
	s.StartStep("A1", st.ID)
	s.CompleteCurrentStep("A1", true)

	// Step 2 still one turn out: invisible, but the plan is not exhausted.
	if _, ok := s.CurrentStep("A1"); ok {
		t.Fatalf("future-scheduled step must be invisible")
	}
	if s.NeedsNewPlan("A1") {
		t.Fatalf("plan with future steps must not need replanning")
	}

	// Burning a turn on the offset: completing is not possible without a
	// current step, so offsets decrement on the next real completion.
	got, _ := s.Plan("A1")
	if got.Steps[1].TurnOffset != 1 {
		t.Fatalf("expected offset 1 after one completion, got %d", got.Steps[1].TurnOffset)
	}
}

func TestConfidenceMovesAndClamps(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	s := newTestStore(clk)
	p := threeStepPlan("A1")
	p.Confidence = 0.95
	s.StorePlan(p)

	st, _ := s.CurrentStep("A1")
	s.StartStep("A1", st.ID)
	s.CompleteCurrentStep("A1", true)
	got, _ := s.Plan("A1")
	if got.Confidence != 1.0 {
		t.Fatalf("expected confidence clamped to 1.0, got %v", got.Confidence)
	}

	// Repeated failure decays toward the floor and eventually forces
	// replanning.
	p2 := threeStepPlan("A2")
	p2.Steps = append(p2.Steps, threeStepPlan("A2").Steps...)
	p2.Confidence = 0.4
	s.StorePlan(p2)
	for i := 0; i < 3; i++ {
		st, ok := s.CurrentStep("A2")
		if !ok {
			break
		}
		s.StartStep("A2", st.ID)
		s.CompleteCurrentStep("A2", false)
		clk.advance(3 * time.Second)
	}
	got2, _ := s.Plan("A2")
	if got2.Confidence >= 0.3 {
		t.Fatalf("expected decayed confidence below threshold, got %v", got2.Confidence)
	}
	if !s.NeedsNewPlan("A2") {
		t.Fatalf("low-confidence plan must need replanning")
	}
}

func TestStalePlanNeedsReplanning(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	s := newTestStore(clk)
	s.StorePlan(threeStepPlan("A1"))
	clk.advance(2 * time.Minute)
	if !s.NeedsNewPlan("A1") {
		t.Fatalf("stale plan must need replanning")
	}
}

func TestStorePlanReplacesAndKeepsHistory(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	s := newTestStore(clk)

	for i := 1; i <= 4; i++ {
		p := threeStepPlan("A1")
		p.ID = fmt.Sprintf("p%d", i)
		s.StorePlan(p)
	}
	active, _ := s.Plan("A1")
	if active.ID != "p4" || active.Cursor != 0 {
		t.Fatalf("expected active p4 at cursor 0, got %s@%d", active.ID, active.Cursor)
	}
	hist := s.History("A1")
	if len(hist) != 2 {
		t.Fatalf("expected history ring of 2, got %d", len(hist))
	}
	if hist[0].ID != "p2" || hist[1].ID != "p3" {
		t.Fatalf("expected [p2 p3] in history, got [%s %s]", hist[0].ID, hist[1].ID)
	}
}

func TestRemoveClearsEverything(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	s := newTestStore(clk)
	s.StorePlan(threeStepPlan("A1"))
	st, _ := s.CurrentStep("A1")
	s.StartStep("A1", st.ID)
	s.CompleteCurrentStep("A1", true)

	s.Remove("A1")
	if _, ok := s.Plan("A1"); ok {
		t.Fatalf("plan survived removal")
	}
	if len(s.History("A1")) != 0 {
		t.Fatalf("history survived removal")
	}
	// The inter-step delay bookkeeping is gone too.
	if !s.CanMakeNewDecision("A1") {
		t.Fatalf("removed agent must be free to decide if re-registered")
	}
}
