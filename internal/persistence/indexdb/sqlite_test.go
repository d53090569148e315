package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"fauna.ai/internal/sim/genetics"
	"fauna.ai/internal/sim/plan"
	"fauna.ai/internal/sim/state"
)

func TestIndexPersistsLifecycleAndPlans(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	a := state.Agent{
		ID:     "A1",
		Name:   "Bram",
		Traits: genetics.Traits{Generation: 1, Color: "fawn", Size: 1.1},
		BornAt: time.Unix(1700000000, 0),
		Age:    0.4,
	}
	idx.AgentBorn(a, 1)
	idx.PlanStored(plan.Plan{
		ID:         "p1",
		AgentID:    "A1",
		Type:       plan.TypeSurvival,
		Steps:      []plan.Step{{ID: "s1"}, {ID: "s2"}},
		Confidence: 0.7,
	}, true, 3)
	idx.LogEvents(3, time.Unix(1700000100, 0), nil)
	idx.AgentDied(a, 9, "starvation")

	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	var name, cause string
	var diedTick int64
	err = db.QueryRow(`SELECT name, cause, died_tick FROM agents WHERE agent_id='A1'`).Scan(&name, &cause, &diedTick)
	if err != nil {
		t.Fatalf("query agent: %v", err)
	}
	if name != "Bram" || cause != "starvation" || diedTick != 9 {
		t.Fatalf("unexpected agent row: %s %s %d", name, cause, diedTick)
	}

	var steps, fallback int
	err = db.QueryRow(`SELECT steps, fallback FROM plans WHERE plan_id='p1'`).Scan(&steps, &fallback)
	if err != nil {
		t.Fatalf("query plan: %v", err)
	}
	if steps != 2 || fallback != 1 {
		t.Fatalf("unexpected plan row: steps=%d fallback=%d", steps, fallback)
	}

	var events int
	if err := db.QueryRow(`SELECT events FROM ticks WHERE tick=3`).Scan(&events); err != nil {
		t.Fatalf("query tick: %v", err)
	}
	if events != 0 {
		t.Fatalf("expected 0 events recorded, got %d", events)
	}
}

func TestClosedIndexDropsSilently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Must not panic on a closed channel.
	idx.AgentDied(state.Agent{ID: "A1"}, 1, "old age")
	idx.LogEvents(2, time.Now(), nil)
}
