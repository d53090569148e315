package genetics

import (
	"math/rand"
	"testing"
	"time"
)

func newTestFactory() *Factory {
	return NewFactory(rand.New(rand.NewSource(42)), 10*time.Minute, time.Minute)
}

func TestRandomTraitsInRange(t *testing.T) {
	f := newTestFactory()
	for i := 0; i < 50; i++ {
		tr := f.Random()
		for name, v := range map[string]float64{
			"strength": tr.Strength, "agility": tr.Agility, "intelligence": tr.Intelligence,
			"curiosity": tr.Curiosity, "sociability": tr.Sociability, "resilience": tr.Resilience,
		} {
			if v < 0 || v > 100 {
				t.Fatalf("%s out of range: %v", name, v)
			}
		}
		if tr.Size < 0.5 || tr.Size > 1.5 {
			t.Fatalf("size out of range: %v", tr.Size)
		}
		if tr.Generation != 1 {
			t.Fatalf("expected generation 1, got %d", tr.Generation)
		}
	}
}

func TestBreedGenerationAndParents(t *testing.T) {
	f := newTestFactory()
	a := f.Random()
	b := f.Random()
	a.Generation = 3
	b.Generation = 5

	child := f.Breed(a, b, "A1", "A2")
	if child.Generation != 6 {
		t.Fatalf("expected generation 6, got %d", child.Generation)
	}
	if child.ParentA != "A1" || child.ParentB != "A2" {
		t.Fatalf("parent ids not recorded: %q %q", child.ParentA, child.ParentB)
	}
	if child.Strength < 0 || child.Strength > 100 {
		t.Fatalf("blended strength out of range: %v", child.Strength)
	}
	if child.Size < 0.5 || child.Size > 1.5 {
		t.Fatalf("blended size out of range: %v", child.Size)
	}
}

func TestInitialStatsInRange(t *testing.T) {
	f := newTestFactory()
	for i := 0; i < 50; i++ {
		tr := f.Random()
		h, hu, e, ha, th := f.InitialStats(tr)
		for name, v := range map[string]float64{"health": h, "hunger": hu, "energy": e, "happiness": ha, "thirst": th} {
			if v < 0 || v > 100 {
				t.Fatalf("%s out of range: %v", name, v)
			}
		}
	}
}
