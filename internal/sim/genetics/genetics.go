package genetics

import (
	"fmt"
	"math/rand"
	"time"
)

// Traits is the heritable part of an animal.
type Traits struct {
	Strength     float64 `json:"strength"`     // 0..100
	Agility      float64 `json:"agility"`      // 0..100
	Intelligence float64 `json:"intelligence"` // 0..100
	Curiosity    float64 `json:"curiosity"`    // 0..100
	Sociability  float64 `json:"sociability"`  // 0..100
	Resilience   float64 `json:"resilience"`   // 0..100

	Playfulness float64 `json:"playfulness"` // 0..1
	Aggression  float64 `json:"aggression"`  // 0..1
	Caution     float64 `json:"caution"`     // 0..1
	Loyalty     float64 `json:"loyalty"`     // 0..1

	Size  float64 `json:"size"` // 0.5..1.5, scales movement cost
	Color string  `json:"color"`

	Generation int    `json:"generation"`
	ParentA    string `json:"parent_a,omitempty"`
	ParentB    string `json:"parent_b,omitempty"`
}

var colors = []string{"russet", "fawn", "slate", "cream", "umber", "ash", "brindle", "sable"}

var names = []string{
	"Bram", "Wisp", "Tarn", "Moss", "Fen", "Rook", "Sorrel", "Briar",
	"Alder", "Vetch", "Teasel", "Juniper", "Reed", "Clove", "Heather", "Flint",
}

// Factory creates animals, either from scratch or from two parents.
// Deterministic under an injected rand source.
type Factory struct {
	rng *rand.Rand

	baseLifespan   time.Duration
	lifespanJitter time.Duration
}

func NewFactory(rng *rand.Rand, baseLifespan, jitter time.Duration) *Factory {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if baseLifespan <= 0 {
		baseLifespan = 20 * time.Minute
	}
	return &Factory{rng: rng, baseLifespan: baseLifespan, lifespanJitter: jitter}
}

func (f *Factory) trait() float64 { return 20 + f.rng.Float64()*60 }

// Random produces a first-generation trait vector.
func (f *Factory) Random() Traits {
	return Traits{
		Strength:     f.trait(),
		Agility:      f.trait(),
		Intelligence: f.trait(),
		Curiosity:    f.trait(),
		Sociability:  f.trait(),
		Resilience:   f.trait(),
		Playfulness:  f.rng.Float64(),
		Aggression:   f.rng.Float64(),
		Caution:      f.rng.Float64(),
		Loyalty:      f.rng.Float64(),
		Size:         0.5 + f.rng.Float64(),
		Color:        colors[f.rng.Intn(len(colors))],
		Generation:   1,
	}
}

// Breed blends two parents' traits with a small mutation wobble. The
// statistical quality of the blend is deliberately unspecified; the sim
// only requires a well-formed Traits record back.
func (f *Factory) Breed(a, b Traits, parentA, parentB string) Traits {
	blend := func(x, y float64, scale float64) float64 {
		v := (x+y)/2 + (f.rng.Float64()-0.5)*scale
		if v < 0 {
			v = 0
		}
		return v
	}
	gen := a.Generation
	if b.Generation > gen {
		gen = b.Generation
	}
	t := Traits{
		Strength:     clamp100(blend(a.Strength, b.Strength, 10)),
		Agility:      clamp100(blend(a.Agility, b.Agility, 10)),
		Intelligence: clamp100(blend(a.Intelligence, b.Intelligence, 10)),
		Curiosity:    clamp100(blend(a.Curiosity, b.Curiosity, 10)),
		Sociability:  clamp100(blend(a.Sociability, b.Sociability, 10)),
		Resilience:   clamp100(blend(a.Resilience, b.Resilience, 10)),
		Playfulness:  clamp1(blend(a.Playfulness, b.Playfulness, 0.1)),
		Aggression:   clamp1(blend(a.Aggression, b.Aggression, 0.1)),
		Caution:      clamp1(blend(a.Caution, b.Caution, 0.1)),
		Loyalty:      clamp1(blend(a.Loyalty, b.Loyalty, 0.1)),
		Size:         blend(a.Size, b.Size, 0.1),
		Color:        a.Color,
		Generation:   gen + 1,
		ParentA:      parentA,
		ParentB:      parentB,
	}
	if f.rng.Float64() < 0.5 {
		t.Color = b.Color
	}
	if t.Size < 0.5 {
		t.Size = 0.5
	} else if t.Size > 1.5 {
		t.Size = 1.5
	}
	return t
}

// Name picks a display name; uniqueness comes from the numbered suffix.
func (f *Factory) Name(seq int) string {
	return fmt.Sprintf("%s-%d", names[f.rng.Intn(len(names))], seq)
}

// Lifespan returns a jittered lifespan for one animal.
func (f *Factory) Lifespan() time.Duration {
	if f.lifespanJitter <= 0 {
		return f.baseLifespan
	}
	j := time.Duration(f.rng.Int63n(int64(2*f.lifespanJitter))) - f.lifespanJitter
	return f.baseLifespan + j
}

// InitialStats derives starting survival stats from traits: resilient
// animals start healthier, playful ones happier. All values land in
// [0,100].
func (f *Factory) InitialStats(t Traits) (health, hunger, energy, happiness, thirst float64) {
	health = clamp100(70 + t.Resilience*0.3)
	energy = clamp100(60 + t.Agility*0.3 + f.rng.Float64()*10)
	happiness = clamp100(50 + t.Playfulness*30 + t.Sociability*0.1)
	hunger = clamp100(10 + f.rng.Float64()*20)
	thirst = clamp100(10 + f.rng.Float64()*20)
	return
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clamp1(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
