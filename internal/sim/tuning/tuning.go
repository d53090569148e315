package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickMs          int `yaml:"tick_ms"`
	RegenEveryTicks int `yaml:"regen_every_ticks"`
	BreedEveryTicks int `yaml:"breed_every_ticks"`

	WorldRadius float64 `yaml:"world_radius"`
	Population  int     `yaml:"population"`

	LifespanS       int `yaml:"lifespan_s"`
	LifespanJitterS int `yaml:"lifespan_jitter_s"`

	Degradation Degradation `yaml:"degradation"`
	Perception  Perception  `yaml:"perception"`
	Planning    Planning    `yaml:"planning"`
	Oracle      Oracle      `yaml:"oracle"`
	Severity    Severity    `yaml:"severity"`
}

// Degradation rates are per real minute, before age/resilience scaling.
type Degradation struct {
	HungerPerMin    float64 `yaml:"hunger_per_min"`
	ThirstPerMin    float64 `yaml:"thirst_per_min"`
	EnergyPerMin    float64 `yaml:"energy_per_min"`
	HappinessPerMin float64 `yaml:"happiness_per_min"`
	// Health drain applied while hunger or thirst is pegged at 100.
	StarvingHealthPerMin float64 `yaml:"starving_health_per_min"`
}

type Perception struct {
	SightMin      float64 `yaml:"sight_min"`
	HarvestRadius float64 `yaml:"harvest_radius"`
	MemoryWindow  int     `yaml:"memory_window"`
	MemoryMaxDist float64 `yaml:"memory_max_dist"`
}

type Planning struct {
	MinStepDelayMs   int     `yaml:"min_step_delay_ms"`
	LowConfidence    float64 `yaml:"low_confidence"`
	StalePlanS       int     `yaml:"stale_plan_s"`
	HistoryRetention int     `yaml:"history_retention"`
}

type Oracle struct {
	TimeoutMs        int     `yaml:"timeout_ms"`
	MaxExploreRadius float64 `yaml:"max_explore_radius"`
	Model            string  `yaml:"model"`
}

type Severity struct {
	StaggerMaxMs       int     `yaml:"stagger_max_ms"`
	WarningMultiplier  float64 `yaml:"warning_multiplier"`
	CriticalMultiplier float64 `yaml:"critical_multiplier"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.applyDefaults()
	return t, nil
}

// Default returns the tuning used when no file is supplied (and by tests).
func Default() Tuning {
	var t Tuning
	t.applyDefaults()
	return t
}

func (t *Tuning) applyDefaults() {
	if t.TickMs <= 0 {
		t.TickMs = 1000
	}
	if t.RegenEveryTicks <= 0 {
		t.RegenEveryTicks = 30
	}
	if t.BreedEveryTicks <= 0 {
		t.BreedEveryTicks = 600
	}
	if t.WorldRadius <= 0 {
		t.WorldRadius = 100
	}
	if t.Population <= 0 {
		t.Population = 8
	}
	if t.LifespanS <= 0 {
		t.LifespanS = 1200
	}
	if t.Degradation.HungerPerMin <= 0 {
		t.Degradation.HungerPerMin = 2.0
	}
	if t.Degradation.ThirstPerMin <= 0 {
		t.Degradation.ThirstPerMin = 2.5
	}
	if t.Degradation.EnergyPerMin <= 0 {
		t.Degradation.EnergyPerMin = 1.5
	}
	if t.Degradation.HappinessPerMin <= 0 {
		t.Degradation.HappinessPerMin = 0.8
	}
	if t.Degradation.StarvingHealthPerMin <= 0 {
		t.Degradation.StarvingHealthPerMin = 4.0
	}
	if t.Perception.SightMin <= 0 {
		t.Perception.SightMin = 10
	}
	if t.Perception.HarvestRadius <= 0 {
		t.Perception.HarvestRadius = 4
	}
	if t.Perception.MemoryWindow <= 0 {
		t.Perception.MemoryWindow = 5
	}
	if t.Perception.MemoryMaxDist <= 0 {
		t.Perception.MemoryMaxDist = 60
	}
	if t.Planning.MinStepDelayMs <= 0 {
		t.Planning.MinStepDelayMs = 2000
	}
	if t.Planning.LowConfidence <= 0 {
		t.Planning.LowConfidence = 0.3
	}
	if t.Planning.StalePlanS <= 0 {
		t.Planning.StalePlanS = 120
	}
	if t.Planning.HistoryRetention <= 0 {
		t.Planning.HistoryRetention = 5
	}
	if t.Oracle.TimeoutMs <= 0 {
		t.Oracle.TimeoutMs = 10000
	}
	if t.Oracle.MaxExploreRadius <= 0 {
		t.Oracle.MaxExploreRadius = 20
	}
	if t.Oracle.Model == "" {
		t.Oracle.Model = "gpt-4o-mini"
	}
	if t.Severity.StaggerMaxMs <= 0 {
		t.Severity.StaggerMaxMs = 5000
	}
	if t.Severity.WarningMultiplier <= 0 {
		t.Severity.WarningMultiplier = 0.4
	}
	if t.Severity.CriticalMultiplier <= 0 {
		t.Severity.CriticalMultiplier = 0.05
	}
}

func (t Tuning) TickPeriod() time.Duration   { return time.Duration(t.TickMs) * time.Millisecond }
func (t Tuning) MinStepDelay() time.Duration { return time.Duration(t.Planning.MinStepDelayMs) * time.Millisecond }
func (t Tuning) StalePlanAfter() time.Duration {
	return time.Duration(t.Planning.StalePlanS) * time.Second
}
func (t Tuning) OracleTimeout() time.Duration { return time.Duration(t.Oracle.TimeoutMs) * time.Millisecond }
func (t Tuning) StaggerMax() time.Duration    { return time.Duration(t.Severity.StaggerMaxMs) * time.Millisecond }
func (t Tuning) Lifespan() time.Duration      { return time.Duration(t.LifespanS) * time.Second }
func (t Tuning) LifespanJitter() time.Duration {
	return time.Duration(t.LifespanJitterS) * time.Second
}
