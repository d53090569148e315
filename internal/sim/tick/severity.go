package tick

import "fauna.ai/internal/sim/state"

// Severity buckets an agent's condition for scheduling. Worse
// conditions shrink the inter-decision delay so struggling agents react
// faster while calm ones keep their full stagger.
type Severity int

const (
	SeverityHealthy Severity = iota
	SeverityWarning
	SeverityCritical
	SeverityDying
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	case SeverityDying:
		return "dying"
	default:
		return "healthy"
	}
}

// Classify derives severity from threshold crossings on health, hunger,
// thirst, and energy. The worst crossing wins.
func Classify(s state.Stats) Severity {
	switch {
	case s.Health <= 10 || s.Hunger >= 95 || s.Thirst >= 95:
		return SeverityDying
	case s.Health <= 25 || s.Hunger >= 85 || s.Thirst >= 85 || s.Energy <= 10:
		return SeverityCritical
	case s.Health <= 50 || s.Hunger >= 70 || s.Thirst >= 70 || s.Energy <= 25:
		return SeverityWarning
	default:
		return SeverityHealthy
	}
}
