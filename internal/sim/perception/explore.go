package perception

import (
	"math"
	"math/rand"

	"fauna.ai/internal/sim/resources"
	"fauna.ai/internal/sim/state"
)

// Goal is a planar destination chosen by the exploration heuristic.
type Goal struct {
	X, Z   float64
	Reason string
}

// ExplorationGoal picks where an aimless explorer should head, in
// priority order: a remembered discovery matching the urgent need, a
// currently visible matching resource, unexplored territory biased away
// from known locations, and finally a plain random walk.
//
// urgent may be empty when nothing is pressing; the heuristic then
// skips straight to the territorial options.
func (b *Builder) ExplorationGoal(a *state.Agent, snap Snapshot, urgent resources.Type, rng *rand.Rand, stride float64) Goal {
	if stride <= 0 {
		stride = snap.SightRadius
	}

	if urgent != "" {
		var best *Memory
		bestScore := 0.0
		for i := range snap.Memories {
			m := &snap.Memories[i]
			if m.Kind != MemoryDiscovery || m.ResourceType != urgent {
				continue
			}
			sc := m.Reliability
			if best == nil || sc > bestScore {
				best, bestScore = m, sc
			}
		}
		if best != nil {
			return Goal{X: best.X, Z: best.Z, Reason: "remembered " + string(urgent) + " location"}
		}

		for _, r := range snap.Resources {
			if r.Type == urgent {
				// Head toward it even when it is too far to harvest;
				// closing distance is the point.
				dx, dz := goalToward(a.Pos.X, a.Pos.Z, r, stride)
				return Goal{X: dx, Z: dz, Reason: "visible " + string(urgent)}
			}
		}
	}

	// Unexplored territory: walk away from the centroid of everything
	// this agent already knows about.
	if mems := b.mem.All(a.ID); len(mems) > 0 {
		var cx, cz float64
		for _, m := range mems {
			cx += m.X
			cz += m.Z
		}
		cx /= float64(len(mems))
		cz /= float64(len(mems))
		away := math.Atan2(a.Pos.Z-cz, a.Pos.X-cx)
		// Wobble the bearing so repeated calls fan out.
		away += (rng.Float64() - 0.5) * math.Pi / 2
		return Goal{
			X:      a.Pos.X + math.Cos(away)*stride,
			Z:      a.Pos.Z + math.Sin(away)*stride,
			Reason: "unexplored territory",
		}
	}

	bearing := rng.Float64() * 2 * math.Pi
	return Goal{
		X:      a.Pos.X + math.Cos(bearing)*stride,
		Z:      a.Pos.Z + math.Sin(bearing)*stride,
		Reason: "random walk",
	}
}

// goalToward aims from (x,z) at the resource, capped at stride so one
// exploring step stays local.
func goalToward(x, z float64, r NearbyResource, stride float64) (float64, float64) {
	if r.Distance <= stride || r.Distance == 0 {
		// Direction strings are coarse; reconstruct offset from the
		// dominant axis when the node is within one stride.
		return towardDirection(x, z, r.Direction, r.Distance)
	}
	gx, gz := towardDirection(x, z, r.Direction, stride)
	return gx, gz
}

func towardDirection(x, z float64, dir string, dist float64) (float64, float64) {
	switch dir {
	case "east":
		return x + dist, z
	case "west":
		return x - dist, z
	case "south":
		return x, z + dist
	default:
		return x, z - dist
	}
}
