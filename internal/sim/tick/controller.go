// Package tick drives the simulation: one fixed-period loop on a single
// goroutine that ages agents, degrades their stats, and runs each
// agent's decision pipeline on a staggered schedule. Everything the
// loop touches is owned by this goroutine; the only asynchronous
// boundary is the oracle call, whose result comes back over a channel
// and is discarded if the agent has since died.
package tick

import (
	"context"
	"log"
	"math/rand"
	"sync/atomic"
	"time"

	"fauna.ai/internal/protocol"
	"fauna.ai/internal/sim/action"
	"fauna.ai/internal/sim/oracle"
	"fauna.ai/internal/sim/perception"
	"fauna.ai/internal/sim/plan"
	"fauna.ai/internal/sim/resources"
	"fauna.ai/internal/sim/state"
	"fauna.ai/internal/sim/tuning"
)

// DecisionMaker is the oracle boundary. The adapter guarantees a usable
// plan on every return, falling back internally on any failure.
type DecisionMaker interface {
	Decide(ctx context.Context, a *state.Agent, snap perception.Snapshot, existing *plan.Plan) oracle.Decision
}

// Breeder is invoked on its own cadence and returns any newborns, which
// the controller registers. Forget releases its per-agent bookkeeping
// when an agent dies.
type Breeder interface {
	Tick(now time.Time) []*state.Agent
	Forget(agentID string)
}

// EventLogger receives the flushed change-event batch once per tick.
type EventLogger interface {
	LogEvents(tick uint64, at time.Time, events []protocol.ChangeEvent)
}

// Recorder receives lifecycle and plan milestones for indexing.
type Recorder interface {
	AgentBorn(a state.Agent, tick uint64)
	AgentDied(a state.Agent, tick uint64, cause string)
	PlanStored(p plan.Plan, fallback bool, tick uint64)
}

// agentClock is per-agent scheduling state: a stagger offset fixed at
// registration and the explicit next-eligible time the loop checks.
type agentClock struct {
	stagger      time.Duration
	nextEligible time.Time
}

type decisionResult struct {
	agentID string
	d       oracle.Decision
}

// Controller owns the loop. All methods other than Run, Stop, and
// CurrentTick must be called from the loop goroutine (or before Run).
type Controller struct {
	cfg   tuning.Tuning
	res   *resources.Registry
	st    *state.Store
	plans *plan.Store
	perc  *perception.Builder
	exec  *action.Executor
	orc   DecisionMaker

	breeder  Breeder
	eventLog EventLogger
	recorder Recorder

	log *log.Logger
	rng *rand.Rand
	now func() time.Time

	tick    atomic.Uint64
	last    time.Time
	baseCtx context.Context

	clocks  map[string]*agentClock
	pending map[string]struct{}
	results chan decisionResult

	stop chan struct{}
}

func NewController(cfg tuning.Tuning, res *resources.Registry, st *state.Store,
	plans *plan.Store, perc *perception.Builder, exec *action.Executor,
	orc DecisionMaker, rng *rand.Rand, logger *log.Logger, now func() time.Time) *Controller {
	if logger == nil {
		logger = log.New(log.Writer(), "[tick] ", log.LstdFlags)
	}
	if now == nil {
		now = time.Now
	}
	return &Controller{
		cfg:     cfg,
		last:    now(),
		res:     res,
		st:      st,
		plans:   plans,
		perc:    perc,
		exec:    exec,
		orc:     orc,
		log:     logger,
		rng:     rng,
		now:     now,
		baseCtx: context.Background(),
		clocks:  map[string]*agentClock{},
		pending: map[string]struct{}{},
		results: make(chan decisionResult, 64),
		stop:    make(chan struct{}),
	}
}

func (c *Controller) SetBreeder(b Breeder)         { c.breeder = b }
func (c *Controller) SetEventLogger(l EventLogger) { c.eventLog = l }
func (c *Controller) SetRecorder(r Recorder)       { c.recorder = r }

func (c *Controller) CurrentTick() uint64 { return c.tick.Load() }

// Register adds an agent to the population and assigns its stagger.
func (c *Controller) Register(a *state.Agent) {
	c.st.SetAgent(a)
	c.clocks[a.ID] = &agentClock{stagger: c.randomStagger()}
	if c.recorder != nil {
		if cur, ok := c.st.Agent(a.ID); ok {
			c.recorder.AgentBorn(cur, c.tick.Load())
		}
	}
}

func (c *Controller) randomStagger() time.Duration {
	max := c.cfg.StaggerMax()
	if max <= 0 {
		return 0
	}
	return time.Duration(c.rng.Int63n(int64(max)))
}

func (c *Controller) Run(ctx context.Context) error {
	c.baseCtx = ctx
	c.last = c.now()
	ticker := time.NewTicker(c.cfg.TickPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return nil
		case <-ticker.C:
			c.step(c.now())
		}
	}
}

func (c *Controller) Stop() { close(c.stop) }

// step is one full scheduling turn.
func (c *Controller) step(now time.Time) {
	t := c.tick.Add(1)
	elapsed := now.Sub(c.last)
	if elapsed < 0 {
		elapsed = 0
	}
	c.last = now
	mins := elapsed.Minutes()

	// Agents marked dead last turn leave the population now, after
	// their death event has been flushed.
	for _, a := range c.st.AllAgents() {
		if !a.Alive {
			c.remove(a.ID)
		}
	}

	c.drainResults(now)

	for _, a := range c.st.AllAgents() {
		c.degrade(&a, mins, now, t)
	}

	if n := c.cfg.RegenEveryTicks; n > 0 && t%uint64(n) == 0 {
		c.res.RegenerateTick()
	}
	if c.breeder != nil && c.cfg.BreedEveryTicks > 0 && t%uint64(c.cfg.BreedEveryTicks) == 0 {
		for _, born := range c.breeder.Tick(now) {
			c.Register(born)
			c.log.Printf("born: %s (%s) gen %d", born.ID, born.Name, born.Traits.Generation)
		}
	}

	for _, a := range c.st.AllAgents() {
		if !a.Alive {
			continue
		}
		c.turn(&a, now)
	}

	events := c.st.Flush(t)
	if c.eventLog != nil && len(events) > 0 {
		c.eventLog.LogEvents(t, now, events)
	}
}

// degrade recomputes age and applies time-scaled stat decay. Old age
// and starvation both end here: the agent is marked dead in place and
// cleaned out of every schedule, then removed on the next turn.
func (c *Controller) degrade(a *state.Agent, mins float64, now time.Time, t uint64) {
	if a.Lifespan <= 0 {
		return
	}
	age := float64(now.Sub(a.BornAt)) / float64(a.Lifespan)
	if age >= 1 {
		c.st.UpdateAge(a.ID, 1, false)
		c.retire(a.ID, t, "old age")
		return
	}
	c.st.UpdateAge(a.ID, age, true)

	if mins > 0 {
		// Older animals decay faster, resilient ones slower.
		scale := (1 + 0.5*age) * (1 - a.Traits.Resilience/250)
		deg := c.cfg.Degradation
		d := state.StatDeltas{
			Hunger:    deg.HungerPerMin * mins * scale,
			Thirst:    deg.ThirstPerMin * mins * scale,
			Energy:    -deg.EnergyPerMin * mins * scale,
			Happiness: -deg.HappinessPerMin * mins * scale,
		}
		if a.Stats.Hunger >= 100 || a.Stats.Thirst >= 100 {
			d.Health = -deg.StarvingHealthPerMin * mins
		}
		c.st.UpdateStats(a.ID, d, "degradation")
	}

	if cur, ok := c.st.Agent(a.ID); ok && cur.Stats.Health <= 0 {
		c.st.UpdateAge(a.ID, age, false)
		c.retire(a.ID, t, "starvation")
	}
}

// retire marks the death everywhere except the state store record,
// which stays one more turn so subscribers see the final event.
func (c *Controller) retire(id string, t uint64, cause string) {
	if c.recorder != nil {
		if cur, ok := c.st.Agent(id); ok {
			c.recorder.AgentDied(cur, t, cause)
		}
	}
	c.plans.Remove(id)
	c.perc.Memories().Remove(id)
	if c.breeder != nil {
		c.breeder.Forget(id)
	}
	delete(c.clocks, id)
	delete(c.pending, id)
	c.log.Printf("agent %s died: %s", id, cause)
}

func (c *Controller) remove(id string) {
	c.st.Remove(id)
	delete(c.clocks, id)
}

// turn runs the decision pipeline for one agent if its clock and the
// plan gate allow it.
func (c *Controller) turn(a *state.Agent, now time.Time) {
	clock, ok := c.clocks[a.ID]
	if !ok {
		clock = &agentClock{stagger: c.randomStagger()}
		c.clocks[a.ID] = clock
	}
	if now.Before(clock.nextEligible) {
		return
	}
	if _, busy := c.pending[a.ID]; busy {
		return
	}
	if !c.plans.CanMakeNewDecision(a.ID) {
		return
	}

	snap := c.perc.Build(a, now)

	if step, ok := c.plans.CurrentStep(a.ID); ok {
		c.runStep(a, step, snap, now)
		return
	}
	if c.plans.NeedsNewPlan(a.ID) {
		c.dispatch(a, snap)
		clock.nextEligible = now.Add(c.cfg.TickPeriod())
		return
	}

	// Current step is future-scheduled: this turn brings it closer.
	c.plans.PassTurn(a.ID)
	clock.nextEligible = now.Add(c.delayFor(clock, a.Stats))
}

// runStep executes the current step and applies every effect in one
// transactional pass before the cursor advances. CompleteCurrentStep is
// called exactly once however execution went.
func (c *Controller) runStep(a *state.Agent, step plan.Step, snap perception.Snapshot, now time.Time) {
	c.plans.StartStep(a.ID, step.ID)
	res := c.exec.Execute(a, step.Action, step.Params, snap)
	success := c.apply(a, step, res)
	c.plans.CompleteCurrentStep(a.ID, success)
	if !success {
		c.log.Printf("agent %s %s failed: %s", a.ID, step.Action, res.Message)
		c.recordFailure(a, step, res, now)
	}
	if clock, ok := c.clocks[a.ID]; ok {
		if cur, found := c.st.Agent(a.ID); found {
			clock.nextEligible = now.Add(c.delayFor(clock, cur.Stats))
		}
	}
}

// recordFailure leaves a failure memory where a needs-serving step went
// wrong, so later perception ranks the spot down instead of sending the
// agent straight back.
func (c *Controller) recordFailure(a *state.Agent, step plan.Step, res action.Result, now time.Time) {
	var rt resources.Type
	x, z := a.Pos.X, a.Pos.Z
	switch step.Action {
	case plan.ActionHarvesting:
		if n, ok := c.res.Node(step.Params.ResourceID); ok {
			rt, x, z = n.Type, n.X, n.Z
		}
	case plan.ActionEating:
		rt = resources.TypeFood
	case plan.ActionDrinking:
		rt = resources.TypeWater
	default:
		return
	}
	c.perc.Memories().Record(a.ID, perception.Memory{
		Kind:         perception.MemoryFailure,
		ResourceType: rt,
		X:            x,
		Z:            z,
		At:           now,
		Note:         res.Message,
		Reliability:  0.6,
	})
}

// apply settles an action result against the world. The registry is the
// authority on harvest yield; the store write happens once, after every
// world-side mutation, so no observer sees a half-applied action.
func (c *Controller) apply(a *state.Agent, step plan.Step, res action.Result) bool {
	success := res.Success
	eff := res.Effects

	if res.ResourceID != "" && res.HarvestAmount > 0 {
		h := c.res.Harvest(res.ResourceID, res.HarvestAmount)
		// A settle below one whole unit grants nothing; the step must
		// not count as a success when the inventory gained nothing.
		if !h.Success || int(h.Amount) < 1 {
			eff.Harvested = nil
			success = false
		} else if eff.Harvested != nil {
			eff.Harvested.Quantity = int(h.Amount)
			eff.Harvested.Quality = h.Quality
		}
	}
	if res.NewStructure {
		c.res.AddStructure(resources.Structure{
			Type:     resources.TypeShelter,
			X:        a.Pos.X,
			Y:        a.Pos.Y,
			Z:        a.Pos.Z,
			Progress: res.StructureDelta,
			Owner:    a.ID,
		})
	} else if res.StructureID != "" && res.StructureDelta > 0 {
		c.res.AdvanceStructure(res.StructureID, res.StructureDelta)
	}

	c.st.UpdateFromActionResult(a.ID, eff, string(step.Action), "action")
	return success
}

func (c *Controller) delayFor(clock *agentClock, s state.Stats) time.Duration {
	m := 1.0
	switch Classify(s) {
	case SeverityWarning:
		m = c.cfg.Severity.WarningMultiplier
	case SeverityCritical, SeverityDying:
		m = c.cfg.Severity.CriticalMultiplier
	}
	return time.Duration(float64(clock.stagger) * m)
}

// dispatch fires the oracle call off the loop goroutine. The pending
// marker keeps the agent from being scheduled again until the result
// lands.
func (c *Controller) dispatch(a *state.Agent, snap perception.Snapshot) {
	c.pending[a.ID] = struct{}{}

	var existing *plan.Plan
	if p, ok := c.plans.Plan(a.ID); ok {
		existing = &p
	}
	agent := *a
	ctx := c.baseCtx

	go func() {
		d := c.orc.Decide(ctx, &agent, snap, existing)
		select {
		case c.results <- decisionResult{agentID: agent.ID, d: d}:
		case <-c.stop:
		}
	}()
}

// drainResults lands every finished oracle call: store the plan, then
// run its first step right away if the gate still allows. Results for
// agents that died mid-flight are discarded.
func (c *Controller) drainResults(now time.Time) {
	for {
		select {
		case r := <-c.results:
			delete(c.pending, r.agentID)
			a, ok := c.st.Agent(r.agentID)
			if !ok || !a.Alive {
				continue
			}
			c.plans.StorePlan(r.d.Plan)
			if c.recorder != nil {
				c.recorder.PlanStored(r.d.Plan, r.d.Fallback, c.tick.Load())
			}
			if !c.plans.CanMakeNewDecision(r.agentID) {
				continue
			}
			if step, eligible := c.plans.CurrentStep(r.agentID); eligible {
				snap := c.perc.Build(&a, now)
				c.runStep(&a, step, snap, now)
			}
		default:
			return
		}
	}
}
