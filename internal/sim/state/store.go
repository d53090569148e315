package state

import (
	"sort"
	"sync"

	"fauna.ai/internal/protocol"
	"fauna.ai/internal/sim/resources"
)

// StatDeltas is a partial stat update; zero fields leave the stat alone.
type StatDeltas struct {
	Health    float64
	Hunger    float64
	Energy    float64
	Happiness float64
	Thirst    float64
}

// ItemChange names an item grant or consumption.
type ItemChange struct {
	Type     resources.Type
	Quantity int
	Quality  float64
}

// ActionEffects is everything an executed action wants applied to one
// agent. The store applies all of it in a single read-modify-write so a
// partially applied action can never be observed.
type ActionEffects struct {
	Stats       StatDeltas
	NewPosition *Position
	Consumed    *ItemChange
	Harvested   *ItemChange
}

// Subscriber receives one coalesced batch of change events per flush.
type Subscriber func(events []protocol.ChangeEvent)

// Store is the single authoritative id->Agent map. All simulation
// mutation happens on the world goroutine; the mutex only guards the
// subscriber table, which transports touch from their own goroutines.
//
// Change events are queued, not delivered synchronously: the tick loop
// calls Flush once per scheduling turn, so subscribers see one batched
// callback per turn regardless of mutation volume, and events raised
// during a flush are deferred to the next one.
type Store struct {
	agents map[string]*Agent

	queue    []protocol.ChangeEvent
	flushing bool
	deferred []protocol.ChangeEvent

	subMu   sync.Mutex
	subs    map[int]Subscriber
	nextSub int
}

func NewStore() *Store {
	return &Store{
		agents: map[string]*Agent{},
		subs:   map[int]Subscriber{},
	}
}

// Subscribe registers a flush callback and returns an unsubscribe token.
func (s *Store) Subscribe(fn Subscriber) int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.nextSub++
	s.subs[s.nextSub] = fn
	return s.nextSub
}

func (s *Store) Unsubscribe(token int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	delete(s.subs, token)
}

// SetAgent inserts or fully replaces a record and emits a FULL event.
func (s *Store) SetAgent(a *Agent) {
	cp := a.clone()
	s.agents[cp.ID] = cp
	view := cp.View()
	s.emit(protocol.ChangeEvent{Kind: protocol.ChangeFull, AgentID: cp.ID, Agent: &view})
}

// Agent returns a copy of the record, or false.
func (s *Store) Agent(id string) (Agent, bool) {
	a, ok := s.agents[id]
	if !ok {
		return Agent{}, false
	}
	return *a.clone(), true
}

// AllAgents returns copies of every record, ordered by id.
func (s *Store) AllAgents() []Agent {
	out := make([]Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, *a.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Remove deletes the record outright. In-flight work keyed on the id is
// expected to discard its result when the agent is gone.
func (s *Store) Remove(id string) bool {
	if _, ok := s.agents[id]; !ok {
		return false
	}
	delete(s.agents, id)
	return true
}

// UpdateStats applies deltas (clamped) and emits a STATS event. Other
// fields are untouched. Returns false when the agent does not exist.
func (s *Store) UpdateStats(id string, d StatDeltas, source string) bool {
	a, ok := s.agents[id]
	if !ok {
		return false
	}
	applyStats(a, d)
	sv := a.statsView()
	s.emit(protocol.ChangeEvent{Kind: protocol.ChangeStats, AgentID: id, Source: source, Stats: &sv})
	return true
}

// UpdatePosition replaces the position and emits a POSITION event.
func (s *Store) UpdatePosition(id string, pos Position, source string) bool {
	a, ok := s.agents[id]
	if !ok {
		return false
	}
	a.Pos = pos
	pv := a.positionView()
	s.emit(protocol.ChangeEvent{Kind: protocol.ChangePosition, AgentID: id, Source: source, Position: &pv})
	return true
}

// UpdateAction replaces the current action label and emits ACTION.
func (s *Store) UpdateAction(id, action, source string) bool {
	a, ok := s.agents[id]
	if !ok {
		return false
	}
	a.CurrentAction = action
	s.emit(protocol.ChangeEvent{Kind: protocol.ChangeAction, AgentID: id, Source: source, Action: action})
	return true
}

// UpdateAge writes the derived age fraction and alive flag. Dead agents
// are kept in place; removal is a separate operation.
func (s *Store) UpdateAge(id string, age float64, alive bool) bool {
	a, ok := s.agents[id]
	if !ok {
		return false
	}
	if age < 0 {
		age = 0
	}
	if age > 1 {
		age = 1
	}
	a.Age = age
	a.Alive = alive
	view := a.View()
	s.emit(protocol.ChangeEvent{Kind: protocol.ChangeFull, AgentID: id, Source: "age", Agent: &view})
	return true
}

// UpdateFromActionResult applies all effects of one executed action in a
// single read-modify-write, then emits one typed event per touched
// aspect. Returns false when the agent does not exist.
func (s *Store) UpdateFromActionResult(id string, eff ActionEffects, action, source string) bool {
	a, ok := s.agents[id]
	if !ok {
		return false
	}

	applyStats(a, eff.Stats)
	if eff.Consumed != nil {
		a.Inventory.Remove(eff.Consumed.Type, eff.Consumed.Quantity)
	}
	if eff.Harvested != nil {
		a.Inventory.Add(eff.Harvested.Type, eff.Harvested.Quantity, eff.Harvested.Quality)
	}
	if eff.NewPosition != nil {
		a.Pos = *eff.NewPosition
	}
	a.CurrentAction = action

	sv := a.statsView()
	s.emit(protocol.ChangeEvent{Kind: protocol.ChangeStats, AgentID: id, Source: source, Stats: &sv})
	if eff.NewPosition != nil {
		pv := a.positionView()
		s.emit(protocol.ChangeEvent{Kind: protocol.ChangePosition, AgentID: id, Source: source, Position: &pv})
	}
	if eff.Consumed != nil || eff.Harvested != nil {
		iv := a.inventoryView()
		s.emit(protocol.ChangeEvent{Kind: protocol.ChangeInventory, AgentID: id, Source: source, Inventory: &iv})
	}
	s.emit(protocol.ChangeEvent{Kind: protocol.ChangeAction, AgentID: id, Source: source, Action: action})
	return true
}

func applyStats(a *Agent, d StatDeltas) {
	a.Stats.Health += d.Health
	a.Stats.Hunger += d.Hunger
	a.Stats.Energy += d.Energy
	a.Stats.Happiness += d.Happiness
	a.Stats.Thirst += d.Thirst
	a.Stats.clamp()
}

func (s *Store) emit(ev protocol.ChangeEvent) {
	if s.flushing {
		s.deferred = append(s.deferred, ev)
		return
	}
	s.queue = append(s.queue, ev)
}

// Pending reports queued (not yet flushed) event count.
func (s *Store) Pending() int { return len(s.queue) }

// Flush delivers everything queued since the previous flush as one batch
// per subscriber. Events emitted by subscribers during delivery land in
// the next flush, never the current one.
func (s *Store) Flush(tick uint64) []protocol.ChangeEvent {
	if len(s.queue) == 0 {
		return nil
	}
	batch := s.queue
	s.queue = nil
	for i := range batch {
		batch[i].Tick = tick
	}

	s.subMu.Lock()
	subs := make([]Subscriber, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	s.flushing = true
	for _, fn := range subs {
		fn(batch)
	}
	s.flushing = false
	if len(s.deferred) > 0 {
		s.queue = append(s.queue, s.deferred...)
		s.deferred = nil
	}
	return batch
}
