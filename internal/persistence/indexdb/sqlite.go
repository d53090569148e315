// Package indexdb maintains a queryable SQLite index next to the JSONL
// event logs: tick digests, agent lifecycle rows, and plan outcomes.
// All writes go through one goroutine; when the indexer falls behind,
// requests are dropped rather than stalling the sim, since the JSONL
// logs remain the source of truth.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"fauna.ai/internal/protocol"
	"fauna.ai/internal/sim/plan"
	"fauna.ai/internal/sim/state"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqBorn
	reqDied
	reqPlan
)

type req struct {
	kind reqKind

	tick tickRow
	born bornRow
	died diedRow
	plan planRow
}

type tickRow struct {
	Tick   uint64
	At     string
	Events int
}

type bornRow struct {
	AgentID    string
	Name       string
	Generation int
	Color      string
	Size       float64
	ParentA    string
	ParentB    string
	BornTick   uint64
	BornAt     string
	TraitsJSON string
}

type diedRow struct {
	AgentID  string
	DiedTick uint64
	DiedAt   string
	Cause    string
	Age      float64
}

type planRow struct {
	PlanID     string
	AgentID    string
	Type       string
	Steps      int
	Fallback   bool
	Confidence float64
	Tick       uint64
	CreatedAt  string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads. NORMAL is a
	// decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			at TEXT NOT NULL,
			events INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS agents (
			agent_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			generation INTEGER NOT NULL,
			color TEXT NOT NULL,
			size REAL NOT NULL,
			parent_a TEXT,
			parent_b TEXT,
			born_tick INTEGER NOT NULL,
			born_at TEXT NOT NULL,
			died_tick INTEGER,
			died_at TEXT,
			cause TEXT,
			age REAL,
			traits_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_agents_generation ON agents(generation);`,
		`CREATE TABLE IF NOT EXISTS plans (
			plan_id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			type TEXT NOT NULL,
			steps INTEGER NOT NULL,
			fallback INTEGER NOT NULL,
			confidence REAL NOT NULL,
			tick INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_plans_agent_tick ON plans(agent_id, tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped reports how many requests were discarded under backpressure.
func (s *SQLiteIndex) Dropped() uint64 { return s.dropped.Load() }

func (s *SQLiteIndex) enqueue(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
	}
}

// LogEvents records a per-tick digest row.
func (s *SQLiteIndex) LogEvents(tick uint64, at time.Time, events []protocol.ChangeEvent) {
	s.enqueue(req{kind: reqTick, tick: tickRow{
		Tick:   tick,
		At:     at.UTC().Format(time.RFC3339Nano),
		Events: len(events),
	}})
}

func (s *SQLiteIndex) AgentBorn(a state.Agent, tick uint64) {
	traits, _ := json.Marshal(a.Traits)
	s.enqueue(req{kind: reqBorn, born: bornRow{
		AgentID:    a.ID,
		Name:       a.Name,
		Generation: a.Traits.Generation,
		Color:      a.Traits.Color,
		Size:       a.Traits.Size,
		ParentA:    a.Traits.ParentA,
		ParentB:    a.Traits.ParentB,
		BornTick:   tick,
		BornAt:     a.BornAt.UTC().Format(time.RFC3339Nano),
		TraitsJSON: string(traits),
	}})
}

func (s *SQLiteIndex) AgentDied(a state.Agent, tick uint64, cause string) {
	s.enqueue(req{kind: reqDied, died: diedRow{
		AgentID:  a.ID,
		DiedTick: tick,
		DiedAt:   time.Now().UTC().Format(time.RFC3339Nano),
		Cause:    cause,
		Age:      a.Age,
	}})
}

func (s *SQLiteIndex) PlanStored(p plan.Plan, fallback bool, tick uint64) {
	s.enqueue(req{kind: reqPlan, plan: planRow{
		PlanID:     p.ID,
		AgentID:    p.AgentID,
		Type:       string(p.Type),
		Steps:      len(p.Steps),
		Fallback:   fallback,
		Confidence: p.Confidence,
		Tick:       tick,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}})
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,at,events) VALUES(?,?,?)`)
	insertBorn, _ := s.db.Prepare(`INSERT OR REPLACE INTO agents(agent_id,name,generation,color,size,parent_a,parent_b,born_tick,born_at,traits_json) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	updateDied, _ := s.db.Prepare(`UPDATE agents SET died_tick=?, died_at=?, cause=?, age=? WHERE agent_id=?`)
	insertPlan, _ := s.db.Prepare(`INSERT OR REPLACE INTO plans(plan_id,agent_id,type,steps,fallback,confidence,tick,created_at) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertBorn, updateDied, insertPlan} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		var err error
		switch r.kind {
		case reqTick:
			if insertTick != nil {
				_, err = tx.Stmt(insertTick).Exec(int64(r.tick.Tick), r.tick.At, r.tick.Events)
			}
		case reqBorn:
			b := r.born
			if insertBorn != nil {
				_, err = tx.Stmt(insertBorn).Exec(
					b.AgentID, b.Name, b.Generation, b.Color, b.Size,
					b.ParentA, b.ParentB, int64(b.BornTick), b.BornAt, b.TraitsJSON,
				)
			}
		case reqDied:
			d := r.died
			if updateDied != nil {
				_, err = tx.Stmt(updateDied).Exec(int64(d.DiedTick), d.DiedAt, d.Cause, d.Age, d.AgentID)
			}
		case reqPlan:
			p := r.plan
			if insertPlan != nil {
				fb := 0
				if p.Fallback {
					fb = 1
				}
				_, err = tx.Stmt(insertPlan).Exec(
					p.PlanID, p.AgentID, p.Type, p.Steps, fb, p.Confidence,
					int64(p.Tick), p.CreatedAt,
				)
			}
		}
		if err != nil {
			rollback()
			continue
		}
		opCount++
		flushIfNeeded()
	}

	commit()
}
