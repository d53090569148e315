package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"fauna.ai/internal/persistence/indexdb"
	persistlog "fauna.ai/internal/persistence/log"
	"fauna.ai/internal/protocol"
	"fauna.ai/internal/sim/action"
	"fauna.ai/internal/sim/breeding"
	"fauna.ai/internal/sim/genetics"
	"fauna.ai/internal/sim/oracle"
	openaiclient "fauna.ai/internal/sim/oracle/openai"
	"fauna.ai/internal/sim/perception"
	"fauna.ai/internal/sim/plan"
	"fauna.ai/internal/sim/resources"
	"fauna.ai/internal/sim/state"
	"fauna.ai/internal/sim/tick"
	"fauna.ai/internal/sim/tuning"
	"fauna.ai/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		schemaPath = flag.String("plan_schema", "", "path to plan.schema.json (default: <configs>/plan.schema.json)")
		seed       = flag.Int64("seed", 1337, "world seed")
		population = flag.Int("population", 0, "founding population (default: tuning)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Default()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	if *population > 0 {
		tune.Population = *population
	}

	_ = os.MkdirAll(*dataDir, 0o755)

	rng := rand.New(rand.NewSource(*seed))
	res := resources.NewRegistry(1)
	st := state.NewStore()
	mem := perception.NewMemoryStore(tune.Perception.MemoryWindow)
	perc := perception.NewBuilder(res, st, mem, tune.Perception)
	exec := action.NewExecutor(res, perc, rng, tune.WorldRadius)
	plans := plan.NewStore(plan.Config{
		MinStepDelay:     tune.MinStepDelay(),
		LowConfidence:    tune.Planning.LowConfidence,
		StaleAfter:       tune.StalePlanAfter(),
		HistoryRetention: tune.Planning.HistoryRetention,
	}, time.Now)

	orc := buildOracle(tune, *configDir, *schemaPath, logger)

	ctl := tick.NewController(tune, res, st, plans, perc, exec, orc, rng,
		log.New(os.Stdout, "[tick] ", log.LstdFlags), time.Now)

	gen := genetics.NewFactory(rng, tune.Lifespan(), tune.LifespanJitter())
	breeder := breeding.New(st, gen, rng, log.New(os.Stdout, "[breeding] ", log.LstdFlags))
	ctl.SetBreeder(breeder)

	eventLog := persistlog.NewEventLogger(*dataDir, logger)
	defer eventLog.Close()

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		ctl.SetRecorder(idx)
		ctl.SetEventLogger(multiEventLogger{a: eventLog, b: idx})
	} else {
		ctl.SetEventLogger(eventLog)
	}

	seedResources(res, rng, tune.WorldRadius)
	now := time.Now()
	for i := 0; i < tune.Population; i++ {
		angle := rng.Float64() * 2 * math.Pi
		dist := rng.Float64() * tune.WorldRadius * 0.5
		a := breeder.Spawn(dist*math.Cos(angle), dist*math.Sin(angle), now)
		ctl.Register(a)
	}
	logger.Printf("world seeded: %d animals, %d resource nodes, radius %.0f",
		tune.Population, res.NodeCount(), tune.WorldRadius)

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := ctl.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("sim stopped: %v", err)
		}
	}()

	obsSrv := observer.NewServer(st, res, tune, *seed, log.New(os.Stdout, "[observer] ", log.LstdFlags))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprintf(rw, "fauna_tick %d\n", ctl.CurrentTick())
		fmt.Fprintf(rw, "fauna_resource_nodes %d\n", res.NodeCount())
		if idx != nil {
			fmt.Fprintf(rw, "fauna_index_dropped %d\n", idx.Dropped())
		}
	})
	mux.HandleFunc("/v1/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", obsSrv.WSHandler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

// buildOracle wires the LLM client when a key is available; without one
// the adapter still runs, answering every request with the
// deterministic fallback plan.
func buildOracle(tune tuning.Tuning, configDir, schemaPath string, logger *log.Logger) *oracle.Adapter {
	sp := strings.TrimSpace(schemaPath)
	if sp == "" {
		sp = filepath.Join(configDir, "plan.schema.json")
	}
	var schema *jsonschema.Schema
	if s, err := jsonschema.Compile(sp); err != nil {
		logger.Printf("plan schema unavailable (%s): %v", sp, err)
	} else {
		schema = s
	}

	var client oracle.Client
	if c, err := openaiclient.New("", tune.Oracle.Model); err != nil {
		logger.Printf("oracle offline: %v (running on fallback plans)", err)
		client = oracle.ClientFunc(func(context.Context, string, string) (string, error) {
			return "", fmt.Errorf("oracle offline")
		})
	} else {
		client = c
	}

	return oracle.NewAdapter(client, oracle.Config{
		Timeout:          tune.OracleTimeout(),
		MaxExploreRadius: tune.Oracle.MaxExploreRadius,
		LowConfidence:    tune.Planning.LowConfidence,
		StaleAfter:       tune.StalePlanAfter(),
		Schema:           schema,
	}, log.New(os.Stdout, "[oracle] ", log.LstdFlags))
}

// seedResources scatters regenerating nodes across the world. Density
// scales with area so larger worlds stay survivable.
func seedResources(res *resources.Registry, rng *rand.Rand, radius float64) {
	place := func(prefix string, t resources.Type, count int, qty, quality float64) {
		for i := 0; i < count; i++ {
			angle := rng.Float64() * 2 * math.Pi
			dist := rng.Float64() * radius * 0.95
			res.AddNode(resources.Node{
				ID:          fmt.Sprintf("%s%d", prefix, i+1),
				Type:        t,
				X:           dist * math.Cos(angle),
				Z:           dist * math.Sin(angle),
				Quantity:    qty * (0.5 + rng.Float64()),
				Harvestable: true,
				Regenerates: true,
				Quality:     quality + rng.Float64()*20,
			})
		}
	}

	scale := (radius * radius) / (100 * 100)
	if scale < 1 {
		scale = 1
	}
	place("W", resources.TypeWater, int(6*scale), 60, 60)
	place("B", resources.TypeBerries, int(8*scale), 8, 50)
	place("F", resources.TypeFood, int(6*scale), 12, 50)
	place("T", resources.TypeWood, int(5*scale), 25, 40)
	place("S", resources.TypeStone, int(4*scale), 35, 40)
}

// multiEventLogger fans one tick's events to the JSONL log and the
// sqlite index.
type multiEventLogger struct {
	a *persistlog.EventLogger
	b *indexdb.SQLiteIndex
}

func (m multiEventLogger) LogEvents(t uint64, at time.Time, events []protocol.ChangeEvent) {
	m.a.LogEvents(t, at, events)
	m.b.LogEvents(t, at, events)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
