// Command replay reads the compressed event logs a server run leaves
// behind and prints the change stream, optionally filtered by tick
// range, agent, or event kind.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	persistlog "fauna.ai/internal/persistence/log"
)

func main() {
	var (
		eventsDir = flag.String("events", "./data/events", "events dir containing events-*.jsonl.zst")
		fromTick  = flag.Uint64("from_tick", 0, "start at tick (inclusive, optional)")
		toTick    = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
		agentID   = flag.String("agent", "", "only events for this agent (optional)")
		kind      = flag.String("kind", "", "only events of this kind (optional)")
		summary   = flag.Bool("summary", false, "print per-tick counts instead of events")
	)
	flag.Parse()

	files, err := listEventFiles(*eventsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no event logs under", *eventsDir)
		os.Exit(2)
	}

	var ticks, events int
	for _, path := range files {
		if err := replayFile(path, *fromTick, *toTick, *agentID, *kind, *summary, &ticks, &events); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", filepath.Base(path), err)
			os.Exit(1)
		}
	}
	fmt.Printf("replayed %d ticks, %d events\n", ticks, events)
}

func replayFile(path string, fromTick, toTick uint64, agentID, kind string, summary bool, ticks, events *int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry persistlog.TickEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return fmt.Errorf("bad entry: %w", err)
		}
		if fromTick > 0 && entry.Tick < fromTick {
			continue
		}
		if toTick > 0 && entry.Tick > toTick {
			continue
		}

		matched := 0
		for _, ev := range entry.Events {
			if agentID != "" && ev.AgentID != agentID {
				continue
			}
			if kind != "" && ev.Kind != kind {
				continue
			}
			matched++
			if !summary {
				b, _ := json.Marshal(ev)
				fmt.Printf("%d %s\n", entry.Tick, b)
			}
		}
		if matched == 0 {
			continue
		}
		if summary {
			fmt.Printf("tick %d at %s: %d events\n", entry.Tick, entry.At.Format("15:04:05"), matched)
		}
		*ticks++
		*events += matched
	}
	return sc.Err()
}

func listEventFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "events-") && strings.HasSuffix(name, ".jsonl.zst") {
			files = append(files, filepath.Join(dir, name))
		}
	}
	sort.Strings(files)
	return files, nil
}
