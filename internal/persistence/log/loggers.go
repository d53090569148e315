package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	stdlog "log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"fauna.ai/internal/protocol"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// TickEntry is one tick's coalesced change-event batch on disk.
type TickEntry struct {
	Tick   uint64                 `json:"tick"`
	At     time.Time              `json:"at"`
	Events []protocol.ChangeEvent `json:"events"`
}

// EventLogger writes one compressed JSONL entry per flushed tick. Write
// failures are logged and dropped; the sim never blocks on disk.
type EventLogger struct {
	w   *JSONLZstdWriter
	log *stdlog.Logger
}

func NewEventLogger(dataDir string, logger *stdlog.Logger) *EventLogger {
	if logger == nil {
		logger = stdlog.New(stdlog.Writer(), "[eventlog] ", stdlog.LstdFlags)
	}
	return &EventLogger{
		w:   NewJSONLZstdWriter(filepath.Join(dataDir, "events"), "events"),
		log: logger,
	}
}

func (l *EventLogger) LogEvents(tick uint64, at time.Time, events []protocol.ChangeEvent) {
	if len(events) == 0 {
		return
	}
	if err := l.w.Write(TickEntry{Tick: tick, At: at, Events: events}); err != nil {
		l.log.Printf("write tick %d: %v", tick, err)
	}
}

func (l *EventLogger) Close() error { return l.w.Close() }
