// Package log provides rotating JSONL+zstd audit sinks: the radio log and
// the per-snapshot digest trail. These are observability artifacts only; the
// SQLite event log remains the sole durable source of truth.
package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
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

// RadioLogger records every radio message once (compressed JSONL).
type RadioLogger struct{ w *JSONLZstdWriter }

func NewRadioLogger(sessionDir string) *RadioLogger {
	return &RadioLogger{w: NewJSONLZstdWriter(filepath.Join(sessionDir, "radio"), "radio")}
}

func (l *RadioLogger) Write(v any) error { return l.w.Write(v) }
func (l *RadioLogger) Close() error      { return l.w.Close() }

// SnapshotEntry is one line of the digest trail: enough to cross-check a
// replay without storing whole snapshots.
type SnapshotEntry struct {
	Seq         uint64 `json:"seq"`
	Time        int64  `json:"time"`
	LastEventID uint64 `json:"last_event_id"`
	Digest      string `json:"digest"`
}

// SnapshotLogger records one entry per published snapshot (compressed).
type SnapshotLogger struct{ w *JSONLZstdWriter }

func NewSnapshotLogger(sessionDir string) *SnapshotLogger {
	return &SnapshotLogger{w: NewJSONLZstdWriter(filepath.Join(sessionDir, "snapshots"), "snapshots")}
}

func (l *SnapshotLogger) WriteEntry(e SnapshotEntry) error { return l.w.Write(e) }
func (l *SnapshotLogger) Close() error                     { return l.w.Close() }
