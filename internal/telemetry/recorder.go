// Package telemetry provides the optional flight recorder and trace
// exporter. Both are fire-and-forget: a telemetry failure never gates a
// verdict.
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MaxRotatedFiles is how many previous trace files are kept per run directory.
const MaxRotatedFiles = 3

// Event is one JSONL record in the flight recorder.
type Event struct {
	Timestamp time.Time              `json:"ts"`
	Type      string                 `json:"type"`
	SessionID string                 `json:"session_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Recorder appends structured events to a per-run JSONL file.
type Recorder struct {
	basePath string

	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewRecorder creates a recorder rooted at basePath (default "data/traces").
func NewRecorder(basePath string) *Recorder {
	if basePath == "" {
		basePath = "data/traces"
	}
	return &Recorder{basePath: basePath}
}

// Start opens the trace file for a run, rotating older files first.
func (r *Recorder) Start(runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.basePath, 0o755); err != nil {
		return fmt.Errorf("create trace dir: %w", err)
	}
	if err := r.rotate(); err != nil {
		return err
	}

	path := filepath.Join(r.basePath, fmt.Sprintf("run-%s.jsonl", runID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open trace file: %w", err)
	}
	r.file = f
	r.enc = json.NewEncoder(f)
	return nil
}

// Log appends one event. Safe to call on a recorder that was never
// started, or nil; the event is silently dropped.
func (r *Recorder) Log(eventType, sessionID string, data map[string]interface{}) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return
	}
	_ = r.enc.Encode(Event{
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		SessionID: sessionID,
		Data:      data,
	})
}

// Close flushes and closes the trace file.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.enc = nil
	return err
}

// rotate deletes the oldest trace files so at most MaxRotatedFiles
// previous runs remain.
func (r *Recorder) rotate() error {
	matches, err := filepath.Glob(filepath.Join(r.basePath, "run-*.jsonl"))
	if err != nil {
		return err
	}
	if len(matches) <= MaxRotatedFiles {
		return nil
	}

	type aged struct {
		path string
		mod  time.Time
	}
	files := make([]aged, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		files = append(files, aged{path: m, mod: info.ModTime()})
	}
	// Oldest first.
	for i := 0; i < len(files); i++ {
		for j := i + 1; j < len(files); j++ {
			if files[j].mod.Before(files[i].mod) {
				files[i], files[j] = files[j], files[i]
			}
		}
	}
	for i := 0; i < len(files)-MaxRotatedFiles; i++ {
		_ = os.Remove(files[i].path)
	}
	return nil
}
