package telemetry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRecorderWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir)

	if err := r.Start("run-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.Log("session_open", "sess-1", map[string]interface{}{"url": "https://example.com"})
	r.Log("tool_call", "sess-1", map[string]interface{}{"tool": "navigate_page"})
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "run-run-1.jsonl"))
	if err != nil {
		t.Fatalf("open trace file: %v", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("line is not JSON: %v", err)
		}
		events = append(events, ev)
	}
	if len(events) != 2 {
		t.Fatalf("recorded %d events, want 2", len(events))
	}
	if events[0].Type != "session_open" || events[0].SessionID != "sess-1" {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].Data["tool"] != "navigate_page" {
		t.Errorf("second event data = %v", events[1].Data)
	}
}

func TestRecorderRotation(t *testing.T) {
	dir := t.TempDir()

	// Seed old trace files with distinct mtimes.
	for i := 0; i < MaxRotatedFiles+2; i++ {
		path := filepath.Join(dir, fmt.Sprintf("run-old%d.jsonl", i))
		if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		old := time.Now().Add(-time.Duration(MaxRotatedFiles+2-i) * time.Hour)
		if err := os.Chtimes(path, old, old); err != nil {
			t.Fatal(err)
		}
	}

	r := NewRecorder(dir)
	if err := r.Start("fresh"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Close()

	matches, err := filepath.Glob(filepath.Join(dir, "run-*.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	// MaxRotatedFiles previous runs plus the fresh one.
	if len(matches) != MaxRotatedFiles+1 {
		t.Errorf("trace files after rotation = %d, want %d", len(matches), MaxRotatedFiles+1)
	}
	for _, m := range matches {
		if filepath.Base(m) == "run-old0.jsonl" || filepath.Base(m) == "run-old1.jsonl" {
			t.Errorf("oldest file %s should have been rotated away", m)
		}
	}
}

func TestRecorderNilSafe(t *testing.T) {
	var r *Recorder
	r.Log("event", "sess", nil)
	if err := r.Close(); err != nil {
		t.Errorf("nil recorder Close: %v", err)
	}

	// Started-but-never-opened recorder drops events silently.
	unstarted := NewRecorder(t.TempDir())
	unstarted.Log("event", "sess", nil)
	if err := unstarted.Close(); err != nil {
		t.Errorf("unstarted Close: %v", err)
	}
}
