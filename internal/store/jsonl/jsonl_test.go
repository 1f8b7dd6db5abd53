package jsonl

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ipscope/ipscope/pkg/types"
)

func TestAppendWritesFlattenedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.log")

	store, err := New(path, 1, 2)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ev := types.Event{
		ID:        "e1",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Type:      "ip_analyzed",
		TaskID:    "t1",
		IP:        "8.8.8.8",
		Fields:    map[string]any{"completed": 1},
	}
	if err := store.AppendEvent(context.Background(), ev); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("line is not json: %v", err)
	}
	if got["task_id"] != "t1" || got["ip"] != "8.8.8.8" || got["type"] != "ip_analyzed" {
		t.Fatalf("unexpected line: %s", b)
	}
	if got["ts"] != "2026-03-01T12:00:00Z" {
		t.Fatalf("ts = %v", got["ts"])
	}
}

func TestRotationKeepsBoundedBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.log")

	store, err := New(path, 1, 2) // 1MB limit
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	// Each append is ~600KB, so every second append crosses the limit
	// and rotates.
	big := strings.Repeat("x", 600<<10)
	for i := 0; i < 8; i++ {
		ev := types.Event{ID: "e", Type: "ip_analyzed", TaskID: "t", Fields: map[string]any{"pad": big}}
		if err := store.AppendEvent(context.Background(), ev); err != nil {
			t.Fatalf("AppendEvent %d: %v", i, err)
		}
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("active file missing: %v", err)
	}
	backups, err := filepath.Glob(path + ".*")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(backups) != 2 {
		t.Fatalf("backups = %d (%v), want 2", len(backups), backups)
	}
}

func TestAppendAfterCloseFails(t *testing.T) {
	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "events.log"), 1, 1)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := store.AppendEvent(context.Background(), types.Event{Type: "task_started", TaskID: "t"}); err == nil {
		t.Fatal("expected append error after close")
	}
}

func TestQueryNotSupported(t *testing.T) {
	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "events.log"), 1, 1)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if _, err := store.QueryEvents(context.Background(), types.EventQuery{}); err == nil {
		t.Fatal("expected query error")
	}
}
