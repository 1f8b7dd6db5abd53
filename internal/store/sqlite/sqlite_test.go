package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ipscope/ipscope/pkg/types"
)

func TestAppendAndQueryEvents(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "events.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	ev := types.Event{
		ID:        "evt1",
		TaskID:    "task1",
		Type:      "ip_analyzed",
		IP:        "8.8.8.8",
		Timestamp: time.Now().UTC(),
		Fields:    map[string]any{"risk_level": "normal"},
	}
	if err := s.AppendEvent(context.Background(), ev); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	got, err := s.QueryEvents(context.Background(), types.EventQuery{TaskID: "task1"})
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	if len(got) != 1 || got[0].ID != ev.ID || got[0].IP != "8.8.8.8" {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestQueryEvents_Filters(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "events.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	base := time.Now().UTC()
	for i, typ := range []string{"task_started", "ip_analyzed", "task_completed"} {
		ev := types.Event{
			ID:        typ,
			TaskID:    "task1",
			Type:      typ,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.AppendEvent(context.Background(), ev); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	got, err := s.QueryEvents(context.Background(), types.EventQuery{
		TaskID: "task1",
		Types:  []string{"ip_analyzed"},
	})
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	if len(got) != 1 || got[0].Type != "ip_analyzed" {
		t.Fatalf("type filter failed: %+v", got)
	}

	got, err = s.QueryEvents(context.Background(), types.EventQuery{TaskID: "task1", Asc: true})
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	if len(got) != 3 || got[0].Type != "task_started" || got[2].Type != "task_completed" {
		t.Fatalf("ascending order failed: %+v", got)
	}
}

func TestAppendEvent_MissingID(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "events.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.AppendEvent(context.Background(), types.Event{TaskID: "t"}); err == nil {
		t.Fatal("expected error for event without id")
	}
}
