package task

import (
	"errors"
	"testing"
	"time"

	"github.com/ipscope/ipscope/pkg/types"
)

func TestRegistry_Submit(t *testing.T) {
	r := NewRegistry(10)

	tk, err := r.Submit([]string{"8.8.8.8", "2001:db8::1"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if tk.ID() == "" {
		t.Fatal("expected a task id")
	}

	snap, err := r.Snapshot(tk.ID())
	if err != nil {
		t.Fatal(err)
	}
	if snap.Status != types.TaskStatusPending {
		t.Fatalf("status = %q, want pending", snap.Status)
	}
	if snap.IPCount != 2 {
		t.Fatalf("ip count = %d, want 2", snap.IPCount)
	}
	if snap.IPVersions["ipv4"] != 1 || snap.IPVersions["ipv6"] != 1 {
		t.Fatalf("ip versions = %v", snap.IPVersions)
	}
}

func TestRegistry_Submit_Empty(t *testing.T) {
	r := NewRegistry(10)
	if _, err := r.Submit(nil, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestRegistry_Submit_MaxTasks(t *testing.T) {
	r := NewRegistry(1)
	if _, err := r.Submit([]string{"1.1.1.1"}, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Submit([]string{"2.2.2.2"}, ""); err == nil {
		t.Fatal("expected error at task cap")
	}
}

func TestRegistry_UnknownID(t *testing.T) {
	r := NewRegistry(10)
	if _, err := r.Snapshot("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Snapshot err = %v, want ErrNotFound", err)
	}
	if _, err := r.Results("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Results err = %v, want ErrNotFound", err)
	}
	if _, err := r.Cancel("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Cancel err = %v, want ErrNotFound", err)
	}
}

func TestRegistry_Results_NotReady(t *testing.T) {
	r := NewRegistry(10)
	tk, err := r.Submit([]string{"1.1.1.1"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Results(tk.ID()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
}

func TestRegistry_Results_ErrorTaskHasNone(t *testing.T) {
	r := NewRegistry(10)
	tk, _ := r.Submit([]string{"1.1.1.1"}, "")
	tk.finish(types.TaskStatusError, "boom", time.Now().UTC())
	if _, err := r.Results(tk.ID()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
}

func TestRegistry_Cancel_TerminalNoOp(t *testing.T) {
	r := NewRegistry(10)
	tk, _ := r.Submit([]string{"1.1.1.1"}, "")
	tk.finish(types.TaskStatusCompleted, "", time.Now().UTC())

	set, err := r.Cancel(tk.ID())
	if err != nil {
		t.Fatal(err)
	}
	if set {
		t.Fatal("cancel of a terminal task must be a no-op")
	}
	if got := tk.Status(); got != types.TaskStatusCompleted {
		t.Fatalf("status = %q, want completed", got)
	}
}

func TestRegistry_ReapTerminal(t *testing.T) {
	r := NewRegistry(10)
	done, _ := r.Submit([]string{"1.1.1.1"}, "")
	active, _ := r.Submit([]string{"2.2.2.2"}, "")

	finishedAt := time.Now().UTC().Add(-2 * time.Hour)
	done.finish(types.TaskStatusCompleted, "", finishedAt)

	reaped := r.ReapTerminal(time.Now().UTC(), time.Hour)
	if len(reaped) != 1 || reaped[0].ID() != done.ID() {
		t.Fatalf("reaped = %v", reaped)
	}
	if _, ok := r.Get(done.ID()); ok {
		t.Fatal("reaped task still present")
	}
	if _, ok := r.Get(active.ID()); !ok {
		t.Fatal("active task was evicted")
	}
}

func TestRegistry_ReapTerminal_RetentionNotElapsed(t *testing.T) {
	r := NewRegistry(10)
	tk, _ := r.Submit([]string{"1.1.1.1"}, "")
	tk.finish(types.TaskStatusCompleted, "", time.Now().UTC())

	if reaped := r.ReapTerminal(time.Now().UTC(), time.Hour); len(reaped) != 0 {
		t.Fatalf("expected nothing reaped, got %d", len(reaped))
	}
}
