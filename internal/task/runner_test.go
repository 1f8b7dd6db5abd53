package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ipscope/ipscope/pkg/types"
)

type fakeAnalyzer struct {
	mu      sync.Mutex
	calls   []string
	perCall func(ip string) types.AnalysisRecord
}

func (f *fakeAnalyzer) Analyze(_ context.Context, ip string) types.AnalysisRecord {
	f.mu.Lock()
	f.calls = append(f.calls, ip)
	f.mu.Unlock()
	if f.perCall != nil {
		return f.perCall(ip)
	}
	return types.AnalysisRecord{IP: ip, RiskLevel: "normal"}
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []types.Event
}

func (e *recordingEmitter) AppendEvent(_ context.Context, ev types.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *recordingEmitter) Publish(types.Event) {}

func (e *recordingEmitter) typesSeen() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

func newTestRunner(an Analyzer, em Emitter) *Runner {
	return NewRunner(func(string) (Analyzer, error) { return an, nil }, em)
}

func TestRunner_CompletesInOrder(t *testing.T) {
	r := NewRegistry(10)
	ips := []string{"1.1.1.1", "8.8.8.8", "9.9.9.9"}
	tk, err := r.Submit(ips, "")
	if err != nil {
		t.Fatal(err)
	}

	em := &recordingEmitter{}
	newTestRunner(&fakeAnalyzer{}, em).Run(context.Background(), tk)

	snap := tk.Snapshot()
	if snap.Status != types.TaskStatusCompleted {
		t.Fatalf("status = %q, want completed", snap.Status)
	}
	if snap.Completed != 3 || snap.Total != 3 {
		t.Fatalf("progress = %d/%d, want 3/3", snap.Completed, snap.Total)
	}
	if snap.CompletedAt == nil {
		t.Fatal("completion timestamp not set")
	}
	if snap.CurrentIP != "" {
		t.Fatalf("current ip not cleared: %q", snap.CurrentIP)
	}

	recs, err := r.Results(tk.ID())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != len(ips) {
		t.Fatalf("len(results) = %d, want %d", len(recs), len(ips))
	}
	for i, rec := range recs {
		if rec.IP != ips[i] {
			t.Fatalf("results[%d].IP = %q, want %q (submission order)", i, rec.IP, ips[i])
		}
	}

	seen := em.typesSeen()
	want := []string{"task_started", "ip_analyzed", "ip_analyzed", "ip_analyzed", "task_completed"}
	if len(seen) != len(want) {
		t.Fatalf("events = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("events[%d] = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestRunner_PanicBecomesFailureRecord(t *testing.T) {
	r := NewRegistry(10)
	tk, _ := r.Submit([]string{"1.1.1.1", "2.2.2.2", "3.3.3.3"}, "")

	an := &fakeAnalyzer{perCall: func(ip string) types.AnalysisRecord {
		if ip == "2.2.2.2" {
			panic("provider blew up")
		}
		return types.AnalysisRecord{IP: ip, RiskLevel: "normal"}
	}}
	newTestRunner(an, nil).Run(context.Background(), tk)

	if got := tk.Status(); got != types.TaskStatusCompleted {
		t.Fatalf("status = %q, want completed despite one failure", got)
	}
	recs, err := r.Results(tk.ID())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(recs))
	}
	bad := recs[1]
	if bad.IP != "2.2.2.2" || bad.Error == "" {
		t.Fatalf("failure record = %+v", bad)
	}
	if bad.RiskLevel != "unknown" || bad.RiskColor != "secondary" {
		t.Fatalf("failure risk fields = %q/%q", bad.RiskLevel, bad.RiskColor)
	}
}

func TestRunner_CancelStopsBetweenAddresses(t *testing.T) {
	r := NewRegistry(10)
	tk, _ := r.Submit([]string{"1.1.1.1", "2.2.2.2", "3.3.3.3"}, "")

	an := &fakeAnalyzer{perCall: func(ip string) types.AnalysisRecord {
		// Cancel while the first address is in flight; the flag is only
		// observed before the next one starts.
		if ip == "1.1.1.1" {
			if _, err := r.Cancel(tk.ID()); err != nil {
				t.Error(err)
			}
		}
		return types.AnalysisRecord{IP: ip}
	}}
	newTestRunner(an, nil).Run(context.Background(), tk)

	if got := tk.Status(); got != types.TaskStatusCancelled {
		t.Fatalf("status = %q, want cancelled", got)
	}
	if n := an.callCount(); n != 1 {
		t.Fatalf("analyzed %d addresses, want 1", n)
	}
	recs, err := r.Results(tk.ID())
	if err != nil {
		t.Fatalf("partial results must be readable after cancel: %v", err)
	}
	if len(recs) != 1 || recs[0].IP != "1.1.1.1" {
		t.Fatalf("partial results = %v", recs)
	}
}

func TestRunner_CancelBeforeStart(t *testing.T) {
	r := NewRegistry(10)
	tk, _ := r.Submit([]string{"1.1.1.1"}, "")
	if _, err := r.Cancel(tk.ID()); err != nil {
		t.Fatal(err)
	}

	an := &fakeAnalyzer{}
	newTestRunner(an, nil).Run(context.Background(), tk)

	if got := tk.Status(); got != types.TaskStatusCancelled {
		t.Fatalf("status = %q, want cancelled", got)
	}
	if an.callCount() != 0 {
		t.Fatal("no address should be analyzed after a pre-start cancel")
	}
}

func TestRunner_FactoryFaultIsTaskError(t *testing.T) {
	r := NewRegistry(10)
	tk, _ := r.Submit([]string{"1.1.1.1"}, "")

	em := &recordingEmitter{}
	runner := NewRunner(func(string) (Analyzer, error) {
		return nil, errors.New("no dialer")
	}, em)
	runner.Run(context.Background(), tk)

	snap := tk.Snapshot()
	if snap.Status != types.TaskStatusError {
		t.Fatalf("status = %q, want error", snap.Status)
	}
	if snap.Error == "" {
		t.Fatal("error message not recorded")
	}
	if _, err := r.Results(tk.ID()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("results err = %v, want ErrNotReady", err)
	}
	if seen := em.typesSeen(); len(seen) != 1 || seen[0] != "task_error" {
		t.Fatalf("events = %v, want [task_error]", seen)
	}
}

func TestRunner_ProgressMonotonicUnderConcurrentReads(t *testing.T) {
	r := NewRegistry(10)
	tk, _ := r.Submit([]string{"1.1.1.1", "2.2.2.2", "3.3.3.3", "4.4.4.4", "5.5.5.5"}, "")

	done := make(chan struct{})
	go func() {
		defer close(done)
		newTestRunner(&fakeAnalyzer{}, nil).Run(context.Background(), tk)
	}()

	last := 0
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-done:
			snap := tk.Snapshot()
			if snap.Completed != snap.Total {
				t.Fatalf("final progress %d/%d", snap.Completed, snap.Total)
			}
			return
		case <-deadline:
			t.Fatal("runner did not finish")
		default:
			snap := tk.Snapshot()
			if snap.Completed < last {
				t.Fatalf("completed went backwards: %d -> %d", last, snap.Completed)
			}
			if snap.Completed > snap.Total {
				t.Fatalf("completed %d exceeds total %d", snap.Completed, snap.Total)
			}
			last = snap.Completed
		}
	}
}

func TestRunner_IdempotentTerminalReads(t *testing.T) {
	r := NewRegistry(10)
	tk, _ := r.Submit([]string{"1.1.1.1", "2.2.2.2"}, "")
	newTestRunner(&fakeAnalyzer{}, nil).Run(context.Background(), tk)

	first, err := r.Results(tk.ID())
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Results(tk.ID())
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatal("terminal results changed between reads")
	}
	s1 := tk.Snapshot()
	s2 := tk.Snapshot()
	if s1.Status != s2.Status || s1.Completed != s2.Completed || !s1.CompletedAt.Equal(*s2.CompletedAt) {
		t.Fatal("terminal snapshot changed between reads")
	}
}
