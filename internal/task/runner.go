package task

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ipscope/ipscope/internal/analyze"
	"github.com/ipscope/ipscope/pkg/types"
)

// Analyzer produces the full record for one address.
type Analyzer interface {
	Analyze(ctx context.Context, ip string) types.AnalysisRecord
}

// AnalyzerFactory builds the analyzer for one task, bound to that task's
// provider credential. A factory error is a runner-level fault: the task
// moves to the error state without processing any address.
type AnalyzerFactory func(apiKey string) (Analyzer, error)

// Emitter receives audit events from the runner. Store append and live
// publish are combined so the runner has a single sink.
type Emitter interface {
	AppendEvent(ctx context.Context, ev types.Event) error
	Publish(ev types.Event)
}

// Runner drives one task's address loop. Start it detached:
//
//	go runner.Run(context.Background(), t)
//
// The registry entry is the runner's only channel back to callers.
type Runner struct {
	analyzers AnalyzerFactory
	emitter   Emitter
	now       func() time.Time
}

func NewRunner(analyzers AnalyzerFactory, emitter Emitter) *Runner {
	return &Runner{analyzers: analyzers, emitter: emitter, now: time.Now}
}

// Run executes the batch. State machine: pending → running → one of
// completed, cancelled, error. Cancellation is observed between addresses
// only; an address mid-analysis always finishes. One address failing never
// aborts the batch; it yields a failure record and the loop moves on.
func (r *Runner) Run(ctx context.Context, t *Task) {
	an, err := r.analyzers(t.APIKey())
	if err != nil {
		t.finish(types.TaskStatusError, fmt.Sprintf("init analyzer: %v", err), r.now().UTC())
		r.emit(ctx, types.Event{Type: "task_error", TaskID: t.ID(), Fields: map[string]any{"error": err.Error()}})
		return
	}

	t.markRunning()
	r.emit(ctx, types.Event{Type: "task_started", TaskID: t.ID(), Fields: map[string]any{"total": len(t.IPs())}})

	for _, ip := range t.IPs() {
		if t.cancelled() {
			break
		}
		t.setCurrentIP(ip)
		rec := r.analyzeOne(ctx, an, ip)
		t.appendRecord(rec)
		r.emit(ctx, types.Event{
			Type:   "ip_analyzed",
			TaskID: t.ID(),
			IP:     ip,
			Fields: map[string]any{
				"risk_level": rec.RiskLevel,
				"risk_score": rec.RiskScore,
				"error":      rec.Error,
			},
		})
	}

	if t.cancelled() {
		t.finish(types.TaskStatusCancelled, "", r.now().UTC())
		snap := t.Snapshot()
		r.emit(ctx, types.Event{Type: "task_cancelled", TaskID: t.ID(), Fields: map[string]any{
			"completed": snap.Completed,
			"total":     snap.Total,
		}})
		return
	}

	t.finish(types.TaskStatusCompleted, "", r.now().UTC())
	r.emit(ctx, types.Event{Type: "task_completed", TaskID: t.ID(), Fields: map[string]any{
		"total": t.Snapshot().Total,
	}})
}

// analyzeOne shields the loop from a panicking analyzer; the panic becomes
// a failure record for that address.
func (r *Runner) analyzeOne(ctx context.Context, an Analyzer, ip string) (rec types.AnalysisRecord) {
	defer func() {
		if p := recover(); p != nil {
			rec = analyze.FailureRecord(ip, fmt.Sprintf("analysis failed: %v", p), r.now())
		}
	}()
	return an.Analyze(ctx, ip)
}

func (r *Runner) emit(ctx context.Context, ev types.Event) {
	if r.emitter == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.Timestamp = r.now().UTC()
	_ = r.emitter.AppendEvent(ctx, ev)
	r.emitter.Publish(ev)
}
