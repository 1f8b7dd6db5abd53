package task

import (
	"sync"
	"time"

	"github.com/ipscope/ipscope/pkg/types"
)

// Task holds the mutable state of one batch analysis. It is created by the
// registry at submission, written by exactly one runner goroutine, and read
// by any number of status/result queries. All fields are guarded by mu;
// readers get point-in-time snapshots.
type Task struct {
	mu sync.Mutex

	id          string
	status      types.TaskStatus
	createdAt   time.Time
	completedAt *time.Time

	ips        []string // immutable after creation
	apiKey     string   // abuse-reputation credential for this batch
	ipVersions map[string]int

	total     int
	completed int
	currentIP string

	records []types.AnalysisRecord
	errMsg  string

	cancelRequested bool
}

func (t *Task) ID() string { return t.id }

// IPs returns the submission-ordered address list. The slice is never
// mutated after creation, so no copy is needed.
func (t *Task) IPs() []string { return t.ips }

func (t *Task) APIKey() string { return t.apiKey }

// Snapshot returns the status view of the task. Results are excluded; use
// Registry.Results once the task is terminal.
func (t *Task) Snapshot() types.Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := types.Task{
		ID:         t.id,
		Status:     t.status,
		CreatedAt:  t.createdAt,
		Total:      t.total,
		Completed:  t.completed,
		CurrentIP:  t.currentIP,
		IPCount:    len(t.ips),
		IPVersions: t.ipVersions,
		Error:      t.errMsg,
	}
	if t.completedAt != nil {
		at := *t.completedAt
		snap.CompletedAt = &at
	}
	return snap
}

// Status returns the current status on its own, for cheap polling loops.
func (t *Task) Status() types.TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// RequestCancel flags the task for cooperative cancellation. Only pending
// and running tasks are affected; terminal tasks ignore it.
func (t *Task) RequestCancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.IsTerminal() {
		return false
	}
	t.cancelRequested = true
	return true
}

func (t *Task) cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelRequested
}

func (t *Task) markRunning() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = types.TaskStatusRunning
	t.total = len(t.ips)
	t.completed = 0
}

func (t *Task) setCurrentIP(ip string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentIP = ip
}

// appendRecord stores one finished record and advances the progress
// counter. Records accumulate in submission order.
func (t *Task) appendRecord(rec types.AnalysisRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, rec)
	t.completed = len(t.records)
}

// finish moves the task to a terminal state. Status and completion
// timestamp change under one lock acquisition, so a reader can never
// observe a terminal status without the fields that go with it. finish is
// a no-op if the task is already terminal.
func (t *Task) finish(status types.TaskStatus, errMsg string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.IsTerminal() {
		return
	}
	t.status = status
	t.errMsg = errMsg
	t.currentIP = ""
	t.completedAt = &at
}

// results returns the accumulated records if the task reached a state that
// carries them (completed, or cancelled with partial output).
func (t *Task) results() ([]types.AnalysisRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.status {
	case types.TaskStatusCompleted, types.TaskStatusCancelled:
		out := make([]types.AnalysisRecord, len(t.records))
		copy(out, t.records)
		return out, nil
	default:
		return nil, ErrNotReady
	}
}
