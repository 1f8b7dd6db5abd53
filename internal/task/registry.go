// Package task is the batch-analysis engine: a registry of in-flight and
// finished tasks plus the runner that drives one task's address loop.
package task

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ipscope/ipscope/internal/iputil"
	"github.com/ipscope/ipscope/pkg/types"
)

// Registry maps task ids to their mutable state. It is explicitly owned by
// the server and passed to whoever needs it; nothing in this package holds
// global state. Entries live until the reaper evicts them.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task

	maxTasks int
}

func NewRegistry(maxTasks int) *Registry {
	if maxTasks <= 0 {
		maxTasks = 1000
	}
	return &Registry{
		tasks:    make(map[string]*Task),
		maxTasks: maxTasks,
	}
}

// Submit creates a pending task for a validated, deduplicated address list.
// The caller is responsible for starting a Runner on the returned task.
func (r *Registry) Submit(ips []string, apiKey string) (*Task, error) {
	if len(ips) == 0 {
		return nil, ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.tasks) >= r.maxTasks {
		return nil, fmt.Errorf("max tasks reached (%d)", r.maxTasks)
	}

	t := &Task{
		id:         uuid.NewString(),
		status:     types.TaskStatusPending,
		createdAt:  time.Now().UTC(),
		ips:        ips,
		apiKey:     apiKey,
		ipVersions: iputil.CountVersions(ips),
	}
	r.tasks[t.id] = t
	return t, nil
}

func (r *Registry) Get(id string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	return t, ok
}

// List returns all tasks in no particular order.
func (r *Registry) List() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	return out
}

// Snapshot returns the status view of one task.
func (r *Registry) Snapshot(id string) (types.Task, error) {
	t, ok := r.Get(id)
	if !ok {
		return types.Task{}, ErrNotFound
	}
	return t.Snapshot(), nil
}

// Results returns the ordered records of a finished task.
func (r *Registry) Results(id string) ([]types.AnalysisRecord, error) {
	t, ok := r.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return t.results()
}

// Cancel flags a pending or running task for cooperative cancellation. It
// reports whether the flag was newly set; cancelling a terminal task is a
// no-op, not an error.
func (r *Registry) Cancel(id string) (bool, error) {
	t, ok := r.Get(id)
	if !ok {
		return false, ErrNotFound
	}
	return t.RequestCancel(), nil
}

// ReapTerminal removes terminal tasks whose completion is older than
// retention and returns the evicted tasks. Active tasks are never touched.
func (r *Registry) ReapTerminal(now time.Time, retention time.Duration) []*Task {
	if retention <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var reaped []*Task
	for id, t := range r.tasks {
		snap := t.Snapshot()
		if !snap.Status.IsTerminal() || snap.CompletedAt == nil {
			continue
		}
		if now.Sub(*snap.CompletedAt) > retention {
			delete(r.tasks, id)
			reaped = append(reaped, t)
		}
	}
	return reaped
}

// Len returns the number of tasks currently registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}
