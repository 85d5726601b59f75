package scheduler

import (
	"sort"
	"time"

	"taskhub/pkg/types"
)

// Task is one node of the dependency graph. Records are owned by the Store
// and must only be touched while holding the Scheduler mutex.
type Task struct {
	ID     string
	Family string
	Module string
	Params map[string]string

	Status    types.Status
	Deps      map[string]struct{}
	Resources map[string]int
	Priority  int
	Runnable  bool
	Assistant bool

	// Worker currently running the task; empty unless Status is RUNNING.
	Worker string
	// Owners are the workers that declared the task via add_task. A task is
	// only handed to one of its owners unless it is marked assistant.
	Owners map[string]struct{}

	Expl string

	// seq is the creation sequence number, used as the deterministic
	// tie-break after priority.
	seq int64

	CreatedAt time.Time
	UpdatedAt time.Time
	StartedAt time.Time

	// failures holds the timestamps of recent failures inside the disable
	// window.
	failures     []time.Time
	retryAt      time.Time
	disableUntil time.Time
}

func newTask(id string, seq int64, now time.Time) *Task {
	return &Task{
		ID:        id,
		Status:    types.StatusUnknown,
		Deps:      make(map[string]struct{}),
		Owners:    make(map[string]struct{}),
		seq:       seq,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// recordFailure appends a failure timestamp and drops entries that fell out
// of the window. Returns the number of failures still inside the window.
func (t *Task) recordFailure(now time.Time, window time.Duration) int {
	t.failures = append(t.failures, now)
	cutoff := now.Add(-window)
	kept := t.failures[:0]
	for _, ts := range t.failures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	t.failures = kept
	return len(t.failures)
}

func (t *Task) clearFailures() {
	t.failures = nil
	t.retryAt = time.Time{}
	t.disableUntil = time.Time{}
}

func (t *Task) depList() []string {
	deps := make([]string, 0, len(t.Deps))
	for id := range t.Deps {
		deps = append(deps, id)
	}
	sort.Strings(deps)
	return deps
}

func (t *Task) ownerList() []string {
	owners := make([]string, 0, len(t.Owners))
	for id := range t.Owners {
		owners = append(owners, id)
	}
	sort.Strings(owners)
	return owners
}

func (t *Task) view(upstream string) *types.TaskView {
	v := &types.TaskView{
		ID:             t.ID,
		Family:         t.Family,
		Module:         t.Module,
		Params:         t.Params,
		Status:         t.Status,
		UpstreamStatus: upstream,
		Deps:           t.depList(),
		Resources:      t.Resources,
		Priority:       t.Priority,
		Runnable:       t.Runnable,
		Assistant:      t.Assistant,
		Worker:         t.Worker,
		Workers:        t.ownerList(),
		Expl:           t.Expl,
		RetryCount:     len(t.failures),
	}
	if !t.disableUntil.IsZero() {
		v.DisableUntil = t.disableUntil.Unix()
	}
	if !t.StartedAt.IsZero() {
		v.StartTime = t.StartedAt.Unix()
	}
	return v
}
