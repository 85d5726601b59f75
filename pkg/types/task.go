// Package types defines the data model shared by the scheduler core, the
// REST surface, and the worker-side proxy.
package types

// Status is the lifecycle state of a task in the dependency graph.
type Status string

const (
	// StatusPending indicates the task is known but not yet assigned.
	StatusPending Status = "PENDING"
	// StatusRunning indicates the task is assigned to exactly one worker.
	StatusRunning Status = "RUNNING"
	// StatusDone indicates the task finished successfully. DONE is sticky.
	StatusDone Status = "DONE"
	// StatusFailed indicates the owning worker reported a failure.
	StatusFailed Status = "FAILED"
	// StatusDisabled indicates repeated failures excluded the task from
	// assignment until its disable window elapses.
	StatusDisabled Status = "DISABLED"
	// StatusUnknown is used for tasks referenced as dependencies but never
	// declared.
	StatusUnknown Status = "UNKNOWN"
)

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusDone, StatusFailed, StatusDisabled, StatusUnknown:
		return true
	}
	return false
}

// Upstream status values derived for PENDING tasks from their incomplete
// dependency chains, in decreasing severity.
const (
	UpstreamFailed   = "UPSTREAM_FAILED"
	UpstreamDisabled = "UPSTREAM_DISABLED"
	UpstreamRunning  = "UPSTREAM_RUNNING"
)

// TaskView is the externally visible record of a task, returned by the
// listing and graph operations.
type TaskView struct {
	ID             string         `json:"task_id"`
	Family         string         `json:"family,omitempty"`
	Module         string         `json:"module,omitempty"`
	Params         map[string]string `json:"params,omitempty"`
	Status         Status         `json:"status"`
	UpstreamStatus string         `json:"upstream_status,omitempty"`
	Deps           []string       `json:"deps"`
	Resources      map[string]int `json:"resources,omitempty"`
	Priority       int            `json:"priority"`
	Runnable       bool           `json:"runnable"`
	Assistant      bool           `json:"assistant,omitempty"`
	Worker         string         `json:"worker,omitempty"`
	Workers        []string       `json:"workers,omitempty"`
	Expl           string         `json:"expl,omitempty"`
	RetryCount     int            `json:"retry_count,omitempty"`
	DisableUntil   int64          `json:"disable_until,omitempty"`
	StartTime      int64          `json:"start_time,omitempty"`
}

// WorkerView is the externally visible record of a registered worker.
type WorkerView struct {
	ID        string            `json:"worker"`
	Host      string            `json:"host,omitempty"`
	Info      map[string]string `json:"info,omitempty"`
	FirstSeen int64             `json:"first_seen"`
	LastSeen  int64             `json:"last_seen"`
	Running   []string          `json:"running,omitempty"`
}

// ResourceView reports a single resource's capacity and current consumption.
type ResourceView struct {
	Name  string `json:"name"`
	Total int    `json:"total"`
	Used  int    `json:"used"`
}
