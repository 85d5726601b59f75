package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/gammazero/toposort"

	"taskhub/pkg/types"
)

// Store is the authoritative table of tasks and their dependency edges.
// It has no lock of its own; the owning Scheduler serializes access.
type Store struct {
	tasks map[string]*Task
	// dependents maps a task id to the set of tasks that depend on it.
	dependents map[string]map[string]struct{}
	seq        int64
}

// NewStore creates an empty task graph store.
func NewStore() *Store {
	return &Store{
		tasks:      make(map[string]*Task),
		dependents: make(map[string]map[string]struct{}),
	}
}

// Get returns the task record for id.
func (s *Store) Get(id string) (*Task, bool) {
	t, ok := s.tasks[id]
	return t, ok
}

// Len returns the number of known tasks.
func (s *Store) Len() int {
	return len(s.tasks)
}

// Ensure returns the task record for id, creating an UNKNOWN placeholder if
// the id has only ever been referenced as a dependency.
func (s *Store) Ensure(id string, now time.Time) *Task {
	if t, ok := s.tasks[id]; ok {
		return t
	}
	s.seq++
	t := newTask(id, s.seq, now)
	s.tasks[id] = t
	return t
}

// CheckAcyclic verifies that giving taskID the dependency set deps keeps the
// graph free of cycles. Must be called before the edges are applied.
func (s *Store) CheckAcyclic(taskID string, deps []string) error {
	var edges []toposort.Edge
	for id, t := range s.tasks {
		if id == taskID {
			continue
		}
		if len(t.Deps) == 0 {
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for dep := range t.Deps {
			edges = append(edges, toposort.Edge{dep, id})
		}
	}
	if len(deps) == 0 {
		edges = append(edges, toposort.Edge{nil, taskID})
	}
	for _, dep := range deps {
		edges = append(edges, toposort.Edge{dep, taskID})
	}

	if _, err := toposort.Toposort(edges); err != nil {
		return fmt.Errorf("dependency cycle through %s: %w", taskID, err)
	}
	return nil
}

// SetDeps replaces the dependency set of t.
func (s *Store) SetDeps(t *Task, deps []string, now time.Time) {
	for dep := range t.Deps {
		delete(s.dependents[dep], t.ID)
	}
	t.Deps = make(map[string]struct{}, len(deps))
	s.AddDeps(t, deps, now)
}

// AddDeps unions deps into the dependency set of t, creating placeholder
// records for unseen ids.
func (s *Store) AddDeps(t *Task, deps []string, now time.Time) {
	for _, dep := range deps {
		if dep == "" || dep == t.ID {
			continue
		}
		s.Ensure(dep, now)
		t.Deps[dep] = struct{}{}
		if s.dependents[dep] == nil {
			s.dependents[dep] = make(map[string]struct{})
		}
		s.dependents[dep][t.ID] = struct{}{}
	}
}

// DepsDone reports whether every dependency of t is DONE.
func (s *Store) DepsDone(t *Task) bool {
	for dep := range t.Deps {
		d, ok := s.tasks[dep]
		if !ok || d.Status != types.StatusDone {
			return false
		}
	}
	return true
}

// UpstreamStatus derives the upstream status of a PENDING task from its
// incomplete dependency chain: UPSTREAM_FAILED beats UPSTREAM_DISABLED beats
// UPSTREAM_RUNNING. memo caches results across one traversal.
func (s *Store) UpstreamStatus(id string, memo map[string]string) string {
	if cached, ok := memo[id]; ok {
		return cached
	}
	memo[id] = "" // cycle guard; the graph is validated acyclic anyway

	t, ok := s.tasks[id]
	if !ok || t.Status != types.StatusPending {
		return ""
	}

	best := ""
	for dep := range t.Deps {
		d, ok := s.tasks[dep]
		if !ok || d.Status == types.StatusDone {
			continue
		}
		var derived string
		switch d.Status {
		case types.StatusFailed:
			derived = types.UpstreamFailed
		case types.StatusDisabled:
			derived = types.UpstreamDisabled
		case types.StatusRunning:
			derived = types.UpstreamRunning
		default:
			derived = s.UpstreamStatus(dep, memo)
		}
		if upstreamSeverity(derived) > upstreamSeverity(best) {
			best = derived
		}
	}
	memo[id] = best
	return best
}

func upstreamSeverity(status string) int {
	switch status {
	case types.UpstreamFailed:
		return 3
	case types.UpstreamDisabled:
		return 2
	case types.UpstreamRunning:
		return 1
	}
	return 0
}

// List returns task views filtered by status, upstream status, and an id
// substring. Empty filters match everything.
func (s *Store) List(status types.Status, upstreamStatus, search string) map[string]*types.TaskView {
	memo := make(map[string]string)
	out := make(map[string]*types.TaskView)
	for id, t := range s.tasks {
		if status != "" && t.Status != status {
			continue
		}
		if search != "" && !strings.Contains(id, search) {
			continue
		}
		upstream := s.UpstreamStatus(id, memo)
		if upstreamStatus != "" && upstream != upstreamStatus {
			continue
		}
		out[id] = t.view(upstream)
	}
	return out
}

// Search returns tasks whose id contains the substring.
func (s *Store) Search(substr string) map[string]*types.TaskView {
	out := make(map[string]*types.TaskView)
	for id, t := range s.tasks {
		if strings.Contains(id, substr) {
			out[id] = t.view("")
		}
	}
	return out
}

// Graph returns a view of every known task.
func (s *Store) Graph() map[string]*types.TaskView {
	out := make(map[string]*types.TaskView, len(s.tasks))
	for id, t := range s.tasks {
		out[id] = t.view("")
	}
	return out
}

// DepGraph returns the subgraph reachable from root over forward edges.
func (s *Store) DepGraph(root string) *types.DepGraphResponse {
	return s.subgraph(root, func(t *Task) []string { return t.depList() })
}

// InverseDepGraph returns the subgraph reachable from root over backward
// edges, i.e. everything that depends on root directly or transitively.
func (s *Store) InverseDepGraph(root string) *types.DepGraphResponse {
	return s.subgraph(root, func(t *Task) []string {
		var out []string
		for id := range s.dependents[t.ID] {
			out = append(out, id)
		}
		return out
	})
}

func (s *Store) subgraph(root string, next func(*Task) []string) *types.DepGraphResponse {
	resp := &types.DepGraphResponse{
		Root:  root,
		Tasks: make(map[string]*types.TaskView),
	}
	start, ok := s.tasks[root]
	if !ok {
		return resp
	}

	visited := map[string]struct{}{root: {}}
	queue := []*Task{start}
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		resp.Tasks[t.ID] = t.view("")
		for _, id := range next(t) {
			if _, seen := visited[id]; seen {
				continue
			}
			visited[id] = struct{}{}
			if n, ok := s.tasks[id]; ok {
				queue = append(queue, n)
			}
		}
	}

	resp.Order = s.topoOrder(resp.Tasks)
	return resp
}

// topoOrder sorts the subgraph's ids so that every dependency precedes its
// dependents. Edges leaving the subgraph are ignored.
func (s *Store) topoOrder(tasks map[string]*types.TaskView) []string {
	var edges []toposort.Edge
	for id := range tasks {
		t := s.tasks[id]
		inSub := 0
		for dep := range t.Deps {
			if _, ok := tasks[dep]; ok {
				edges = append(edges, toposort.Edge{dep, id})
				inSub++
			}
		}
		if inSub == 0 {
			edges = append(edges, toposort.Edge{nil, id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil
	}
	order := make([]string, 0, len(sorted))
	for _, v := range sorted {
		if id, ok := v.(string); ok {
			order = append(order, id)
		}
	}
	return order
}

// Prune removes DONE tasks last touched more than removeDelay ago whose
// dependents are all complete, plus orphaned placeholder records. Returns
// the removed ids.
func (s *Store) Prune(now time.Time, removeDelay time.Duration) []string {
	var removed []string
	for id, t := range s.tasks {
		switch t.Status {
		case types.StatusDone:
			if now.Sub(t.UpdatedAt) < removeDelay {
				continue
			}
			if s.hasIncompleteDependents(id) {
				continue
			}
		case types.StatusUnknown:
			if len(s.dependents[id]) > 0 {
				continue
			}
		default:
			continue
		}
		removed = append(removed, id)
	}

	for _, id := range removed {
		s.remove(id)
	}
	return removed
}

func (s *Store) hasIncompleteDependents(id string) bool {
	for dep := range s.dependents[id] {
		if t, ok := s.tasks[dep]; ok && t.Status != types.StatusDone {
			return true
		}
	}
	return false
}

func (s *Store) remove(id string) {
	t, ok := s.tasks[id]
	if !ok {
		return
	}
	for dep := range t.Deps {
		delete(s.dependents[dep], id)
	}
	delete(s.dependents, id)
	delete(s.tasks, id)
}
