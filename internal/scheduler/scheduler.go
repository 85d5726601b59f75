package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"taskhub/pkg/types"
)

// Config holds the tunables of the coordination core.
type Config struct {
	// WorkerTimeout is the silence window after which a worker is presumed
	// dead and its RUNNING tasks are reclaimed.
	WorkerTimeout time.Duration

	// SweepInterval is how often the background sweep runs.
	SweepInterval time.Duration

	// RetryDelay is how long a FAILED task waits before becoming PENDING
	// again.
	RetryDelay time.Duration

	// DisableFailures is the number of failures inside DisableWindow that
	// disables a task. Zero disables the mechanism.
	DisableFailures int

	// DisableWindow is the sliding window for counting failures.
	DisableWindow time.Duration

	// DisablePersist is how long a disabled task stays excluded from
	// assignment.
	DisablePersist time.Duration

	// RemoveDelay is how long DONE tasks are kept before prune may drop
	// them.
	RemoveDelay time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		WorkerTimeout:   60 * time.Second,
		SweepInterval:   10 * time.Second,
		RetryDelay:      900 * time.Second,
		DisableFailures: 3,
		DisableWindow:   3600 * time.Second,
		DisablePersist:  86400 * time.Second,
		RemoveDelay:     600 * time.Second,
	}
}

// Scheduler is the single authority over the task graph store, the resource
// ledger, and the worker registry. One mutex serializes every scheduling
// decision; the registry keeps its own cheaper lock for liveness updates.
type Scheduler struct {
	config   *Config
	log      *zap.Logger
	registry *Registry

	mu     sync.Mutex
	store  *Store
	ledger *Ledger

	started     atomic.Bool
	sweepCancel context.CancelFunc
	stopOnce    sync.Once
}

// New creates a scheduler with empty state.
func New(config *Config, log *zap.Logger) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		config:   config,
		log:      log,
		registry: NewRegistry(),
		store:    NewStore(),
		ledger:   NewLedger(),
	}
}

// Start launches the background sweep loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.started.Swap(true) {
		return fmt.Errorf("scheduler already started")
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	s.sweepCancel = cancel
	go s.sweepLoop(sweepCtx)

	s.log.Info("scheduler started",
		zap.Duration("worker_timeout", s.config.WorkerTimeout),
		zap.Duration("sweep_interval", s.config.SweepInterval))
	return nil
}

// Stop halts the sweep loop and tells every known worker to wind down on
// its next ping.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.sweepCancel != nil {
			s.sweepCancel()
		}
		s.registry.Broadcast("stop")
		s.started.Store(false)
		s.log.Info("scheduler stopped")
	})
}

func (s *Scheduler) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(time.Now())
		}
	}
}

// Sweep reclaims state from stale workers, re-enables tasks whose retry or
// disable windows have elapsed, and prunes completed tasks. The background
// loop and the prune RPC both run this pass.
func (s *Scheduler) Sweep(now time.Time) {
	for _, id := range s.registry.Stale(s.config.WorkerTimeout, now) {
		s.registry.Remove(id)
		reclaimed := s.reclaimWorkerTasks(id, now)
		s.log.Warn("removed stale worker",
			zap.String("worker", id),
			zap.Int("reclaimed_tasks", reclaimed))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.store.tasks {
		switch t.Status {
		case types.StatusFailed:
			if !t.retryAt.IsZero() && now.After(t.retryAt) {
				t.retryAt = time.Time{}
				t.Status = types.StatusPending
				t.UpdatedAt = now
			}
		case types.StatusDisabled:
			if !t.disableUntil.IsZero() && now.After(t.disableUntil) {
				t.clearFailures()
				t.Status = types.StatusPending
				t.UpdatedAt = now
			}
		}
	}

	if removed := s.store.Prune(now, s.config.RemoveDelay); len(removed) > 0 {
		s.log.Debug("pruned tasks", zap.Int("count", len(removed)))
	}
}

// reclaimWorkerTasks reverts every RUNNING task owned by the dead worker to
// PENDING so another worker can claim it.
func (s *Scheduler) reclaimWorkerTasks(worker string, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	reclaimed := 0
	for _, t := range s.store.tasks {
		if t.Status != types.StatusRunning || t.Worker != worker {
			continue
		}
		s.ledger.Release(t.Resources)
		t.Status = types.StatusPending
		t.Worker = ""
		t.UpdatedAt = now
		reclaimed++
	}
	return reclaimed
}

// Ping refreshes the worker's last-seen timestamp and returns any pending
// directives. It never touches the task store.
func (s *Scheduler) Ping(worker string) *types.PingResponse {
	s.registry.Touch(worker, "")
	return &types.PingResponse{
		RPCMessages: s.registry.DrainMessages(worker),
	}
}

// AddTask creates or updates a task record and applies the requested status
// transition. Resubmitting the same id is idempotent; DONE is sticky unless
// the request forces a reset.
func (s *Scheduler) AddTask(args *types.AddTaskArgs) error {
	if args.TaskID == "" {
		return fmt.Errorf("task_id is required")
	}
	status := args.Status
	if status == "" {
		status = types.StatusPending
	}
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", args.Status)
	}
	if status == types.StatusRunning {
		// RUNNING is only entered through get_work assignment; accepting it
		// here would bypass the resource ledger.
		return fmt.Errorf("status RUNNING cannot be declared via add_task")
	}

	s.registry.Touch(args.Worker, "")

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()

	if len(args.Deps) > 0 || len(args.NewDeps) > 0 {
		proposed := append([]string{}, args.Deps...)
		if args.Deps == nil {
			if t, ok := s.store.Get(args.TaskID); ok {
				proposed = append(proposed, t.depList()...)
			}
		}
		proposed = append(proposed, args.NewDeps...)
		if err := s.store.CheckAcyclic(args.TaskID, proposed); err != nil {
			return err
		}
	}

	t := s.store.Ensure(args.TaskID, now)
	if args.Worker != "" {
		t.Owners[args.Worker] = struct{}{}
	}
	if args.Family != "" {
		t.Family = args.Family
	}
	if args.Module != "" {
		t.Module = args.Module
	}
	if args.Params != nil {
		t.Params = args.Params
	}
	if args.Resources != nil {
		t.Resources = args.Resources
	}
	t.Priority = args.Priority
	t.Runnable = args.Runnable
	if args.Assistant {
		t.Assistant = true
	}

	if args.Deps != nil {
		s.store.SetDeps(t, args.Deps, now)
	}
	if len(args.NewDeps) > 0 {
		s.store.AddDeps(t, args.NewDeps, now)
	}

	s.applyStatus(t, status, args, now)
	return nil
}

func (s *Scheduler) applyStatus(t *Task, status types.Status, args *types.AddTaskArgs, now time.Time) {
	// DONE is sticky: a completed task only re-enters the graph when the
	// caller explicitly resets it.
	if t.Status == types.StatusDone && status != types.StatusDone && !args.Force {
		return
	}
	// A disabled task stays disabled on further failure reports.
	if t.Status == types.StatusDisabled && status == types.StatusFailed {
		if args.Expl != "" {
			t.Expl = args.Expl
		}
		return
	}
	if t.Status == status {
		t.UpdatedAt = now
		return
	}

	switch status {
	case types.StatusPending:
		if t.Status == types.StatusRunning {
			s.ledger.Release(t.Resources)
		}
		t.Status = types.StatusPending
		t.Worker = ""

	case types.StatusDone:
		if t.Status == types.StatusRunning {
			s.ledger.Release(t.Resources)
		}
		t.Status = types.StatusDone
		t.Worker = ""
		t.Expl = ""
		t.clearFailures()

	case types.StatusFailed:
		if t.Status == types.StatusRunning {
			s.ledger.Release(t.Resources)
		}
		t.Worker = ""
		t.Expl = args.Expl
		failures := t.recordFailure(now, s.config.DisableWindow)
		if s.config.DisableFailures > 0 && failures >= s.config.DisableFailures {
			t.Status = types.StatusDisabled
			t.disableUntil = now.Add(s.config.DisablePersist)
			s.log.Warn("task disabled after repeated failures",
				zap.String("task", t.ID),
				zap.Int("failures", failures))
		} else {
			t.Status = types.StatusFailed
			t.retryAt = now.Add(s.config.RetryDelay)
		}

	case types.StatusDisabled:
		if t.Status == types.StatusRunning {
			s.ledger.Release(t.Resources)
		}
		t.Status = types.StatusDisabled
		t.Worker = ""
		t.disableUntil = now.Add(s.config.DisablePersist)

	case types.StatusUnknown:
		if t.Status == types.StatusRunning {
			s.ledger.Release(t.Resources)
		}
		t.Status = types.StatusUnknown
		t.Worker = ""
	}
	t.UpdatedAt = now
}

// GetWork selects the next runnable task for the requesting worker: PENDING,
// runnable, dependencies DONE, owned by the worker or open to assistants,
// ordered by priority then creation order, first successful resource
// reservation wins. An empty TaskID in the response means no work is
// available, which is a normal outcome.
func (s *Scheduler) GetWork(args *types.GetWorkArgs) (*types.GetWorkResponse, error) {
	if args.Worker == "" {
		return nil, fmt.Errorf("worker is required")
	}
	s.registry.Touch(args.Worker, args.Host)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()

	var candidates []*Task
	for _, t := range s.store.tasks {
		if t.Status != types.StatusPending || !t.Runnable {
			continue
		}
		if _, owned := t.Owners[args.Worker]; !owned && !(args.Assistant && t.Assistant) {
			continue
		}
		if !s.store.DepsDone(t) {
			continue
		}
		candidates = append(candidates, t)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].seq < candidates[j].seq
	})

	resp := &types.GetWorkResponse{NPendingTasks: len(candidates)}
	for _, t := range candidates {
		if !s.ledger.Reserve(t.Resources) {
			continue
		}
		t.Status = types.StatusRunning
		t.Worker = args.Worker
		t.StartedAt = now
		t.UpdatedAt = now

		resp.TaskID = t.ID
		resp.Family = t.Family
		resp.Module = t.Module
		resp.Params = t.Params
		resp.Resources = t.Resources
		resp.Priority = t.Priority

		s.log.Debug("assigned task",
			zap.String("task", t.ID),
			zap.String("worker", args.Worker))
		break
	}
	return resp, nil
}

// Graph returns a view of every known task.
func (s *Scheduler) Graph() map[string]*types.TaskView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Graph()
}

// DepGraph returns the forward dependency subgraph rooted at taskID.
func (s *Scheduler) DepGraph(taskID string) *types.DepGraphResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.DepGraph(taskID)
}

// InverseDepGraph returns the backward dependency subgraph rooted at taskID.
func (s *Scheduler) InverseDepGraph(taskID string) *types.DepGraphResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.InverseDepGraph(taskID)
}

// TaskList returns task views filtered by status, upstream status, and an
// id substring.
func (s *Scheduler) TaskList(status types.Status, upstreamStatus, search string) map[string]*types.TaskView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.List(status, upstreamStatus, search)
}

// TaskSearch returns tasks whose id contains the substring.
func (s *Scheduler) TaskSearch(substr string) map[string]*types.TaskView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Search(substr)
}

// WorkerList returns every known worker together with the tasks it is
// currently running.
func (s *Scheduler) WorkerList() []*types.WorkerView {
	workers := s.registry.List()

	s.mu.Lock()
	defer s.mu.Unlock()
	running := make(map[string][]string)
	for id, t := range s.store.tasks {
		if t.Status == types.StatusRunning && t.Worker != "" {
			running[t.Worker] = append(running[t.Worker], id)
		}
	}
	for _, w := range workers {
		ids := running[w.ID]
		sort.Strings(ids)
		w.Running = ids
	}
	return workers
}

// FetchError returns the explanation stored for a failed task.
func (s *Scheduler) FetchError(taskID string) (*types.FetchErrorResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.store.Get(taskID)
	if !ok {
		return nil, fmt.Errorf("unknown task %q", taskID)
	}
	return &types.FetchErrorResponse{TaskID: taskID, Expl: t.Expl}, nil
}

// AddWorker registers a worker and attaches its metadata.
func (s *Scheduler) AddWorker(worker string, info map[string]string) error {
	if worker == "" {
		return fmt.Errorf("worker is required")
	}
	s.registry.Touch(worker, "")
	s.registry.SetInfo(worker, info)
	return nil
}

// UpdateResources declares or updates resource capacities.
func (s *Scheduler) UpdateResources(resources map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, total := range resources {
		s.ledger.SetCapacity(name, total)
	}
}

// Resources reports every declared or consumed resource.
func (s *Scheduler) Resources() []types.ResourceView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Snapshot()
}

// ReEnableTask clears a disabled task's failure bookkeeping and makes it
// assignable again.
func (s *Scheduler) ReEnableTask(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.store.Get(taskID)
	if !ok {
		return fmt.Errorf("unknown task %q", taskID)
	}
	if t.Status != types.StatusDisabled {
		return fmt.Errorf("task %q is %s, not DISABLED", taskID, t.Status)
	}
	t.clearFailures()
	t.Status = types.StatusPending
	t.UpdatedAt = time.Now()
	return nil
}

// Prune runs the sweep pass on demand.
func (s *Scheduler) Prune() {
	s.Sweep(time.Now())
}

// TaskCount returns the number of known tasks.
func (s *Scheduler) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Len()
}

// WorkerCount returns the number of known workers.
func (s *Scheduler) WorkerCount() int {
	return s.registry.Count()
}

// IsRunning reports whether the sweep loop is active.
func (s *Scheduler) IsRunning() bool {
	return s.started.Load()
}
