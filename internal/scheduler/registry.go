package scheduler

import (
	"sort"
	"sync"
	"time"

	"taskhub/pkg/types"
)

// Worker is a registered worker process.
type Worker struct {
	ID        string
	Host      string
	Info      map[string]string
	FirstSeen time.Time
	LastSeen  time.Time

	// messages are pending directives delivered on the next ping.
	messages []string
}

// Registry tracks known workers and their last-seen timestamps. It carries
// its own lock so that ping stays cheap and never contends with the
// scheduling decision.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]*Worker
}

// NewRegistry creates an empty worker registry.
func NewRegistry() *Registry {
	return &Registry{
		workers: make(map[string]*Worker),
	}
}

// Touch refreshes the last-seen timestamp for id, creating the record on
// first contact. Any RPC referencing a worker goes through here.
func (r *Registry) Touch(id, host string) {
	if id == "" {
		return
	}
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[id]
	if !ok {
		w = &Worker{
			ID:        id,
			Info:      make(map[string]string),
			FirstSeen: now,
		}
		r.workers[id] = w
	}
	w.LastSeen = now
	if host != "" {
		w.Host = host
	}
}

// cloneInfo copies a metadata map. Views are encoded and printed outside
// the registry lock, so they must not alias the live map.
func cloneInfo(info map[string]string) map[string]string {
	out := make(map[string]string, len(info))
	for k, v := range info {
		out[k] = v
	}
	return out
}

// SetInfo merges registration metadata into the worker record.
func (r *Registry) SetInfo(id string, info map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[id]
	if !ok {
		return
	}
	for k, v := range info {
		w.Info[k] = v
	}
}

// Get returns a snapshot of the worker record. The snapshot shares nothing
// with the live record, so it stays valid after the lock drops.
func (r *Registry) Get(id string) (*Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[id]
	if !ok {
		return nil, false
	}
	cp := *w
	cp.Info = cloneInfo(w.Info)
	cp.messages = nil
	return &cp, true
}

// Count returns the number of known workers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// List returns views of every known worker, sorted by id.
func (r *Registry) List() []*types.WorkerView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.WorkerView, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, &types.WorkerView{
			ID:        w.ID,
			Host:      w.Host,
			Info:      cloneInfo(w.Info),
			FirstSeen: w.FirstSeen.Unix(),
			LastSeen:  w.LastSeen.Unix(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stale returns the ids of workers silent for longer than timeout.
func (r *Registry) Stale(timeout time.Duration, now time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for id, w := range r.workers {
		if now.Sub(w.LastSeen) > timeout {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Remove deletes a worker record.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, id)
}

// PostMessage queues a directive for delivery on the worker's next ping.
func (r *Registry) PostMessage(id, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.workers[id]; ok {
		w.messages = append(w.messages, msg)
	}
}

// Broadcast queues a directive for every known worker.
func (r *Registry) Broadcast(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range r.workers {
		w.messages = append(w.messages, msg)
	}
}

// DrainMessages returns and clears the pending directives for a worker.
func (r *Registry) DrainMessages(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[id]
	if !ok || len(w.messages) == 0 {
		return nil
	}
	msgs := w.messages
	w.messages = nil
	return msgs
}
