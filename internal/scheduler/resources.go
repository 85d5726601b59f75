package scheduler

import (
	"sort"

	"taskhub/pkg/types"
)

// defaultCapacity applies to resources that are consumed before
// update_resources declares them.
const defaultCapacity = 1

// Ledger tracks named resource capacities and current consumption. It has
// no lock of its own; the owning Scheduler serializes access, which is what
// makes Reserve atomic relative to concurrent assignment attempts.
type Ledger struct {
	total map[string]int
	used  map[string]int
}

// NewLedger creates an empty resource ledger.
func NewLedger() *Ledger {
	return &Ledger{
		total: make(map[string]int),
		used:  make(map[string]int),
	}
}

// SetCapacity declares or updates the total capacity of a resource.
func (l *Ledger) SetCapacity(name string, total int) {
	l.total[name] = total
}

func (l *Ledger) capacity(name string) int {
	if total, ok := l.total[name]; ok {
		return total
	}
	return defaultCapacity
}

// Reserve checks every requirement against remaining capacity and, only if
// all pass, consumes them. Nothing is consumed on failure.
func (l *Ledger) Reserve(resources map[string]int) bool {
	for name, need := range resources {
		if l.used[name]+need > l.capacity(name) {
			return false
		}
	}
	for name, need := range resources {
		l.used[name] += need
	}
	return true
}

// Release undoes a reservation when a task leaves RUNNING.
func (l *Ledger) Release(resources map[string]int) {
	for name, need := range resources {
		l.used[name] -= need
		if l.used[name] <= 0 {
			delete(l.used, name)
		}
	}
}

// Snapshot reports every declared or consumed resource, sorted by name.
func (l *Ledger) Snapshot() []types.ResourceView {
	names := make(map[string]struct{}, len(l.total))
	for name := range l.total {
		names[name] = struct{}{}
	}
	for name := range l.used {
		names[name] = struct{}{}
	}

	out := make([]types.ResourceView, 0, len(names))
	for name := range names {
		out = append(out, types.ResourceView{
			Name:  name,
			Total: l.capacity(name),
			Used:  l.used[name],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
