// Package metrics records per-operation latency histograms for the RPC
// surface.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Histogram bounds: 1µs to 60s at 3 significant figures.
const (
	minLatencyUs = 1
	maxLatencyUs = 60 * 1000 * 1000
	sigFigs      = 3
)

// Recorder keeps one latency histogram per RPC operation.
type Recorder struct {
	mu         sync.Mutex
	histograms map[string]*hdrhistogram.Histogram
}

// OpStats is a snapshot of one operation's latency distribution, in
// microseconds.
type OpStats struct {
	Op    string `json:"op"`
	Count int64  `json:"count"`
	P50   int64  `json:"p50_us"`
	P95   int64  `json:"p95_us"`
	P99   int64  `json:"p99_us"`
	Max   int64  `json:"max_us"`
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		histograms: make(map[string]*hdrhistogram.Histogram),
	}
}

// Observe records one handled request for op.
func (r *Recorder) Observe(op string, d time.Duration) {
	us := d.Microseconds()
	if us < minLatencyUs {
		us = minLatencyUs
	}
	if us > maxLatencyUs {
		us = maxLatencyUs
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.histograms[op]
	if !ok {
		h = hdrhistogram.New(minLatencyUs, maxLatencyUs, sigFigs)
		r.histograms[op] = h
	}
	_ = h.RecordValue(us)
}

// Snapshot returns per-operation stats sorted by operation name.
func (r *Recorder) Snapshot() []OpStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]OpStats, 0, len(r.histograms))
	for op, h := range r.histograms {
		out = append(out, OpStats{
			Op:    op,
			Count: h.TotalCount(),
			P50:   h.ValueAtQuantile(50),
			P95:   h.ValueAtQuantile(95),
			P99:   h.ValueAtQuantile(99),
			Max:   h.Max(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Op < out[j].Op })
	return out
}
