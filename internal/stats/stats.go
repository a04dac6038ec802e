// Package stats keeps in-memory execution statistics: outcome counters and
// duration quantiles estimated with a t-digest.
package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/influxdata/tdigest"

	"github.com/seantiz/anvil/internal/model"
)

// compression trades digest size for accuracy; ~100 centroids.
const compression = 100

// Snapshot is a point-in-time view of the recorder.
type Snapshot struct {
	Count     int64              `json:"count"`
	Succeeded int64              `json:"succeeded"`
	Failed    int64              `json:"failed"`
	P50MS     float64            `json:"p50_ms"`
	P95MS     float64            `json:"p95_ms"`
	P99MS     float64            `json:"p99_ms"`
	MaxMS     float64            `json:"max_ms"`
	Queues    map[string]Counter `json:"queues"`
}

// Counter holds per-queue outcome counts.
type Counter struct {
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}

// Recorder aggregates completed executions. It is safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	digest    *tdigest.TDigest
	succeeded int64
	failed    int64
	maxMS     float64
	queues    map[string]*Counter
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		digest: tdigest.NewWithCompression(compression),
		queues: make(map[string]*Counter),
	}
}

// Observe records one completed execution for queue.
func (r *Recorder) Observe(queue string, result model.ExecutionResult) {
	ms := float64(result.Duration) / float64(time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.queues[queue]
	if !ok {
		c = &Counter{}
		r.queues[queue] = c
	}
	if result.Success {
		r.succeeded++
		c.Succeeded++
	} else {
		r.failed++
		c.Failed++
	}

	// Rejected requests never ran and carry no duration.
	if result.Duration > 0 {
		r.digest.Add(ms, 1)
		if ms > r.maxMS {
			r.maxMS = ms
		}
	}
}

// Snapshot returns the current statistics. Quantiles are zero until at least
// one timed execution was observed.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Count:     r.succeeded + r.failed,
		Succeeded: r.succeeded,
		Failed:    r.failed,
		MaxMS:     r.maxMS,
		Queues:    make(map[string]Counter, len(r.queues)),
	}
	if r.digest.Count() > 0 {
		s.P50MS = r.digest.Quantile(0.50)
		s.P95MS = r.digest.Quantile(0.95)
		s.P99MS = r.digest.Quantile(0.99)
	}
	for q, c := range r.queues {
		s.Queues[q] = *c
	}
	return s
}

// QueueNames returns the queues seen so far, sorted.
func (r *Recorder) QueueNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.queues))
	for q := range r.queues {
		names = append(names, q)
	}
	sort.Strings(names)
	return names
}

// Reset discards everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.digest = tdigest.NewWithCompression(compression)
	r.succeeded = 0
	r.failed = 0
	r.maxMS = 0
	r.queues = make(map[string]*Counter)
}
