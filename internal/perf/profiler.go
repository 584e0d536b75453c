// Package perf implements the Performance Profiler (C9): a fixed-boundary
// cumulative latency histogram plus a bounded raw-observation buffer used
// to compute percentiles on demand.
//
// Grounded on the retrieved metrics/histogram shape (bucket boundaries,
// cumulative counts, sum/count) generalized from the teacher's
// observability package to request-duration seconds; the bounded
// drop-oldest observation buffer follows the event bus's own
// drop-oldest-on-overflow backpressure policy rather than growing
// unbounded.
package perf

import (
	"sort"
	"sync"

	"github.com/forge-hdr/controlplane/internal/mathutil"
)

// bucketBounds are spec.md §3's fixed latency histogram boundaries, in
// seconds. The last bucket is conceptually +Inf and always matches.
var bucketBounds = []float64{0.1, 0.5, 1, 2.5, 5, 10}

// defaultBufferSize is spec.md §4.8's default bounded observation buffer.
const defaultBufferSize = 4096

// Histogram is a fixed-boundary cumulative latency histogram: bucketCounts
// are cumulative (a sample of 0.3s increments the 0.5, 1, 2.5, 5, 10, and
// +Inf buckets, not just 0.5).
type Histogram struct {
	mu           sync.Mutex
	bucketCounts []uint64 // len(bucketBounds)+1; last slot is +Inf
	sum          float64
	count        uint64
	buffer       []float64 // bounded ring of raw observations for percentiles
	bufferNext   int
	bufferFilled bool
}

// Config bounds the Profiler's raw observation buffer.
type Config struct {
	BufferSize int
}

// Profiler is the Performance Profiler (C9).
type Profiler struct {
	cfg Config
	hist *Histogram
}

// New creates a Profiler with an empty histogram and observation buffer.
func New(cfg Config) *Profiler {
	if cfg.BufferSize < 1 {
		cfg.BufferSize = defaultBufferSize
	}
	return &Profiler{
		cfg: cfg,
		hist: &Histogram{
			bucketCounts: make([]uint64, len(bucketBounds)+1),
			buffer:       make([]float64, 0, cfg.BufferSize),
		},
	}
}

// Observe records one request duration, in seconds, into the histogram and
// the bounded raw-observation buffer (oldest overwritten on overflow).
func (p *Profiler) Observe(durationSeconds float64) {
	h := p.hist
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += durationSeconds
	h.count++
	for i, bound := range bucketBounds {
		if durationSeconds <= bound {
			h.bucketCounts[i]++
		}
	}
	h.bucketCounts[len(bucketBounds)]++ // +Inf bucket always matches

	if len(h.buffer) < p.cfg.BufferSize {
		h.buffer = append(h.buffer, durationSeconds)
	} else {
		h.buffer[h.bufferNext] = durationSeconds
		h.bufferNext = (h.bufferNext + 1) % p.cfg.BufferSize
		h.bufferFilled = true
	}
}

// BucketCounts returns a copy of the cumulative per-boundary counts,
// keyed by boundary label ("0.1", "0.5", "1", "2.5", "5", "10", "+Inf").
func (p *Profiler) BucketCounts() map[string]uint64 {
	h := p.hist
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]uint64, len(bucketBounds)+1)
	for i, bound := range bucketBounds {
		out[formatBound(bound)] = h.bucketCounts[i]
	}
	out["+Inf"] = h.bucketCounts[len(bucketBounds)]
	return out
}

// Sum returns the running sum of all observed durations, in seconds.
func (p *Profiler) Sum() float64 {
	h := p.hist
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

// Count returns the total number of observations recorded.
func (p *Profiler) Count() uint64 {
	h := p.hist
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Percentiles computes p50/p95/p99 over the current raw-observation
// buffer by linear interpolation. Recomputed on demand, not per sample,
// per spec.md §4.8.
func (p *Profiler) Percentiles() (p50, p95, p99 float64) {
	h := p.hist
	h.mu.Lock()
	sorted := make([]float64, len(h.buffer))
	copy(sorted, h.buffer)
	h.mu.Unlock()

	sort.Float64s(sorted)
	return mathutil.Percentile(sorted, 50), mathutil.Percentile(sorted, 95), mathutil.Percentile(sorted, 99)
}

func formatBound(bound float64) string {
	switch bound {
	case 0.1:
		return "0.1"
	case 0.5:
		return "0.5"
	case 1:
		return "1"
	case 2.5:
		return "2.5"
	case 5:
		return "5"
	case 10:
		return "10"
	default:
		return ""
	}
}
