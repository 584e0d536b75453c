package perf

import (
	"math"
	"testing"
)

func TestProfiler_S1_BucketCounts(t *testing.T) {
	p := New(Config{})
	p.Observe(0.150) // r1: 150ms
	p.Observe(3.200) // r2: 3200ms

	counts := p.BucketCounts()
	if counts["0.5"] != 1 {
		t.Errorf("expected le=0.5 count 1, got %d", counts["0.5"])
	}
	if counts["5"] != 2 {
		t.Errorf("expected le=5 cumulative count 2, got %d", counts["5"])
	}
	if counts["+Inf"] != 2 {
		t.Errorf("expected +Inf count 2, got %d", counts["+Inf"])
	}
}

func TestProfiler_CumulativeNonDecreasing(t *testing.T) {
	p := New(Config{})
	for _, d := range []float64{0.05, 0.3, 0.9, 2.0, 4.0, 9.0, 20.0} {
		p.Observe(d)
	}
	counts := p.BucketCounts()
	order := []string{"0.1", "0.5", "1", "2.5", "5", "10", "+Inf"}
	var prev uint64
	for _, key := range order {
		if counts[key] < prev {
			t.Errorf("bucket %s count %d is less than previous %d", key, counts[key], prev)
		}
		prev = counts[key]
	}
}

func TestProfiler_SumAndCount(t *testing.T) {
	p := New(Config{})
	p.Observe(1.0)
	p.Observe(2.0)
	p.Observe(3.0)

	if p.Count() != 3 {
		t.Errorf("expected count 3, got %d", p.Count())
	}
	if p.Sum() != 6.0 {
		t.Errorf("expected sum 6.0, got %v", p.Sum())
	}
}

func TestProfiler_BufferOverflowDropsOldest(t *testing.T) {
	p := New(Config{BufferSize: 3})
	p.Observe(1)
	p.Observe(2)
	p.Observe(3)
	p.Observe(100) // overwrites the oldest slot (value 1)

	// Buffer is now [2, 3, 100]; p99 interpolates at rank 0.99*2 = 1.98,
	// i.e. 3 + 0.98*(100-3) = 98.06.
	p50, _, p99 := p.Percentiles()
	if math.Abs(p99-98.06) > 1e-9 {
		t.Errorf("expected p99 98.06 interpolated over [2 3 100], got %v", p99)
	}
	if p50 == 1 {
		t.Error("expected the oldest observation (1) to have been evicted")
	}
}

func TestProfiler_PercentilesEmptyBuffer(t *testing.T) {
	p := New(Config{})
	p50, p95, p99 := p.Percentiles()
	if p50 != 0 || p95 != 0 || p99 != 0 {
		t.Error("expected zero percentiles for an empty buffer")
	}
}
