package anomaly

import "sync"

// compositeTracker builds a one-time multivariate baseline from the first
// Window correlated-metric vectors observed (mean vector, diagonal
// covariance, and the Shannon entropy of the accompanying event-type
// mix), then scores every later vector against that frozen baseline via
// CompositeScorer. It is the construction path that turns CompositeScorer
// from a standalone, uncalled type into something the Anomaly Detector
// actually runs, gated on AnomalyConfig.CompositeEntropyWeight.
type compositeTracker struct {
	scorer    *CompositeScorer
	window    int
	threshold float64

	mu        sync.Mutex
	warmup    [][]float64
	warmupEvt []int
	baseline  *CompositeBaseline
	eventRing []int
	eventNext int
}

func newCompositeTracker(entropyWeight, threshold float64, window int) (*compositeTracker, error) {
	scorer, err := NewCompositeScorer(entropyWeight)
	if err != nil {
		return nil, err
	}
	if window < 2 {
		window = defaultWindow
	}
	if threshold <= 0 {
		threshold = 3.0
	}
	return &compositeTracker{scorer: scorer, window: window, threshold: threshold}, nil
}

// observe feeds one correlated-metric vector and an event-type bucket (an
// index into EventCounts) into the tracker. The first Window observations
// only build the baseline and never fire. Once the baseline exists, it
// returns the blended score and whether it crossed the threshold.
func (t *compositeTracker) observe(x []float64, eventType int) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pushEvent(eventType)

	if t.baseline == nil {
		t.warmup = append(t.warmup, x)
		t.warmupEvt = append(t.warmupEvt, eventType)
		if len(t.warmup) < t.window {
			return 0, false
		}
		t.baseline = buildCompositeBaseline(t.warmup, t.eventCounts(t.warmupEvt))
		t.warmup = nil
		t.warmupEvt = nil
		return 0, false
	}

	score, err := t.scorer.Score(x, *t.baseline, t.eventCounts(t.eventRing))
	if err != nil || score <= t.threshold {
		return score, false
	}
	return score, true
}

func (t *compositeTracker) pushEvent(eventType int) {
	if len(t.eventRing) < t.window {
		t.eventRing = append(t.eventRing, eventType)
		return
	}
	t.eventRing[t.eventNext] = eventType
	t.eventNext = (t.eventNext + 1) % t.window
}

func (t *compositeTracker) eventCounts(types []int) EventCounts {
	var counts EventCounts
	for _, e := range types {
		if e >= 0 && e < len(counts) {
			counts[e]++
		}
	}
	return counts
}

// buildCompositeBaseline computes a mean vector and diagonal covariance
// (per-dimension variance, no cross terms) from a warm-up sample set,
// plus the Shannon entropy of the accompanying event-type mix. A
// zero-variance dimension is floored to 1 so InvertCovariance never sees
// a singular matrix.
func buildCompositeBaseline(samples [][]float64, events EventCounts) *CompositeBaseline {
	n := len(samples)
	dims := len(samples[0])

	mean := make([]float64, dims)
	for _, s := range samples {
		for i, v := range s {
			mean[i] += v
		}
	}
	for i := range mean {
		mean[i] /= float64(n)
	}

	cov := make([][]float64, dims)
	for i := range cov {
		cov[i] = make([]float64, dims)
	}
	for _, s := range samples {
		for i, v := range s {
			d := v - mean[i]
			cov[i][i] += d * d
		}
	}
	for i := range cov {
		cov[i][i] /= float64(n)
		if cov[i][i] == 0 {
			cov[i][i] = 1
		}
	}

	inv, err := InvertCovariance(cov)
	if err != nil {
		// A diagonal matrix with strictly positive entries is always
		// positive-definite; InvertCovariance only errors on a
		// dimension it can't invert, which the floor above prevents.
		inv = cov
	}

	return &CompositeBaseline{
		MeanVector:      mean,
		InvCovariance:   inv,
		BaselineEntropy: ShannonEntropy(events),
		SampleCount:     n,
	}
}
