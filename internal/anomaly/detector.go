// Package anomaly implements the Anomaly Detector (C8): per-metric rolling
// statistical baselines over a bounded sample window, flagging a new value
// as anomalous when it falls more than k standard deviations from the
// window's mean.
//
// Grounded on the retrieved anomaly engine's Baseline/Score shape
// (mean/stddev baseline, k-sigma threshold) with the PID/syscall framing
// replaced by an arbitrary metric name; the ring buffer and cold-start
// suppression are new, sized to spec.md's W=100 default. The retrieved
// package also carried a composite Mahalanobis-distance + Shannon-entropy
// scorer across correlated metrics; that mode survives as ObserveVector,
// config-gated by CompositeEntropyWeight (see composite.go and
// composite_tracker.go), rather than being discarded outright.
//
// The retrieved engine.go and mahalanobis.go both declared Baseline,
// Engine, and euclideanSquared in the same package with incompatible
// shapes — never a buildable pair. This file and composite.go replace
// both with a single consistent set of types; see DESIGN.md.
package anomaly

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/forge-hdr/controlplane/internal/bus"
	"github.com/forge-hdr/controlplane/internal/logging"
	"github.com/forge-hdr/controlplane/internal/mathutil"
)

const (
	TopicDetected = "anomaly:detected"

	// defaultWindow is spec.md §4.7's W.
	defaultWindow = 100

	// defaultThreshold (0.7) maps to k≈7 via k = threshold * 10.
	defaultThreshold = 0.7
)

// Config bounds a Detector's window size and sensitivity.
type Config struct {
	Window    int
	Threshold float64

	// CompositeEntropyWeight enables the optional multivariate scorer; 0
	// (the default) leaves the per-metric path as the only detector.
	CompositeEntropyWeight  float64
	CompositeScoreThreshold float64
}

// metricRing holds the last Window samples for one metric name.
type metricRing struct {
	samples []float64
	next    int
	filled  bool
	count   int // total Observe calls, including before the ring wrapped
}

func newMetricRing(window int) *metricRing {
	return &metricRing{samples: make([]float64, 0, window)}
}

func (r *metricRing) push(window int, x float64) {
	if len(r.samples) < window {
		r.samples = append(r.samples, x)
	} else {
		r.samples[r.next] = x
		r.next = (r.next + 1) % window
		r.filled = true
	}
	r.count++
}

// Detector is the Anomaly Detector (C8). One ring per metric name.
type Detector struct {
	bus *bus.Bus
	log *zap.Logger
	cfg Config

	mu      sync.Mutex
	metrics map[string]*metricRing

	composite *compositeTracker // nil unless CompositeEntropyWeight > 0
}

// New creates a Detector. An unconfigured Window or Threshold falls back
// to spec.md §4.7 defaults (W=100, threshold=0.7 → k≈7). If
// CompositeEntropyWeight is set, New also builds the optional
// multivariate composite scorer (see ObserveVector); a rejected weight
// (outside [0,1]) logs and leaves the composite scorer disabled rather
// than failing Detector construction.
func New(b *bus.Bus, log *zap.Logger, cfg Config) *Detector {
	if cfg.Window < 2 {
		cfg.Window = defaultWindow
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultThreshold
	}

	var composite *compositeTracker
	if cfg.CompositeEntropyWeight > 0 {
		t, err := newCompositeTracker(cfg.CompositeEntropyWeight, cfg.CompositeScoreThreshold, cfg.Window)
		if err != nil {
			if log != nil {
				log.Warn("anomaly: composite scorer disabled", zap.Error(err))
			}
		} else {
			composite = t
		}
	}

	return &Detector{
		bus:       b,
		log:       log,
		cfg:       cfg,
		metrics:   make(map[string]*metricRing),
		composite: composite,
	}
}

// Observe records x for metricName and publishes anomaly:detected if x is
// more than k*stddev from the window's mean, where k = Threshold*10.
// The first Window/2 samples for a metric only ever update the baseline:
// this suppresses cold-start false positives before the ring has enough
// history to estimate spread.
func (d *Detector) Observe(metricName string, x float64, anomalyType string) {
	d.mu.Lock()
	r, ok := d.metrics[metricName]
	if !ok {
		r = newMetricRing(d.cfg.Window)
		d.metrics[metricName] = r
	}

	coldStart := r.count < d.cfg.Window/2
	r.push(d.cfg.Window, x)

	mean := mathutil.Mean(r.samples)
	stddev := mathutil.StandardDeviation(r.samples)
	d.mu.Unlock()

	if coldStart {
		return
	}

	k := d.cfg.Threshold * 10
	if stddev == 0 {
		return
	}
	deviation := x - mean
	if deviation < 0 {
		deviation = -deviation
	}
	if deviation <= k*stddev {
		return
	}

	if d.log != nil {
		d.log.Warn("anomaly: threshold exceeded",
			logging.New().Component("anomaly").Operation(metricName).ToZapFields()...)
	}
	d.bus.Publish(TopicDetected, map[string]interface{}{
		"metric":    metricName,
		"type":      anomalyType,
		"value":     x,
		"mean":      mean,
		"stddev":    stddev,
		"threshold": k,
	})
}

// ObserveVector feeds one correlated-metric vector (e.g. [latency_ms,
// error_rate]) and an event-type bucket (an index into EventCounts) into
// the optional composite scorer, publishing anomaly:detected with type
// COMPOSITE_DRIFT if the blended Mahalanobis-plus-entropy score crosses
// the configured threshold. A no-op if the composite scorer was never
// configured (CompositeEntropyWeight <= 0) or is still warming up its
// baseline over the first Window observations.
func (d *Detector) ObserveVector(metricNames []string, x []float64, eventType int) {
	if d.composite == nil {
		return
	}
	score, fired := d.composite.observe(x, eventType)
	if !fired {
		return
	}
	if d.log != nil {
		d.log.Warn("anomaly: composite threshold exceeded",
			logging.New().Component("anomaly").Operation("composite").ToZapFields()...)
	}
	d.bus.Publish(TopicDetected, map[string]interface{}{
		"metric":    strings.Join(metricNames, "+"),
		"type":      "COMPOSITE_DRIFT",
		"value":     score,
		"threshold": d.composite.threshold,
	})
}

// Baseline reports the current mean/stddev for a metric, or zero values if
// it has never been observed.
func (d *Detector) Baseline(metricName string) (mean, stddev float64, samples int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.metrics[metricName]
	if !ok {
		return 0, 0, 0
	}
	return mathutil.Mean(r.samples), mathutil.StandardDeviation(r.samples), len(r.samples)
}
