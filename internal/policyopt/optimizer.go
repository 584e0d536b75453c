// Package policyopt implements the Policy Optimizer (C11): periodic trend
// analysis over the Compliance Checker's and Budget Enforcer's history
// rings, producing bounded, confidence-scored recommendations and
// optionally applying them automatically.
//
// Trend classification follows the escalation package's sequential
// threshold-table idiom (severity.go's TargetState): evaluate boundaries
// highest to lowest and return the first one crossed, rather than a chain
// of independent if/else comparisons.
package policyopt

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forge-hdr/controlplane/internal/bus"
	"github.com/forge-hdr/controlplane/internal/compliance"
)

var errOutOfRange = errors.New("policyopt: recommendation index out of range")

const (
	TopicRecommendationApplied = "policyOptimizer:recommendationApplied"

	// maxRecommendations is spec.md §3's bounded recommendation list.
	maxRecommendations = 20

	// trendSampleSize is how many trailing history entries feed each
	// trend computation (spec.md §4.10: "last 10 entries").
	trendSampleSize = 10
)

// Trend classifications, shared across compliance and cost analysis.
type Trend string

const (
	TrendDeteriorating Trend = "deteriorating"
	TrendAccelerating  Trend = "accelerating"
	TrendStable        Trend = "stable"
	TrendImproving     Trend = "improving"
	TrendDecelerating  Trend = "decelerating"
)

// Recommendation types, named after the concrete mutation they propose.
const (
	RecommendationComplianceStrictness = "COMPLIANCE_STRICTNESS"
	RecommendationBudgetIncrease       = "BUDGET_INCREASE"
	RecommendationBudgetReduction      = "BUDGET_REDUCTION"
	RecommendationScaleUpCPU           = "SCALE_UP_CPU"
	RecommendationAutoRemediation      = "AUTO_REMEDIATION"
)

// Severity mirrors compliance.Severity's three-level scale, reused here
// rather than imported to keep policyopt decoupled from a specific
// producer package's severity type.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Recommendation is one proposed policy mutation.
type Recommendation struct {
	ID             string
	Type           string
	Severity       Severity
	Confidence     float64
	CurrentValue   float64
	SuggestedValue float64
	Rationale      string
	CreatedAt      time.Time
	AppliedAt      *time.Time
}

// ComplianceHistoryProvider is satisfied by *compliance.Checker.
type ComplianceHistoryProvider interface {
	History() []compliance.CheckSummary
}

// CostHistoryProvider is satisfied by *budget.Ledger.
type CostHistoryProvider interface {
	History() []float64 // percent of monthly budget used, one per cost event
}

// PerformanceSnapshot is the last-observed resource/latency reading fed
// into the performance trend; spec.md §4.10 takes only the latest
// snapshot for this signal, not a rolling trend.
type PerformanceSnapshot struct {
	CPUUsagePercent    float64
	MemoryUsagePercent float64
	LatencyMs          float64
}

// PerformanceProvider supplies the latest performance snapshot.
type PerformanceProvider interface {
	LatestPerformance() PerformanceSnapshot
}

// PolicyMutator applies an accepted recommendation to the live policy
// structures it concerns (image allow-list strictness, budget limits,
// scale bounds, auto-remediation toggle). Implemented by whichever
// component owns the mutated structure; the optimizer never mutates
// policy state directly.
type PolicyMutator interface {
	Apply(rec Recommendation) error
}

// Config bounds the optimizer's tick behavior and auto-apply gating.
type Config struct {
	Interval            time.Duration
	AutoApply           bool
	ConfidenceThreshold float64
}

// Optimizer is the Policy Optimizer (C11).
type Optimizer struct {
	compliance  ComplianceHistoryProvider
	cost        CostHistoryProvider
	performance PerformanceProvider
	mutator     PolicyMutator
	bus         *bus.Bus
	cfg         Config

	mu              sync.Mutex
	recommendations []Recommendation
}

// New creates an Optimizer. An unconfigured Interval falls back to
// spec.md §4.10's default of 1h; an unconfigured ConfidenceThreshold
// falls back to 0.75.
func New(compliance ComplianceHistoryProvider, cost CostHistoryProvider, performance PerformanceProvider, mutator PolicyMutator, b *bus.Bus, cfg Config) *Optimizer {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.75
	}
	return &Optimizer{
		compliance:  compliance,
		cost:        cost,
		performance: performance,
		mutator:     mutator,
		bus:         b,
		cfg:         cfg,
	}
}

// Tick runs one trend analysis pass, appending any produced
// recommendations to the bounded list and auto-applying those that meet
// the gating condition.
func (o *Optimizer) Tick() {
	violations := lastViolationCounts(o.compliance.History())
	complianceTrend := classifyCompliance(mean(violations))

	percentUsed := lastN(o.cost.History(), trendSampleSize)
	costTrend := classifyCost(mean(percentUsed))

	perf := o.performance.LatestPerformance()

	confidence := min1(float64(len(violations)) / float64(trendSampleSize))

	var fresh []Recommendation
	switch complianceTrend {
	case TrendDeteriorating:
		fresh = append(fresh, o.newRecommendation(RecommendationComplianceStrictness, SeverityHigh, confidence,
			0, 1, "compliance violations trending up over the last "+strconv.Itoa(len(violations))+" checks"))
	case TrendImproving:
		fresh = append(fresh, o.newRecommendation(RecommendationComplianceStrictness, SeverityLow, confidence,
			1, 0, "compliance violations trending down; strictness may be relaxed"))
	}

	costConfidence := min1(float64(len(percentUsed)) / float64(trendSampleSize))
	switch costTrend {
	case TrendAccelerating:
		fresh = append(fresh, o.newRecommendation(RecommendationBudgetIncrease, SeverityMedium, costConfidence,
			1.0, 1.2, "monthly budget utilization accelerating past 80%"))
	case TrendDecelerating:
		fresh = append(fresh, o.newRecommendation(RecommendationBudgetReduction, SeverityLow, costConfidence,
			1.0, 0.9, "monthly budget utilization well under 50%"))
	}

	if perf.CPUUsagePercent > 80 {
		fresh = append(fresh, o.newRecommendation(RecommendationScaleUpCPU, SeverityHigh, 1.0,
			1.0, 1.5, "cpu usage above 80% in the latest snapshot"))
	}

	o.mu.Lock()
	for _, rec := range fresh {
		o.recommendations = append(o.recommendations, rec)
	}
	if len(o.recommendations) > maxRecommendations {
		o.recommendations = o.recommendations[len(o.recommendations)-maxRecommendations:]
	}
	o.mu.Unlock()

	for _, rec := range fresh {
		if o.cfg.AutoApply && rec.Confidence >= o.cfg.ConfidenceThreshold {
			o.applyByID(rec.ID)
		}
	}
}

func (o *Optimizer) newRecommendation(recType string, severity Severity, confidence, current, suggested float64, rationale string) Recommendation {
	return Recommendation{
		ID:             uuid.NewString(),
		Type:           recType,
		Severity:       severity,
		Confidence:     confidence,
		CurrentValue:   current,
		SuggestedValue: suggested,
		Rationale:      rationale,
		CreatedAt:      time.Now(),
	}
}

// Recommendations returns a copy of the current bounded recommendation
// list, newest last.
func (o *Optimizer) Recommendations() []Recommendation {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Recommendation, len(o.recommendations))
	copy(out, o.recommendations)
	return out
}

// ApplyRecommendation applies the i-th recommendation (0-indexed, per the
// current Recommendations() ordering) via the configured PolicyMutator,
// regardless of AutoApply — this is the explicit-request path spec.md
// §4.10 names as applyRecommendation(i). Returns an error if i is out of
// range or the mutator rejects it; the recommendation is stamped
// AppliedAt only on success.
func (o *Optimizer) ApplyRecommendation(i int) error {
	o.mu.Lock()
	if i < 0 || i >= len(o.recommendations) {
		o.mu.Unlock()
		return errOutOfRange
	}
	rec := o.recommendations[i]
	o.mu.Unlock()

	if err := o.mutator.Apply(rec); err != nil {
		return err
	}

	now := time.Now()
	o.mu.Lock()
	if i < len(o.recommendations) && o.recommendations[i].ID == rec.ID {
		o.recommendations[i].AppliedAt = &now
	}
	o.mu.Unlock()

	o.bus.Publish(TopicRecommendationApplied, map[string]interface{}{
		"type":     rec.Type,
		"newValue": rec.SuggestedValue,
	})
	return nil
}

func (o *Optimizer) applyByID(id string) {
	o.mu.Lock()
	idx := -1
	for i, rec := range o.recommendations {
		if rec.ID == id {
			idx = i
			break
		}
	}
	o.mu.Unlock()
	if idx == -1 {
		return
	}
	_ = o.ApplyRecommendation(idx)
}

// classifyCompliance classifies mean violations per check per spec.md
// §4.10: deteriorating if >5, improving if <2, stable otherwise.
// Evaluated highest-to-lowest, matching severity.go's TargetState idiom.
func classifyCompliance(meanViolations float64) Trend {
	switch {
	case meanViolations > 5:
		return TrendDeteriorating
	case meanViolations < 2:
		return TrendImproving
	default:
		return TrendStable
	}
}

// classifyCost classifies mean percent-used per spec.md §4.10:
// accelerating if >80, decelerating if <50, stable otherwise.
func classifyCost(meanPercentUsed float64) Trend {
	switch {
	case meanPercentUsed > 80:
		return TrendAccelerating
	case meanPercentUsed < 50:
		return TrendDecelerating
	default:
		return TrendStable
	}
}

func lastViolationCounts(history []compliance.CheckSummary) []float64 {
	tail := history
	if len(tail) > trendSampleSize {
		tail = tail[len(tail)-trendSampleSize:]
	}
	out := make([]float64, len(tail))
	for i, h := range tail {
		out[i] = float64(h.TotalViolations)
	}
	return out
}

func lastN(values []float64, n int) []float64 {
	if len(values) > n {
		return values[len(values)-n:]
	}
	return values
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

