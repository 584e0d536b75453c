package compliance

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/forge-hdr/controlplane/internal/bus"
	"github.com/forge-hdr/controlplane/internal/cluster"
	"github.com/forge-hdr/controlplane/internal/logging"
	"github.com/forge-hdr/controlplane/internal/topology"
)

const (
	TopicCriticalViolations = "compliance:criticalViolations"
	TopicReport             = "compliance:report"
	TopicViolation           = "compliance:violation"
)

// Violation is one policy's finding against one resource.
type Violation struct {
	Policy   string
	Severity Severity
	Issues   []string
}

// ComplianceResult is every violation found against a single resource.
type ComplianceResult struct {
	Ref             cluster.Ref
	Violations      []Violation
	AverageSeverity float64
}

// CheckSummary is one tick's aggregate outcome, appended to the bounded
// history ring.
type CheckSummary struct {
	Timestamp              time.Time
	ResourcesChecked       int
	CompliantResources     int
	NonCompliantResources  int
	TotalViolations        int
	ViolationsBySeverity   map[Severity]int
}

// SnapshotProvider is satisfied by *topology.Analyzer.
type SnapshotProvider interface {
	Latest() *topology.Snapshot
}

// Config bounds a Checker's tick behavior.
type Config struct {
	Interval         time.Duration
	PolicyTimeout    time.Duration
	HistoryRetention int
}

// Checker is the Compliance Checker (C4).
type Checker struct {
	registry *Registry
	provider SnapshotProvider
	bus      *bus.Bus
	log      *zap.Logger
	cfg      Config

	mu         sync.RWMutex
	results    map[string]ComplianceResult
	history    []CheckSummary
	lastTickAt time.Time
}

// New creates a Checker against the given policy registry and snapshot
// source.
func New(registry *Registry, provider SnapshotProvider, b *bus.Bus, log *zap.Logger, cfg Config) *Checker {
	if cfg.HistoryRetention < 1 {
		cfg.HistoryRetention = 1000
	}
	if cfg.PolicyTimeout <= 0 {
		cfg.PolicyTimeout = 250 * time.Millisecond
	}
	return &Checker{
		registry: registry,
		provider: provider,
		bus:      b,
		log:      log,
		cfg:      cfg,
		results:  make(map[string]ComplianceResult),
	}
}

// Run blocks, ticking every Config.Interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.Tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Tick evaluates every policy against every resource in the latest
// topology snapshot. Exported so explicit-request evaluation (spec.md
// §4.3: "on each tick or on explicit request") reuses the same path.
func (c *Checker) Tick() {
	snap := c.provider.Latest()
	if snap == nil {
		return
	}

	resources := resourcesFromSnapshot(snap)
	policies := c.registry.List()

	results := make(map[string]ComplianceResult, len(resources))
	summary := CheckSummary{
		Timestamp:            time.Now(),
		ResourcesChecked:     len(resources),
		ViolationsBySeverity: make(map[Severity]int),
	}

	var criticalResources []cluster.Ref
	var criticalPolicies []string

	for _, res := range resources {
		var violations []Violation
		for _, p := range policies {
			if !p.Enabled() || !p.AppliesTo(res.Ref.Kind) {
				continue
			}
			result := c.runWithTimeout(p, res)
			if !result.Passed {
				v := Violation{Policy: p.Name(), Severity: p.Severity(), Issues: result.Issues}
				violations = append(violations, v)
				summary.TotalViolations++
				summary.ViolationsBySeverity[p.Severity()]++
				c.bus.Publish(TopicViolation, map[string]interface{}{
					"resource": res.Ref.String(),
					"type":     p.Name(),
					"severity": string(p.Severity()),
				})
				if p.Severity() == SeverityHigh {
					criticalResources = append(criticalResources, res.Ref)
					criticalPolicies = append(criticalPolicies, p.Name())
				}
			}
		}

		cr := ComplianceResult{Ref: res.Ref, Violations: violations, AverageSeverity: averageSeverity(violations)}
		results[res.Ref.String()] = cr
		if len(violations) == 0 {
			summary.CompliantResources++
		} else {
			summary.NonCompliantResources++
		}
	}

	c.mu.Lock()
	c.results = results
	c.history = append(c.history, summary)
	if len(c.history) > c.cfg.HistoryRetention {
		c.history = c.history[len(c.history)-c.cfg.HistoryRetention:]
	}
	c.lastTickAt = time.Now()
	c.mu.Unlock()

	complianceRate := 0.0
	if summary.ResourcesChecked > 0 {
		complianceRate = float64(summary.CompliantResources) / float64(summary.ResourcesChecked)
	}
	c.bus.Publish(TopicReport, map[string]interface{}{
		"violationCount":    summary.TotalViolations,
		"resourcesChecked":  summary.ResourcesChecked,
		"complianceRate":    complianceRate,
	})

	if len(criticalResources) > 0 {
		c.bus.Publish(TopicCriticalViolations, map[string]interface{}{
			"count":     summary.ViolationsBySeverity[SeverityHigh],
			"resources": criticalResources,
			"policies":  criticalPolicies,
		})
	}
}

// runWithTimeout enforces spec.md §5's policyCheckTimeout: a policy.check
// call that does not return within the timeout is treated as
// {passed:false, issues:["timeout"]}, and the loop continues.
func (c *Checker) runWithTimeout(p Policy, r Resource) CheckResult {
	done := make(chan CheckResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- CheckResult{Passed: false, Issues: []string{"evaluation error: policy panicked"}}
			}
		}()
		done <- p.Check(r)
	}()

	select {
	case result := <-done:
		return result
	case <-time.After(c.cfg.PolicyTimeout):
		if c.log != nil {
			c.log.Warn("compliance: policy check timed out",
				logging.New().Component("compliance").Operation(p.Name()).ToZapFields()...)
		}
		return CheckResult{Passed: false, Issues: []string{"timeout"}}
	}
}

func averageSeverity(violations []Violation) float64 {
	if len(violations) == 0 {
		return 0
	}
	var total float64
	for _, v := range violations {
		total += v.Severity.Weight()
	}
	return total / float64(len(violations))
}

// Results returns a snapshot of the latest per-resource compliance
// results, keyed by Ref.String().
func (c *Checker) Results() map[string]ComplianceResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]ComplianceResult, len(c.results))
	for k, v := range c.results {
		out[k] = v
	}
	return out
}

// History returns a copy of the bounded check-summary history.
func (c *Checker) History() []CheckSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]CheckSummary, len(c.history))
	copy(out, c.history)
	return out
}

// LastTickAt reports when the most recent tick completed.
func (c *Checker) LastTickAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastTickAt
}
