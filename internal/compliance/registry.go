// Package compliance implements the Compliance Checker (C4): a pluggable
// policy registry evaluated against every resource in the latest topology
// snapshot.
//
// The registry follows the same register-by-name, panic-on-duplicate
// shape contrib's AnomalyScorer registry uses for pluggable scorers: a
// Registry-scoped map guarded by a RWMutex, populated via Register and
// read via Get/List.
package compliance

import (
	"fmt"
	"sync"

	"github.com/forge-hdr/controlplane/internal/cluster"
)

// Severity is a policy's violation weight: high=3, medium=2, low=1.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Weight returns the numeric weight used in averageSeverity computation.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Resource is the unit a Policy evaluates: exactly one of Pod or Workload
// is set, discriminated by Ref.Kind.
type Resource struct {
	Ref      cluster.Ref
	Pod      *cluster.Pod
	Workload *cluster.Workload
}

// CheckResult is a single policy evaluation outcome.
type CheckResult struct {
	Passed bool
	Issues []string
}

// Policy is a pluggable compliance rule. Built-in policies are built by
// policies.go's DefaultPolicies; custom policies are added to a Registry
// with Register.
type Policy interface {
	Name() string
	Severity() Severity
	Enabled() bool
	// AppliesTo reports whether this policy evaluates resources of the
	// given Ref.Kind ("Pod", "Deployment", ...).
	AppliesTo(kind string) bool
	Check(r Resource) CheckResult
}

// Registry holds the active set of policies, keyed by name.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]Policy
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{policies: make(map[string]Policy)}
}

// Register adds a policy. Panics if a policy with the same name is
// already registered — a startup-time configuration error, not a runtime
// one.
func (r *Registry) Register(p Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.policies[p.Name()]; exists {
		panic(fmt.Sprintf("compliance: policy %q already registered", p.Name()))
	}
	r.policies[p.Name()] = p
}

// Get returns the named policy, or an error if unregistered.
func (r *Registry) Get(name string) (Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[name]
	if !ok {
		return nil, fmt.Errorf("compliance: policy %q not registered", name)
	}
	return p, nil
}

// List returns every registered policy in no particular order.
func (r *Registry) List() []Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Policy, 0, len(r.policies))
	for _, p := range r.policies {
		out = append(out, p)
	}
	return out
}

// Default returns a Registry pre-populated with the eight built-in
// policies from policies.go.
func Default() *Registry {
	reg := NewRegistry()
	reg.Register(&resourceLimitsPolicy{})
	reg.Register(&resourceRequestsPolicy{})
	reg.Register(&securityContextPolicy{})
	reg.Register(&healthChecksPolicy{})
	reg.Register(newImagePolicy(nil))
	reg.Register(&replicaPolicy{})
	reg.Register(&networkPolicy{})
	reg.Register(&resourceRatioPolicy{})
	return reg
}
