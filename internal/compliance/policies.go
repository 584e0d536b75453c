package compliance

import (
	"fmt"
	"strings"
	"sync"
)

// defaultImageAllowList is used when no config override is supplied
// (Open Question (b): a non-empty override replaces this list wholesale,
// it does not merge with it).
var defaultImageAllowList = []string{"gcr.io", "docker.io/library", "quay.io"}

// DefaultPolicies returns every built-in policy, ready to Register into a
// Registry. allowList overrides defaultImageAllowList when non-empty.
func DefaultPolicies(allowList []string) []Policy {
	return []Policy{
		&resourceLimitsPolicy{},
		&resourceRequestsPolicy{},
		&securityContextPolicy{},
		&healthChecksPolicy{},
		newImagePolicy(allowList),
		&replicaPolicy{},
		&networkPolicy{},
		&resourceRatioPolicy{},
	}
}

// resourceLimitsPolicy requires every container to declare cpu and
// memory limits.
type resourceLimitsPolicy struct{}

func (p *resourceLimitsPolicy) Name() string          { return "resource-limits" }
func (p *resourceLimitsPolicy) Severity() Severity    { return SeverityHigh }
func (p *resourceLimitsPolicy) Enabled() bool         { return true }
func (p *resourceLimitsPolicy) AppliesTo(k string) bool { return k == "Pod" }

func (p *resourceLimitsPolicy) Check(r Resource) CheckResult {
	var issues []string
	for _, c := range r.Pod.Containers {
		if c.Limits.CPU.IsZero() {
			issues = append(issues, fmt.Sprintf("container %q: missing cpu limit", c.Name))
		}
		if c.Limits.Memory.IsZero() {
			issues = append(issues, fmt.Sprintf("container %q: missing memory limit", c.Name))
		}
	}
	return CheckResult{Passed: len(issues) == 0, Issues: issues}
}

// resourceRequestsPolicy requires every container to declare cpu and
// memory requests.
type resourceRequestsPolicy struct{}

func (p *resourceRequestsPolicy) Name() string          { return "resource-requests" }
func (p *resourceRequestsPolicy) Severity() Severity    { return SeverityMedium }
func (p *resourceRequestsPolicy) Enabled() bool         { return true }
func (p *resourceRequestsPolicy) AppliesTo(k string) bool { return k == "Pod" }

func (p *resourceRequestsPolicy) Check(r Resource) CheckResult {
	var issues []string
	for _, c := range r.Pod.Containers {
		if c.Requests.CPU.IsZero() {
			issues = append(issues, fmt.Sprintf("container %q: missing cpu request", c.Name))
		}
		if c.Requests.Memory.IsZero() {
			issues = append(issues, fmt.Sprintf("container %q: missing memory request", c.Name))
		}
	}
	return CheckResult{Passed: len(issues) == 0, Issues: issues}
}

// securityContextPolicy requires a security context (pod- or
// container-level) with runAsNonRoot and readOnlyRootFilesystem set.
type securityContextPolicy struct{}

func (p *securityContextPolicy) Name() string          { return "security-context" }
func (p *securityContextPolicy) Severity() Severity    { return SeverityHigh }
func (p *securityContextPolicy) Enabled() bool         { return true }
func (p *securityContextPolicy) AppliesTo(k string) bool { return k == "Pod" }

func (p *securityContextPolicy) Check(r Resource) CheckResult {
	var issues []string
	for _, c := range r.Pod.Containers {
		sc := c.SecurityContext
		if sc == nil {
			sc = r.Pod.PodSecurityCtx
		}
		if sc == nil {
			issues = append(issues, fmt.Sprintf("container %q: no security context", c.Name))
			continue
		}
		if !sc.RunAsNonRoot {
			issues = append(issues, fmt.Sprintf("container %q: runAsNonRoot not set", c.Name))
		}
		if !sc.ReadOnlyRootFilesystem {
			issues = append(issues, fmt.Sprintf("container %q: readOnlyRootFilesystem not set", c.Name))
		}
	}
	return CheckResult{Passed: len(issues) == 0, Issues: issues}
}

// healthChecksPolicy requires liveness and readiness probes.
type healthChecksPolicy struct{}

func (p *healthChecksPolicy) Name() string          { return "health-checks" }
func (p *healthChecksPolicy) Severity() Severity    { return SeverityMedium }
func (p *healthChecksPolicy) Enabled() bool         { return true }
func (p *healthChecksPolicy) AppliesTo(k string) bool { return k == "Pod" }

func (p *healthChecksPolicy) Check(r Resource) CheckResult {
	var issues []string
	for _, c := range r.Pod.Containers {
		if c.LivenessProbe == nil || !c.LivenessProbe.Configured {
			issues = append(issues, fmt.Sprintf("container %q: missing liveness probe", c.Name))
		}
		if c.ReadinessProbe == nil || !c.ReadinessProbe.Configured {
			issues = append(issues, fmt.Sprintf("container %q: missing readiness probe", c.Name))
		}
	}
	return CheckResult{Passed: len(issues) == 0, Issues: issues}
}

// imagePolicy requires a non-":latest" tag from an allow-listed registry
// (or an explicit tag of its own). The allow-list is supplied when the
// policy is built (empty means the built-in default) and can be replaced
// wholesale with SetAllowList.
type imagePolicy struct {
	mu        sync.RWMutex
	allowList []string
}

func newImagePolicy(allowList []string) *imagePolicy {
	ip := &imagePolicy{}
	ip.SetAllowList(allowList)
	return ip
}

// SetAllowList overrides the allow-list wholesale. A nil or empty slice
// resets to the built-in default.
func (p *imagePolicy) SetAllowList(allowList []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(allowList) == 0 {
		p.allowList = append([]string(nil), defaultImageAllowList...)
		return
	}
	p.allowList = append([]string(nil), allowList...)
}

func (p *imagePolicy) Name() string          { return "image-policy" }
func (p *imagePolicy) Severity() Severity    { return SeverityHigh }
func (p *imagePolicy) Enabled() bool         { return true }
func (p *imagePolicy) AppliesTo(k string) bool { return k == "Pod" }

func (p *imagePolicy) Check(r Resource) CheckResult {
	p.mu.RLock()
	allowList := p.allowList
	p.mu.RUnlock()

	var issues []string
	for _, c := range r.Pod.Containers {
		if strings.HasSuffix(c.Image, ":latest") {
			issues = append(issues, fmt.Sprintf("container %q: image %q uses :latest", c.Name, c.Image))
			continue
		}
		fromAllowed := false
		for _, registry := range allowList {
			if strings.HasPrefix(c.Image, registry) {
				fromAllowed = true
				break
			}
		}
		hasExplicitTag := strings.Contains(lastSegment(c.Image), ":")
		if !fromAllowed && !hasExplicitTag {
			issues = append(issues, fmt.Sprintf("container %q: image %q not from an allow-listed registry and has no explicit tag", c.Name, c.Image))
		}
	}
	return CheckResult{Passed: len(issues) == 0, Issues: issues}
}

func lastSegment(image string) string {
	if i := strings.LastIndex(image, "/"); i >= 0 {
		return image[i+1:]
	}
	return image
}

// replicaPolicy requires Deployments to declare at least 2 replicas.
type replicaPolicy struct{}

func (p *replicaPolicy) Name() string          { return "replica-policy" }
func (p *replicaPolicy) Severity() Severity    { return SeverityMedium }
func (p *replicaPolicy) Enabled() bool         { return true }
func (p *replicaPolicy) AppliesTo(k string) bool { return k == "Deployment" }

func (p *replicaPolicy) Check(r Resource) CheckResult {
	if r.Workload.Replicas < 2 {
		return CheckResult{Passed: false, Issues: []string{
			fmt.Sprintf("replicas=%d, want >= 2", r.Workload.Replicas),
		}}
	}
	return CheckResult{Passed: true}
}

// networkPolicy requires pods to carry a "network-policy" label.
type networkPolicy struct{}

func (p *networkPolicy) Name() string          { return "network-policy" }
func (p *networkPolicy) Severity() Severity    { return SeverityMedium }
func (p *networkPolicy) Enabled() bool         { return true }
func (p *networkPolicy) AppliesTo(k string) bool { return k == "Pod" }

func (p *networkPolicy) Check(r Resource) CheckResult {
	if _, ok := r.Pod.Labels["network-policy"]; !ok {
		return CheckResult{Passed: false, Issues: []string{"missing \"network-policy\" label"}}
	}
	return CheckResult{Passed: true}
}

// resourceRatioPolicy requires memory limit >= 2x memory request.
type resourceRatioPolicy struct{}

func (p *resourceRatioPolicy) Name() string          { return "resource-ratio" }
func (p *resourceRatioPolicy) Severity() Severity    { return SeverityLow }
func (p *resourceRatioPolicy) Enabled() bool         { return true }
func (p *resourceRatioPolicy) AppliesTo(k string) bool { return k == "Pod" }

func (p *resourceRatioPolicy) Check(r Resource) CheckResult {
	var issues []string
	for _, c := range r.Pod.Containers {
		request := c.Requests.Memory.AsApproximateFloat64()
		limit := c.Limits.Memory.AsApproximateFloat64()
		if request <= 0 {
			continue
		}
		if limit < 2*request {
			issues = append(issues, fmt.Sprintf("container %q: memory limit/request ratio %.2f < 2.0", c.Name, limit/request))
		}
	}
	return CheckResult{Passed: len(issues) == 0, Issues: issues}
}
