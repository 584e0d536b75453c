// Package cluster defines the abstract, read-only view of a Kubernetes
// cluster that the Topology Analyzer, Orchestration Engine, and Load
// Balancer consume, plus the mutation operations the Orchestration Engine
// uses to act on it (C2).
//
// Nothing here talks to an API server directly; Client is satisfied by a
// real cluster adapter elsewhere and by Fake for tests and the demo
// harness.
package cluster

import (
	"k8s.io/apimachinery/pkg/api/resource"
)

// Ref identifies a cluster resource by kind, namespace, and name.
// Equality is structural: two Refs are the same resource iff all three
// fields match.
type Ref struct {
	Kind      string
	Namespace string
	Name      string
}

// String renders a Ref as "kind/namespace/name", used as a map key
// throughout the control plane (breaker targets, load-balancer pods,
// violation records).
func (r Ref) String() string {
	return r.Kind + "/" + r.Namespace + "/" + r.Name
}

// Probe mirrors the liveness/readiness probe presence the Compliance
// Checker's health-checks policy requires. The control plane does not
// need probe internals (exec command, HTTP path, timeouts) — only whether
// one is configured.
type Probe struct {
	Configured bool
}

// SecurityContext carries the two fields the security-context policy
// evaluates. A nil *SecurityContext on a Container means "unset at the
// container level"; Pod-level context is evaluated separately.
type SecurityContext struct {
	RunAsNonRoot           bool
	ReadOnlyRootFilesystem bool
}

// ResourceList mirrors corev1.ResourceList's cpu/memory shape using
// apimachinery's Quantity so values parse and compare the same way a real
// Kubernetes manifest's do ("100m", "256Mi", "1Gi").
type ResourceList struct {
	CPU    resource.Quantity
	Memory resource.Quantity
}

// Container is the subset of corev1.Container the control plane reasons
// about: identity, image, environment (for dependency-map DNS scanning),
// declared resources, and health probes.
type Container struct {
	Name                string
	Image               string
	Env                 map[string]string
	Requests            ResourceList
	Limits              ResourceList
	SecurityContext     *SecurityContext
	LivenessProbe       *Probe
	ReadinessProbe      *Probe
}

// Pod is a raw pod observation. Draining is a control-plane annotation
// layered on top of the cluster's own view. Pod carries no selection
// score; the Load Balancer keeps its own per-pod score (default 1).
type Pod struct {
	Ref             Ref
	NodeName        string
	Labels          map[string]string
	Containers      []Container
	PodSecurityCtx  *SecurityContext
	Draining        bool
}

// Node is a raw node observation.
type Node struct {
	Ref        Ref
	Schedulable bool
	Capacity   ResourceList
}

// Service is a raw service observation. Selector drives pod-label matching
// when the Topology Analyzer derives its dependency map.
type Service struct {
	Ref      Ref
	Selector map[string]string
}

// Workload is the shared shape of Deployments, StatefulSets, DaemonSets,
// and Jobs for the purposes this control plane cares about: desired
// replica count and the pod template's labels (for dependency-map
// matching). The Topology Analyzer's redundancy calculation does not use
// Workload; it strips the replica-set/pod suffix hash from pod names.
type Workload struct {
	Ref          Ref
	Replicas     int
	TemplateLabels map[string]string
}

// Topology is the raw snapshot fetched from the cluster each analysis
// tick, before the Topology Analyzer derives dependency maps, critical
// paths, and bottlenecks. Resource quantities stay as the Quantity values
// the client supplied; the analyzer does not convert them to other units.
type Topology struct {
	Nodes         []Node
	Pods          []Pod
	Services      []Service
	Deployments   []Workload
	StatefulSets  []Workload
	DaemonSets    []Workload
	Jobs          []Workload
}
