package compliance

import (
	"testing"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/forge-hdr/controlplane/internal/cluster"
)

func podResource(containers ...cluster.Container) Resource {
	pod := cluster.Pod{
		Ref:        cluster.Ref{Kind: "Pod", Namespace: "default", Name: "app-1"},
		Containers: containers,
	}
	return Resource{Ref: pod.Ref, Pod: &pod}
}

func TestResourceLimitsPolicy_MissingLimits(t *testing.T) {
	r := podResource(cluster.Container{Name: "main"})
	result := (&resourceLimitsPolicy{}).Check(r)
	if result.Passed {
		t.Error("expected failure when limits are unset")
	}
	if len(result.Issues) != 2 {
		t.Errorf("expected 2 issues (cpu+memory), got %v", result.Issues)
	}
}

func TestResourceLimitsPolicy_Declared(t *testing.T) {
	r := podResource(cluster.Container{
		Name: "main",
		Limits: cluster.ResourceList{
			CPU:    resource.MustParse("500m"),
			Memory: resource.MustParse("256Mi"),
		},
	})
	result := (&resourceLimitsPolicy{}).Check(r)
	if !result.Passed {
		t.Errorf("expected pass, got issues: %v", result.Issues)
	}
}

func TestSecurityContextPolicy_PodLevelFallback(t *testing.T) {
	pod := cluster.Pod{
		Ref:            cluster.Ref{Kind: "Pod", Name: "app-1"},
		Containers:     []cluster.Container{{Name: "main"}},
		PodSecurityCtx: &cluster.SecurityContext{RunAsNonRoot: true, ReadOnlyRootFilesystem: true},
	}
	result := (&securityContextPolicy{}).Check(Resource{Ref: pod.Ref, Pod: &pod})
	if !result.Passed {
		t.Errorf("expected pod-level security context to satisfy policy, got %v", result.Issues)
	}
}

func TestImagePolicy_RejectsLatestTag(t *testing.T) {
	p := newImagePolicy(nil)
	r := podResource(cluster.Container{Name: "main", Image: "gcr.io/foo:latest"})
	result := p.Check(r)
	if result.Passed {
		t.Error("expected :latest tag to fail")
	}
}

func TestImagePolicy_AllowListOverride(t *testing.T) {
	p := newImagePolicy([]string{"myregistry.internal"})
	r := podResource(cluster.Container{Name: "main", Image: "gcr.io/foo:v1"})
	result := p.Check(r)
	if result.Passed {
		t.Error("expected gcr.io to fail once the allow-list is overridden to exclude it")
	}

	r2 := podResource(cluster.Container{Name: "main", Image: "myregistry.internal/foo:v1"})
	if !p.Check(r2).Passed {
		t.Error("expected the overridden allow-list entry to pass")
	}
}

func TestReplicaPolicy(t *testing.T) {
	wl := cluster.Workload{Ref: cluster.Ref{Kind: "Deployment", Name: "app"}, Replicas: 1}
	result := (&replicaPolicy{}).Check(Resource{Ref: wl.Ref, Workload: &wl})
	if result.Passed {
		t.Error("expected replicas=1 to fail replica-policy")
	}
}

func TestResourceRatioPolicy(t *testing.T) {
	r := podResource(cluster.Container{
		Name: "main",
		Requests: cluster.ResourceList{Memory: resource.MustParse("256Mi")},
		Limits:   cluster.ResourceList{Memory: resource.MustParse("256Mi")},
	})
	result := (&resourceRatioPolicy{}).Check(r)
	if result.Passed {
		t.Error("expected 1:1 ratio to fail resource-ratio (requires >= 2x)")
	}
}

func TestNetworkPolicy(t *testing.T) {
	pod := cluster.Pod{Ref: cluster.Ref{Kind: "Pod", Name: "app-1"}, Labels: map[string]string{"network-policy": "default"}}
	result := (&networkPolicy{}).Check(Resource{Ref: pod.Ref, Pod: &pod})
	if !result.Passed {
		t.Errorf("expected label present to pass, got %v", result.Issues)
	}
}
