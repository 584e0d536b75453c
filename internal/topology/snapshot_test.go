package topology

import (
	"testing"
	"time"

	"github.com/forge-hdr/controlplane/internal/cluster"
)

func refPod(ns, name string) cluster.Ref { return cluster.Ref{Kind: "Pod", Namespace: ns, Name: name} }
func refSvc(ns, name string) cluster.Ref { return cluster.Ref{Kind: "Service", Namespace: ns, Name: name} }

func TestDeriveDependencyMap_EnvDNSMatch(t *testing.T) {
	raw := cluster.Topology{
		Pods: []cluster.Pod{
			{
				Ref: refPod("default", "frontend-1"),
				Containers: []cluster.Container{
					{Env: map[string]string{"BACKEND_URL": "http://backend.default.svc.cluster.local:8080"}},
				},
			},
		},
		Services: []cluster.Service{
			{Ref: refSvc("default", "backend")},
		},
	}

	depMap := deriveDependencyMap(raw)
	deps := depMap[refPod("default", "frontend-1").String()]
	if len(deps) != 1 || deps[0] != refSvc("default", "backend") {
		t.Errorf("expected dependency on backend service, got %v", deps)
	}
}

func TestDeriveDependencyMap_SelectorRegistersPod(t *testing.T) {
	raw := cluster.Topology{
		Pods: []cluster.Pod{
			{Ref: refPod("default", "worker-1"), Labels: map[string]string{"app": "worker"}},
		},
		Services: []cluster.Service{
			{Ref: refSvc("default", "worker-svc"), Selector: map[string]string{"app": "worker"}},
		},
	}

	depMap := deriveDependencyMap(raw)
	deps, exists := depMap[refPod("default", "worker-1").String()]
	if !exists {
		t.Fatal("expected pod to be registered in dependency map via selector match")
	}
	if len(deps) != 0 {
		t.Errorf("expected empty dependency set for selector-registered pod, got %v", deps)
	}
}

func TestIdentifyBottlenecks_Tiers(t *testing.T) {
	depMap := map[string][]cluster.Ref{}
	target := refSvc("default", "shared-db")
	for i := 0; i < 7; i++ {
		key := refPod("default", "client").String() + string(rune('a'+i))
		depMap[key] = []cluster.Ref{target}
	}

	bottlenecks := identifyBottlenecks(depMap)
	if len(bottlenecks) != 1 {
		t.Fatalf("expected 1 bottleneck, got %d", len(bottlenecks))
	}
	if bottlenecks[0].IncomingEdges != 7 || bottlenecks[0].Tier != TierHigh {
		t.Errorf("expected high tier at 7 edges, got %+v", bottlenecks[0])
	}
}

func TestIdentifyBottlenecks_CriticalTier(t *testing.T) {
	depMap := map[string][]cluster.Ref{}
	target := refSvc("default", "shared-db")
	for i := 0; i < 10; i++ {
		key := refPod("default", "client").String() + string(rune('a'+i))
		depMap[key] = []cluster.Ref{target}
	}

	bottlenecks := identifyBottlenecks(depMap)
	if len(bottlenecks) != 1 || bottlenecks[0].Tier != TierCritical {
		t.Fatalf("expected critical tier at 10 edges, got %+v", bottlenecks)
	}
}

func TestCriticalPaths_SortedByLengthDesc(t *testing.T) {
	a, b, c := refPod("default", "a"), refPod("default", "b"), refPod("default", "c")
	depMap := map[string][]cluster.Ref{
		a.String(): {b},
		b.String(): {c},
	}
	pods := []cluster.Pod{{Ref: a}, {Ref: b}, {Ref: c}, {Ref: refPod("default", "isolated")}}

	paths := criticalPaths(pods, depMap, 10)
	if len(paths) == 0 {
		t.Fatal("expected at least one path")
	}
	if len(paths[0]) != 3 {
		t.Errorf("expected longest path length 3 (a->b->c), got %d: %v", len(paths[0]), paths[0])
	}
}

func TestCriticalPaths_DepthLimit(t *testing.T) {
	a, b, c := refPod("default", "a"), refPod("default", "b"), refPod("default", "c")
	depMap := map[string][]cluster.Ref{
		a.String(): {b},
		b.String(): {c},
	}
	pods := []cluster.Pod{{Ref: a}, {Ref: b}, {Ref: c}}

	paths := criticalPaths(pods, depMap, 2)
	if len(paths[0]) > 2 {
		t.Errorf("expected path capped at depth 2, got length %d", len(paths[0]))
	}
}

func TestResilienceScore_NoPods(t *testing.T) {
	score := resilienceScore(cluster.Topology{}, map[string][]cluster.Ref{}, nil)
	if score != 100 {
		t.Errorf("expected 100 for empty topology, got %v", score)
	}
}

func TestResilienceScore_SPOFPenalty(t *testing.T) {
	raw := cluster.Topology{
		Pods: []cluster.Pod{
			{Ref: refPod("default", "db-0")},
		},
	}
	depMap := map[string][]cluster.Ref{
		refPod("default", "client").String(): {refPod("default", "db-0")},
	}
	score := resilienceScore(raw, depMap, nil)
	if score != 90 {
		t.Errorf("expected 90 (100 - 10 SPOF penalty), got %v", score)
	}
}

func TestBuildSnapshot_Timestamp(t *testing.T) {
	now := time.Now()
	snap := buildSnapshot(cluster.Topology{}, 10, now)
	if !snap.Timestamp.Equal(now) {
		t.Error("expected snapshot to carry the supplied timestamp")
	}
}
