// Package topology implements the Topology Analyzer (C3): it fetches a
// raw cluster snapshot from the Cluster Client, derives a dependency map,
// critical paths, and bottlenecks, and computes an overall resilience
// score. Resource quantities are carried through as the client supplied
// them; no CPU-core or GiB normalization is performed.
package topology

import (
	"regexp"
	"sort"
	"time"

	"github.com/forge-hdr/controlplane/internal/cluster"
)

// BottleneckTier classifies a bottleneck by its incoming-edge count.
type BottleneckTier string

const (
	TierHigh     BottleneckTier = "high"
	TierCritical BottleneckTier = "critical"
)

// Bottleneck is a resource with many incoming dependency edges.
type Bottleneck struct {
	Ref           cluster.Ref
	IncomingEdges int
	Tier          BottleneckTier
}

// Snapshot is the immutable output of one analysis tick. Once published,
// callers must not mutate any field or the slices/maps it references.
type Snapshot struct {
	Timestamp time.Time

	Nodes        []cluster.Node
	Pods         []cluster.Pod
	Services     []cluster.Service
	Deployments  []cluster.Workload
	StatefulSets []cluster.Workload
	DaemonSets   []cluster.Workload
	Jobs         []cluster.Workload

	// DependencyMap maps a resource's Ref.String() to the Refs it
	// depends on.
	DependencyMap map[string][]cluster.Ref

	// CriticalPaths is sorted by length descending.
	CriticalPaths [][]cluster.Ref

	Bottlenecks []Bottleneck

	ResilienceScore float64
}

var svcDNSPattern = regexp.MustCompile(`([a-zA-Z0-9-]+)\.([a-zA-Z0-9-]+)\.svc\.cluster\.local`)

// buildSnapshot derives the full analysis from a raw topology. depthLimit
// bounds critical-path DFS depth.
func buildSnapshot(raw cluster.Topology, depthLimit int, now time.Time) Snapshot {
	depMap := deriveDependencyMap(raw)
	paths := criticalPaths(raw.Pods, depMap, depthLimit)
	bottlenecks := identifyBottlenecks(depMap)
	score := resilienceScore(raw, depMap, bottlenecks)

	return Snapshot{
		Timestamp:       now,
		Nodes:           raw.Nodes,
		Pods:            raw.Pods,
		Services:        raw.Services,
		Deployments:     raw.Deployments,
		StatefulSets:    raw.StatefulSets,
		DaemonSets:      raw.DaemonSets,
		Jobs:            raw.Jobs,
		DependencyMap:   depMap,
		CriticalPaths:   paths,
		Bottlenecks:     bottlenecks,
		ResilienceScore: score,
	}
}

// deriveDependencyMap scans container env values for `*.svc.cluster.local`
// DNS names and matches service selectors against pod labels.
func deriveDependencyMap(raw cluster.Topology) map[string][]cluster.Ref {
	depMap := make(map[string][]cluster.Ref)

	serviceByName := make(map[string]cluster.Ref)
	for _, svc := range raw.Services {
		serviceByName[svc.Ref.Name] = svc.Ref
	}

	for _, pod := range raw.Pods {
		key := pod.Ref.String()
		for _, c := range pod.Containers {
			for _, v := range c.Env {
				for _, match := range svcDNSPattern.FindAllStringSubmatch(v, -1) {
					svcName := match[1]
					if ref, ok := serviceByName[svcName]; ok {
						depMap[key] = appendUnique(depMap[key], ref)
					}
				}
			}
		}
	}

	for _, svc := range raw.Services {
		if len(svc.Selector) == 0 {
			continue
		}
		for _, pod := range raw.Pods {
			if matchesSelector(pod.Labels, svc.Selector) {
				key := pod.Ref.String()
				if _, exists := depMap[key]; !exists {
					depMap[key] = []cluster.Ref{}
				}
			}
		}
	}

	return depMap
}

func matchesSelector(labels, selector map[string]string) bool {
	if len(selector) == 0 {
		return false
	}
	for k, v := range selector {
		if labels[k] != v {
			return false
		}
	}
	return true
}

func appendUnique(refs []cluster.Ref, ref cluster.Ref) []cluster.Ref {
	for _, r := range refs {
		if r == ref {
			return refs
		}
	}
	return append(refs, ref)
}

// criticalPaths runs a depth-capped DFS from each unvisited pod, avoiding
// revisits within a single path, and returns the resulting paths sorted
// by length descending.
func criticalPaths(pods []cluster.Pod, depMap map[string][]cluster.Ref, depthLimit int) [][]cluster.Ref {
	if depthLimit < 1 {
		depthLimit = 1
	}
	globalVisited := make(map[string]bool)
	var paths [][]cluster.Ref

	for _, pod := range pods {
		key := pod.Ref.String()
		if globalVisited[key] {
			continue
		}
		path := dfsLongestPath(pod.Ref, depMap, depthLimit, map[string]bool{})
		for _, r := range path {
			globalVisited[r.String()] = true
		}
		if len(path) > 1 {
			paths = append(paths, path)
		}
	}

	sort.SliceStable(paths, func(i, j int) bool {
		return len(paths[i]) > len(paths[j])
	})
	return paths
}

func dfsLongestPath(start cluster.Ref, depMap map[string][]cluster.Ref, remainingDepth int, visited map[string]bool) []cluster.Ref {
	visited[start.String()] = true
	best := []cluster.Ref{start}
	if remainingDepth <= 1 {
		return best
	}
	for _, dep := range depMap[start.String()] {
		if visited[dep.String()] {
			continue
		}
		branch := cloneVisited(visited)
		candidate := append([]cluster.Ref{start}, dfsLongestPath(dep, depMap, remainingDepth-1, branch)...)
		if len(candidate) > len(best) {
			best = candidate
		}
	}
	return best
}

func cloneVisited(v map[string]bool) map[string]bool {
	out := make(map[string]bool, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// identifyBottlenecks counts incoming dependency edges per resource and
// tiers any with >=5.
func identifyBottlenecks(depMap map[string][]cluster.Ref) []Bottleneck {
	incoming := make(map[string]int)
	refByKey := make(map[string]cluster.Ref)
	for _, deps := range depMap {
		for _, dep := range deps {
			incoming[dep.String()]++
			refByKey[dep.String()] = dep
		}
	}

	var bottlenecks []Bottleneck
	for key, count := range incoming {
		if count < 5 {
			continue
		}
		tier := TierHigh
		if count >= 10 {
			tier = TierCritical
		}
		bottlenecks = append(bottlenecks, Bottleneck{
			Ref:           refByKey[key],
			IncomingEdges: count,
			Tier:          tier,
		})
	}
	sort.SliceStable(bottlenecks, func(i, j int) bool {
		return bottlenecks[i].IncomingEdges > bottlenecks[j].IncomingEdges
	})
	return bottlenecks
}

var replicaSuffix = regexp.MustCompile(`-[a-z0-9]{5,10}(-[a-z0-9]{5})?$`)

func baseName(name string) string {
	return replicaSuffix.ReplaceAllString(name, "")
}

// resilienceScore starts at 100, subtracts 10 per single-point-of-failure
// (a non-redundant pod with at least one dependent) and
// min(bottleneckCount*5, 30), then adds 10*redundancy, clamped to [0,100].
func resilienceScore(raw cluster.Topology, depMap map[string][]cluster.Ref, bottlenecks []Bottleneck) float64 {
	if len(raw.Pods) == 0 {
		return 100
	}

	groupCounts := make(map[string]int)
	for _, pod := range raw.Pods {
		groupCounts[pod.Ref.Namespace+"/"+baseName(pod.Ref.Name)]++
	}

	incoming := make(map[string]bool)
	for _, deps := range depMap {
		for _, d := range deps {
			incoming[d.String()] = true
		}
	}

	var spofCount int
	var replicatedPods int
	for _, pod := range raw.Pods {
		group := groupCounts[pod.Ref.Namespace+"/"+baseName(pod.Ref.Name)]
		if group > 1 {
			replicatedPods++
		} else if incoming[pod.Ref.String()] {
			spofCount++
		}
	}

	redundancy := float64(replicatedPods) / float64(len(raw.Pods))
	score := 100.0
	score -= 10 * float64(spofCount)
	bottleneckPenalty := float64(len(bottlenecks)) * 5
	if bottleneckPenalty > 30 {
		bottleneckPenalty = 30
	}
	score -= bottleneckPenalty
	score += 10 * redundancy

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}
