package compliance

import (
	"github.com/forge-hdr/controlplane/internal/topology"
)

// resourcesFromSnapshot flattens a topology snapshot's pods and
// deployments into the Resource shape policies evaluate. Other workload
// kinds (StatefulSets, DaemonSets, Jobs) are not yet covered by any
// built-in policy; they're omitted here rather than fed to policies that
// would silently skip them via AppliesTo.
func resourcesFromSnapshot(snap *topology.Snapshot) []Resource {
	resources := make([]Resource, 0, len(snap.Pods)+len(snap.Deployments))
	for i := range snap.Pods {
		pod := snap.Pods[i]
		resources = append(resources, Resource{Ref: pod.Ref, Pod: &pod})
	}
	for i := range snap.Deployments {
		wl := snap.Deployments[i]
		resources = append(resources, Resource{Ref: wl.Ref, Workload: &wl})
	}
	return resources
}
