package cluster

import (
	"context"
	"sync"
)

// Fake is an in-memory Client for tests and the demo harness. Mutating
// calls apply directly to the held Topology under a mutex rather than
// queuing anything, so callers observe their own writes on the next
// GetCurrentTopology.
type Fake struct {
	mu       sync.Mutex
	topology Topology

	// FailNext, if set, is returned (and cleared) by the next call to
	// any method, letting tests exercise the control plane's transient-
	// failure retry paths.
	FailNext error
}

// NewFake seeds a Fake with the given topology.
func NewFake(topology Topology) *Fake {
	return &Fake{topology: topology}
}

func (f *Fake) takeFailure() error {
	err := f.FailNext
	f.FailNext = nil
	return err
}

func (f *Fake) GetCurrentTopology(ctx context.Context) (Topology, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return Topology{}, err
	}
	return f.topology, nil
}

func (f *Fake) ScaleWorkload(ctx context.Context, ref Ref, replicas int) (ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return ActionResult{}, err
	}
	for _, group := range [][]Workload{f.topology.Deployments, f.topology.StatefulSets, f.topology.DaemonSets, f.topology.Jobs} {
		for i := range group {
			if group[i].Ref == ref {
				group[i].Replicas = replicas
				return ActionResult{Success: true}, nil
			}
		}
	}
	return ActionResult{Success: false, Reason: "workload not found: " + ref.String()}, nil
}

func (f *Fake) RestartPod(ctx context.Context, ref Ref) (ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return ActionResult{}, err
	}
	for i := range f.topology.Pods {
		if f.topology.Pods[i].Ref == ref {
			return ActionResult{Success: true}, nil
		}
	}
	return ActionResult{Success: false, Reason: "pod not found: " + ref.String()}, nil
}

func (f *Fake) CordonNode(ctx context.Context, name string) (ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return ActionResult{}, err
	}
	for i := range f.topology.Nodes {
		if f.topology.Nodes[i].Ref.Name == name {
			f.topology.Nodes[i].Schedulable = false
			return ActionResult{Success: true}, nil
		}
	}
	return ActionResult{Success: false, Reason: "node not found: " + name}, nil
}

func (f *Fake) EvictPod(ctx context.Context, ref Ref) (ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return ActionResult{}, err
	}
	for i, p := range f.topology.Pods {
		if p.Ref == ref {
			f.topology.Pods = append(f.topology.Pods[:i], f.topology.Pods[i+1:]...)
			return ActionResult{Success: true}, nil
		}
	}
	return ActionResult{Success: false, Reason: "pod not found: " + ref.String()}, nil
}
