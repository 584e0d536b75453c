package cluster

import "context"

// ActionResult is the outcome of a mutating Client call. Exactly one of
// Success or Reason is meaningful: Success=true means Reason is empty.
type ActionResult struct {
	Success bool
	Reason  string
}

// Client is the abstract, read-only-plus-mutate view of a cluster every
// other component is built against. It is the only externally blocking
// I/O boundary in the control plane (§5) — every method must honor ctx's
// deadline and return promptly on cancellation.
type Client interface {
	// GetCurrentTopology fetches a fresh raw snapshot. Called once per
	// Topology Analyzer tick; transient failures are retried by the
	// caller with backoff, not by the implementation.
	GetCurrentTopology(ctx context.Context) (Topology, error)

	// ScaleWorkload sets ref's desired replica count.
	ScaleWorkload(ctx context.Context, ref Ref, replicas int) (ActionResult, error)

	// RestartPod deletes ref, relying on its owning workload's
	// controller to recreate it.
	RestartPod(ctx context.Context, ref Ref) (ActionResult, error)

	// CordonNode marks name unschedulable.
	CordonNode(ctx context.Context, name string) (ActionResult, error)

	// EvictPod evicts ref via the cluster's eviction API, honoring any
	// configured disruption budget.
	EvictPod(ctx context.Context, ref Ref) (ActionResult, error)
}
