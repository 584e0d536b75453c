package cluster

import (
	"context"
	"errors"
	"testing"
)

func sampleTopology() Topology {
	return Topology{
		Nodes: []Node{{Ref: Ref{Kind: "Node", Name: "node-1"}, Schedulable: true}},
		Pods: []Pod{
			{Ref: Ref{Kind: "Pod", Namespace: "default", Name: "app-1"}},
		},
		Deployments: []Workload{
			{Ref: Ref{Kind: "Deployment", Namespace: "default", Name: "app"}, Replicas: 2},
		},
	}
}

func TestFake_GetCurrentTopology(t *testing.T) {
	f := NewFake(sampleTopology())
	got, err := f.GetCurrentTopology(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Pods) != 1 || len(got.Deployments) != 1 {
		t.Errorf("unexpected topology: %+v", got)
	}
}

func TestFake_ScaleWorkload(t *testing.T) {
	f := NewFake(sampleTopology())
	ref := Ref{Kind: "Deployment", Namespace: "default", Name: "app"}

	result, err := f.ScaleWorkload(context.Background(), ref, 5)
	if err != nil || !result.Success {
		t.Fatalf("expected success, got %+v, err=%v", result, err)
	}

	got, _ := f.GetCurrentTopology(context.Background())
	if got.Deployments[0].Replicas != 5 {
		t.Errorf("expected replicas=5, got %d", got.Deployments[0].Replicas)
	}
}

func TestFake_ScaleWorkload_NotFound(t *testing.T) {
	f := NewFake(sampleTopology())
	result, err := f.ScaleWorkload(context.Background(), Ref{Kind: "Deployment", Name: "missing"}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Error("expected failure for unknown workload")
	}
}

func TestFake_EvictPod(t *testing.T) {
	f := NewFake(sampleTopology())
	ref := Ref{Kind: "Pod", Namespace: "default", Name: "app-1"}

	result, err := f.EvictPod(context.Background(), ref)
	if err != nil || !result.Success {
		t.Fatalf("expected success, got %+v, err=%v", result, err)
	}

	got, _ := f.GetCurrentTopology(context.Background())
	if len(got.Pods) != 0 {
		t.Errorf("expected pod evicted, got %d pods remaining", len(got.Pods))
	}
}

func TestFake_CordonNode(t *testing.T) {
	f := NewFake(sampleTopology())
	result, err := f.CordonNode(context.Background(), "node-1")
	if err != nil || !result.Success {
		t.Fatalf("expected success, got %+v, err=%v", result, err)
	}

	got, _ := f.GetCurrentTopology(context.Background())
	if got.Nodes[0].Schedulable {
		t.Error("expected node-1 to be unschedulable after cordon")
	}
}

func TestFake_FailNext(t *testing.T) {
	f := NewFake(sampleTopology())
	f.FailNext = errors.New("boom")

	_, err := f.GetCurrentTopology(context.Background())
	if err == nil {
		t.Fatal("expected injected failure")
	}

	// FailNext is consumed once.
	_, err = f.GetCurrentTopology(context.Background())
	if err != nil {
		t.Errorf("expected FailNext to be cleared after first use, got %v", err)
	}
}
