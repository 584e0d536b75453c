package orchestration

import (
	"context"
	"testing"

	"github.com/forge-hdr/controlplane/internal/bus"
	"github.com/forge-hdr/controlplane/internal/cluster"
)

type fakeActuator struct {
	scaleCalls   []int
	restartCalls int
	evictCalls   int
	fail         bool
}

func (f *fakeActuator) ScaleWorkload(_ context.Context, _ cluster.Ref, replicas int) (cluster.ActionResult, error) {
	f.scaleCalls = append(f.scaleCalls, replicas)
	if f.fail {
		return cluster.ActionResult{Success: false, Reason: "boom"}, nil
	}
	return cluster.ActionResult{Success: true}, nil
}

func (f *fakeActuator) RestartPod(_ context.Context, _ cluster.Ref) (cluster.ActionResult, error) {
	f.restartCalls++
	return cluster.ActionResult{Success: !f.fail}, nil
}

func (f *fakeActuator) EvictPod(_ context.Context, _ cluster.Ref) (cluster.ActionResult, error) {
	f.evictCalls++
	return cluster.ActionResult{Success: !f.fail}, nil
}

func (f *fakeActuator) CordonNode(_ context.Context, _ string) (cluster.ActionResult, error) {
	return cluster.ActionResult{Success: true}, nil
}

type allowAllBreaker struct {
	failures []string
	successes []string
}

func (b *allowAllBreaker) Allow(string) bool      { return true }
func (b *allowAllBreaker) OnSuccess(target string) { b.successes = append(b.successes, target) }
func (b *allowAllBreaker) OnFailure(target string) { b.failures = append(b.failures, target) }

type denyBreaker struct{}

func (denyBreaker) Allow(string) bool  { return false }
func (denyBreaker) OnSuccess(string)   {}
func (denyBreaker) OnFailure(string)   {}

type allowAllCooldown struct{}

func (allowAllCooldown) Allow(string) bool { return true }

type denyCooldown struct{}

func (denyCooldown) Allow(string) bool { return false }

func TestEngine_LatencySpikeScalesUp(t *testing.T) {
	b := bus.New(nil)
	act := &fakeActuator{}
	e := New(act, &allowAllBreaker{}, allowAllCooldown{}, b, nil, Config{ScaleUpFactor: 2})

	var completed int
	b.Subscribe(TopicHealingCompleted, func(interface{}) { completed++ })

	ref := cluster.Ref{Kind: "Deployment", Namespace: "default", Name: "app"}
	e.Dispatch(context.Background(), TriggerLatencySpike, Target{Ref: ref, CurrentReplicas: 3})

	if len(act.scaleCalls) != 1 || act.scaleCalls[0] != 6 {
		t.Errorf("expected a scale call to 6 replicas, got %v", act.scaleCalls)
	}
	if completed != 1 {
		t.Errorf("expected one healing:completed event, got %d", completed)
	}
}

func TestEngine_HighErrorRateRestartsPod(t *testing.T) {
	b := bus.New(nil)
	act := &fakeActuator{}
	e := New(act, &allowAllBreaker{}, allowAllCooldown{}, b, nil, Config{})

	ref := cluster.Ref{Kind: "Pod", Namespace: "default", Name: "app-1"}
	e.Dispatch(context.Background(), TriggerHighErrorRate, Target{Ref: ref})

	if act.restartCalls != 1 {
		t.Errorf("expected one restart call, got %d", act.restartCalls)
	}
}

func TestEngine_ImagePolicyQuarantines(t *testing.T) {
	b := bus.New(nil)
	act := &fakeActuator{}
	e := New(act, &allowAllBreaker{}, allowAllCooldown{}, b, nil, Config{})

	ref := cluster.Ref{Kind: "Pod", Namespace: "default", Name: "bad-image"}
	e.Dispatch(context.Background(), TriggerImagePolicy, Target{Ref: ref})

	if act.evictCalls != 1 {
		t.Errorf("expected one evict call, got %d", act.evictCalls)
	}
}

func TestEngine_SubscribeDispatchesImagePolicyCriticalViolation(t *testing.T) {
	b := bus.New(nil)
	act := &fakeActuator{}
	e := New(act, &allowAllBreaker{}, allowAllCooldown{}, b, nil, Config{})

	ref := cluster.Ref{Kind: "Pod", Namespace: "default", Name: "bad-image"}
	e.Subscribe(
		func(map[string]interface{}) (Target, bool) { return Target{}, false },
		func(payload map[string]interface{}) (Target, string, bool) {
			resources, _ := payload["resources"].([]cluster.Ref)
			policies, _ := payload["policies"].([]string)
			for i, p := range policies {
				if p == "image-policy" && i < len(resources) {
					return Target{Ref: resources[i]}, TriggerImagePolicy, true
				}
			}
			return Target{}, "", false
		},
	)

	b.Publish("compliance:criticalViolations", map[string]interface{}{
		"resources": []cluster.Ref{ref},
		"policies":  []string{"image-policy"},
	})

	if act.evictCalls != 1 {
		t.Errorf("expected compliance:criticalViolations to dispatch one quarantine, got %d evict calls", act.evictCalls)
	}
}

func TestEngine_SubscribeIgnoresNonImagePolicyViolation(t *testing.T) {
	b := bus.New(nil)
	act := &fakeActuator{}
	e := New(act, &allowAllBreaker{}, allowAllCooldown{}, b, nil, Config{})

	ref := cluster.Ref{Kind: "Pod", Namespace: "default", Name: "under-provisioned"}
	e.Subscribe(
		func(map[string]interface{}) (Target, bool) { return Target{}, false },
		func(payload map[string]interface{}) (Target, string, bool) {
			resources, _ := payload["resources"].([]cluster.Ref)
			policies, _ := payload["policies"].([]string)
			for i, p := range policies {
				if p == "image-policy" && i < len(resources) {
					return Target{Ref: resources[i]}, TriggerImagePolicy, true
				}
			}
			return Target{}, "", false
		},
	)

	b.Publish("compliance:criticalViolations", map[string]interface{}{
		"resources": []cluster.Ref{ref},
		"policies":  []string{"resource-limits"},
	})

	if act.evictCalls != 0 {
		t.Errorf("expected no dispatch for a non-image-policy violation, got %d evict calls", act.evictCalls)
	}
}

func TestEngine_FailedActionPublishesHealingFailedAndTripsBreaker(t *testing.T) {
	b := bus.New(nil)
	act := &fakeActuator{fail: true}
	breaker := &allowAllBreaker{}
	e := New(act, breaker, allowAllCooldown{}, b, nil, Config{})

	var failed int
	b.Subscribe(TopicHealingFailed, func(interface{}) { failed++ })

	ref := cluster.Ref{Kind: "Pod", Namespace: "default", Name: "app-1"}
	e.Dispatch(context.Background(), TriggerHighErrorRate, Target{Ref: ref})

	if failed != 1 {
		t.Errorf("expected one healing:failed event, got %d", failed)
	}
	if len(breaker.failures) != 1 {
		t.Errorf("expected breaker.OnFailure to be called once, got %d", len(breaker.failures))
	}
}

func TestEngine_BreakerDenyStopsDispatch(t *testing.T) {
	b := bus.New(nil)
	act := &fakeActuator{}
	e := New(act, denyBreaker{}, allowAllCooldown{}, b, nil, Config{})

	ref := cluster.Ref{Kind: "Pod", Namespace: "default", Name: "app-1"}
	e.Dispatch(context.Background(), TriggerHighErrorRate, Target{Ref: ref})

	if act.restartCalls != 0 {
		t.Errorf("expected no restart call when the breaker denies, got %d", act.restartCalls)
	}
}

func TestEngine_CooldownDenyStopsDispatch(t *testing.T) {
	b := bus.New(nil)
	act := &fakeActuator{}
	e := New(act, &allowAllBreaker{}, denyCooldown{}, b, nil, Config{})

	ref := cluster.Ref{Kind: "Pod", Namespace: "default", Name: "app-1"}
	e.Dispatch(context.Background(), TriggerHighErrorRate, Target{Ref: ref})

	if act.restartCalls != 0 {
		t.Errorf("expected no restart call when the cooldown denies, got %d", act.restartCalls)
	}
}

func TestEngine_UnknownTriggerNoOp(t *testing.T) {
	b := bus.New(nil)
	act := &fakeActuator{}
	e := New(act, &allowAllBreaker{}, allowAllCooldown{}, b, nil, Config{})

	ref := cluster.Ref{Kind: "Pod", Namespace: "default", Name: "app-1"}
	e.Dispatch(context.Background(), "UNKNOWN_TRIGGER", Target{Ref: ref})

	if act.restartCalls != 0 || act.evictCalls != 0 || len(act.scaleCalls) != 0 {
		t.Error("expected no actuator call for an unrecognized trigger")
	}
}

func TestEngine_ActionCountTracking(t *testing.T) {
	b := bus.New(nil)
	act := &fakeActuator{}
	e := New(act, &allowAllBreaker{}, allowAllCooldown{}, b, nil, Config{})

	ref := cluster.Ref{Kind: "Pod", Namespace: "default", Name: "app-1"}
	e.Dispatch(context.Background(), TriggerHighErrorRate, Target{Ref: ref})
	e.Dispatch(context.Background(), TriggerHighErrorRate, Target{Ref: ref})

	if got := e.ActionCount("restart_pod"); got != 2 {
		t.Errorf("expected action count 2, got %d", got)
	}

	e.ResetWindow()
	if got := e.ActionCount("restart_pod"); got != 0 {
		t.Errorf("expected action count reset to 0, got %d", got)
	}
}
