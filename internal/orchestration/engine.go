// Package orchestration implements the Orchestration Engine (C10): a
// dispatch loop that reacts to anomaly and compliance events by planning
// and executing a remediation action from a static trigger→action table,
// guarded by a circuit breaker per (actionType, target) and rate-limited
// by a per-target cooldown.
//
// spec.md's capability-interface split (Actuator for cluster mutations,
// Breaker for guarded calls) breaks what would otherwise be a cyclic
// dependency between this package, internal/cluster, and internal/breaker:
// the engine only ever sees these two narrow interfaces, never the
// concrete Cluster Client or Circuit Breaker Registry types.
package orchestration

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/forge-hdr/controlplane/internal/bus"
	"github.com/forge-hdr/controlplane/internal/cluster"
	"github.com/forge-hdr/controlplane/internal/logging"
)

const (
	TopicHealingTriggered = "healing:triggered"
	TopicHealingCompleted = "healing:completed"
	TopicHealingFailed    = "healing:failed"

	TriggerLatencySpike    = "LATENCY_SPIKE"
	TriggerHighErrorRate   = "HIGH_ERROR_RATE"
	TriggerCPUSaturation   = "CPU_SATURATION"
	TriggerMemoryPressure  = "MEMORY_PRESSURE"
	TriggerImagePolicy     = "image-policy"
)

// Actuator is the subset of the Cluster Client the engine needs to carry
// out a remediation action.
type Actuator interface {
	ScaleWorkload(ctx context.Context, ref cluster.Ref, replicas int) (cluster.ActionResult, error)
	RestartPod(ctx context.Context, ref cluster.Ref) (cluster.ActionResult, error)
	EvictPod(ctx context.Context, ref cluster.Ref) (cluster.ActionResult, error)
	CordonNode(ctx context.Context, name string) (cluster.ActionResult, error)
}

// Breaker is the subset of the Circuit Breaker Registry the engine needs
// to guard a dispatch.
type Breaker interface {
	Allow(target string) bool
	OnSuccess(target string)
	OnFailure(target string)
}

// CooldownLimiter is the subset of the Budget package's cooldown limiter
// the engine needs to rate-limit actions per target.
type CooldownLimiter interface {
	Allow(target string) bool
}

// Target describes the resource a remediation action applies to, along
// with the current replica count needed to compute a scale-up.
type Target struct {
	Ref             cluster.Ref
	CurrentReplicas int
}

// Config bounds the engine's dispatch behavior.
type Config struct {
	ScaleUpFactor       float64
	MaxActionsPerWindow int
}

// Engine is the Orchestration Engine (C10).
type Engine struct {
	actuator Actuator
	breaker  Breaker
	cooldown CooldownLimiter
	bus      *bus.Bus
	log      *zap.Logger
	cfg      Config

	mu           sync.Mutex
	actionCounts map[string]int // actionType -> count in current window, reset externally
}

// New creates an Engine wired to the given capability interfaces.
func New(actuator Actuator, breaker Breaker, cooldown CooldownLimiter, b *bus.Bus, log *zap.Logger, cfg Config) *Engine {
	if cfg.ScaleUpFactor <= 0 {
		cfg.ScaleUpFactor = 1.5
	}
	if cfg.MaxActionsPerWindow < 1 {
		cfg.MaxActionsPerWindow = 3
	}
	return &Engine{
		actuator:     actuator,
		breaker:      breaker,
		cooldown:     cooldown,
		bus:          b,
		log:          log,
		cfg:          cfg,
		actionCounts: make(map[string]int),
	}
}

// Subscribe wires the engine to anomaly:detected and
// compliance:criticalViolations. resolveAnomalyTarget and
// resolveViolationTarget resolve which resource (and, for a compliance
// violation, which trigger) an event concerns; the bus payload alone (a
// map[string]interface{}) does not carry resolved cluster.Ref values, so
// callers supply the lookup.
func (e *Engine) Subscribe(
	resolveAnomalyTarget func(payload map[string]interface{}) (Target, bool),
	resolveViolationTarget func(payload map[string]interface{}) (Target, string, bool),
) {
	e.bus.Subscribe("anomaly:detected", func(payload interface{}) {
		event, ok := payload.(map[string]interface{})
		if !ok {
			return
		}
		trigger, _ := event["type"].(string)
		target, ok := resolveAnomalyTarget(event)
		if !ok {
			return
		}
		e.Dispatch(context.Background(), trigger, target)
	})

	e.bus.Subscribe("compliance:criticalViolations", func(payload interface{}) {
		event, ok := payload.(map[string]interface{})
		if !ok {
			return
		}
		target, trigger, ok := resolveViolationTarget(event)
		if !ok {
			return
		}
		e.Dispatch(context.Background(), trigger, target)
	})
}

// Dispatch plans and executes the static trigger→action mapping for
// target, guarded by a (actionType, target) circuit breaker and a
// per-target cooldown. Returns immediately, without dispatching, if the
// breaker denies the call or the cooldown window hasn't elapsed.
func (e *Engine) Dispatch(ctx context.Context, trigger string, target Target) {
	actionType, ok := actionFor(trigger)
	if !ok {
		return
	}
	breakerKey := actionType + ":" + target.Ref.String()

	if !e.cooldown.Allow(target.Ref.String()) {
		return
	}
	if !e.breaker.Allow(breakerKey) {
		return
	}

	e.bus.Publish(TopicHealingTriggered, map[string]interface{}{
		"type":   actionType,
		"target": target.Ref.String(),
	})

	result, err := e.execute(ctx, actionType, target)
	if err != nil || !result.Success {
		e.breaker.OnFailure(breakerKey)
		reason := ""
		if err != nil {
			reason = err.Error()
		} else {
			reason = result.Reason
		}
		if e.log != nil {
			e.log.Warn("orchestration: healing action failed",
				logging.New().Component("orchestration").Operation(actionType).Resource(target.Ref.Kind, target.Ref.Name).ToZapFields()...)
		}
		e.bus.Publish(TopicHealingFailed, map[string]interface{}{
			"type":   actionType,
			"target": target.Ref.String(),
			"reason": reason,
		})
		return
	}

	e.breaker.OnSuccess(breakerKey)
	e.mu.Lock()
	e.actionCounts[actionType]++
	e.mu.Unlock()
	e.bus.Publish(TopicHealingCompleted, map[string]interface{}{
		"type":   actionType,
		"target": target.Ref.String(),
	})
}

func (e *Engine) execute(ctx context.Context, actionType string, target Target) (cluster.ActionResult, error) {
	switch actionType {
	case "scale_up":
		newReplicas := int(float64(target.CurrentReplicas) * e.cfg.ScaleUpFactor)
		if newReplicas <= target.CurrentReplicas {
			newReplicas = target.CurrentReplicas + 1
		}
		return e.actuator.ScaleWorkload(ctx, target.Ref, newReplicas)
	case "restart_pod":
		return e.actuator.RestartPod(ctx, target.Ref)
	case "quarantine":
		result, err := e.actuator.EvictPod(ctx, target.Ref)
		return result, err
	default:
		return cluster.ActionResult{Success: false, Reason: "unknown action type"}, nil
	}
}

// actionFor maps a trigger type to a static action type per spec.md §4.9.
func actionFor(trigger string) (string, bool) {
	switch trigger {
	case TriggerLatencySpike, TriggerCPUSaturation, TriggerMemoryPressure:
		return "scale_up", true
	case TriggerHighErrorRate:
		return "restart_pod", true
	case TriggerImagePolicy:
		return "quarantine", true
	default:
		return "", false
	}
}

// ActionCount returns how many times actionType has been successfully
// dispatched in the current (externally reset) window.
func (e *Engine) ActionCount(actionType string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.actionCounts[actionType]
}

// ResetWindow clears all per-action-type counters, starting a new window.
// Nothing in the engine calls it; the caller decides when a window ends.
func (e *Engine) ResetWindow() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.actionCounts = make(map[string]int)
}
