// Package loadbalancer implements the Load Balancer (C6): per-namespace
// pod tracking fed by pod:created/pod:deleted events, with a weighted
// random selection policy biased by an EWMA-smoothed per-pod score.
//
// Pod tracking follows the operator package's MemRegistry idiom (a
// RWMutex-guarded map of pointer-valued entries, one per tracked key);
// score smoothing follows the escalation package's Accumulator EWMA
// formula, inlined here since escalation itself has no cluster-resource
// concept.
package loadbalancer

import (
	"math/rand"
	"sync"

	"github.com/forge-hdr/controlplane/internal/bus"
	"github.com/forge-hdr/controlplane/internal/cluster"
)

const (
	TopicPodCreated         = "pod:created"
	TopicPodDeleted         = "pod:deleted"
	TopicReplacementRequired = "replacement_required"

	// defaultScoreAlpha matches escalation.Accumulator's default smoothing
	// factor: a half-life of roughly 3 updates.
	defaultScoreAlpha = 0.8

	// maxConsecutiveFailures is the three-strike threshold from spec.md's
	// invariant 7.
	maxConsecutiveFailures = 3
)

type podEntry struct {
	ref      cluster.Ref
	score    float64
	draining bool

	consecutiveFailures int
}

// Balancer is the Load Balancer (C6).
type Balancer struct {
	bus   *bus.Bus
	alpha float64

	mu   sync.RWMutex
	pods map[string]map[string]*podEntry // namespace -> pod key -> entry
}

// New creates an empty Balancer wired to b's pod:created/pod:deleted
// topics.
func New(b *bus.Bus) *Balancer {
	lb := &Balancer{
		bus:   b,
		alpha: defaultScoreAlpha,
		pods:  make(map[string]map[string]*podEntry),
	}
	lb.subscribe()
	return lb
}

func (lb *Balancer) subscribe() {
	lb.bus.Subscribe(TopicPodCreated, func(payload interface{}) {
		if event, ok := payload.(map[string]interface{}); ok {
			if ref, ok := event["ref"].(cluster.Ref); ok {
				lb.trackPod(ref)
			}
		}
	})
	lb.bus.Subscribe(TopicPodDeleted, func(payload interface{}) {
		if event, ok := payload.(map[string]interface{}); ok {
			if ref, ok := event["ref"].(cluster.Ref); ok {
				lb.untrackPod(ref)
			}
		}
	})
}

func (lb *Balancer) trackPod(ref cluster.Ref) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	ns, ok := lb.pods[ref.Namespace]
	if !ok {
		ns = make(map[string]*podEntry)
		lb.pods[ref.Namespace] = ns
	}
	if _, exists := ns[ref.Name]; !exists {
		ns[ref.Name] = &podEntry{ref: ref, score: 1}
	}
}

func (lb *Balancer) untrackPod(ref cluster.Ref) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if ns, ok := lb.pods[ref.Namespace]; ok {
		delete(ns, ref.Name)
	}
}

// SelectPod returns one non-draining pod from namespace via weighted
// random selection biased by score, or nil if the namespace has no
// eligible pods. Selection is O(n) over the namespace's pod list.
func (lb *Balancer) SelectPod(namespace string) *cluster.Ref {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	ns := lb.pods[namespace]
	if len(ns) == 0 {
		return nil
	}

	var total float64
	eligible := make([]*podEntry, 0, len(ns))
	for _, p := range ns {
		if p.draining {
			continue
		}
		eligible = append(eligible, p)
		total += p.score
	}
	if len(eligible) == 0 || total <= 0 {
		return nil
	}

	pick := rand.Float64() * total
	var cumulative float64
	for _, p := range eligible {
		cumulative += p.score
		if pick < cumulative {
			ref := p.ref
			return &ref
		}
	}
	ref := eligible[len(eligible)-1].ref
	return &ref
}

// UpdateScore applies one EWMA step to ref's score:
// score' = alpha*score + (1-alpha)*value.
func (lb *Balancer) UpdateScore(ref cluster.Ref, value float64) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if p := lb.entry(ref); p != nil {
		p.score = lb.alpha*p.score + (1-lb.alpha)*value
	}
}

// SetDraining marks ref as draining (excluded from SelectPod) or not.
func (lb *Balancer) SetDraining(ref cluster.Ref, draining bool) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if p := lb.entry(ref); p != nil {
		p.draining = draining
	}
}

// RecordHealthCheck records a health check outcome for ref. A success
// resets the consecutive-failure counter; a failure increments it and,
// on reaching maxConsecutiveFailures, publishes replacement_required
// exactly once with the post-increment failure count, per spec.md
// invariant 7.
func (lb *Balancer) RecordHealthCheck(ref cluster.Ref, success bool) {
	lb.mu.Lock()
	p := lb.entry(ref)
	if p == nil {
		lb.mu.Unlock()
		return
	}
	if success {
		p.consecutiveFailures = 0
		lb.mu.Unlock()
		return
	}
	p.consecutiveFailures++
	fireReplacement := p.consecutiveFailures == maxConsecutiveFailures
	failureCount := p.consecutiveFailures
	lb.mu.Unlock()

	if fireReplacement {
		lb.bus.Publish(TopicReplacementRequired, map[string]interface{}{
			"key":          ref.String(),
			"failureCount": failureCount,
		})
	}
}

// TrackedPodCount returns the total number of pods currently tracked
// across every namespace, for the Metrics Exporter's activePods gauge.
func (lb *Balancer) TrackedPodCount() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	n := 0
	for _, ns := range lb.pods {
		n += len(ns)
	}
	return n
}

// entry returns ref's podEntry, registering it on first reference. Caller
// must hold lb.mu.
func (lb *Balancer) entry(ref cluster.Ref) *podEntry {
	ns, ok := lb.pods[ref.Namespace]
	if !ok {
		ns = make(map[string]*podEntry)
		lb.pods[ref.Namespace] = ns
	}
	p, ok := ns[ref.Name]
	if !ok {
		p = &podEntry{ref: ref, score: 1}
		ns[ref.Name] = p
	}
	return p
}
