// Package main — cmd/forge-hdr-sim/main.go
//
// FORGE-HDR scenario simulator.
//
// Purpose: drive the control plane's Event Bus with a synthetic request
// stream against the Fake Cluster Client, without a real cluster, and
// report the resulting remediation/anomaly activity. Useful
// for validating a config change's effect on dispatch behavior before
// rolling it out.
//
// Model: each step synthesizes one request:completed event. Latency is
// drawn from a half-normal distribution around a configurable baseline,
// with an injected spike window to exercise the Anomaly Detector and
// Orchestration Engine end to end. Error status is sampled from a flat
// error rate.
//
// Output: per-step CSV to stdout (step, latency_ms, status, anomalies_so_far).
// Summary: anomaly/healing counts to stderr.
//
// Usage:
//
//	forge-hdr-sim [flags]
//	forge-hdr-sim -steps 500 -baseline-ms 100 -spike-at 250 -spike-ms 5000 -seed 1
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/forge-hdr/controlplane/internal/anomaly"
	"github.com/forge-hdr/controlplane/internal/bus"
	"github.com/forge-hdr/controlplane/internal/cluster"
	"github.com/forge-hdr/controlplane/internal/orchestration"
)

func main() {
	steps := flag.Int("steps", 500, "Number of simulated requests")
	baselineMs := flag.Float64("baseline-ms", 100, "Baseline request latency in ms")
	spikeAt := flag.Int("spike-at", -1, "Step index to inject a latency spike at, -1 disables")
	spikeMs := flag.Float64("spike-ms", 5000, "Injected spike latency in ms")
	errorRate := flag.Float64("error-rate", 0.01, "Flat probability a request fails with status 500")
	window := flag.Int("window", 100, "Anomaly detector ring window")
	threshold := flag.Float64("threshold", 0.7, "Anomaly detector sensitivity (k = threshold*10)")
	seed := flag.Int64("seed", 1, "Random seed")
	flag.Parse()

	if *baselineMs <= 0 {
		fmt.Fprintln(os.Stderr, "ERROR: baseline-ms must be > 0")
		os.Exit(1)
	}
	if *errorRate < 0 || *errorRate > 1 {
		fmt.Fprintln(os.Stderr, "ERROR: error-rate must be in [0, 1]")
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(*seed))
	log := zap.NewNop()
	b := bus.New(log)

	client := cluster.NewFake(cluster.Topology{
		Pods: []cluster.Pod{
			{Ref: cluster.Ref{Kind: "Pod", Namespace: "default", Name: "sim-pod-1"}},
		},
	})

	var anomalyCount, healingTriggered, healingCompleted, healingFailed int
	b.Subscribe(anomaly.TopicDetected, func(interface{}) { anomalyCount++ })
	b.Subscribe(orchestration.TopicHealingTriggered, func(interface{}) { healingTriggered++ })
	b.Subscribe(orchestration.TopicHealingCompleted, func(interface{}) { healingCompleted++ })
	b.Subscribe(orchestration.TopicHealingFailed, func(interface{}) { healingFailed++ })

	detector := anomaly.New(b, log, anomaly.Config{Window: *window, Threshold: *threshold})

	target := orchestration.Target{Ref: cluster.Ref{Kind: "Pod", Namespace: "default", Name: "sim-pod-1"}, CurrentReplicas: 1}
	engine := orchestration.New(client, noopBreaker{}, noopCooldown{}, b, log, orchestration.Config{
		ScaleUpFactor:       1.5,
		MaxActionsPerWindow: 3,
	})
	engine.Subscribe(
		func(map[string]interface{}) (orchestration.Target, bool) { return target, true },
		func(map[string]interface{}) (orchestration.Target, string, bool) { return orchestration.Target{}, "", false },
	)

	w := csv.NewWriter(os.Stdout)
	_ = w.Write([]string{"step", "latency_ms", "status", "anomalies_so_far"})

	for step := 0; step < *steps; step++ {
		latency := math.Abs(rng.NormFloat64())*(*baselineMs*0.2) + *baselineMs
		if step == *spikeAt {
			latency = *spikeMs
		}
		status := 200
		if rng.Float64() < *errorRate {
			status = 500
		}

		b.Publish("request:completed", map[string]interface{}{
			"id":       strconv.Itoa(step),
			"status":   status,
			"duration": int(latency),
		})
		detector.Observe("latency_ms", latency, orchestration.TriggerLatencySpike)

		_ = w.Write([]string{
			strconv.Itoa(step),
			strconv.FormatFloat(latency, 'f', 2, 64),
			strconv.Itoa(status),
			strconv.Itoa(anomalyCount),
		})
	}
	w.Flush()

	fmt.Fprintf(os.Stderr, "\n=== SIMULATION SUMMARY ===\n")
	fmt.Fprintf(os.Stderr, "Steps:              %d\n", *steps)
	fmt.Fprintf(os.Stderr, "Anomalies detected: %d\n", anomalyCount)
	fmt.Fprintf(os.Stderr, "Healing triggered:  %d\n", healingTriggered)
	fmt.Fprintf(os.Stderr, "Healing completed:  %d\n", healingCompleted)
	fmt.Fprintf(os.Stderr, "Healing failed:     %d\n", healingFailed)
}

// noopBreaker always allows, for a simulation run with no persistent
// circuit state across steps.
type noopBreaker struct{}

func (noopBreaker) Allow(string) bool { return true }
func (noopBreaker) OnSuccess(string)  {}
func (noopBreaker) OnFailure(string)  {}

// noopCooldown always allows, so the simulator can observe every
// triggered action rather than having most suppressed by rate-limiting.
type noopCooldown struct{}

func (noopCooldown) Allow(string) bool { return true }
