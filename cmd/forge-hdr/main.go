// Package main — cmd/forge-hdr/main.go
//
// FORGE-HDR control-plane entrypoint.
//
// Startup sequence (spec.md §4.12, §9):
//  1. Load and validate config from /etc/forge-hdr/config.yaml.
//  2. Initialise structured logger (zap).
//  3. Construct the Event Bus (C1) and Cluster Client (C2).
//  4. Construct every remaining component and hand them to the
//     Supervisor in the fixed order C1→C12→C5→C7→C9→C8→C4→C3→C6→C10→C11.
//  5. Supervisor.Start: bring up every component, rolling back on the
//     first failure.
//  6. Register SIGHUP for config hot-reload.
//  7. Block on SIGINT/SIGTERM for graceful shutdown.
//
// Shutdown sequence (on SIGINT/SIGTERM):
//  1. Cancel root context (propagates to every component's Start ctx).
//  2. Supervisor.Stop: stop every started component in reverse order.
//  3. Flush logger.
//  4. Exit 0.
//
// On any component start failure: log, roll back, exit 1.
// On config validation failure: exit 1 immediately.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/forge-hdr/controlplane/internal/anomaly"
	"github.com/forge-hdr/controlplane/internal/breaker"
	"github.com/forge-hdr/controlplane/internal/budget"
	"github.com/forge-hdr/controlplane/internal/bus"
	"github.com/forge-hdr/controlplane/internal/cluster"
	"github.com/forge-hdr/controlplane/internal/compliance"
	"github.com/forge-hdr/controlplane/internal/config"
	"github.com/forge-hdr/controlplane/internal/loadbalancer"
	"github.com/forge-hdr/controlplane/internal/metrics"
	"github.com/forge-hdr/controlplane/internal/orchestration"
	"github.com/forge-hdr/controlplane/internal/perf"
	"github.com/forge-hdr/controlplane/internal/policyopt"
	"github.com/forge-hdr/controlplane/internal/supervisor"
	"github.com/forge-hdr/controlplane/internal/topology"
)

func main() {
	configPath := flag.String("config", "/etc/forge-hdr/config.yaml", "Path to config.yaml")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("forge-hdr %s (commit=%s built=%s)\n",
			config.Version, config.GitCommit, config.BuildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: config load failed: %v\n", err)
		os.Exit(1)
	}

	log, err := buildLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("FORGE-HDR starting",
		zap.String("version", config.Version),
		zap.String("commit", config.GitCommit),
		zap.String("built", config.BuildTime),
		zap.String("node_id", cfg.NodeID),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.New(log)
	client := cluster.NewFake(cluster.Topology{})

	sup := build(b, client, cfg, log)

	if err := sup.Start(ctx); err != nil {
		log.Fatal("FATAL: a component failed to start, rolled back", zap.Error(err))
	}
	log.Info("all components started")

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			log.Info("SIGHUP received — reloading config...")
			newCfg, err := config.Load(*configPath)
			if err != nil {
				log.Error("config hot-reload failed — retaining old config", zap.Error(err))
				continue
			}
			log.Info("config hot-reload successful",
				zap.Float64("new_confidence_threshold", newCfg.ConfidenceThreshold),
				zap.Float64("new_anomaly_threshold", newCfg.Anomaly.Threshold))
			// The reloaded config is validated and logged only; no running
			// component is reconfigured from it, so changes take effect on
			// restart.
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", zap.String("signal", sig.String()))

	cancel()

	shutdownTimer := time.NewTimer(5 * time.Second)
	defer shutdownTimer.Stop()
	done := make(chan struct{})
	go func() {
		sup.Stop(context.Background())
		close(done)
	}()
	select {
	case <-shutdownTimer.C:
		log.Warn("shutdown drain timeout — forcing exit")
	case <-done:
		log.Info("all components stopped")
	}

	log.Info("FORGE-HDR shutdown complete")
}

// build constructs every component and wires it into a Supervisor in the
// start order C1→C12→C5→C7→C9→C8→C4→C3→C6→C10→C11. The Event Bus (C1) and
// Cluster Client (C2) are constructed by the caller and passed in, since
// every other component depends on one or both.
func build(b *bus.Bus, client cluster.Client, cfg *config.Config, log *zap.Logger) *supervisor.Supervisor {
	breakerRegistry := breaker.New(breaker.Config{
		FailureThreshold: cfg.Circuit.FailureThreshold,
		BaseBackoff:      cfg.Circuit.BaseBackoff,
		MaxBackoff:       cfg.Circuit.MaxBackoff,
	})

	ledger := budget.NewLedger(b, cfg.Budget.Monthly, cfg.Budget.Daily,
		cfg.Budget.AlertThreshold, cfg.Budget.HardLimit, cfg.HistoryRetention)
	cooldown := budget.NewCooldownLimiter(cfg.Healing.Cooldown)

	lb := loadbalancer.New(b)

	detector := anomaly.New(b, log, anomaly.Config{
		Window:                  cfg.Anomaly.Window,
		Threshold:               cfg.Anomaly.Threshold,
		CompositeEntropyWeight:  cfg.Anomaly.CompositeEntropyWeight,
		CompositeScoreThreshold: cfg.Anomaly.CompositeScoreThreshold,
	})

	profiler := perf.New(perf.Config{})

	analyzer := topology.New(client, b, log, topology.Config{
		Interval:      cfg.AnalysisInterval,
		DepthLimit:    cfg.DepthLimit,
		ClientTimeout: cfg.ClusterClientTimeout,
		MaxRetries:    cfg.MaxRetries,
	})

	registry := compliance.NewRegistry()
	for _, p := range compliance.DefaultPolicies(cfg.Compliance.ImageAllowList) {
		registry.Register(p)
	}
	checker := compliance.New(registry, analyzer, b, log, compliance.Config{
		Interval:         cfg.CheckInterval,
		PolicyTimeout:    cfg.PolicyCheckTimeout,
		HistoryRetention: cfg.HistoryRetention,
	})

	engine := orchestration.New(client, breakerRegistry, cooldown, b, log, orchestration.Config{
		ScaleUpFactor:       cfg.Healing.ScaleUpFactor,
		MaxActionsPerWindow: cfg.Healing.MaxActionsPerWindow,
	})
	engine.Subscribe(
		func(payload map[string]interface{}) (orchestration.Target, bool) {
			return resolveAnomalyTarget(analyzer, payload)
		},
		resolveViolationTarget,
	)

	optimizer := policyopt.New(
		checkerHistoryAdapter{checker},
		ledger,
		perfSnapshotAdapter{profiler},
		noopMutator{},
		b,
		policyopt.Config{
			Interval:            cfg.OptimizationInterval,
			AutoApply:           cfg.AutoApply,
			ConfidenceThreshold: cfg.ConfidenceThreshold,
		},
	)

	exporter := metrics.New(b, gaugeSource{lb: lb, ledger: ledger, breakers: breakerRegistry, profiler: profiler}, []metrics.HealthCheck{
		{Name: "topology", Interval: cfg.AnalysisInterval, LastTickAt: analyzer.LastTickAt},
		{Name: "compliance", Interval: cfg.CheckInterval, LastTickAt: checker.LastTickAt},
	})

	components := []supervisor.Component{
		{Name: "event_bus", Start: func(context.Context) error { return nil }, Stop: func(context.Context) error { return nil }},
		{
			Name: "metrics_exporter",
			Start: func(ctx context.Context) error {
				go exporter.Run(ctx, cfg.ExportInterval)
				if cfg.EnablePrometheus || cfg.EnableInternal {
					go func() {
						if err := exporter.Serve(ctx, cfg.Observability.MetricsAddr); err != nil {
							log.Error("metrics server error", zap.Error(err))
						}
					}()
				}
				return nil
			},
			Stop: func(context.Context) error { return nil },
		},
		{
			Name:       "budget_ledger",
			Start:      func(context.Context) error { ledger.Subscribe(); return nil },
			Stop:       func(context.Context) error { return nil },
			LastTickAt: time.Now,
		},
		{
			Name:  "circuit_breaker_registry",
			Start: func(context.Context) error { return nil },
			Stop:  func(context.Context) error { return nil },
		},
		{
			Name:  "performance_profiler",
			Start: func(context.Context) error { return nil },
			Stop:  func(context.Context) error { return nil },
		},
		{
			Name:  "anomaly_detector",
			Start: func(context.Context) error { return nil },
			Stop:  func(context.Context) error { return nil },
		},
		{
			Name: "compliance_checker",
			Start: func(ctx context.Context) error {
				go checker.Run(ctx)
				return nil
			},
			Stop:       func(context.Context) error { return nil },
			LastTickAt: checker.LastTickAt,
		},
		{
			Name: "topology_analyzer",
			Start: func(ctx context.Context) error {
				go analyzer.Run(ctx)
				return nil
			},
			Stop:       func(context.Context) error { return nil },
			LastTickAt: analyzer.LastTickAt,
		},
		{
			Name:  "load_balancer",
			Start: func(context.Context) error { return nil },
			Stop:  func(context.Context) error { return nil },
		},
		{
			Name:  "orchestration_engine",
			Start: func(context.Context) error { return nil },
			Stop:  func(context.Context) error { return nil },
		},
		{
			Name: "policy_optimizer",
			Start: func(ctx context.Context) error {
				go runTicker(ctx, cfg.OptimizationInterval, optimizer.Tick)
				return nil
			},
			Stop: func(context.Context) error { return nil },
		},
	}

	wireAnomalyObservations(b, detector)
	wirePerfObservations(b, profiler)

	return supervisor.New(log, components)
}

// wirePerfObservations feeds request durations from request:completed into
// the Performance Profiler's histogram.
func wirePerfObservations(b *bus.Bus, p *perf.Profiler) {
	b.Subscribe("request:completed", func(payload interface{}) {
		event, ok := payload.(map[string]interface{})
		if !ok {
			return
		}
		switch d := event["duration"].(type) {
		case int:
			p.Observe(float64(d) / 1000)
		case float64:
			p.Observe(d / 1000)
		}
	})
}

// wireAnomalyObservations feeds request latency and error-rate signals
// from request:completed into the Anomaly Detector, since the detector's
// Observe is a direct call rather than a bus subscription (spec.md §4.7
// describes a per-metric ring fed by "metric streams" generically; this
// control plane's only per-request metric stream is request:completed).
func wireAnomalyObservations(b *bus.Bus, d *anomaly.Detector) {
	b.Subscribe("request:completed", func(payload interface{}) {
		event, ok := payload.(map[string]interface{})
		if !ok {
			return
		}
		var durationMs float64
		switch dur := event["duration"].(type) {
		case int:
			durationMs = float64(dur)
			d.Observe("latency_ms", durationMs, "LATENCY_SPIKE")
		case float64:
			durationMs = dur
			d.Observe("latency_ms", durationMs, "LATENCY_SPIKE")
		}
		status, _ := event["status"].(int)
		errorFlag := 0.0
		if status >= 500 {
			d.Observe("error_rate", 1, "HIGH_ERROR_RATE")
			errorFlag = 1
		}
		d.ObserveVector([]string{"latency_ms", "error_rate"}, []float64{durationMs, errorFlag}, statusBucket(status))
	})
}

// statusBucket maps an HTTP status code to one of the 4 EventCounts
// slots the composite scorer tracks: 2xx, 4xx, 5xx, everything else
// (including a missing/zero status).
func statusBucket(status int) int {
	switch {
	case status >= 200 && status < 300:
		return 0
	case status >= 400 && status < 500:
		return 1
	case status >= 500 && status < 600:
		return 2
	default:
		return 3
	}
}

// resolveAnomalyTarget picks the first known pod from the latest topology
// snapshot as the remediation target. The anomaly:detected payload
// (type, value, threshold per spec.md §6) carries no resource reference,
// so the control plane falls back to the current snapshot rather than
// leaving every anomaly undispatchable.
func resolveAnomalyTarget(analyzer *topology.Analyzer, _ map[string]interface{}) (orchestration.Target, bool) {
	snap := analyzer.Latest()
	if snap == nil || len(snap.Pods) == 0 {
		return orchestration.Target{}, false
	}
	pod := snap.Pods[0]
	return orchestration.Target{Ref: pod.Ref, CurrentReplicas: 1}, true
}

// resolveViolationTarget picks the first image-policy critical violation
// out of a compliance:criticalViolations payload (spec.md §4.9: "critical
// compliance violation on image-policy -> quarantine pod"). Other
// critical policies (e.g. resource-limits) have no mapped remediation
// action in actionFor and are left undispatched.
func resolveViolationTarget(payload map[string]interface{}) (orchestration.Target, string, bool) {
	resources, _ := payload["resources"].([]cluster.Ref)
	policies, _ := payload["policies"].([]string)
	for i, policy := range policies {
		if policy != "image-policy" || i >= len(resources) {
			continue
		}
		return orchestration.Target{Ref: resources[i], CurrentReplicas: 1}, orchestration.TriggerImagePolicy, true
	}
	return orchestration.Target{}, "", false
}

func runTicker(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// checkerHistoryAdapter satisfies policyopt.ComplianceHistoryProvider.
type checkerHistoryAdapter struct {
	c *compliance.Checker
}

func (a checkerHistoryAdapter) History() []compliance.CheckSummary { return a.c.History() }

// perfSnapshotAdapter satisfies policyopt.PerformanceProvider.
type perfSnapshotAdapter struct {
	p *perf.Profiler
}

func (a perfSnapshotAdapter) LatestPerformance() policyopt.PerformanceSnapshot {
	p50, _, _ := a.p.Percentiles()
	return policyopt.PerformanceSnapshot{LatencyMs: p50 * 1000}
}

// noopMutator satisfies policyopt.PolicyMutator until a concrete policy
// mutation target (config field, compliance threshold) is wired in.
type noopMutator struct{}

func (noopMutator) Apply(policyopt.Recommendation) error { return nil }

// gaugeSource satisfies metrics.GaugeSource by reading the live state of
// every gauge-owning component.
type gaugeSource struct {
	lb       *loadbalancer.Balancer
	ledger   *budget.Ledger
	breakers *breaker.Registry
	profiler *perf.Profiler
}

func (g gaugeSource) ActivePods() int            { return g.lb.TrackedPodCount() }
func (g gaugeSource) CPUUsagePercent() float64   { return 0 }
func (g gaugeSource) MemoryUsagePercent() float64 { return 0 }
func (g gaugeSource) NetworkLatencyMs() float64 {
	p50, _, _ := g.profiler.Percentiles()
	return p50 * 1000
}
func (g gaugeSource) BudgetUtilizedPercent() float64 {
	status := g.ledger.GetBudgetStatus()
	if status.MonthlyBudget <= 0 {
		return 0
	}
	return (status.CostIncurredMonth / status.MonthlyBudget) * 100
}
func (g gaugeSource) CircuitBreakerOpenCount() int { return g.breakers.OpenCount() }

// buildLogger constructs a zap.Logger with the given level and format.
func buildLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return cfg.Build()
}
