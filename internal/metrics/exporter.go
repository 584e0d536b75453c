// Package metrics implements the Metrics Exporter (C12): Prometheus
// counters/gauges/histogram fed by bus events, a periodic bounded JSON
// snapshot ring, and liveness/readiness HTTP endpoints.
//
// Adapted directly from the retrieved observability package's Metrics
// type: same dedicated-registry-plus-promhttp-handler shape and the same
// ServeMetrics HTTP-server-with-context-shutdown pattern, generalized
// from per-process eBPF/escalation metric names to spec.md §6's cluster
// control-plane names (no namespace/subsystem prefix, since §6 specifies
// the bare metric names as normative).
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forge-hdr/controlplane/internal/bus"
)

// GaugeSource supplies the current value of every gauge the exporter
// cannot derive from bus events alone. Implemented by whichever
// components own the underlying state (load balancer, performance
// profiler, budget ledger, circuit breaker registry).
type GaugeSource interface {
	ActivePods() int
	CPUUsagePercent() float64
	MemoryUsagePercent() float64
	NetworkLatencyMs() float64
	BudgetUtilizedPercent() float64
	CircuitBreakerOpenCount() int
}

// HealthCheck describes one component's liveness contract for the
// /health/ready endpoint: ready iff LastTickAt is within 2*Interval of now.
type HealthCheck struct {
	Name       string
	Interval   time.Duration
	LastTickAt func() time.Time
}

// Snapshot is one JSON export, pushed to the bounded history ring.
type Snapshot struct {
	Timestamp     time.Time              `json:"timestamp"`
	UptimeSeconds float64                `json:"uptimeSeconds"`
	Metrics       map[string]float64     `json:"metrics"`
	SystemInfo    map[string]interface{} `json:"systemInfo"`
}

// Exporter is the Metrics Exporter (C12).
type Exporter struct {
	registry *prometheus.Registry
	source   GaugeSource
	health   []HealthCheck
	start    time.Time

	requestsTotal      prometheus.Counter
	requestsSuccess    prometheus.Counter
	requestsFailed     prometheus.Counter
	podsCreated        prometheus.Counter
	podsDeleted        prometheus.Counter
	costsIncurred      prometheus.Counter
	violationsDetected prometheus.Counter
	anomaliesDetected  prometheus.Counter
	healingOperations  prometheus.Counter

	activePods              prometheus.Gauge
	cpuUsagePercent         prometheus.Gauge
	memoryUsagePercent      prometheus.Gauge
	networkLatencyMs        prometheus.Gauge
	budgetUtilizedPercent   prometheus.Gauge
	circuitBreakerOpenCount prometheus.Gauge

	requestLatencySeconds prometheus.Histogram

	mu      sync.Mutex
	history []Snapshot
}

const maxSnapshotHistory = 1000

// New creates an Exporter registered on its own prometheus.Registry (not
// the global default, to avoid collisions with other instrumented
// libraries sharing the process) and wires it to b's events.
func New(b *bus.Bus, source GaugeSource, health []HealthCheck) *Exporter {
	reg := prometheus.NewRegistry()

	e := &Exporter{
		registry: reg,
		source:   source,
		health:   health,
		start:    time.Now(),

		requestsTotal:      prometheus.NewCounter(prometheus.CounterOpts{Name: "requests_total", Help: "Total requests observed."}),
		requestsSuccess:    prometheus.NewCounter(prometheus.CounterOpts{Name: "requests_success", Help: "Requests completed with a successful status."}),
		requestsFailed:     prometheus.NewCounter(prometheus.CounterOpts{Name: "requests_failed", Help: "Requests completed with a failed status."}),
		podsCreated:        prometheus.NewCounter(prometheus.CounterOpts{Name: "pods_created", Help: "Total pod:created events observed."}),
		podsDeleted:        prometheus.NewCounter(prometheus.CounterOpts{Name: "pods_deleted", Help: "Total pod:deleted events observed."}),
		costsIncurred:      prometheus.NewCounter(prometheus.CounterOpts{Name: "costs_incurred", Help: "Total cost units incurred."}),
		violationsDetected: prometheus.NewCounter(prometheus.CounterOpts{Name: "violations_detected", Help: "Total compliance violations detected."}),
		anomaliesDetected:  prometheus.NewCounter(prometheus.CounterOpts{Name: "anomalies_detected", Help: "Total anomalies detected."}),
		healingOperations:  prometheus.NewCounter(prometheus.CounterOpts{Name: "healing_operations", Help: "Total completed healing operations."}),

		activePods:              prometheus.NewGauge(prometheus.GaugeOpts{Name: "active_pods", Help: "Current number of tracked pods."}),
		cpuUsagePercent:         prometheus.NewGauge(prometheus.GaugeOpts{Name: "cpu_usage_percent", Help: "Cluster-wide CPU usage percent."}),
		memoryUsagePercent:      prometheus.NewGauge(prometheus.GaugeOpts{Name: "memory_usage_percent", Help: "Cluster-wide memory usage percent."}),
		networkLatencyMs:        prometheus.NewGauge(prometheus.GaugeOpts{Name: "network_latency_ms", Help: "Observed network latency in milliseconds."}),
		budgetUtilizedPercent:   prometheus.NewGauge(prometheus.GaugeOpts{Name: "budget_utilized_percent", Help: "Percent of monthly budget utilized."}),
		circuitBreakerOpenCount: prometheus.NewGauge(prometheus.GaugeOpts{Name: "circuit_breaker_open_count", Help: "Number of circuit breaker targets currently open."}),

		requestLatencySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "request_latency_seconds",
			Help:    "Request latency distribution in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10},
		}),
	}

	reg.MustRegister(
		e.requestsTotal, e.requestsSuccess, e.requestsFailed,
		e.podsCreated, e.podsDeleted, e.costsIncurred,
		e.violationsDetected, e.anomaliesDetected, e.healingOperations,
		e.activePods, e.cpuUsagePercent, e.memoryUsagePercent,
		e.networkLatencyMs, e.budgetUtilizedPercent, e.circuitBreakerOpenCount,
		e.requestLatencySeconds,
	)

	e.subscribe(b)
	return e
}

func (e *Exporter) subscribe(b *bus.Bus) {
	b.Subscribe("request:completed", func(payload interface{}) {
		event, ok := payload.(map[string]interface{})
		if !ok {
			return
		}
		e.requestsTotal.Inc()
		if status, _ := event["status"].(int); status >= 200 && status < 400 {
			e.requestsSuccess.Inc()
		} else {
			e.requestsFailed.Inc()
		}
		if durationMs, ok := event["duration"].(float64); ok {
			e.requestLatencySeconds.Observe(durationMs / 1000.0)
		} else if durationMs, ok := event["duration"].(int); ok {
			e.requestLatencySeconds.Observe(float64(durationMs) / 1000.0)
		}
	})
	b.Subscribe("pod:created", func(interface{}) { e.podsCreated.Inc() })
	b.Subscribe("pod:deleted", func(interface{}) { e.podsDeleted.Inc() })
	b.Subscribe("cost:incurred", func(payload interface{}) {
		if event, ok := payload.(map[string]interface{}); ok {
			if cost, _ := event["cost"].(float64); cost > 0 {
				e.costsIncurred.Add(cost)
			}
		}
	})
	b.Subscribe("compliance:violation", func(interface{}) { e.violationsDetected.Inc() })
	b.Subscribe("anomaly:detected", func(interface{}) { e.anomaliesDetected.Inc() })
	b.Subscribe("healing:completed", func(interface{}) { e.healingOperations.Inc() })
}

// Run ticks exportMetrics every interval until ctx is cancelled.
func (e *Exporter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.exportMetrics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.exportMetrics()
		}
	}
}

// exportMetrics refreshes every gauge from the GaugeSource accessors and
// pushes a JSON snapshot to the bounded history ring.
func (e *Exporter) exportMetrics() {
	e.activePods.Set(float64(e.source.ActivePods()))
	e.cpuUsagePercent.Set(e.source.CPUUsagePercent())
	e.memoryUsagePercent.Set(e.source.MemoryUsagePercent())
	e.networkLatencyMs.Set(e.source.NetworkLatencyMs())
	e.budgetUtilizedPercent.Set(e.source.BudgetUtilizedPercent())
	e.circuitBreakerOpenCount.Set(float64(e.source.CircuitBreakerOpenCount()))

	snap := Snapshot{
		Timestamp:     time.Now(),
		UptimeSeconds: time.Since(e.start).Seconds(),
		Metrics: map[string]float64{
			"active_pods":                float64(e.source.ActivePods()),
			"cpu_usage_percent":          e.source.CPUUsagePercent(),
			"memory_usage_percent":       e.source.MemoryUsagePercent(),
			"network_latency_ms":         e.source.NetworkLatencyMs(),
			"budget_utilized_percent":    e.source.BudgetUtilizedPercent(),
			"circuit_breaker_open_count": float64(e.source.CircuitBreakerOpenCount()),
		},
		SystemInfo: map[string]interface{}{"uptimeSeconds": time.Since(e.start).Seconds()},
	}

	e.mu.Lock()
	e.history = append(e.history, snap)
	if len(e.history) > maxSnapshotHistory {
		e.history = e.history[len(e.history)-maxSnapshotHistory:]
	}
	e.mu.Unlock()
}

// Snapshots returns a copy of the bounded JSON snapshot history.
func (e *Exporter) Snapshots() []Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Snapshot, len(e.history))
	copy(out, e.history)
	return out
}

// Serve starts the metrics/health HTTP server on addr. Blocks until ctx is
// cancelled or the server fails to start.
func (e *Exporter) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/snapshot", e.handleSnapshot)
	mux.HandleFunc("/health/live", e.handleLive)
	mux.HandleFunc("/health/ready", e.handleReady)

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

func (e *Exporter) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	snaps := e.Snapshots()
	var latest *Snapshot
	if len(snaps) > 0 {
		latest = &snaps[len(snaps)-1]
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(latest)
}

func (e *Exporter) handleLive(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady returns 503 if any registered HealthCheck hasn't ticked
// within 2*Interval of now.
func (e *Exporter) handleReady(w http.ResponseWriter, _ *http.Request) {
	now := time.Now()
	for _, h := range e.health {
		if h.LastTickAt == nil {
			continue
		}
		last := h.LastTickAt()
		if last.IsZero() || now.Sub(last) > 2*h.Interval {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready: " + h.Name))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
