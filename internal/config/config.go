// Package config provides configuration loading, validation, and hot-reload
// for the FORGE-HDR control plane.
//
// Configuration file: /etc/forge-hdr/config.yaml (default)
// Schema version: 1
//
// Hot-reload:
//   - cmd/forge-hdr listens for SIGHUP.
//   - On SIGHUP: re-read and re-validate config.yaml and log the result.
//   - Reloaded values are not applied to running components; every
//     change takes effect on restart.
//   - If the new config is invalid, an error is logged and the process
//     keeps running. It does NOT crash on invalid hot-reload.
//
// Validation:
//   - All required fields must be present.
//   - Numeric ranges enforced (thresholds in [0,1], positive durations).
//   - Invalid config on startup: supervisor refuses to start (fatal error).
//   - Invalid config on hot-reload: logged, old config retained.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/forge-hdr/controlplane/internal/errs"
)

// Version, GitCommit, BuildTime can be injected at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Config is the root configuration structure for FORGE-HDR. All fields
// have defaults; see Defaults() for values.
type Config struct {
	// SchemaVersion must be "1". Future versions will trigger migration.
	SchemaVersion string `yaml:"schema_version"`

	// NodeID identifies this control-plane instance. Default: hostname.
	NodeID string `yaml:"node_id"`

	// AnalysisInterval is the Topology Analyzer tick period (P_topo).
	AnalysisInterval time.Duration `yaml:"analysis_interval"`

	// DepthLimit bounds the critical-path DFS depth.
	DepthLimit int `yaml:"depth_limit"`

	// CheckInterval is the Compliance Checker tick period.
	CheckInterval time.Duration `yaml:"check_interval"`

	// SeverityThreshold gates the compliance:criticalViolations publish
	// (currently fixed at "any high violation" per spec; reserved for
	// future severity-weighted gating).
	SeverityThreshold float64 `yaml:"severity_threshold"`

	// PolicyCheckTimeout bounds a single policy.check() call.
	PolicyCheckTimeout time.Duration `yaml:"policy_check_timeout"`

	// ClusterClientTimeout bounds a single Cluster Client call.
	ClusterClientTimeout time.Duration `yaml:"cluster_client_timeout"`

	// MaxRetries bounds retries of a transient Cluster Client failure
	// before the Topology Analyzer surfaces analysisFailed.
	MaxRetries int `yaml:"max_retries"`

	// OptimizationInterval is the Policy Optimizer tick period.
	OptimizationInterval time.Duration `yaml:"optimization_interval"`

	// HistoryRetention bounds every history ring (topology, compliance,
	// cost, health-check): entries beyond this are FIFO-evicted.
	HistoryRetention int `yaml:"history_retention"`

	// ConfidenceThreshold gates Policy Optimizer auto-apply.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// AutoApply enables automatic application of recommendations meeting
	// ConfidenceThreshold. Default: false (opt-in).
	AutoApply bool `yaml:"auto_apply"`

	// MetricsPort is validated as a TCP port; the metrics/health HTTP
	// server binds to Observability.MetricsAddr, not to this field.
	MetricsPort int `yaml:"metrics_port"`

	// ExportInterval is the Metrics Exporter snapshot period.
	ExportInterval time.Duration `yaml:"export_interval"`

	// EnablePrometheus and EnableInternal: the metrics/health HTTP server
	// (serving both /metrics and /snapshot) starts if either is true; the
	// two endpoints are not toggled separately.
	EnablePrometheus bool `yaml:"enable_prometheus"`

	EnableInternal bool `yaml:"enable_internal"`

	Budget      BudgetConfig      `yaml:"budget"`
	Anomaly     AnomalyConfig     `yaml:"anomaly"`
	Circuit     CircuitConfig     `yaml:"circuit"`
	Healing     HealingConfig     `yaml:"healing"`
	Compliance  ComplianceConfig  `yaml:"compliance"`
	Bus         BusConfig         `yaml:"bus"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// BudgetConfig holds the Budget Enforcer's thresholds.
type BudgetConfig struct {
	Monthly        float64 `yaml:"monthly"`
	Daily          float64 `yaml:"daily"`
	AlertThreshold float64 `yaml:"alert_threshold"` // percent, e.g. 80
	HardLimit      float64 `yaml:"hard_limit"`      // percent, e.g. 100
}

// AnomalyConfig holds the Anomaly Detector's window and threshold.
type AnomalyConfig struct {
	Window    int     `yaml:"window"`
	Threshold float64 `yaml:"threshold"` // multiplied by 10 to get k

	// CompositeEntropyWeight enables the optional multivariate scorer that
	// blends Mahalanobis distance over correlated metrics with the
	// Shannon entropy of a rolling event-type mix. 0 (the default)
	// disables it; the per-metric detector runs regardless.
	CompositeEntropyWeight  float64 `yaml:"composite_entropy_weight"`
	CompositeScoreThreshold float64 `yaml:"composite_score_threshold"`
}

// CircuitConfig holds the Circuit Breaker Registry's thresholds.
type CircuitConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	BaseBackoff      time.Duration `yaml:"base_backoff"`
	MaxBackoff       time.Duration `yaml:"max_backoff"`
}

// HealingConfig holds the Orchestration Engine's rate-limiting parameters.
type HealingConfig struct {
	Cooldown            time.Duration `yaml:"cooldown"`
	MaxActionsPerWindow  int           `yaml:"max_actions_per_window"`
	ScaleUpFactor        float64       `yaml:"scale_up_factor"`
}

// ComplianceConfig holds Compliance Checker policy parameters.
type ComplianceConfig struct {
	// ImageAllowList overrides the built-in default allow-list when
	// non-empty (Open Question (b): override, not merge).
	ImageAllowList []string `yaml:"image_allow_list"`
}

// BusConfig holds Event Bus backpressure parameters.
type BusConfig struct {
	AsyncQueueCapacity int `yaml:"async_queue_capacity"`
}

// ObservabilityConfig holds logging and metrics-bind parameters.
type ObservabilityConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
}

// Defaults returns a Config populated with all default values from spec.md §6.
func Defaults() Config {
	hostname, _ := os.Hostname()
	return Config{
		SchemaVersion:        "1",
		NodeID:               hostname,
		AnalysisInterval:     30 * time.Second,
		DepthLimit:           10,
		CheckInterval:        30 * time.Second,
		SeverityThreshold:    0,
		PolicyCheckTimeout:   250 * time.Millisecond,
		ClusterClientTimeout: 10 * time.Second,
		MaxRetries:           3,
		OptimizationInterval: time.Hour,
		HistoryRetention:     1000,
		ConfidenceThreshold:  0.75,
		AutoApply:            false,
		MetricsPort:          9090,
		ExportInterval:       15 * time.Second,
		EnablePrometheus:     true,
		EnableInternal:       true,
		Budget: BudgetConfig{
			Monthly:        10000,
			Daily:          500,
			AlertThreshold: 80,
			HardLimit:      100,
		},
		Anomaly: AnomalyConfig{
			Window:                  100,
			Threshold:               0.7,
			CompositeEntropyWeight:  0,
			CompositeScoreThreshold: 3.0,
		},
		Circuit: CircuitConfig{
			FailureThreshold: 5,
			BaseBackoff:      1 * time.Second,
			MaxBackoff:       time.Minute,
		},
		Healing: HealingConfig{
			Cooldown:            5 * time.Minute,
			MaxActionsPerWindow: 3,
			ScaleUpFactor:       1.5,
		},
		Compliance: ComplianceConfig{},
		Bus: BusConfig{
			AsyncQueueCapacity: 256,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: "0.0.0.0:9090",
			LogLevel:    "info",
			LogFormat:   "json",
		},
	}
}

// Load reads and validates a config file from the given path, merging file
// values over Defaults().
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.FailedToWithDetails("read config file", "config", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errs.FailedToWithDetails("parse config file", "config", path, err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, errs.FailedTo("validate config", err)
	}
	return &cfg, nil
}

// Validate checks all config fields for correctness, accumulating every
// violation found rather than stopping at the first.
func Validate(cfg *Config) error {
	var errors []error

	if cfg.SchemaVersion != "1" {
		errors = append(errors, errs.ConfigurationError("schema_version", fmt.Sprintf("must be \"1\", got %q", cfg.SchemaVersion)))
	}
	if cfg.NodeID == "" {
		errors = append(errors, errs.ConfigurationError("node_id", "must not be empty"))
	}
	if cfg.AnalysisInterval <= 0 {
		errors = append(errors, errs.ConfigurationError("analysis_interval", "must be > 0"))
	}
	if cfg.DepthLimit < 1 {
		errors = append(errors, errs.ConfigurationError("depth_limit", "must be >= 1"))
	}
	if cfg.CheckInterval <= 0 {
		errors = append(errors, errs.ConfigurationError("check_interval", "must be > 0"))
	}
	if cfg.PolicyCheckTimeout <= 0 {
		errors = append(errors, errs.ConfigurationError("policy_check_timeout", "must be > 0"))
	}
	if cfg.OptimizationInterval <= 0 {
		errors = append(errors, errs.ConfigurationError("optimization_interval", "must be > 0"))
	}
	if cfg.HistoryRetention < 1 {
		errors = append(errors, errs.ConfigurationError("history_retention", "must be >= 1"))
	}
	if cfg.ConfidenceThreshold < 0.0 || cfg.ConfidenceThreshold > 1.0 {
		errors = append(errors, errs.ConfigurationError("confidence_threshold", "must be in [0.0, 1.0]"))
	}
	if cfg.MetricsPort < 1 || cfg.MetricsPort > 65535 {
		errors = append(errors, errs.ConfigurationError("metrics_port", "must be a valid TCP port"))
	}
	if cfg.ExportInterval <= 0 {
		errors = append(errors, errs.ConfigurationError("export_interval", "must be > 0"))
	}
	if cfg.Budget.Monthly <= 0 {
		errors = append(errors, errs.ConfigurationError("budget.monthly", "must be > 0"))
	}
	if cfg.Budget.Daily <= 0 {
		errors = append(errors, errs.ConfigurationError("budget.daily", "must be > 0"))
	}
	if cfg.Budget.AlertThreshold <= 0 || cfg.Budget.AlertThreshold > cfg.Budget.HardLimit {
		errors = append(errors, errs.ConfigurationError("budget.alert_threshold", "must be > 0 and <= hard_limit"))
	}
	if cfg.Anomaly.Window < 2 {
		errors = append(errors, errs.ConfigurationError("anomaly.window", "must be >= 2"))
	}
	if cfg.Anomaly.Threshold <= 0 {
		errors = append(errors, errs.ConfigurationError("anomaly.threshold", "must be > 0"))
	}
	if cfg.Anomaly.CompositeEntropyWeight < 0 || cfg.Anomaly.CompositeEntropyWeight > 1 {
		errors = append(errors, errs.ConfigurationError("anomaly.composite_entropy_weight", "must be in [0.0, 1.0]"))
	}
	if cfg.Circuit.FailureThreshold < 1 {
		errors = append(errors, errs.ConfigurationError("circuit.failure_threshold", "must be >= 1"))
	}
	if cfg.Circuit.BaseBackoff <= 0 || cfg.Circuit.MaxBackoff < cfg.Circuit.BaseBackoff {
		errors = append(errors, errs.ConfigurationError("circuit.max_backoff", "must be >= base_backoff, both > 0"))
	}
	if cfg.Healing.Cooldown <= 0 {
		errors = append(errors, errs.ConfigurationError("healing.cooldown", "must be > 0"))
	}
	if cfg.Healing.MaxActionsPerWindow < 1 {
		errors = append(errors, errs.ConfigurationError("healing.max_actions_per_window", "must be >= 1"))
	}
	if cfg.Bus.AsyncQueueCapacity < 1 {
		errors = append(errors, errs.ConfigurationError("bus.async_queue_capacity", "must be >= 1"))
	}

	return errs.Chain(errors...)
}
