package topology

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/forge-hdr/controlplane/internal/bus"
	"github.com/forge-hdr/controlplane/internal/cluster"
	"github.com/forge-hdr/controlplane/internal/logging"
)

const (
	TopicAnalysisComplete = "analysisComplete"
	TopicAnalysisFailed   = "analysisFailed"
)

// Config bounds a single Analyzer's tick behavior.
type Config struct {
	Interval       time.Duration
	DepthLimit     int
	ClientTimeout  time.Duration
	MaxRetries     int
}

// Analyzer is the Topology Analyzer (C3). It holds the latest immutable
// Snapshot and refreshes it every Config.Interval from a cluster.Client.
type Analyzer struct {
	client cluster.Client
	bus    *bus.Bus
	log    *zap.Logger
	cfg    Config

	mu          sync.RWMutex
	snapshot    *Snapshot
	lastTickAt  time.Time
	lastErr     error
	tickCount   int
}

// New creates an Analyzer with no snapshot yet; call Run to start ticking.
func New(client cluster.Client, b *bus.Bus, log *zap.Logger, cfg Config) *Analyzer {
	if cfg.DepthLimit < 1 {
		cfg.DepthLimit = 10
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 3
	}
	return &Analyzer{client: client, bus: b, log: log, cfg: cfg}
}

// Run blocks, ticking every Config.Interval until ctx is cancelled.
func (a *Analyzer) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	a.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

// tick fetches and analyzes one snapshot, making up to MaxRetries attempts
// on any client error with exponential backoff (100ms, doubling after each
// failure; the delay itself has no upper cap) before giving up and
// publishing analysisFailed. The previous snapshot is retained on failure.
func (a *Analyzer) tick(ctx context.Context) {
	backoff := 100 * time.Millisecond
	var lastErr error

	for attempt := 0; attempt < a.cfg.MaxRetries; attempt++ {
		callCtx := ctx
		var cancel context.CancelFunc
		if a.cfg.ClientTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, a.cfg.ClientTimeout)
		}
		raw, err := a.client.GetCurrentTopology(callCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			snap := buildSnapshot(raw, a.cfg.DepthLimit, time.Now())

			a.mu.Lock()
			a.snapshot = &snap
			a.lastTickAt = time.Now()
			a.lastErr = nil
			a.tickCount++
			a.mu.Unlock()

			a.bus.Publish(TopicAnalysisComplete, map[string]interface{}{
				"nodes":       len(snap.Nodes),
				"pods":        len(snap.Pods),
				"services":    len(snap.Services),
				"bottlenecks": len(snap.Bottlenecks),
				"resilience":  snap.ResilienceScore,
			})
			return
		}
		lastErr = err
		if a.log != nil {
			a.log.Warn("topology: cluster client call failed, retrying",
				logging.New().Component("topology").Error(err).Count(attempt+1).ToZapFields()...)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	a.mu.Lock()
	a.lastErr = lastErr
	a.mu.Unlock()

	a.bus.Publish(TopicAnalysisFailed, map[string]interface{}{
		"error": lastErr.Error(),
	})
}

// Latest returns the most recently published snapshot, or nil if no
// successful tick has occurred yet. The returned Snapshot must not be
// mutated.
func (a *Analyzer) Latest() *Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot
}

// LastTickAt reports when the most recent successful tick completed, for
// health-readiness checks.
func (a *Analyzer) LastTickAt() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastTickAt
}

// LastError reports the error from the most recent failed tick, if any.
func (a *Analyzer) LastError() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastErr
}
