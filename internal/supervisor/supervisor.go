// Package supervisor implements the Module Lifecycle Supervisor (C13):
// fixed start-order bring-up of every component, reverse-order shutdown,
// abort-and-rollback on a failed start, and aggregate health reporting.
//
// Start/stop step sequencing is grounded on the retrieved agent
// entrypoint's numbered startup (root check → config → logger → storage
// → kernel hooks → metrics → event processor → workers → SIGHUP handler
// → shutdown wait) and its mirrored shutdown sequence, generalized from
// a single static main() to a reusable Component-slice abstraction so
// each control-plane component is started/stopped uniformly instead of
// by bespoke code per subsystem.
package supervisor

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Component is anything the Supervisor starts and stops as a unit. Start
// must block only long enough to begin its background work (spawning its
// own goroutine for any loop) and return promptly; Stop must be safe to
// call even if Start failed or was never called.
type Component struct {
	Name       string
	Start      func(ctx context.Context) error
	Stop       func(ctx context.Context) error
	Interval   time.Duration    // 0 if the component has no periodic tick
	LastTickAt func() time.Time // nil if the component has no periodic tick
}

// Health is one component's reported status for getSystemHealth().
type Health struct {
	Name       string
	Running    bool
	LastError  string
	LastTickAt time.Time
}

// Supervisor is the Module Lifecycle Supervisor (C13).
type Supervisor struct {
	log        *zap.Logger
	components []Component
	started    []Component // in start order, for reverse-order Stop
	lastError  map[string]string
	cancels    []context.CancelFunc
}

// New creates a Supervisor over components, in the exact order they must
// start. Stop reverses this order automatically.
func New(log *zap.Logger, components []Component) *Supervisor {
	return &Supervisor{
		log:        log,
		components: components,
		lastError:  make(map[string]string),
	}
}

// Start brings up every component in order. If any component's Start
// returns an error, Start immediately stops every component already
// started (in reverse order) and returns the failure — no partial state
// is left running, generalizing the retrieved agent entrypoint's
// fail-fast-on-load-failure policy to every component rather than one
// hardcoded step.
func (s *Supervisor) Start(ctx context.Context) error {
	for _, c := range s.components {
		cctx, cancel := context.WithCancel(ctx)
		if err := c.Start(cctx); err != nil {
			cancel()
			if s.log != nil {
				s.log.Error("supervisor: component failed to start, rolling back",
					zap.String("component", c.Name), zap.Error(err))
			}
			s.lastError[c.Name] = err.Error()
			s.rollback(ctx)
			return err
		}
		s.cancels = append(s.cancels, cancel)
		s.started = append(s.started, c)
		if s.log != nil {
			s.log.Info("supervisor: component started", zap.String("component", c.Name))
		}
	}
	return nil
}

// rollback stops every started component in reverse order. Used both by
// Start on a mid-sequence failure and by Stop on a clean shutdown.
func (s *Supervisor) rollback(ctx context.Context) {
	for i := len(s.started) - 1; i >= 0; i-- {
		c := s.started[i]
		if i < len(s.cancels) {
			s.cancels[i]()
		}
		if c.Stop != nil {
			if err := c.Stop(ctx); err != nil && s.log != nil {
				s.log.Warn("supervisor: component stop error",
					zap.String("component", c.Name), zap.Error(err))
			}
		}
	}
	s.started = nil
	s.cancels = nil
}

// Stop shuts down every started component in reverse start order.
func (s *Supervisor) Stop(ctx context.Context) {
	s.rollback(ctx)
}

// GetSystemHealth aggregates per-component {running, lastError?,
// lastTickAt}. A component counts as running once it has appeared in
// started and has not been rolled back.
func (s *Supervisor) GetSystemHealth() []Health {
	runningSet := make(map[string]bool, len(s.started))
	for _, c := range s.started {
		runningSet[c.Name] = true
	}

	out := make([]Health, 0, len(s.components))
	for _, c := range s.components {
		h := Health{
			Name:    c.Name,
			Running: runningSet[c.Name],
		}
		if err, ok := s.lastError[c.Name]; ok {
			h.LastError = err
		}
		if c.LastTickAt != nil {
			h.LastTickAt = c.LastTickAt()
		}
		out = append(out, h)
	}
	return out
}
