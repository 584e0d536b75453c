// Package logging provides a fluent structured-field builder shared by
// every control-plane component, rendering to zap fields at the call site
// so components build log lines as:
//
//	log.Info("dispatched healing action",
//	    logging.New().Component("orchestration").Target(target).Trigger(trigger).ToZapFields()...)
//
// rather than scattering ad hoc zap.String/zap.Int calls across thirteen
// packages with inconsistent key names.
package logging

import (
	"time"

	"go.uber.org/zap"
)

// Fields accumulates structured key/value pairs before being rendered to
// zap fields (or, for components that need it, a plain map).
type Fields map[string]interface{}

// New returns an empty Fields builder.
func New() Fields {
	return Fields{}
}

func (f Fields) Component(name string) Fields {
	f["component"] = name
	return f
}

func (f Fields) Operation(op string) Fields {
	f["operation"] = op
	return f
}

// Resource records a ResourceRef-shaped kind/name pair. namespace is
// recorded separately via Namespace when relevant.
func (f Fields) Resource(kind, name string) Fields {
	f["resource_type"] = kind
	if name != "" {
		f["resource_name"] = name
	}
	return f
}

func (f Fields) Namespace(ns string) Fields {
	if ns != "" {
		f["namespace"] = ns
	}
	return f
}

func (f Fields) Target(target string) Fields {
	f["target"] = target
	return f
}

func (f Fields) Trigger(trigger string) Fields {
	f["trigger"] = trigger
	return f
}

func (f Fields) Topic(topic string) Fields {
	f["topic"] = topic
	return f
}

func (f Fields) Duration(d time.Duration) Fields {
	f["duration_ms"] = d.Milliseconds()
	return f
}

func (f Fields) Error(err error) Fields {
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

func (f Fields) Count(n int) Fields {
	f["count"] = n
	return f
}

func (f Fields) Value(v float64) Fields {
	f["value"] = v
	return f
}

func (f Fields) Custom(key string, value interface{}) Fields {
	f[key] = value
	return f
}

// ToZapFields renders the accumulated fields to []zap.Field for use as the
// variadic tail of a zap.Logger call.
func (f Fields) ToZapFields() []zap.Field {
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}

// NewLogger builds the process-wide *zap.Logger from the observability
// config's level/format, matching the teacher's production/development
// config split.
func NewLogger(level, format string) (*zap.Logger, error) {
	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}
