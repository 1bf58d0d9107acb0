// Package tracing records per-request stage timings.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Stage is one completed step of a request.
type Stage struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Trace collects the stages of a single request. It is safe for
// concurrent use.
type Trace struct {
	id      string
	start   time.Time
	enabled bool

	mu     sync.Mutex
	stages []Stage
}

// New creates a trace for the request id. A disabled trace records nothing.
func New(id string, enabled bool) *Trace {
	return &Trace{
		id:      id,
		start:   time.Now(),
		enabled: enabled,
	}
}

func (t *Trace) ID() string {
	return t.id
}

// Begin starts a stage and returns the function that ends it.
func (t *Trace) Begin(name string) func(err error) {
	if t == nil || !t.enabled {
		return func(error) {}
	}
	start := time.Now()
	return func(err error) {
		stage := Stage{Name: name, Duration: time.Since(start)}
		if err != nil {
			stage.Error = err.Error()
		}
		t.mu.Lock()
		t.stages = append(t.stages, stage)
		t.mu.Unlock()
	}
}

// Run wraps fn in a stage.
func (t *Trace) Run(ctx context.Context, name string, fn func(context.Context) error) error {
	end := t.Begin(name)
	err := fn(ctx)
	end(err)
	return err
}

// Stages returns a copy of the recorded stages in completion order.
func (t *Trace) Stages() []Stage {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Stage, len(t.stages))
	copy(out, t.stages)
	return out
}

// End logs the trace at debug level.
func (t *Trace) End(logger *slog.Logger) {
	if t == nil || !t.enabled {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	stages := t.Stages()
	attrs := make([]any, 0, 2*len(stages)+4)
	attrs = append(attrs, "request_id", t.id, "duration_ms", time.Since(t.start).Milliseconds())
	for _, s := range stages {
		attrs = append(attrs, "stage."+s.Name+"_ms", s.Duration.Milliseconds())
	}
	logger.Debug("trace completed", attrs...)
}

type traceKey struct{}

// WithTrace attaches t to ctx.
func WithTrace(ctx context.Context, t *Trace) context.Context {
	return context.WithValue(ctx, traceKey{}, t)
}

// FromContext returns the trace attached to ctx, if any.
func FromContext(ctx context.Context) (*Trace, bool) {
	t, ok := ctx.Value(traceKey{}).(*Trace)
	return t, ok
}
