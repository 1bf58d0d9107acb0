package resilience

import (
	"context"
	"time"
)

// Recorder receives resilience events, typically a Prometheus exporter.
type Recorder interface {
	RecordBreakerTransition(name, from, to string)
	RecordRetry(name string)
}

// Option customizes breakers, retriers and policies.
type Option func(*options)

type options struct {
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
	recorder Recorder
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithSleep replaces the backoff wait.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(o *options) {
		o.sleep = sleep
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

func applyOptions(opts []Option) options {
	o := options{
		now:   time.Now,
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
