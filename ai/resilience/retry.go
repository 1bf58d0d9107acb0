package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hrygo/embedcore/internal/errs"
)

// RetryConfig configures a Retrier.
type RetryConfig struct {
	Name string
	// MaxRetries is the total number of attempts.
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Name:       "default",
		MaxRetries: 3,
		BaseDelay:  time.Second,
	}
}

// Retrier runs a call up to MaxRetries times with exponential backoff.
type Retrier struct {
	sleep    func(context.Context, time.Duration) error
	recorder Recorder
	cfg      RetryConfig
}

// NewRetrier creates a retrier. Zero config fields take defaults.
func NewRetrier(cfg RetryConfig, opts ...Option) *Retrier {
	defaults := DefaultRetryConfig()
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaults.BaseDelay
	}

	o := applyOptions(opts)
	return &Retrier{cfg: cfg, sleep: o.sleep, recorder: o.recorder}
}

// Backoff returns the wait after the given zero-based attempt.
func (r *Retrier) Backoff(attempt int) time.Duration {
	return r.cfg.BaseDelay * time.Duration(1<<uint(attempt))
}

// Do runs fn. Circuit-open and permanent errors are returned immediately;
// otherwise the last error is returned once attempts are exhausted.
func (r *Retrier) Do(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !errs.IsRetryable(err) {
			return err
		}
		lastErr = err

		slog.Warn("operation attempt failed",
			"operation", r.cfg.Name,
			"attempt", attempt+1,
			"max_retries", r.cfg.MaxRetries,
			"error", err,
		)
		if attempt == r.cfg.MaxRetries-1 {
			break
		}

		delay := r.Backoff(attempt)
		if r.recorder != nil {
			r.recorder.RecordRetry(r.cfg.Name)
		}
		if err := r.sleep(ctx, delay); err != nil {
			return errors.Join(lastErr, err)
		}
	}
	return lastErr
}
