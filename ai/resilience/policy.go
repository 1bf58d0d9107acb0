package resilience

import "context"

// Config bundles breaker and retry settings for a Policy.
type Config struct {
	Breaker BreakerConfig
	Retry   RetryConfig
}

// Policy retries calls through a circuit breaker. A single logical call may
// invoke the wrapped function up to MaxRetries times, while an open circuit
// yields one rejection and zero invocations.
type Policy struct {
	breaker *Breaker
	retrier *Retrier
	name    string
}

// NewPolicy creates a policy named name; the name labels logs and metrics.
func NewPolicy(name string, cfg Config, opts ...Option) *Policy {
	cfg.Breaker.Name = name
	cfg.Retry.Name = name
	return &Policy{
		name:    name,
		breaker: NewBreaker(cfg.Breaker, opts...),
		retrier: NewRetrier(cfg.Retry, opts...),
	}
}

// Execute runs fn under the policy.
func (p *Policy) Execute(ctx context.Context, fn func(context.Context) error) error {
	return p.retrier.Do(ctx, func(ctx context.Context) error {
		return p.breaker.Execute(ctx, fn)
	})
}

// Breaker exposes the underlying breaker.
func (p *Policy) Breaker() *Breaker {
	return p.breaker
}

// Name returns the policy name.
func (p *Policy) Name() string {
	return p.name
}

// Do runs fn under p and returns its value. A nil policy runs fn directly.
func Do[T any](ctx context.Context, p *Policy, fn func(context.Context) (T, error)) (T, error) {
	if p == nil {
		return fn(ctx)
	}
	var out T
	err := p.Execute(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
