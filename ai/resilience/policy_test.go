package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/embedcore/internal/errs"
)

func TestPolicyRetriesThroughBreaker(t *testing.T) {
	clock := newFakeClock()
	sleeps := &sleepRecorder{}
	p := NewPolicy("storage", Config{
		Breaker: BreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Minute},
		Retry:   RetryConfig{MaxRetries: 3, BaseDelay: time.Second},
	}, WithClock(clock.Now), WithSleep(sleeps.Sleep))

	var calls int
	err := p.Execute(context.Background(), func(context.Context) error {
		calls++
		return errBoom
	})

	// Three attempts reach the threshold and open the circuit.
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, calls)
	assert.Equal(t, StateOpen, p.Breaker().State())

	// An open circuit yields one rejection and zero invocations.
	calls = 0
	sleeps.delays = nil
	err = p.Execute(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, errs.ErrCircuitOpen)
	assert.Zero(t, calls)
	assert.Empty(t, sleeps.delays)
}

func TestDoReturnsValue(t *testing.T) {
	p := NewPolicy("generate", Config{}, WithSleep((&sleepRecorder{}).Sleep))

	attempts := 0
	v, err := Do(context.Background(), p, func(context.Context) (string, error) {
		attempts++
		if attempts == 1 {
			return "", errBoom
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, "generate", p.Name())
}

func TestDoWithNilPolicy(t *testing.T) {
	v, err := Do(context.Background(), nil, func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
