package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/config"
)

var errFlaky = errors.New("flaky")

func fastConfig(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "op", fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUp(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "op", fastConfig(2), func() error {
		calls++
		return errFlaky
	})
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 2, calls)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	cfg := fastConfig(5)
	cfg.Retryable = func(err error) bool { return !errors.Is(err, errFlaky) }
	calls := 0
	err := Retry(context.Background(), "op", cfg, func() error {
		calls++
		return errFlaky
	})
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "op", fastConfig(3), func() error { return errFlaky })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestComputeDelayIsCapped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2, JitterFraction: 0.1}
	assert.LessOrEqual(t, computeDelay(10, cfg), 300*time.Millisecond)
	assert.Greater(t, computeDelay(1, cfg), time.Duration(0))
}

func TestFromConfig(t *testing.T) {
	got := FromConfig(config.RetryConfig{MaxAttempts: 4, BaseDelay: time.Second, MaxDelay: time.Minute})
	assert.Equal(t, 4, got.MaxAttempts)
	assert.Equal(t, time.Second, got.InitialDelay)
	assert.Equal(t, time.Minute, got.MaxDelay)
}
