package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"numrelay-go/internal/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = Policy{MaxAttempts: 3, Interval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 1, RateLimitPause: time.Millisecond}

func TestDoSucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := fast.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientUpToBudget(t *testing.T) {
	calls := 0
	err := fast.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return apperrors.Transient("timeout", "deadline", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoSucceedsMidway(t *testing.T) {
	calls := 0
	err := fast.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return apperrors.Transient("timeout", "deadline", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoShortCircuitsNonRetryable(t *testing.T) {
	for _, err := range []error{
		apperrors.Credential("auth", "rejected", nil),
		apperrors.HardDeny("denied", "nope"),
		apperrors.PoolExhausted("shared"),
	} {
		calls := 0
		got := fast.Do(context.Background(), "op", func(ctx context.Context) error {
			calls++
			return err
		})
		assert.Equal(t, err, got)
		assert.Equal(t, 1, calls, "non-retryable %v must not retry", err)
	}
}

func TestDoRetriesUnclassifiedErrors(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := fast.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return boom
	})
	assert.Equal(t, boom, err)
	assert.Equal(t, 3, calls)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := fast.Do(ctx, "op", func(ctx context.Context) error {
		calls++
		cancel()
		return apperrors.Transient("timeout", "deadline", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoPreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := fast.Do(ctx, "op", func(ctx context.Context) error {
		t.Fatal("fn must not run with a dead context")
		return nil
	})
	assert.Error(t, err)
}

func TestNormalizedFillsZeroValues(t *testing.T) {
	p := Policy{}.normalized()
	assert.Equal(t, DefaultPolicy.MaxAttempts, p.MaxAttempts)
	assert.Equal(t, DefaultPolicy.Interval, p.Interval)
	assert.Equal(t, DefaultPolicy.RateLimitPause, p.RateLimitPause)
}
