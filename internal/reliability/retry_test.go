package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff(t *testing.T) {
	t.Run("NextDelay grows and caps without jitter", func(t *testing.T) {
		policy := NewExponentialBackoff(100*time.Millisecond, time.Second, 2.0, 5)
		policy.Jitter = false

		assert.Equal(t, 100*time.Millisecond, policy.NextDelay(0))
		assert.Equal(t, 200*time.Millisecond, policy.NextDelay(1))
		assert.Equal(t, 800*time.Millisecond, policy.NextDelay(3))
		assert.Equal(t, time.Second, policy.NextDelay(10))
	})

	t.Run("jitter stays within fifteen percent", func(t *testing.T) {
		policy := NewExponentialBackoff(time.Second, 10*time.Second, 2.0, 5)
		for i := 0; i < 50; i++ {
			d := policy.NextDelay(0)
			assert.GreaterOrEqual(t, d, 850*time.Millisecond)
			assert.LessOrEqual(t, d, 1150*time.Millisecond)
		}
	})

	t.Run("ShouldRetry respects max retries and retryability", func(t *testing.T) {
		policy := NewExponentialBackoff(time.Millisecond, time.Second, 2.0, 2)
		err := errors.New("transient")

		ok, _ := policy.ShouldRetry(0, err)
		assert.True(t, ok)
		ok, _ = policy.ShouldRetry(2, err)
		assert.False(t, ok)
		ok, _ = policy.ShouldRetry(0, RetryableError{Err: err, Retryable: false})
		assert.False(t, ok)
		assert.Equal(t, 2, policy.MaxRetries())
	})
}

func TestFixedDelay(t *testing.T) {
	policy := NewFixedDelay(50*time.Millisecond, 3)

	ok, delay := policy.ShouldRetry(1, errors.New("fail"))
	assert.True(t, ok)
	assert.Equal(t, 50*time.Millisecond, delay)

	ok, _ = policy.ShouldRetry(3, errors.New("fail"))
	assert.False(t, ok)

	ok, _ = policy.ShouldRetry(0, ErrNonRetryable)
	assert.False(t, ok)
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds on first attempt", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, NewFixedDelay(time.Millisecond, 3), func() error {
			calls++
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries until success", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, NewFixedDelay(time.Millisecond, 5), func() error {
			calls++
			if calls < 3 {
				return errors.New("not yet")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("wraps the last error after max retries", func(t *testing.T) {
		last := errors.New("still down")
		calls := 0
		err := Retry(ctx, NewFixedDelay(time.Millisecond, 2), func() error {
			calls++
			return last
		})

		assert.Equal(t, 3, calls)
		var retryErr *RetryError
		require.ErrorAs(t, err, &retryErr)
		assert.Equal(t, 3, retryErr.Attempts)
		assert.ErrorIs(t, err, last)
		assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	})

	t.Run("non-retryable error on first attempt is returned as is", func(t *testing.T) {
		nonRetryable := RetryableError{Err: errors.New("bad url"), Retryable: false}
		err := Retry(ctx, NewFixedDelay(time.Millisecond, 5), func() error {
			return nonRetryable
		})
		assert.Equal(t, nonRetryable, err)
	})

	t.Run("stops waiting when the context is cancelled", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		calls := 0
		err := Retry(cancelled, NewFixedDelay(time.Hour, 5), func() error {
			calls++
			cancel()
			return errors.New("fail")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestRetryableError(t *testing.T) {
	inner := errors.New("inner")
	err := RetryableError{Err: inner, Retryable: true}

	assert.Equal(t, "inner", err.Error())
	assert.True(t, err.IsRetryable())
	assert.ErrorIs(t, err, inner)
	assert.True(t, isRetryableError(errors.New("unknown")))
	assert.False(t, isRetryableError(nil))
}
