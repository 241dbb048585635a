package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	base := errors.New("column \"nope\" does not exist")

	assert.Nil(t, Classify(Deterministic, nil))
	assert.Equal(t, Transient, ClassOf(base))

	err := Classify(Deterministic, base)
	assert.True(t, IsDeterministic(err))
	assert.ErrorIs(t, err, base)

	wrapped := errors.Join(errors.New("bulk insert"), err)
	assert.Equal(t, Deterministic, ClassOf(wrapped))
	assert.False(t, IsDeterministic(nil))
}

func TestRetryOnBackoff(t *testing.T) {
	backoff := Backoff{Attempts: 3, Wait: time.Millisecond, MaxWait: 2 * time.Millisecond}

	t.Run("succeeds_after_transient", func(t *testing.T) {
		calls := 0
		err := RetryOnBackoff(context.Background(), zerolog.Nop(), backoff, func(int) error {
			calls++
			if calls < 3 {
				return Classify(Transient, errors.New("connection reset"))
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops_on_deterministic", func(t *testing.T) {
		calls := 0
		err := RetryOnBackoff(context.Background(), zerolog.Nop(), backoff, func(int) error {
			calls++
			return Classify(Deterministic, errors.New("syntax error"))
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("budget_exhausted", func(t *testing.T) {
		calls := 0
		err := RetryOnBackoff(context.Background(), zerolog.Nop(), backoff, func(attempt int) error {
			assert.Equal(t, calls, attempt)
			calls++
			return errors.New("timeout")
		})
		require.EqualError(t, err, "timeout")
		assert.Equal(t, 3, calls)
	})

	t.Run("context_cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := RetryOnBackoff(ctx, zerolog.Nop(), Backoff{Attempts: 5, Wait: time.Hour}, func(int) error {
			return errors.New("timeout")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
