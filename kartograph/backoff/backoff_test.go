//go:build unit

package backoff

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponential(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		base     time.Duration
		attempt  int
		expected time.Duration
	}{
		{name: "attempt zero returns base", base: 100 * time.Millisecond, attempt: 0, expected: 100 * time.Millisecond},
		{name: "attempt one doubles", base: 100 * time.Millisecond, attempt: 1, expected: 200 * time.Millisecond},
		{name: "attempt three is eightfold", base: 50 * time.Millisecond, attempt: 3, expected: 400 * time.Millisecond},
		{name: "negative attempt treated as zero", base: time.Second, attempt: -5, expected: time.Second},
		{name: "zero base returns zero", base: 0, attempt: 10, expected: 0},
		{name: "negative base returns zero", base: -time.Second, attempt: 2, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, Exponential(tt.base, tt.attempt))
		})
	}
}

func TestExponentialOverflowProtection(t *testing.T) {
	t.Parallel()

	// Huge attempts must saturate instead of wrapping negative.
	delay := Exponential(time.Hour, 1000)
	assert.Equal(t, time.Duration(math.MaxInt64), delay)

	delay = Exponential(time.Hour, maxShift)
	assert.Positive(t, delay)
}

func TestFullJitterRange(t *testing.T) {
	t.Parallel()

	const delay = 500 * time.Millisecond

	for range 100 {
		jittered := FullJitter(delay)
		assert.GreaterOrEqual(t, jittered, time.Duration(0))
		assert.Less(t, jittered, delay)
	}

	assert.Equal(t, time.Duration(0), FullJitter(0))
	assert.Equal(t, time.Duration(0), FullJitter(-time.Second))
}

func TestExponentialWithJitterStaysBelowCeiling(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond

	for attempt := range 6 {
		ceiling := Exponential(base, attempt)
		for range 20 {
			assert.Less(t, ExponentialWithJitter(base, attempt), ceiling)
		}
	}
}

func TestCappedExponentialWithJitter(t *testing.T) {
	t.Parallel()

	base := time.Second
	maxDelay := 4 * time.Second

	// At attempt 10 the uncapped delay would be 1024s; the cap bounds it.
	for range 50 {
		assert.Less(t, CappedExponentialWithJitter(base, maxDelay, 10), maxDelay)
	}

	// Non-positive cap means uncapped.
	got := CappedExponentialWithJitter(base, 0, 2)
	assert.Less(t, got, Exponential(base, 2))
}

func TestSleepWithContext(t *testing.T) {
	t.Parallel()

	t.Run("completes for short duration", func(t *testing.T) {
		t.Parallel()

		require.NoError(t, SleepWithContext(context.Background(), time.Millisecond))
	})

	t.Run("returns immediately for non-positive duration", func(t *testing.T) {
		t.Parallel()

		start := time.Now()
		require.NoError(t, SleepWithContext(context.Background(), -time.Hour))
		assert.Less(t, time.Since(start), 100*time.Millisecond)
	})

	t.Run("honors cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := SleepWithContext(ctx, time.Minute)
		require.Error(t, err)
		require.ErrorIs(t, err, context.Canceled)
	})
}
