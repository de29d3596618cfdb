//go:build unit

package log

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		input       string
		expected    Level
		expectError bool
	}{
		{name: "parse error level", input: "error", expected: LevelError},
		{name: "parse warn level", input: "warn", expected: LevelWarn},
		{name: "parse warning alias", input: "warning", expected: LevelWarn},
		{name: "parse info level", input: "info", expected: LevelInfo},
		{name: "parse debug level", input: "debug", expected: LevelDebug},
		{name: "parse uppercase level", input: "ERROR", expected: LevelError},
		{name: "parse mixed case level", input: "Debug", expected: LevelDebug},
		{name: "reject unknown level", input: "verbose", expectError: true},
		{name: "reject empty level", input: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			level, err := ParseLevel(tt.input)
			if tt.expectError {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestLevelString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "error", LevelError.String())
	assert.Equal(t, "warn", LevelWarn.String())
	assert.Equal(t, "info", LevelInfo.String())
	assert.Equal(t, "debug", LevelDebug.String())
	assert.Equal(t, "unknown", Level(42).String())
}

func TestLevelOrdering(t *testing.T) {
	t.Parallel()

	// The configured level is a verbosity ceiling: more severe levels have
	// lower numeric values and must compare below less severe ones.
	require.True(t, LevelError < LevelWarn)
	require.True(t, LevelWarn < LevelInfo)
	require.True(t, LevelInfo < LevelDebug)
}

func TestFieldConstructors(t *testing.T) {
	t.Parallel()

	err := errors.New("boom")

	assert.Equal(t, Field{Key: "k", Value: "v"}, String("k", "v"))
	assert.Equal(t, Field{Key: "n", Value: 7}, Int("n", 7))
	assert.Equal(t, Field{Key: "n", Value: int64(7)}, Int64("n", 7))
	assert.Equal(t, Field{Key: "ok", Value: true}, Bool("ok", true))
	assert.Equal(t, Field{Key: "d", Value: time.Second}, Duration("d", time.Second))
	assert.Equal(t, Field{Key: "error", Value: err}, Err(err))
	assert.Equal(t, Field{Key: "x", Value: 1.5}, Any("x", 1.5))
}

func TestNopLogger(t *testing.T) {
	t.Parallel()

	logger := NewNop()

	// Must be callable with anything and never panic.
	logger.Log(context.Background(), LevelError, "dropped", Err(errors.New("x")))

	assert.Same(t, logger, logger.With(String("k", "v")))
	assert.Same(t, logger, logger.WithGroup("g"))
	assert.False(t, logger.Enabled(LevelError))
	require.NoError(t, logger.Sync(context.Background()))
}
