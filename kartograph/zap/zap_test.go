//go:build unit

package zap

import (
	"context"
	"errors"
	"testing"

	logpkg "github.com/openshift-hyperfleet/kartograph-sub003/kartograph/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, observed := observer.New(level)

	return &Logger{
		logger:      zap.New(core),
		atomicLevel: zap.NewAtomicLevelAt(level),
	}, observed
}

func TestLogDispatchesLevels(t *testing.T) {
	t.Parallel()

	logger, observed := newObservedLogger(zapcore.DebugLevel)
	ctx := context.Background()

	logger.Log(ctx, logpkg.LevelDebug, "d")
	logger.Log(ctx, logpkg.LevelInfo, "i")
	logger.Log(ctx, logpkg.LevelWarn, "w")
	logger.Log(ctx, logpkg.LevelError, "e")

	entries := observed.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
}

func TestLogAppendsTraceCorrelation(t *testing.T) {
	t.Parallel()

	logger, observed := newObservedLogger(zapcore.InfoLevel)

	traceID, err := trace.TraceIDFromHex("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("0123456789abcdef")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.Log(ctx, logpkg.LevelInfo, "traced", logpkg.String("k", "v"))

	entries := observed.All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, traceID.String(), fields["trace_id"])
	assert.Equal(t, spanID.String(), fields["span_id"])
	assert.Equal(t, "v", fields["k"])
}

func TestLogWithoutSpanHasNoTraceFields(t *testing.T) {
	t.Parallel()

	logger, observed := newObservedLogger(zapcore.InfoLevel)

	logger.Log(context.Background(), logpkg.LevelInfo, "plain")

	entries := observed.All()
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].ContextMap(), "trace_id")
}

func TestErrFieldKeepsZapErrorEncoding(t *testing.T) {
	t.Parallel()

	logger, observed := newObservedLogger(zapcore.ErrorLevel)
	boom := errors.New("boom")

	logger.Log(context.Background(), logpkg.LevelError, "failed", logpkg.Err(boom))

	entries := observed.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "boom", entries[0].ContextMap()["error"])
}

func TestWithAndWithGroup(t *testing.T) {
	t.Parallel()

	logger, observed := newObservedLogger(zapcore.InfoLevel)

	child := logger.With(logpkg.String("component", "relay"))
	grouped := child.WithGroup("outbox")
	grouped.Log(context.Background(), logpkg.LevelInfo, "grouped", logpkg.Int("batch", 3))

	entries := observed.All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, "relay", fields["component"])
	assert.Equal(t, int64(3), fields["outbox.batch"])
}

func TestEnabledRespectsLevel(t *testing.T) {
	t.Parallel()

	logger, _ := newObservedLogger(zapcore.WarnLevel)

	assert.True(t, logger.Enabled(logpkg.LevelError))
	assert.True(t, logger.Enabled(logpkg.LevelWarn))
	assert.False(t, logger.Enabled(logpkg.LevelInfo))
	assert.False(t, logger.Enabled(logpkg.LevelDebug))
}

func TestNilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var logger *Logger

	require.NotPanics(t, func() {
		logger.Log(context.Background(), logpkg.LevelInfo, "dropped")
	})
	require.NoError(t, logger.Sync(context.Background()))
}

func TestSyncHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	logger, _ := newObservedLogger(zapcore.InfoLevel)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, logger.Sync(ctx), context.Canceled)
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		cfg         Config
		expectError bool
	}{
		{
			name: "valid production config",
			cfg:  Config{Environment: EnvironmentProduction, OTelLibraryName: "kartograph"},
		},
		{
			name: "valid local config with explicit level",
			cfg:  Config{Environment: EnvironmentLocal, Level: "debug", OTelLibraryName: "kartograph"},
		},
		{
			name:        "missing library name",
			cfg:         Config{Environment: EnvironmentProduction},
			expectError: true,
		},
		{
			name:        "unknown environment",
			cfg:         Config{Environment: Environment("qa"), OTelLibraryName: "kartograph"},
			expectError: true,
		},
		{
			name:        "invalid level",
			cfg:         Config{Environment: EnvironmentProduction, Level: "loud", OTelLibraryName: "kartograph"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, level, err := New(tt.cfg)
			if tt.expectError {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, logger)
			assert.Equal(t, level, logger.Level())
		})
	}
}
