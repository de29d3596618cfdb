//go:build unit

package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_NormalizeClampsToDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{
		BatchSize:        -1,
		MaxRetries:       0,
		PollInterval:     -time.Second,
		FetchBackoffBase: 0,
		FetchBackoffMax:  -time.Minute,
	}

	cfg.normalize()

	assert.Equal(t, DefaultConfig(), cfg)
}

func TestConfig_NormalizeKeepsExplicitValues(t *testing.T) {
	t.Parallel()

	cfg := Config{
		BatchSize:        200,
		MaxRetries:       3,
		PollInterval:     time.Second,
		FetchBackoffBase: 100 * time.Millisecond,
		FetchBackoffMax:  2 * time.Second,
	}

	normalized := cfg
	normalized.normalize()

	assert.Equal(t, cfg, normalized)
}

func TestConfig_NormalizeLiftsMaxBackoffToBase(t *testing.T) {
	t.Parallel()

	cfg := Config{
		FetchBackoffBase: 30 * time.Second,
		FetchBackoffMax:  time.Second,
	}

	cfg.normalize()

	assert.Equal(t, 30*time.Second, cfg.FetchBackoffBase)
	assert.Equal(t, 30*time.Second, cfg.FetchBackoffMax)
}

func TestWorkerOptions_ApplyToConfig(t *testing.T) {
	t.Parallel()

	worker := newTestWorker(t, &fakeWorkerRepo{}, HandlerFunc(func(context.Context, *Entry) error {
		return nil
	}),
		WithBatchSize(7),
		WithMaxRetries(2),
		WithPollInterval(time.Minute),
		WithFetchBackoff(time.Second, 5*time.Second),
	)

	assert.Equal(t, 7, worker.cfg.BatchSize)
	assert.Equal(t, 2, worker.cfg.MaxRetries)
	assert.Equal(t, time.Minute, worker.cfg.PollInterval)
	assert.Equal(t, time.Second, worker.cfg.FetchBackoffBase)
	assert.Equal(t, 5*time.Second, worker.cfg.FetchBackoffMax)
}

func TestWorkerOptions_IgnoreInvalidValues(t *testing.T) {
	t.Parallel()

	worker := newTestWorker(t, &fakeWorkerRepo{}, HandlerFunc(func(context.Context, *Entry) error {
		return nil
	}),
		WithBatchSize(-1),
		WithMaxRetries(0),
		WithPollInterval(0),
		WithFetchBackoff(0, 0),
		WithLogger(nil),
		WithTracer(nil),
		WithProbe(nil),
	)

	assert.Equal(t, DefaultConfig(), worker.cfg)
	require.NotNil(t, worker.logger)
	require.NotNil(t, worker.tracer)
	require.NotNil(t, worker.probe)
}
