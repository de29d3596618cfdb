package outbox

import (
	"time"

	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/internal/nilcheck"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/log"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultBatchSize        = 50
	defaultMaxRetries       = 10
	defaultPollInterval     = 5 * time.Second
	defaultFetchBackoffBase = 500 * time.Millisecond
	defaultFetchBackoffMax  = 10 * time.Second
)

// Config controls worker batching, retry and polling behavior.
type Config struct {
	// BatchSize is the max number of entries fetched and locked per cycle.
	BatchSize int
	// MaxRetries is the retry count at which an entry is dead-lettered.
	MaxRetries int
	// PollInterval drives the fallback ticker that fires a cycle even when
	// no push notification arrives.
	PollInterval time.Duration
	// FetchBackoffBase and FetchBackoffMax bound the jittered sleep after a
	// failed begin/fetch/commit so a down database is not hammered.
	FetchBackoffBase time.Duration
	FetchBackoffMax  time.Duration
}

// DefaultConfig returns the baseline worker configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:        defaultBatchSize,
		MaxRetries:       defaultMaxRetries,
		PollInterval:     defaultPollInterval,
		FetchBackoffBase: defaultFetchBackoffBase,
		FetchBackoffMax:  defaultFetchBackoffMax,
	}
}

func (cfg *Config) normalize() {
	defaults := DefaultConfig()

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}

	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}

	if cfg.FetchBackoffBase <= 0 {
		cfg.FetchBackoffBase = defaults.FetchBackoffBase
	}

	if cfg.FetchBackoffMax <= 0 {
		cfg.FetchBackoffMax = defaults.FetchBackoffMax
	}

	if cfg.FetchBackoffMax < cfg.FetchBackoffBase {
		cfg.FetchBackoffMax = cfg.FetchBackoffBase
	}
}

// WorkerOption mutates worker configuration at construction.
type WorkerOption func(*Worker)

// WithBatchSize sets the maximum entries locked per cycle.
func WithBatchSize(size int) WorkerOption {
	return func(worker *Worker) {
		if size > 0 {
			worker.cfg.BatchSize = size
		}
	}
}

// WithMaxRetries sets the retry count at which entries dead-letter.
func WithMaxRetries(maxRetries int) WorkerOption {
	return func(worker *Worker) {
		if maxRetries > 0 {
			worker.cfg.MaxRetries = maxRetries
		}
	}
}

// WithPollInterval sets the fallback polling interval.
func WithPollInterval(interval time.Duration) WorkerOption {
	return func(worker *Worker) {
		if interval > 0 {
			worker.cfg.PollInterval = interval
		}
	}
}

// WithFetchBackoff sets the base and cap for the post-error sleep.
func WithFetchBackoff(base, maxDelay time.Duration) WorkerOption {
	return func(worker *Worker) {
		if base > 0 {
			worker.cfg.FetchBackoffBase = base
		}

		if maxDelay > 0 {
			worker.cfg.FetchBackoffMax = maxDelay
		}
	}
}

// WithLogger sets the worker logger.
func WithLogger(logger log.Logger) WorkerOption {
	return func(worker *Worker) {
		if nilcheck.Interface(logger) {
			return
		}

		worker.logger = logger
	}
}

// WithTracer sets the worker tracer.
func WithTracer(tracer trace.Tracer) WorkerOption {
	return func(worker *Worker) {
		if nilcheck.Interface(tracer) {
			return
		}

		worker.tracer = tracer
	}
}

// WithProbe sets the observability probe receiving worker lifecycle and
// terminal-transition events.
func WithProbe(probe Probe) WorkerOption {
	return func(worker *Worker) {
		if nilcheck.Interface(probe) {
			return
		}

		worker.probe = probe
	}
}
