package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Probe receives worker lifecycle and entry-transition events. Entry
// callbacks fire as outcomes are recorded within a cycle; a cycle whose
// commit later fails re-handles its entries, so counts are at-least-once,
// like the delivery itself.
type Probe interface {
	WorkerStarted()
	WorkerStopped()
	CycleCompleted(result CycleResult, elapsed time.Duration)
	EntryProcessed(entry *Entry)
	EntryRetried(entry *Entry, cause error)
	EntryDeadLettered(entry *Entry, cause error)
	WorkerError(stage string, err error)
}

// NopProbe discards all events.
type NopProbe struct{}

func (NopProbe) WorkerStarted()                            {}
func (NopProbe) WorkerStopped()                            {}
func (NopProbe) CycleCompleted(CycleResult, time.Duration) {}
func (NopProbe) EntryProcessed(*Entry)                     {}
func (NopProbe) EntryRetried(*Entry, error)                {}
func (NopProbe) EntryDeadLettered(*Entry, error)           {}
func (NopProbe) WorkerError(string, error)                 {}

// MetricsProbe reports worker activity as OpenTelemetry metrics. Instruments
// bind once at construction; a nil provider falls back to the global one.
type MetricsProbe struct {
	processed     metric.Int64Counter
	retried       metric.Int64Counter
	deadLettered  metric.Int64Counter
	workerErrors  metric.Int64Counter
	cycleDuration metric.Float64Histogram
	batchSize     metric.Int64Gauge
}

// NewMetricsProbe creates a MetricsProbe on the given provider.
func NewMetricsProbe(provider metric.MeterProvider) (*MetricsProbe, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	meter := provider.Meter("kartograph.outbox.worker")

	var (
		probe MetricsProbe
		err   error
	)

	probe.processed, err = meter.Int64Counter(
		"outbox.entries.processed",
		metric.WithDescription("Number of outbox entries processed successfully"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create outbox.entries.processed counter: %w", err)
	}

	probe.retried, err = meter.Int64Counter(
		"outbox.entries.retried",
		metric.WithDescription("Number of outbox entry failures that stayed retryable"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create outbox.entries.retried counter: %w", err)
	}

	probe.deadLettered, err = meter.Int64Counter(
		"outbox.entries.dead_lettered",
		metric.WithDescription("Number of outbox entries dead-lettered after exhausting retries"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create outbox.entries.dead_lettered counter: %w", err)
	}

	probe.workerErrors, err = meter.Int64Counter(
		"outbox.worker.errors",
		metric.WithDescription("Number of worker loop errors by stage"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create outbox.worker.errors counter: %w", err)
	}

	probe.cycleDuration, err = meter.Float64Histogram(
		"outbox.cycle.duration",
		metric.WithDescription("Time taken per fetch-and-process cycle"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create outbox.cycle.duration histogram: %w", err)
	}

	probe.batchSize, err = meter.Int64Gauge(
		"outbox.cycle.batch_size",
		metric.WithDescription("Number of entries fetched in the last cycle"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create outbox.cycle.batch_size gauge: %w", err)
	}

	return &probe, nil
}

func (probe *MetricsProbe) WorkerStarted() {}

func (probe *MetricsProbe) WorkerStopped() {}

func (probe *MetricsProbe) CycleCompleted(result CycleResult, elapsed time.Duration) {
	ctx := context.Background()

	if probe.cycleDuration != nil {
		probe.cycleDuration.Record(ctx, elapsed.Seconds())
	}

	if probe.batchSize != nil {
		probe.batchSize.Record(ctx, int64(result.Fetched))
	}
}

func (probe *MetricsProbe) EntryProcessed(entry *Entry) {
	probe.add(probe.processed, entry)
}

func (probe *MetricsProbe) EntryRetried(entry *Entry, _ error) {
	probe.add(probe.retried, entry)
}

func (probe *MetricsProbe) EntryDeadLettered(entry *Entry, _ error) {
	probe.add(probe.deadLettered, entry)
}

func (probe *MetricsProbe) WorkerError(stage string, _ error) {
	if probe.workerErrors == nil {
		return
	}

	probe.workerErrors.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("stage", stage),
	))
}

func (probe *MetricsProbe) add(counter metric.Int64Counter, entry *Entry) {
	if counter == nil {
		return
	}

	opts := []metric.AddOption{}
	if entry != nil {
		opts = append(opts, metric.WithAttributes(attribute.String("event_type", entry.EventType)))
	}

	counter.Add(context.Background(), 1, opts...)
}

// LogProbe reports worker activity through a structured logger. Useful in
// environments without a metrics pipeline.
type LogProbe struct {
	logger log.Logger
}

// NewLogProbe creates a LogProbe. A nil logger is replaced with the no-op
// logger.
func NewLogProbe(logger log.Logger) *LogProbe {
	if logger == nil {
		logger = log.NewNop()
	}

	return &LogProbe{logger: logger}
}

func (probe *LogProbe) WorkerStarted() {
	probe.logger.Log(context.Background(), log.LevelInfo, "outbox worker started")
}

func (probe *LogProbe) WorkerStopped() {
	probe.logger.Log(context.Background(), log.LevelInfo, "outbox worker stopped")
}

func (probe *LogProbe) CycleCompleted(result CycleResult, elapsed time.Duration) {
	if result.Fetched == 0 {
		return
	}

	probe.logger.Log(context.Background(), log.LevelDebug, "outbox cycle completed",
		log.Int("fetched", result.Fetched),
		log.Int("processed", result.Processed),
		log.Int("retried", result.Retried),
		log.Int("dead_lettered", result.DeadLettered),
		log.Duration("elapsed", elapsed),
	)
}

func (probe *LogProbe) EntryProcessed(entry *Entry) {
	if entry == nil {
		return
	}

	probe.logger.Log(context.Background(), log.LevelDebug, "outbox entry processed",
		log.String("entry_id", entry.ID.String()),
		log.String("event_type", entry.EventType),
	)
}

func (probe *LogProbe) EntryRetried(entry *Entry, cause error) {
	if entry == nil {
		return
	}

	probe.logger.Log(context.Background(), log.LevelWarn, "outbox entry failed, will retry",
		log.String("entry_id", entry.ID.String()),
		log.String("event_type", entry.EventType),
		log.Int("retry_count", entry.RetryCount+1),
		log.String("cause", sanitizeCause(cause)),
	)
}

func (probe *LogProbe) EntryDeadLettered(entry *Entry, cause error) {
	if entry == nil {
		return
	}

	probe.logger.Log(context.Background(), log.LevelError, "outbox entry dead-lettered",
		log.String("entry_id", entry.ID.String()),
		log.String("event_type", entry.EventType),
		log.String("cause", sanitizeCause(cause)),
	)
}

func (probe *LogProbe) WorkerError(stage string, err error) {
	probe.logger.Log(context.Background(), log.LevelError, "outbox worker error",
		log.String("stage", stage),
		log.String("error", sanitizeCause(err)),
	)
}
