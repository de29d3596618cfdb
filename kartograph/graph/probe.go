package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Probe receives applier outcomes. BatchApplied fires once per successful
// batch, ApplyCompleted once per fully-applied sequence, ApplyFailed once
// when a batch aborts the sequence.
type Probe interface {
	BatchApplied(graphName, strategy string, size int, elapsed time.Duration)
	ApplyCompleted(graphName string, result MutationResult, batches int, elapsed time.Duration)
	ApplyFailed(graphName string, batchIndex int, err error)
}

// NopProbe discards all events.
type NopProbe struct{}

func (NopProbe) BatchApplied(string, string, int, time.Duration)           {}
func (NopProbe) ApplyCompleted(string, MutationResult, int, time.Duration) {}
func (NopProbe) ApplyFailed(string, int, error)                            {}

// MetricsProbe reports applier activity as OpenTelemetry metrics.
// Instruments bind once at construction; a nil provider falls back to the
// global one.
type MetricsProbe struct {
	operationsApplied metric.Int64Counter
	batchesApplied    metric.Int64Counter
	applyFailures     metric.Int64Counter
	applyDuration     metric.Float64Histogram
}

// NewMetricsProbe creates a MetricsProbe on the given provider.
func NewMetricsProbe(provider metric.MeterProvider) (*MetricsProbe, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	meter := provider.Meter("kartograph.graph.applier")

	var (
		probe MetricsProbe
		err   error
	)

	probe.operationsApplied, err = meter.Int64Counter(
		"graph.operations.applied",
		metric.WithDescription("Number of mutation operations applied"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create graph.operations.applied counter: %w", err)
	}

	probe.batchesApplied, err = meter.Int64Counter(
		"graph.batches.applied",
		metric.WithDescription("Number of mutation batches applied"),
		metric.WithUnit("{batch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create graph.batches.applied counter: %w", err)
	}

	probe.applyFailures, err = meter.Int64Counter(
		"graph.operations.failed",
		metric.WithDescription("Number of batch applications that failed"),
		metric.WithUnit("{batch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create graph.operations.failed counter: %w", err)
	}

	probe.applyDuration, err = meter.Float64Histogram(
		"graph.apply.duration",
		metric.WithDescription("Time taken to apply a full mutation sequence"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create graph.apply.duration histogram: %w", err)
	}

	return &probe, nil
}

func (probe *MetricsProbe) BatchApplied(graphName, strategy string, size int, _ time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("graph", graphName),
		attribute.String("strategy", strategy),
	)

	if probe.operationsApplied != nil {
		probe.operationsApplied.Add(ctx, int64(size), attrs)
	}

	if probe.batchesApplied != nil {
		probe.batchesApplied.Add(ctx, 1, attrs)
	}
}

func (probe *MetricsProbe) ApplyCompleted(graphName string, _ MutationResult, _ int, elapsed time.Duration) {
	if probe.applyDuration == nil {
		return
	}

	probe.applyDuration.Record(context.Background(), elapsed.Seconds(), metric.WithAttributes(
		attribute.String("graph", graphName),
	))
}

func (probe *MetricsProbe) ApplyFailed(graphName string, _ int, _ error) {
	if probe.applyFailures == nil {
		return
	}

	probe.applyFailures.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("graph", graphName),
	))
}

// LogProbe reports applier activity through a structured logger.
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

func (probe *LogProbe) BatchApplied(graphName, strategy string, size int, elapsed time.Duration) {
	probe.logger.Log(context.Background(), log.LevelDebug, "graph batch applied",
		log.String("graph", graphName),
		log.String("strategy", strategy),
		log.Int("size", size),
		log.Duration("elapsed", elapsed),
	)
}

func (probe *LogProbe) ApplyCompleted(graphName string, result MutationResult, batches int, elapsed time.Duration) {
	probe.logger.Log(context.Background(), log.LevelInfo, "graph apply completed",
		log.String("graph", graphName),
		log.Int("operations", result.Count),
		log.Int("batches", batches),
		log.Duration("elapsed", elapsed),
	)
}

func (probe *LogProbe) ApplyFailed(graphName string, batchIndex int, err error) {
	probe.logger.Log(context.Background(), log.LevelError, "graph apply failed",
		log.String("graph", graphName),
		log.Int("batch_index", batchIndex),
		log.Err(err),
	)
}
