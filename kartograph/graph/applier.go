package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/internal/nilcheck"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/log"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// ApplierOption customizes an Applier.
type ApplierOption func(*Applier)

// WithProbe sets the applier probe. Nil keeps the no-op default.
func WithProbe(probe Probe) ApplierOption {
	return func(applier *Applier) {
		if !nilcheck.Interface(probe) {
			applier.probe = probe
		}
	}
}

// WithLogger sets the applier logger. Nil keeps the no-op default.
func WithLogger(logger log.Logger) ApplierOption {
	return func(applier *Applier) {
		if !nilcheck.Interface(logger) {
			applier.logger = logger
		}
	}
}

// Applier validates and groups mutation operations, then applies each batch
// through its strategy. It fails fast and never retries: a batch error
// surfaces immediately with the count of operations already applied, and
// whether to retry is the caller's call.
type Applier struct {
	strategy BulkLoadingStrategy
	probe    Probe
	logger   log.Logger
}

// NewApplier wires a strategy into an applier.
func NewApplier(strategy BulkLoadingStrategy, opts ...ApplierOption) (*Applier, error) {
	if nilcheck.Interface(strategy) {
		return nil, ErrStrategyRequired
	}

	applier := &Applier{
		strategy: strategy,
		probe:    NopProbe{},
		logger:   log.NewNop(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(applier)
		}
	}

	return applier, nil
}

// ApplyBatch applies the operations to the named graph in grouping order.
// All operations are validated before any batch runs, so a malformed
// operation never aborts a half-applied sequence. An empty sequence is a
// successful no-op.
func (applier *Applier) ApplyBatch(ctx context.Context, ops []MutationOperation, graphName string) (MutationResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if !applier.initialized() {
		return MutationResult{}, ErrApplierNotInitialized
	}

	if strings.TrimSpace(graphName) == "" {
		return MutationResult{}, ErrGraphNameRequired
	}

	for i, op := range ops {
		if err := op.Validate(); err != nil {
			return MutationResult{}, fmt.Errorf("validating operation %d: %w", i, err)
		}
	}

	_, tracer, _ := kartograph.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "graph.apply_batch")
	defer span.End()

	batches := GroupBatches(ops)
	merged := MutationResult{Success: true}
	started := time.Now()

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return applier.failBatch(ctx, &span, graphName, merged, i, err)
		}

		batchStarted := time.Now()

		result, err := applier.strategy.LoadBatch(ctx, graphName, batch)
		if err != nil {
			return applier.failBatch(ctx, &span, graphName, merged, i, err)
		}

		merged = merged.merge(result)

		applier.probe.BatchApplied(graphName, applier.strategy.Name(), len(batch), time.Since(batchStarted))
	}

	applier.probe.ApplyCompleted(graphName, merged, len(batches), time.Since(started))

	applier.logger.Log(ctx, log.LevelDebug, "graph mutations applied",
		log.String("graph", graphName),
		log.String("strategy", applier.strategy.Name()),
		log.Int("operations", merged.Count),
		log.Int("batches", len(batches)))

	return merged, nil
}

func (applier *Applier) failBatch(ctx context.Context, span *trace.Span, graphName string, merged MutationResult, index int, cause error) (MutationResult, error) {
	err := &BatchError{BatchIndex: index, Applied: merged.Count, Err: cause}

	telemetry.HandleSpanError(span, "failed to apply mutation batch", err)

	applier.probe.ApplyFailed(graphName, index, cause)

	applier.logger.Log(ctx, log.LevelError, "graph batch apply failed",
		log.String("graph", graphName),
		log.String("strategy", applier.strategy.Name()),
		log.Int("batch_index", index),
		log.Int("applied", merged.Count),
		log.Err(cause))

	merged.Success = false

	return merged, err
}

func (applier *Applier) initialized() bool {
	return applier != nil && applier.strategy != nil && applier.probe != nil && applier.logger != nil
}
