package projection

import (
	"context"
	"fmt"

	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/internal/nilcheck"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/log"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/outbox"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/spicedb"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/telemetry"
)

// ProjectorOption customizes a Projector.
type ProjectorOption func(*Projector)

// WithLogger sets the projector logger. Nil keeps the no-op default.
func WithLogger(logger log.Logger) ProjectorOption {
	return func(projector *Projector) {
		if !nilcheck.Interface(logger) {
			projector.logger = logger
		}
	}
}

// Projector is the outbox worker's handler: it decodes each fetched entry,
// translates it, and applies the resulting operations to the permission
// store in order. Any error returns the entry to the retry path; there is no
// transaction across operations, partial application is tolerated because
// every operation is idempotent on its own.
type Projector struct {
	codec    *outbox.Codec
	registry *Registry
	applier  spicedb.Applier
	logger   log.Logger
}

var _ outbox.Handler = (*Projector)(nil)

// NewProjector wires a codec, a translator registry, and an applier into a
// worker handler.
func NewProjector(codec *outbox.Codec, registry *Registry, applier spicedb.Applier, opts ...ProjectorOption) (*Projector, error) {
	if codec == nil {
		return nil, ErrCodecRequired
	}

	if registry == nil {
		return nil, ErrRegistryRequired
	}

	if nilcheck.Interface(applier) {
		return nil, ErrApplierRequired
	}

	projector := &Projector{
		codec:    codec,
		registry: registry,
		applier:  applier,
		logger:   log.NewNop(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(projector)
		}
	}

	return projector, nil
}

// Handle projects one outbox entry into the permission store.
func (projector *Projector) Handle(ctx context.Context, entry *outbox.Entry) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if !projector.initialized() {
		return ErrProjectorNotInitialized
	}

	if entry == nil {
		return outbox.ErrEntryRequired
	}

	_, tracer, _ := kartograph.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "projection.handle_entry")
	defer span.End()

	event, err := projector.codec.Decode(entry.EventType, entry.Payload)
	if err != nil {
		telemetry.HandleSpanError(&span, "failed to decode outbox payload", err)

		return fmt.Errorf("decoding entry %s: %w", entry.ID, err)
	}

	ops, err := projector.registry.Translate(ctx, entry.EventType, event)
	if err != nil {
		telemetry.HandleSpanError(&span, "failed to translate event", err)

		return fmt.Errorf("translating entry %s: %w", entry.ID, err)
	}

	for i, op := range ops {
		if err := projector.applier.Apply(ctx, op); err != nil {
			telemetry.HandleSpanError(&span, "failed to apply relationship operation", err)

			projector.logger.Log(ctx, log.LevelWarn, "projection apply failed",
				log.String("entry_id", entry.ID.String()),
				log.String("event_type", entry.EventType),
				log.String("operation", op.String()),
				log.Err(err))

			return fmt.Errorf("applying operation %d of %d for entry %s: %w", i+1, len(ops), entry.ID, err)
		}
	}

	projector.logger.Log(ctx, log.LevelDebug, "entry projected",
		log.String("entry_id", entry.ID.String()),
		log.String("event_type", entry.EventType),
		log.Int("operations", len(ops)))

	return nil
}

func (projector *Projector) initialized() bool {
	return projector != nil && projector.codec != nil && projector.registry != nil && projector.applier != nil
}
