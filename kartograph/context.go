package kartograph

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ErrNilParentContext is returned when a derived context is requested from a nil parent.
var ErrNilParentContext = errors.New("cannot create context from nil parent")

type customContextKey string

// CustomContextKey is the context key used to store CustomContextKeyValue.
var CustomContextKey = customContextKey("custom_context")

// CustomContextKeyValue holds the request-scoped facilities attached to a context:
// the correlation header, the tracer and the logger used by everything downstream.
type CustomContextKeyValue struct {
	HeaderID string
	Tracer   trace.Tracer
	Logger   log.Logger
}

// NewLoggerFromContext extracts the Logger stored in ctx, or a no-op logger
// when none was attached.
//
//nolint:ireturn
func NewLoggerFromContext(ctx context.Context) log.Logger {
	if customContext, ok := ctx.Value(CustomContextKey).(*CustomContextKeyValue); ok &&
		customContext.Logger != nil {
		return customContext.Logger
	}

	return &log.NopLogger{}
}

// ContextWithLogger returns a context carrying the given Logger.
func ContextWithLogger(ctx context.Context, logger log.Logger) context.Context {
	values, _ := ctx.Value(CustomContextKey).(*CustomContextKeyValue)
	if values == nil {
		values = &CustomContextKeyValue{}
	}

	values.Logger = logger

	return context.WithValue(ctx, CustomContextKey, values)
}

// ContextWithTracer returns a context carrying the given trace.Tracer.
func ContextWithTracer(ctx context.Context, tracer trace.Tracer) context.Context {
	values, _ := ctx.Value(CustomContextKey).(*CustomContextKeyValue)
	if values == nil {
		values = &CustomContextKeyValue{}
	}

	values.Tracer = tracer

	return context.WithValue(ctx, CustomContextKey, values)
}

// ContextWithHeaderID returns a context carrying the given correlation header ID.
func ContextWithHeaderID(ctx context.Context, headerID string) context.Context {
	values, _ := ctx.Value(CustomContextKey).(*CustomContextKeyValue)
	if values == nil {
		values = &CustomContextKeyValue{}
	}

	values.HeaderID = headerID

	return context.WithValue(ctx, CustomContextKey, values)
}

// TrackingComponents is the complete set of tracking facilities extracted from
// a context.
type TrackingComponents struct {
	Logger   log.Logger
	Tracer   trace.Tracer
	HeaderID string
}

// NewTrackingFromContext extracts logger, tracer and header ID from ctx.
// Missing or nil components are replaced with functional fallbacks, so the
// results are always safe to use without nil checks.
//
//nolint:ireturn
func NewTrackingFromContext(ctx context.Context) (log.Logger, trace.Tracer, string) {
	components := extractTrackingComponents(ctx)

	return components.Logger, components.Tracer, components.HeaderID
}

func extractTrackingComponents(ctx context.Context) TrackingComponents {
	customContext, ok := ctx.Value(CustomContextKey).(*CustomContextKeyValue)
	if !ok || customContext == nil {
		return newDefaultTrackingComponents()
	}

	return TrackingComponents{
		Logger:   resolveLogger(customContext.Logger),
		Tracer:   resolveTracer(customContext.Tracer),
		HeaderID: resolveHeaderID(customContext.HeaderID),
	}
}

//nolint:ireturn
func resolveLogger(logger log.Logger) log.Logger {
	if logger != nil {
		return logger
	}

	return &log.NopLogger{}
}

//nolint:ireturn
func resolveTracer(tracer trace.Tracer) trace.Tracer {
	if tracer != nil {
		return tracer
	}

	return otel.Tracer("kartograph.default")
}

func resolveHeaderID(headerID string) string {
	if trimmed := strings.TrimSpace(headerID); trimmed != "" {
		return trimmed
	}

	return uuid.New().String()
}

func newDefaultTrackingComponents() TrackingComponents {
	return TrackingComponents{
		Logger:   &log.NopLogger{},
		Tracer:   otel.Tracer("kartograph.default"),
		HeaderID: uuid.New().String(),
	}
}

// WithTimeoutSafe creates a context with the given timeout while respecting
// any existing deadline in the parent: when the parent's deadline is sooner
// than the requested timeout, the parent deadline wins and only a cancellable
// child is created. Returns ErrNilParentContext for a nil parent.
func WithTimeoutSafe(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if parent == nil {
		return nil, nil, ErrNilParentContext
	}

	if deadline, ok := parent.Deadline(); ok {
		if time.Until(deadline) < timeout {
			ctx, cancel := context.WithCancel(parent)

			return ctx, cancel, nil
		}
	}

	ctx, cancel := context.WithTimeout(parent, timeout)

	return ctx, cancel, nil
}
