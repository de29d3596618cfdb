package runtime

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const panicRecoveredMetric = "runtime.panics.recovered"

var (
	panicCounter metric.Int64Counter
	panicMu      sync.RWMutex
)

// InitPanicMetrics binds the recovered-panic counter to the given meter
// provider. Call once at startup after telemetry is initialized; later
// calls are no-ops. Recovery works without it, panics are just not counted.
func InitPanicMetrics(provider metric.MeterProvider) error {
	panicMu.Lock()
	defer panicMu.Unlock()

	if provider == nil || panicCounter != nil {
		return nil
	}

	meter := provider.Meter("kartograph.runtime")

	counter, err := meter.Int64Counter(
		panicRecoveredMetric,
		metric.WithUnit("1"),
		metric.WithDescription("Total number of recovered panics"),
	)
	if err != nil {
		return err
	}

	panicCounter = counter

	return nil
}

func recordPanic(ctx context.Context, component, name string) {
	panicMu.RLock()
	counter := panicCounter
	panicMu.RUnlock()

	if counter == nil {
		return
	}

	counter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("component", component),
			attribute.String("goroutine", name),
		),
	)
}

// resetPanicMetrics clears the counter binding. Test hook.
func resetPanicMetrics() {
	panicMu.Lock()
	defer panicMu.Unlock()

	panicCounter = nil
}
