package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/log"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrOpen is returned when the breaker rejects a call because the guarded
// service tripped it open.
var ErrOpen = errors.New("circuit breaker open")

// State represents the breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Config holds circuit breaker configuration.
type Config struct {
	MaxRequests         uint32        // max probe requests while half-open
	Interval            time.Duration // closed-state count reset window
	Timeout             time.Duration // open-state duration before half-open
	ConsecutiveFailures uint32        // consecutive failures that trip the breaker
	FailureRatio        float64       // failure ratio that trips the breaker
	MinRequests         uint32        // min requests before the ratio is considered
}

// DefaultConfig provides balanced settings for most services.
func DefaultConfig() Config {
	return Config{
		MaxRequests:         3,
		Interval:            2 * time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 15,
		FailureRatio:        0.5,
		MinRequests:         10,
	}
}

// AuthorizationStoreConfig is tuned for the SpiceDB relationship store: the
// relay retries through the outbox anyway, so the breaker trips fast to
// shed load from a struggling store and recovers on short probes.
func AuthorizationStoreConfig() Config {
	return Config{
		MaxRequests:         2,
		Interval:            time.Minute,
		Timeout:             15 * time.Second,
		ConsecutiveFailures: 5,
		FailureRatio:        0.4,
		MinRequests:         5,
	}
}

// Breaker guards calls to one external service.
type Breaker struct {
	name    string
	breaker *gobreaker.CircuitBreaker
	logger  log.Logger
	trips   metric.Int64Counter
}

// New creates a Breaker for the named service. A nil logger is replaced
// with the no-op logger.
func New(name string, cfg Config, logger log.Logger) *Breaker {
	if logger == nil {
		logger = log.NewNop()
	}

	b := &Breaker{name: name, logger: logger}

	meter := otel.GetMeterProvider().Meter("kartograph.circuitbreaker")
	if counter, err := meter.Int64Counter(
		"circuitbreaker.state_changes",
		metric.WithUnit("1"),
		metric.WithDescription("Circuit breaker state transitions"),
	); err == nil {
		b.trips = counter
	}

	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)

			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures ||
				(counts.Requests >= cfg.MinRequests && failureRatio >= cfg.FailureRatio)
		},
		OnStateChange: func(_ string, from gobreaker.State, to gobreaker.State) {
			b.onStateChange(from, to)
		},
	})

	return b
}

// Execute runs fn through the breaker. When the breaker is open or
// half-open saturated, the call is rejected with ErrOpen without invoking
// fn; the caller's normal retry path (the outbox) handles it later.
func (b *Breaker) Execute(fn func() error) error {
	if b == nil || b.breaker == nil {
		return fn()
	}

	_, err := b.breaker.Execute(func() (any, error) {
		return nil, fn()
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", b.name, ErrOpen)
	}

	return err
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	if b == nil || b.breaker == nil {
		return StateClosed
	}

	switch b.breaker.State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

func (b *Breaker) onStateChange(from, to gobreaker.State) {
	ctx := context.Background()

	b.logger.Log(ctx, log.LevelWarn, "circuit breaker state change",
		log.String("service", b.name),
		log.String("from", from.String()),
		log.String("to", to.String()),
	)

	if b.trips != nil {
		b.trips.Add(ctx, 1, metric.WithAttributes(
			attribute.String("service", b.name),
			attribute.String("to", to.String()),
		))
	}
}
