package outbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/cron"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/internal/nilcheck"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// DefaultMonitorSchedule samples queue depths every minute.
const DefaultMonitorSchedule = "*/1 * * * *"

// MonitorConfig configures the depth monitor.
type MonitorConfig struct {
	// Schedule is a five-field cron expression controlling how often depths
	// are sampled. Empty means DefaultMonitorSchedule.
	Schedule string
	// MeterProvider receives the depth gauges. Nil means the global
	// provider.
	MeterProvider metric.MeterProvider
	Logger        log.Logger
}

// Monitor periodically samples how many entries are pending and how many
// are dead-lettered, and reports both as gauges. It reads counts only and
// never touches the entries, so it is safe to run beside any number of
// workers.
//
// The gauge names deliberately differ from the probe's transition
// counters: a depth and a rate must never share a metric name.
type Monitor struct {
	db       Querier
	repo     Repository
	schedule cron.Schedule
	logger   log.Logger

	pending      metric.Int64Gauge
	deadLettered metric.Int64Gauge
}

// NewMonitor builds a Monitor sampling depths through repo on db.
func NewMonitor(db Querier, repo Repository, cfg MonitorConfig) (*Monitor, error) {
	if nilcheck.Interface(db) {
		return nil, ErrDatabaseRequired
	}

	if nilcheck.Interface(repo) {
		return nil, ErrRepositoryRequired
	}

	expr := strings.TrimSpace(cfg.Schedule)
	if expr == "" {
		expr = DefaultMonitorSchedule
	}

	schedule, err := cron.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse outbox monitor schedule: %w", err)
	}

	logger := cfg.Logger
	if nilcheck.Interface(logger) {
		logger = log.NewNop()
	}

	provider := cfg.MeterProvider
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	meter := provider.Meter("kartograph.outbox.monitor")

	pending, err := meter.Int64Gauge(
		"outbox.queue.pending",
		metric.WithDescription("Outbox entries waiting to be processed"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create outbox.queue.pending gauge: %w", err)
	}

	deadLettered, err := meter.Int64Gauge(
		"outbox.queue.dead_lettered",
		metric.WithDescription("Outbox entries parked in the dead-letter state"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create outbox.queue.dead_lettered gauge: %w", err)
	}

	return &Monitor{
		db:           db,
		repo:         repo,
		schedule:     schedule,
		logger:       logger,
		pending:      pending,
		deadLettered: deadLettered,
	}, nil
}

// RunContext samples depths on the configured schedule until ctx is
// cancelled. Sampling failures are logged and the schedule keeps going; a
// monitor must not die because the database blinked.
func (monitor *Monitor) RunContext(ctx context.Context) error {
	if monitor == nil {
		return ErrMonitorRequired
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for {
		next, err := monitor.schedule.Next(time.Now())
		if err != nil {
			return fmt.Errorf("compute next monitor sample time: %w", err)
		}

		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()

			return nil
		case <-timer.C:
		}

		monitor.sample(ctx)
	}
}

// Sample takes one depth measurement immediately. Exposed so operators and
// tests can force a reading outside the schedule.
func (monitor *Monitor) Sample(ctx context.Context) error {
	if monitor == nil {
		return ErrMonitorRequired
	}

	if ctx == nil {
		ctx = context.Background()
	}

	return monitor.sample(ctx)
}

func (monitor *Monitor) sample(ctx context.Context) error {
	pending, err := monitor.repo.CountPending(ctx, monitor.db)
	if err != nil {
		monitor.logger.Log(ctx, log.LevelError, "outbox monitor: count pending failed",
			log.String("error", sanitizeCause(err)),
		)

		return fmt.Errorf("count pending outbox entries: %w", err)
	}

	deadLettered, err := monitor.repo.CountDeadLettered(ctx, monitor.db)
	if err != nil {
		monitor.logger.Log(ctx, log.LevelError, "outbox monitor: count dead-lettered failed",
			log.String("error", sanitizeCause(err)),
		)

		return fmt.Errorf("count dead-lettered outbox entries: %w", err)
	}

	monitor.pending.Record(ctx, pending)
	monitor.deadLettered.Record(ctx, deadLettered)

	if deadLettered > 0 {
		monitor.logger.Log(ctx, log.LevelWarn, "outbox has dead-lettered entries awaiting replay",
			log.Int64("dead_lettered", deadLettered),
		)
	}

	return nil
}
