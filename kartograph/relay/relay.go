package relay

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/circuitbreaker"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/errgroup"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/internal/nilcheck"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/log"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/outbox"
	outboxpg "github.com/openshift-hyperfleet/kartograph-sub003/kartograph/outbox/postgres"
	kpostgres "github.com/openshift-hyperfleet/kartograph-sub003/kartograph/postgres"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/projection"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/spicedb"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrRelayRequired is returned when a nil relay is asked to run.
	ErrRelayRequired = errors.New("relay is required")
	// ErrRelayRunning is returned when RunContext is called on a relay that
	// is already running.
	ErrRelayRunning = errors.New("relay is already running")
	// ErrRelayNotInitialized is returned when a relay was not built with New.
	ErrRelayNotInitialized = errors.New("relay is not initialized; use New")
)

// Option customizes a Relay beyond its config.
type Option func(*Relay)

// WithLogger sets the logger shared by every relay component.
func WithLogger(logger log.Logger) Option {
	return func(relay *Relay) {
		if !nilcheck.Interface(logger) {
			relay.logger = logger
		}
	}
}

// WithTranslators appends translators to the reference set. Event types the
// extra translators handle usually need decoders too; pair this with
// WithEventDecoders.
func WithTranslators(translators ...projection.Translator) Option {
	return func(relay *Relay) {
		relay.translators = append(relay.translators, translators...)
	}
}

// WithEventDecoders registers additional event decoders on the relay codec.
// Call outbox.RegisterJSON inside register for each extra payload type.
func WithEventDecoders(register func(codec *outbox.Codec) error) Option {
	return func(relay *Relay) {
		if register != nil {
			relay.registerEvents = append(relay.registerEvents, register)
		}
	}
}

// WithPermissionsClient injects a prebuilt SpiceDB permissions client and
// skips dialing the configured endpoint. Intended for tests.
func WithPermissionsClient(permissions spicedb.PermissionsClient) Option {
	return func(relay *Relay) {
		if !nilcheck.Interface(permissions) {
			relay.permissions = permissions
		}
	}
}

// WithMeterProvider routes the worker and monitor metrics through the given
// provider. Nil means the global provider.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(relay *Relay) {
		relay.meterProvider = provider
	}
}

// Relay owns the full outbox-to-SpiceDB pipeline: a worker draining the
// outbox table, a listener turning NOTIFY pushes into wakes, and a monitor
// sampling queue depth. New wires the pieces; RunContext runs the three
// loops until the context is cancelled or Shutdown is called.
type Relay struct {
	cfg    Config
	logger log.Logger

	translators    []projection.Translator
	registerEvents []func(*outbox.Codec) error
	permissions    spicedb.PermissionsClient
	meterProvider  metric.MeterProvider

	db        *kpostgres.Client
	codec     *outbox.Codec
	repo      *outboxpg.Repository
	spice     *spicedb.Client
	projector *projection.Projector

	// connectPrimary returns the pool the worker and monitor run on.
	// Defaults to the database client's primary; seam for tests.
	connectPrimary func(ctx context.Context) (*sql.DB, error)

	runStateMu sync.Mutex
	cancelFunc context.CancelFunc
	worker     *outbox.Worker
	listener   *outboxpg.Listener
	monitor    *outbox.Monitor
}

var _ kartograph.App = (*Relay)(nil)

// New validates cfg and wires the pipeline: database client, codec and
// translator registry (the reference set plus any extras), SpiceDB client
// with its breaker, projector, and repository. No connection is established
// until the relay runs.
func New(cfg Config, opts ...Option) (*Relay, error) {
	cfg = cfg.withDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	relay := &Relay{cfg: cfg, logger: log.NewNop()}

	for _, opt := range opts {
		if opt != nil {
			opt(relay)
		}
	}

	db, err := kpostgres.New(kpostgres.Config{
		PrimaryDSN: cfg.PostgresPrimaryDSN,
		ReplicaDSN: cfg.PostgresReplicaDSN,
		Logger:     relay.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("building relay database client: %w", err)
	}

	relay.db = db
	relay.connectPrimary = db.Primary

	codec := outbox.NewCodec()
	if err := projection.RegisterEvents(codec); err != nil {
		return nil, fmt.Errorf("registering reference events: %w", err)
	}

	for _, register := range relay.registerEvents {
		if err := register(codec); err != nil {
			return nil, fmt.Errorf("registering additional events: %w", err)
		}
	}

	relay.codec = codec

	registry, err := projection.NewRegistry(append(projection.DefaultTranslators(), relay.translators...)...)
	if err != nil {
		return nil, fmt.Errorf("building translator registry: %w", err)
	}

	repo, err := outboxpg.NewRepository(codec,
		outboxpg.WithTableName(cfg.OutboxTable),
		outboxpg.WithLogger(relay.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("building outbox repository: %w", err)
	}

	relay.repo = repo

	spiceOpts := make([]spicedb.ClientOption, 0, 2)

	if !cfg.SpiceDBBreakerDisabled {
		breaker := circuitbreaker.New("spicedb", circuitbreaker.AuthorizationStoreConfig(), relay.logger)
		spiceOpts = append(spiceOpts, spicedb.WithBreaker(breaker))
	}

	if relay.permissions != nil {
		spiceOpts = append(spiceOpts, spicedb.WithPermissionsClient(relay.permissions))
	}

	spice, err := spicedb.NewClient(spicedb.ClientConfig{
		Endpoint:    cfg.SpiceDBEndpoint,
		BearerToken: cfg.SpiceDBToken,
		Insecure:    cfg.SpiceDBInsecure,
		Logger:      relay.logger,
	}, spiceOpts...)
	if err != nil {
		return nil, fmt.Errorf("building spicedb client: %w", err)
	}

	relay.spice = spice

	projector, err := projection.NewProjector(codec, registry, spice, projection.WithLogger(relay.logger))
	if err != nil {
		_ = spice.Close()

		return nil, fmt.Errorf("building projector: %w", err)
	}

	relay.projector = projector

	return relay, nil
}

// Run starts the relay until Shutdown is called. It satisfies
// kartograph.App so the relay can ride a Launcher.
func (relay *Relay) Run(launcher *kartograph.Launcher) error {
	if launcher != nil && !nilcheck.Interface(launcher.Logger) {
		launcher.Logger.Log(context.Background(), log.LevelInfo, "outbox relay started")
		defer launcher.Logger.Log(context.Background(), log.LevelInfo, "outbox relay stopped")
	}

	return relay.RunContext(context.Background())
}

// RunContext connects to the database, optionally migrates the outbox
// schema, and runs the worker, listener, and monitor until ctx is cancelled
// or Shutdown is called. The loops share a panic-recovering errgroup: the
// first loop to fail cancels the rest, and the failure comes back here.
// Orderly shutdown returns nil.
func (relay *Relay) RunContext(parentCtx context.Context) error {
	if relay == nil {
		return ErrRelayRequired
	}

	if !relay.initialized() {
		return ErrRelayNotInitialized
	}

	if parentCtx == nil {
		parentCtx = context.Background()
	}

	ctx, cancel := context.WithCancel(parentCtx)
	if !relay.registerRun(cancel) {
		cancel()

		return ErrRelayRunning
	}

	defer relay.clearRun()
	defer cancel()

	if relay.cfg.Migrate {
		if err := relay.migrate(ctx); err != nil {
			return err
		}
	}

	db, err := relay.connectPrimary(ctx)
	if err != nil {
		return fmt.Errorf("connecting relay database: %w", err)
	}

	worker, listener, monitor, err := relay.buildLoops(db)
	if err != nil {
		return err
	}

	relay.setLoops(worker, listener, monitor)

	relay.logger.Log(ctx, log.LevelInfo, "relay running",
		log.String("outbox_table", relay.repo.TableName()),
		log.String("spicedb_endpoint", relay.cfg.SpiceDBEndpoint),
	)

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLogger(relay.logger)

	grp.Go(func() error { return worker.RunContext(grpCtx) })
	grp.Go(func() error { return listener.RunContext(grpCtx) })
	grp.Go(func() error { return monitor.RunContext(grpCtx) })

	return grp.Wait()
}

// Shutdown stops the loops in order and releases the relay's connections:
// first the listener so no new wakes arrive, then the monitor and the run
// loop, then the worker, waiting up to ctx for its in-flight cycle to
// commit. A shut-down relay must not be reused.
func (relay *Relay) Shutdown(ctx context.Context) error {
	if relay == nil {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}

	relay.runStateMu.Lock()
	listener := relay.listener
	worker := relay.worker
	cancel := relay.cancelFunc
	relay.runStateMu.Unlock()

	if listener != nil {
		listener.Stop()
	}

	if cancel != nil {
		cancel()
	}

	var errs []error

	if worker != nil {
		if err := worker.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if err := relay.spice.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing spicedb client: %w", err))
	}

	if relay.db != nil {
		if err := relay.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database client: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (relay *Relay) migrate(ctx context.Context) error {
	migrator, err := outboxpg.NewMigrator(relay.cfg.PostgresPrimaryDSN, relay.cfg.PostgresDatabaseName, relay.logger)
	if err != nil {
		return fmt.Errorf("building outbox migrator: %w", err)
	}

	if err := migrator.Up(ctx); err != nil {
		return fmt.Errorf("migrating outbox schema: %w", err)
	}

	return nil
}

// buildLoops assembles the per-run worker, listener, and monitor over the
// connected pool. The worker is the listener's waker, so wiring order
// matters.
func (relay *Relay) buildLoops(db *sql.DB) (*outbox.Worker, *outboxpg.Listener, *outbox.Monitor, error) {
	probe, err := outbox.NewMetricsProbe(relay.meterProvider)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("building worker metrics probe: %w", err)
	}

	workerOpts := []outbox.WorkerOption{
		outbox.WithLogger(relay.logger),
		outbox.WithProbe(probe),
	}

	if relay.cfg.BatchSize > 0 {
		workerOpts = append(workerOpts, outbox.WithBatchSize(relay.cfg.BatchSize))
	}

	if relay.cfg.MaxRetries > 0 {
		workerOpts = append(workerOpts, outbox.WithMaxRetries(relay.cfg.MaxRetries))
	}

	if relay.cfg.PollInterval > 0 {
		workerOpts = append(workerOpts, outbox.WithPollInterval(relay.cfg.PollInterval))
	}

	worker, err := outbox.NewWorker(db, relay.repo, relay.projector, workerOpts...)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("building outbox worker: %w", err)
	}

	listener, err := outboxpg.NewListener(outboxpg.ListenerConfig{
		DSN:     relay.cfg.PostgresPrimaryDSN,
		Channel: relay.cfg.OutboxChannel,
		Logger:  relay.logger,
	}, worker)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("building outbox listener: %w", err)
	}

	monitor, err := outbox.NewMonitor(db, relay.repo, outbox.MonitorConfig{
		Schedule:      relay.cfg.MonitorSchedule,
		MeterProvider: relay.meterProvider,
		Logger:        relay.logger,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("building outbox monitor: %w", err)
	}

	return worker, listener, monitor, nil
}

func (relay *Relay) initialized() bool {
	return relay.db != nil && relay.repo != nil && relay.projector != nil && relay.connectPrimary != nil
}

func (relay *Relay) registerRun(cancel context.CancelFunc) bool {
	relay.runStateMu.Lock()
	defer relay.runStateMu.Unlock()

	if relay.cancelFunc != nil {
		return false
	}

	relay.cancelFunc = cancel

	return true
}

func (relay *Relay) setLoops(worker *outbox.Worker, listener *outboxpg.Listener, monitor *outbox.Monitor) {
	relay.runStateMu.Lock()
	relay.worker = worker
	relay.listener = listener
	relay.monitor = monitor
	relay.runStateMu.Unlock()
}

func (relay *Relay) clearRun() {
	relay.runStateMu.Lock()
	relay.cancelFunc = nil
	relay.runStateMu.Unlock()
}
