package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/backoff"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/internal/nilcheck"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/log"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/runtime"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// CycleResult summarizes one fetch-and-process cycle.
type CycleResult struct {
	// Fetched is how many entries the cycle locked. A full batch means more
	// work is likely waiting, so the worker drains again immediately.
	Fetched int
	// Processed, Retried and DeadLettered partition the handled entries by
	// outcome.
	Processed    int
	Retried      int
	DeadLettered int
}

// Worker drains the outbox: it claims pending entries with row locks,
// hands each to the Handler, and records the outcome on the same
// transaction so the claim and its bookkeeping commit atomically.
//
// An entry whose handler fails is released back to pending (or
// dead-lettered) when the cycle commits, so it becomes visible to the next
// cycle rather than being retried within the current one.
type Worker struct {
	repo    Repository
	handler Handler
	begin   func(ctx context.Context) (Tx, error)

	cfg    Config
	logger log.Logger
	tracer trace.Tracer
	probe  Probe

	wake chan struct{}

	runStateMu sync.Mutex
	running    bool
	cancelFunc context.CancelFunc
	stop       chan struct{}
	stopOnce   sync.Once

	cycleWg sync.WaitGroup
}

var _ kartograph.App = (*Worker)(nil)

// NewWorker builds a Worker over db. The repository claims and updates
// entries, the handler performs the actual delivery.
func NewWorker(db *sql.DB, repo Repository, handler Handler, opts ...WorkerOption) (*Worker, error) {
	if db == nil {
		return nil, ErrDatabaseRequired
	}

	if nilcheck.Interface(repo) {
		return nil, ErrRepositoryRequired
	}

	if nilcheck.Interface(handler) {
		return nil, ErrHandlerRequired
	}

	worker := &Worker{
		repo:    repo,
		handler: handler,
		begin: func(ctx context.Context) (Tx, error) {
			return db.BeginTx(ctx, nil)
		},
		cfg:    DefaultConfig(),
		logger: log.NewNop(),
		tracer: noop.NewTracerProvider().Tracer("kartograph.noop"),
		probe:  NopProbe{},
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(worker)
		}
	}

	worker.cfg.normalize()

	return worker, nil
}

// Run starts the worker loop until Stop is called. It satisfies
// kartograph.App so the worker can ride a Launcher.
func (worker *Worker) Run(launcher *kartograph.Launcher) error {
	if launcher != nil && launcher.Logger != nil {
		launcher.Logger.Log(context.Background(), log.LevelInfo, "outbox worker started")
		defer launcher.Logger.Log(context.Background(), log.LevelInfo, "outbox worker stopped")
	}

	return worker.RunContext(context.Background())
}

// RunContext runs the worker loop until Stop is called or ctx is
// cancelled. Cycles are triggered by Wake pushes, with the poll ticker as
// a fallback for missed notifications. Both paths and a clean stop return
// nil.
func (worker *Worker) RunContext(parentCtx context.Context) error {
	if worker == nil {
		return ErrWorkerRequired
	}

	if parentCtx == nil {
		parentCtx = context.Background()
	}

	ctx, cancel := context.WithCancel(parentCtx)
	if !worker.registerRun(cancel) {
		cancel()

		return ErrWorkerRunning
	}

	defer worker.clearRun()
	defer cancel()

	worker.probe.WorkerStarted()
	defer worker.probe.WorkerStopped()

	worker.logger.Log(ctx, log.LevelInfo, "outbox worker running",
		log.Int("batch_size", worker.cfg.BatchSize),
		log.Duration("poll_interval", worker.cfg.PollInterval),
	)

	ticker := time.NewTicker(worker.cfg.PollInterval)
	defer ticker.Stop()

	// Entries may have accumulated while the worker was down; drain them
	// before waiting for the first tick or wake.
	worker.runDrain(ctx)

	for {
		select {
		case <-worker.stop:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if worker.stopped(ctx) {
				return nil
			}

			worker.runDrain(ctx)
		case <-worker.wake:
			if worker.stopped(ctx) {
				return nil
			}

			worker.runDrain(ctx)
		}
	}
}

// Wake nudges the worker to drain now instead of waiting for the next poll
// tick. The signal coalesces: waking an already-signalled worker is a
// no-op, so a notification storm costs at most one extra cycle.
func (worker *Worker) Wake() {
	if worker == nil {
		return
	}

	select {
	case worker.wake <- struct{}{}:
	default:
	}
}

// Stop signals the worker loop to stop and cancels the in-flight drain.
func (worker *Worker) Stop() {
	if worker == nil {
		return
	}

	worker.stopOnce.Do(func() {
		worker.runStateMu.Lock()
		cancel := worker.cancelFunc
		stop := worker.stop
		if stop == nil {
			stop = make(chan struct{})
			worker.stop = stop
		}
		worker.runStateMu.Unlock()

		if cancel != nil {
			cancel()
		}

		close(stop)
	})
}

// Shutdown stops the worker and waits for the in-flight cycle to finish
// committing, or for ctx to expire.
func (worker *Worker) Shutdown(ctx context.Context) error {
	if worker == nil {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}

	worker.Stop()

	done := make(chan struct{})

	runtime.SafeGo(worker.logger, "outbox.worker_shutdown_wait", func() {
		worker.cycleWg.Wait()
		close(done)
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("outbox worker shutdown: %w", ctx.Err())
	}
}

// ProcessOnce runs a single fetch-and-process cycle outside the run loop.
// Useful for tests and manual drains.
func (worker *Worker) ProcessOnce(ctx context.Context) (CycleResult, error) {
	if worker == nil {
		return CycleResult{}, ErrWorkerRequired
	}

	if ctx == nil {
		ctx = context.Background()
	}

	worker.cycleWg.Add(1)
	defer worker.cycleWg.Done()

	return worker.runCycle(ctx)
}

// runDrain wraps drain with in-flight tracking and panic recovery so one
// poisoned cycle cannot kill the loop.
func (worker *Worker) runDrain(ctx context.Context) {
	worker.cycleWg.Add(1)
	defer worker.cycleWg.Done()
	defer runtime.RecoverWithPolicyAndContext(ctx, worker.logger, "outbox", "worker_drain", runtime.KeepRunning)

	worker.drain(ctx)
}

// drain runs cycles until the backlog is exhausted: a cycle that fetches
// less than a full batch means nothing more is waiting. Cycle errors sleep
// with capped jittered backoff and retry; the attempt counter resets on
// the first clean cycle.
func (worker *Worker) drain(ctx context.Context) {
	attempt := 0

	for {
		if ctx.Err() != nil {
			return
		}

		start := time.Now()

		result, err := worker.runCycle(ctx)
		if err != nil {
			worker.probe.WorkerError("cycle", err)
			worker.logger.Log(ctx, log.LevelError, "outbox cycle failed",
				log.Int("attempt", attempt+1),
				log.String("error", sanitizeCause(err)),
			)

			delay := backoff.CappedExponentialWithJitter(worker.cfg.FetchBackoffBase, worker.cfg.FetchBackoffMax, attempt)
			attempt++

			if sleepErr := backoff.SleepWithContext(ctx, delay); sleepErr != nil {
				return
			}

			continue
		}

		attempt = 0

		worker.probe.CycleCompleted(result, time.Since(start))

		if result.Fetched < worker.cfg.BatchSize {
			return
		}
	}
}

// runCycle claims one batch on a fresh transaction, handles each entry and
// records its outcome on that same transaction, then commits. The commit
// releases the row locks; until then no other worker can see the batch.
func (worker *Worker) runCycle(ctx context.Context) (CycleResult, error) {
	var result CycleResult

	cycleCtx, span := worker.tracer.Start(ctx, "outbox.worker.cycle")
	defer span.End()

	tx, err := worker.begin(cycleCtx)
	if err != nil {
		err = fmt.Errorf("begin outbox cycle transaction: %w", err)
		telemetry.HandleSpanError(&span, "begin transaction", err)

		return result, err
	}

	defer func() {
		_ = tx.Rollback()
	}()

	entries, err := worker.repo.FetchUnprocessed(cycleCtx, tx, worker.cfg.BatchSize)
	if err != nil {
		err = fmt.Errorf("fetch unprocessed outbox entries: %w", err)
		telemetry.HandleSpanError(&span, "fetch unprocessed", err)

		return result, err
	}

	result.Fetched = len(entries)

	span.SetAttributes(attribute.Int("outbox.fetched", result.Fetched))

	for _, entry := range entries {
		if cycleCtx.Err() != nil {
			// Shutdown mid-batch: stop handling but keep the bookkeeping
			// already written. The commit below releases the untouched
			// rows back to pending for the next worker.
			break
		}

		if err := worker.handleEntry(cycleCtx, tx, entry, &result); err != nil {
			telemetry.HandleSpanError(&span, "entry bookkeeping", err)

			return result, err
		}
	}

	if err := tx.Commit(); err != nil {
		err = fmt.Errorf("commit outbox cycle: %w", err)
		telemetry.HandleSpanError(&span, "commit cycle", err)

		return result, err
	}

	return result, nil
}

// handleEntry delivers one entry and records the outcome. A handler error
// is not an error here: it becomes a retry or dead-letter transition. Only
// bookkeeping failures propagate, because a failed statement aborts the
// postgres transaction and the rest of the cycle cannot continue on it.
func (worker *Worker) handleEntry(ctx context.Context, tx Tx, entry *Entry, result *CycleResult) error {
	if entry == nil {
		return nil
	}

	handleErr := worker.invokeHandler(ctx, entry)
	if handleErr == nil {
		if err := worker.repo.MarkProcessed(ctx, tx, entry.ID); err != nil {
			return fmt.Errorf("mark outbox entry %s processed: %w", entry.ID, err)
		}

		result.Processed++
		worker.probe.EntryProcessed(entry)

		return nil
	}

	deadLettered, err := worker.repo.RecordFailure(ctx, tx, entry.ID, handleErr, worker.cfg.MaxRetries)
	if err != nil {
		return fmt.Errorf("record outbox entry %s failure: %w", entry.ID, err)
	}

	if deadLettered {
		result.DeadLettered++
		worker.probe.EntryDeadLettered(entry, handleErr)

		return nil
	}

	result.Retried++
	worker.probe.EntryRetried(entry, handleErr)

	return nil
}

// invokeHandler converts a handler panic into a handler error so a
// poisoned payload walks the same retry and dead-letter path as any other
// failure.
func (worker *Worker) invokeHandler(ctx context.Context, entry *Entry) (handleErr error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			runtime.HandlePanicValue(ctx, worker.logger, recovered, "outbox", "handler")

			handleErr = fmt.Errorf("outbox handler panicked: %v", recovered)
		}
	}()

	return worker.handler.Handle(ctx, entry)
}

func (worker *Worker) stopped(ctx context.Context) bool {
	select {
	case <-worker.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (worker *Worker) registerRun(cancel context.CancelFunc) bool {
	worker.runStateMu.Lock()
	defer worker.runStateMu.Unlock()

	if worker.running {
		return false
	}

	if worker.stop == nil || signalClosed(worker.stop) {
		worker.stop = make(chan struct{})
		worker.stopOnce = sync.Once{}
	}

	worker.running = true
	worker.cancelFunc = cancel

	return true
}

func (worker *Worker) clearRun() {
	worker.runStateMu.Lock()
	defer worker.runStateMu.Unlock()

	worker.running = false
	worker.cancelFunc = nil
}

func signalClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
