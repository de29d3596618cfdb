package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/backoff"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/internal/nilcheck"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/log"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/outbox"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/runtime"
)

const (
	defaultReconnectBackoffBase = 500 * time.Millisecond
	defaultReconnectBackoffMax  = 30 * time.Second
	listenerCloseTimeout        = 5 * time.Second
)

var (
	ErrWakerRequired    = errors.New("waker is required")
	ErrDSNRequired      = errors.New("listener DSN is required")
	ErrListenerRequired = errors.New("listener is required")
	ErrListenerRunning  = errors.New("listener is already running")
)

// Waker receives a nudge whenever a notification arrives. outbox.Worker
// satisfies it.
type Waker interface {
	Wake()
}

// notifyConn is the slice of *pgx.Conn the listener drives. The seam exists
// so tests can run sessions without a server.
type notifyConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// ListenerConfig holds the settings for a notification listener. The notify
// channel lives here, not on the worker: the worker only owns a Wake signal.
type ListenerConfig struct {
	DSN                  string
	Channel              string
	ReconnectBackoffBase time.Duration
	ReconnectBackoffMax  time.Duration
	Logger               log.Logger
}

// Listener holds a dedicated PostgreSQL connection under LISTEN and wakes
// the worker on every notification. LISTEN/NOTIFY is delivery-best-effort,
// so the listener only shortens latency; the worker's poll ticker remains
// the correctness backstop.
type Listener struct {
	dsn         string
	channel     string
	waker       Waker
	logger      log.Logger
	backoffBase time.Duration
	backoffMax  time.Duration

	// Seam for tests.
	connect func(ctx context.Context) (notifyConn, error)

	runStateMu sync.Mutex
	running    bool
	cancelFunc context.CancelFunc
}

var _ kartograph.App = (*Listener)(nil)

// NewListener creates a listener that wakes waker on every notification
// published to the configured channel.
func NewListener(cfg ListenerConfig, waker Waker) (*Listener, error) {
	if nilcheck.Interface(waker) {
		return nil, ErrWakerRequired
	}

	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, ErrDSNRequired
	}

	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = DefaultChannel
	}

	if err := validateIdentifier(channel); err != nil {
		return nil, fmt.Errorf("notify channel: %w", err)
	}

	logger := cfg.Logger
	if nilcheck.Interface(logger) {
		logger = log.NewNop()
	}

	backoffBase := cfg.ReconnectBackoffBase
	if backoffBase <= 0 {
		backoffBase = defaultReconnectBackoffBase
	}

	backoffMax := cfg.ReconnectBackoffMax
	if backoffMax <= 0 {
		backoffMax = defaultReconnectBackoffMax
	}

	if backoffMax < backoffBase {
		backoffMax = backoffBase
	}

	listener := &Listener{
		dsn:         strings.TrimSpace(cfg.DSN),
		channel:     channel,
		waker:       waker,
		logger:      logger,
		backoffBase: backoffBase,
		backoffMax:  backoffMax,
	}

	listener.connect = func(ctx context.Context) (notifyConn, error) {
		conn, err := pgx.Connect(ctx, listener.dsn)
		if err != nil {
			return nil, err
		}

		return conn, nil
	}

	return listener, nil
}

// Run implements kartograph.App.
func (listener *Listener) Run(launcher *kartograph.Launcher) error {
	if launcher != nil && !nilcheck.Interface(launcher.Logger) {
		launcher.Logger.Log(context.Background(), log.LevelInfo, "outbox listener started")
		defer launcher.Logger.Log(context.Background(), log.LevelInfo, "outbox listener stopped")
	}

	return listener.RunContext(context.Background())
}

// RunContext listens until the context is cancelled or Stop is called,
// reconnecting with capped jittered backoff whenever the session drops.
// It returns nil on orderly shutdown.
func (listener *Listener) RunContext(parentCtx context.Context) error {
	if listener == nil {
		return ErrListenerRequired
	}

	if parentCtx == nil {
		parentCtx = context.Background()
	}

	ctx, cancel := context.WithCancel(parentCtx)

	if !listener.registerRun(cancel) {
		cancel()

		return ErrListenerRunning
	}

	defer listener.clearRun()
	defer cancel()

	listener.logger.Log(ctx, log.LevelInfo, "outbox listener running",
		log.String("channel", listener.channel),
	)

	attempt := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		err := listener.listenSession(ctx, func() { attempt = 0 })
		if ctx.Err() != nil {
			return nil
		}

		if err == nil {
			err = errors.New("listener session ended")
		}

		listener.logger.Log(ctx, log.LevelWarn, "outbox listener session ended, reconnecting",
			log.Int("attempt", attempt+1),
			log.String("error", outbox.SanitizeErrorMessage(err.Error())),
		)

		delay := backoff.CappedExponentialWithJitter(listener.backoffBase, listener.backoffMax, attempt)
		attempt++

		if sleepErr := backoff.SleepWithContext(ctx, delay); sleepErr != nil {
			return nil
		}
	}
}

// Stop cancels the current run. Safe to call when the listener is not
// running or more than once.
func (listener *Listener) Stop() {
	if listener == nil {
		return
	}

	listener.runStateMu.Lock()
	cancel := listener.cancelFunc
	listener.runStateMu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// listenSession connects, attaches LISTEN and forwards notifications as
// wakes until the connection or the context dies. established fires once
// the channel is attached so the caller can reset its backoff.
func (listener *Listener) listenSession(ctx context.Context, established func()) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			runtime.HandlePanicValue(ctx, listener.logger, recovered, "outbox", "listener")
			err = fmt.Errorf("outbox listener panicked: %v", recovered)
		}
	}()

	conn, err := listener.connect(ctx)
	if err != nil {
		return fmt.Errorf("connecting outbox listener: %w", err)
	}

	defer func() {
		closeCtx, cancelClose := context.WithTimeout(context.Background(), listenerCloseTimeout)
		defer cancelClose()

		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+quoteIdentifier(listener.channel)); err != nil {
		return fmt.Errorf("listening on channel %s: %w", listener.channel, err)
	}

	if established != nil {
		established()
	}

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("waiting for notification: %w", err)
		}

		if notification != nil {
			listener.logger.Log(ctx, log.LevelDebug, "outbox notification received",
				log.String("payload", notification.Payload),
			)
		}

		listener.waker.Wake()
	}
}

func (listener *Listener) registerRun(cancel context.CancelFunc) bool {
	listener.runStateMu.Lock()
	defer listener.runStateMu.Unlock()

	if listener.running {
		return false
	}

	listener.running = true
	listener.cancelFunc = cancel

	return true
}

func (listener *Listener) clearRun() {
	listener.runStateMu.Lock()
	defer listener.runStateMu.Unlock()

	listener.running = false
	listener.cancelFunc = nil
}
