package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/log"
	kpostgres "github.com/openshift-hyperfleet/kartograph-sub003/kartograph/postgres"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/telemetry"
)

const (
	defaultMaxConns        = 25
	defaultMinConns        = 2
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
)

var (
	// ErrInvalidConfig is returned when required configuration is missing.
	ErrInvalidConfig = errors.New("invalid graph store configuration")
	// ErrNilContext is returned when a nil context is passed to a connection method.
	ErrNilContext = errors.New("context must not be nil")
	// ErrInvalidGraphName is returned when a graph name fails validation.
	ErrInvalidGraphName = errors.New("invalid graph name")

	graphNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,62}$`)
)

const ensureGraphSQL = `INSERT INTO kg_graphs (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`

// Config holds connection settings for the graph store pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	Logger          log.Logger
}

func (c Config) validate() error {
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("%w: DSN is required", ErrInvalidConfig)
	}

	return nil
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}

	if c.MaxConns <= 0 {
		c.MaxConns = defaultMaxConns
	}

	if c.MinConns < 0 {
		c.MinConns = defaultMinConns
	}

	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = defaultConnMaxLifetime
	}

	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = defaultConnMaxIdleTime
	}

	return c
}

// Client manages the pgx pool over the graph store. Bulk strategies begin
// their transactions here, and Acquire hands out raw connections for copy
// protocols that need one.
type Client struct {
	cfg  Config
	pool *pgxpool.Pool
	mu   sync.RWMutex

	// Seam for tests.
	newPool func(ctx context.Context, cfg *pgxpool.Config) (*pgxpool.Pool, error)
}

var _ Beginner = (*Client)(nil)

// New validates the configuration and returns an unconnected Client.
// Connect (or any lazy accessor) establishes the pool.
func New(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Client{cfg: cfg.withDefaults(), newPool: pgxpool.NewWithConfig}, nil
}

// Connect builds a fresh pool and swaps it in. On failure the previous
// pool, if any, stays active; on success it is closed after the swap.
func (c *Client) Connect(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled before graph store connection: %w", err)
	}

	c.cfg.Logger.Log(ctx, log.LevelInfo, "connecting to graph store")

	poolCfg, err := pgxpool.ParseConfig(c.cfg.DSN)
	if err != nil {
		sanitized := kpostgres.Sanitize(err)
		c.cfg.Logger.Log(ctx, log.LevelError, "failed to parse graph store DSN", log.Err(sanitized))

		return fmt.Errorf("failed to parse graph store DSN: %w", sanitized)
	}

	poolCfg.MaxConns = c.cfg.MaxConns
	poolCfg.MinConns = c.cfg.MinConns
	poolCfg.MaxConnLifetime = c.cfg.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = c.cfg.ConnMaxIdleTime

	pool, err := c.newPool(ctx, poolCfg)
	if err != nil {
		sanitized := kpostgres.Sanitize(err)
		c.cfg.Logger.Log(ctx, log.LevelError, "failed to create graph store pool", log.Err(sanitized))

		return fmt.Errorf("failed to create graph store pool: %w", sanitized)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		sanitized := kpostgres.Sanitize(err)
		c.cfg.Logger.Log(ctx, log.LevelError, "failed to ping graph store", log.Err(sanitized))

		return fmt.Errorf("failed to ping graph store: %w", sanitized)
	}

	old := c.pool
	c.pool = pool

	if old != nil {
		old.Close()
	}

	c.cfg.Logger.Log(ctx, log.LevelInfo, "connected to graph store")

	return nil
}

// Pool returns the connection pool, connecting lazily on first use.
func (c *Client) Pool(ctx context.Context) (*pgxpool.Pool, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	c.mu.RLock()
	pool := c.pool
	c.mu.RUnlock()

	if pool != nil {
		return pool, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool == nil {
		if err := c.connectLocked(ctx); err != nil {
			return nil, err
		}
	}

	return c.pool, nil
}

// Begin starts a transaction on the pool, connecting lazily on first use.
// Strategies run each batch in one of these.
func (c *Client) Begin(ctx context.Context) (pgx.Tx, error) {
	pool, err := c.Pool(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin graph store transaction: %w", kpostgres.Sanitize(err))
	}

	return tx, nil
}

// Acquire checks a raw connection out of the pool for protocols that need
// exclusive use of one. The caller releases it.
func (c *Client) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	pool, err := c.Pool(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire graph store connection: %w", kpostgres.Sanitize(err))
	}

	return conn, nil
}

// Ping verifies connectivity, connecting lazily on first use.
func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.Pool(ctx)
	if err != nil {
		return err
	}

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping graph store: %w", kpostgres.Sanitize(err))
	}

	return nil
}

// EnsureGraph registers a graph name, creating it on first call and leaving
// it untouched afterwards. Elements and labels reference registered names,
// so this runs before the first load into a new graph.
func (c *Client) EnsureGraph(ctx context.Context, name string) error {
	if ctx == nil {
		return ErrNilContext
	}

	name = strings.TrimSpace(name)
	if !graphNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidGraphName, name)
	}

	pool, err := c.Pool(ctx)
	if err != nil {
		return err
	}

	_, tracer, _ := kartograph.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.ensure_graph")
	defer span.End()

	if _, err := pool.Exec(ctx, ensureGraphSQL, name); err != nil {
		err = fmt.Errorf("ensuring graph %s: %w", name, err)
		telemetry.HandleSpanError(&span, "failed to ensure graph", err)

		return err
	}

	return nil
}

// Close releases the pool. The client can reconnect afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}
}
