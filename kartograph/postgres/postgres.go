package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/bxcodec/dbresolver/v2"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/log"

	// Registers the pgx database/sql driver under the name "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
)

var (
	// ErrInvalidConfig is returned when required configuration is missing.
	ErrInvalidConfig = errors.New("invalid postgres configuration")
	// ErrNilContext is returned when a nil context is passed to a connection method.
	ErrNilContext = errors.New("context must not be nil")
	// ErrInvalidDatabaseName is returned when a database name fails validation.
	ErrInvalidDatabaseName = errors.New("invalid database name")
)

// Seams for tests: connection opening and resolver construction are replaced
// by unit tests so connection logic can be exercised without a server.
var (
	dbOpenFn = sql.Open

	createResolverFn = func(primaryDB, replicaDB *sql.DB, logger log.Logger) (_ dbresolver.DB, err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("failed to create resolver: %v", recovered)
			}
		}()

		connectionDB := dbresolver.New(
			dbresolver.WithPrimaryDBs(primaryDB),
			dbresolver.WithReplicaDBs(replicaDB),
			dbresolver.WithLoadBalancer(dbresolver.RoundRobinLB),
		)

		if connectionDB == nil {
			return nil, errors.New("resolver returned nil connection")
		}

		return connectionDB, nil
	}

	connectionStringCredentialsPattern = regexp.MustCompile(`://[^@\s]+@`)
	connectionStringPasswordPattern    = regexp.MustCompile(`(?i)(password=)([^\s&]+)`)
	dbNamePattern                      = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)
)

// SanitizedError carries an error whose message has had credentials redacted
// while preserving the original error for errors.Is/As chains.
type SanitizedError struct {
	sanitized string
	cause     error
}

func (e *SanitizedError) Error() string { return e.sanitized }

func (e *SanitizedError) Unwrap() error { return e.cause }

func sanitizeError(err error) error {
	if err == nil {
		return nil
	}

	sanitized := connectionStringCredentialsPattern.ReplaceAllString(err.Error(), "://***@")
	sanitized = connectionStringPasswordPattern.ReplaceAllString(sanitized, "${1}***")

	return &SanitizedError{sanitized: sanitized, cause: err}
}

// Sanitize redacts connection credentials from an error's message while
// keeping the original error available to errors.Is and errors.As. A nil
// error stays nil. Drivers embed the DSN in connect and parse failures, so
// anything that touches one goes through here before logging or wrapping.
func Sanitize(err error) error { return sanitizeError(err) }

// Config holds connection settings for a primary/replica PostgreSQL pair.
// ReplicaDSN may equal PrimaryDSN when no read replica is deployed.
type Config struct {
	PrimaryDSN         string
	ReplicaDSN         string
	MaxOpenConnections int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	ConnMaxIdleTime    time.Duration
	Logger             log.Logger
}

func (c Config) validate() error {
	if strings.TrimSpace(c.PrimaryDSN) == "" {
		return fmt.Errorf("%w: primary DSN is required", ErrInvalidConfig)
	}

	if strings.TrimSpace(c.ReplicaDSN) == "" {
		return fmt.Errorf("%w: replica DSN is required (use the primary DSN when no replica exists)", ErrInvalidConfig)
	}

	return nil
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}

	if c.MaxOpenConnections <= 0 {
		c.MaxOpenConnections = defaultMaxOpenConns
	}

	if c.MaxIdleConnections <= 0 {
		c.MaxIdleConnections = defaultMaxIdleConns
	}

	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = defaultConnMaxLifetime
	}

	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = defaultConnMaxIdleTime
	}

	return c
}

// Client manages a primary/replica connection pair behind a read/write
// splitting resolver. Reads route to replicas; writes and transactions go to
// the primary. Components that hold row locks across statements use Primary
// directly so the lock and the statements share one connection pool.
type Client struct {
	cfg      Config
	resolver dbresolver.DB
	primary  *sql.DB
	replica  *sql.DB
	mu       sync.RWMutex
}

// New validates the configuration and returns an unconnected Client.
// Connect (or any lazy accessor) establishes the pools.
func New(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Client{cfg: cfg.withDefaults()}, nil
}

// Connect builds fresh connection pools and swaps them in. On failure the
// previous pools, if any, stay active; on success they are closed after the
// swap.
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
		return fmt.Errorf("context canceled before database connection: %w", err)
	}

	c.cfg.Logger.Log(ctx, log.LevelInfo, "connecting to primary and replica databases")

	primary, err := dbOpenFn("pgx", c.cfg.PrimaryDSN)
	if err != nil {
		sanitized := sanitizeError(err)
		c.cfg.Logger.Log(ctx, log.LevelError, "failed to open primary database", log.Err(sanitized))

		return fmt.Errorf("failed to open primary database: %w", sanitized)
	}

	var success bool

	defer func() {
		if !success {
			primary.Close()
		}
	}()

	c.applyPoolSettings(primary)

	replica, err := dbOpenFn("pgx", c.cfg.ReplicaDSN)
	if err != nil {
		sanitized := sanitizeError(err)
		c.cfg.Logger.Log(ctx, log.LevelError, "failed to open replica database", log.Err(sanitized))

		return fmt.Errorf("failed to open replica database: %w", sanitized)
	}

	defer func() {
		if !success {
			replica.Close()
		}
	}()

	c.applyPoolSettings(replica)

	resolver, err := createResolverFn(primary, replica, c.cfg.Logger)
	if err != nil {
		c.cfg.Logger.Log(ctx, log.LevelError, "failed to create resolver", log.Err(err))

		return fmt.Errorf("failed to create resolver: %w", err)
	}

	if err := resolver.PingContext(ctx); err != nil {
		_ = resolver.Close()

		sanitized := sanitizeError(err)
		c.cfg.Logger.Log(ctx, log.LevelError, "failed to ping database", log.Err(sanitized))

		return fmt.Errorf("failed to ping database: %w", sanitized)
	}

	// Swap in the new pools, then release the previous generation.
	old := c.resolver
	c.resolver = resolver
	c.primary = primary
	c.replica = replica

	if old != nil {
		if err := old.Close(); err != nil {
			c.cfg.Logger.Log(ctx, log.LevelWarn, "failed to close previous connection", log.Err(err))
		}
	}

	c.cfg.Logger.Log(ctx, log.LevelInfo, "connected to postgres")

	success = true

	return nil
}

func (c *Client) applyPoolSettings(db *sql.DB) {
	db.SetMaxOpenConns(c.cfg.MaxOpenConnections)
	db.SetMaxIdleConns(c.cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(c.cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(c.cfg.ConnMaxIdleTime)
}

// Resolver returns the read/write splitting handle, connecting lazily on
// first use.
//
//nolint:ireturn
func (c *Client) Resolver(ctx context.Context) (dbresolver.DB, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	c.mu.RLock()

	if c.resolver != nil {
		resolver := c.resolver
		c.mu.RUnlock()

		return resolver, nil
	}

	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolver != nil {
		return c.resolver, nil
	}

	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}

	return c.resolver, nil
}

// Primary returns the primary pool, connecting lazily on first use. Callers
// that open transactions holding row locks (FOR UPDATE SKIP LOCKED) must use
// this handle rather than the resolver so every statement in the transaction
// reaches the primary.
func (c *Client) Primary(ctx context.Context) (*sql.DB, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	c.mu.RLock()

	if c.primary != nil {
		primary := c.primary
		c.mu.RUnlock()

		return primary, nil
	}

	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.primary != nil {
		return c.primary, nil
	}

	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}

	return c.primary, nil
}

// IsConnected reports whether a resolver is currently active.
func (c *Client) IsConnected() (bool, error) {
	if c == nil {
		return false, errors.New("client is nil")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.resolver != nil, nil
}

// Close releases the connection pools. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolver == nil {
		return nil
	}

	err := c.resolver.Close()
	c.resolver = nil
	c.primary = nil
	c.replica = nil

	return err
}

func validateDatabaseName(name string) error {
	if !dbNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidDatabaseName, name)
	}

	return nil
}
