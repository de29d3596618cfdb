package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/log"
)

const defaultSourceDir = "migrations"

// Seam for tests.
var runMigrationsFn = runMigrations

// MigrationConfig holds the settings for one embedded migration set.
// MigrationsTable isolates version tracking so several sets can share a
// database without clashing.
type MigrationConfig struct {
	PrimaryDSN      string
	DatabaseName    string
	Source          fs.FS
	SourceDir       string
	MigrationsTable string
	Logger          log.Logger
}

// Migrator applies an embedded migration set against the primary database.
// Migrations run explicitly at startup, never implicitly on connect.
type Migrator struct {
	cfg MigrationConfig
}

// NewMigrator validates the configuration and returns a Migrator.
func NewMigrator(cfg MigrationConfig) (*Migrator, error) {
	if strings.TrimSpace(cfg.PrimaryDSN) == "" {
		return nil, fmt.Errorf("%w: primary DSN is required", ErrInvalidConfig)
	}

	if err := validateDatabaseName(cfg.DatabaseName); err != nil {
		return nil, err
	}

	if cfg.Source == nil {
		return nil, fmt.Errorf("%w: migration source is required", ErrInvalidConfig)
	}

	if cfg.SourceDir == "" {
		cfg.SourceDir = defaultSourceDir
	}

	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}

	return &Migrator{cfg: cfg}, nil
}

// Up opens a dedicated connection, applies all pending migrations and closes
// the connection again. A set with nothing to apply is not an error.
func (m *Migrator) Up(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}

	db, err := dbOpenFn("pgx", m.cfg.PrimaryDSN)
	if err != nil {
		sanitized := sanitizeError(err)
		m.cfg.Logger.Log(ctx, log.LevelError, "failed to open database for migrations", log.Err(sanitized))

		return fmt.Errorf("failed to open database for migrations: %w", sanitized)
	}

	defer db.Close()

	return runMigrationsFn(ctx, db, m.cfg)
}

func runMigrations(ctx context.Context, db *sql.DB, cfg MigrationConfig) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled before migrations: %w", err)
	}

	sourceDriver, err := iofs.New(cfg.Source, cfg.SourceDir)
	if err != nil {
		return fmt.Errorf("failed to read migration source: %w", err)
	}

	databaseDriver, err := migratepg.WithInstance(db, &migratepg.Config{
		DatabaseName:    cfg.DatabaseName,
		SchemaName:      "public",
		MigrationsTable: cfg.MigrationsTable,
	})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver instance: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", sourceDriver, cfg.DatabaseName, databaseDriver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			cfg.Logger.Log(ctx, log.LevelInfo, "no new migrations found, skipping",
				log.String("table", cfg.MigrationsTable))

			return nil
		}

		var dirtyErr migrate.ErrDirty
		if errors.As(err, &dirtyErr) {
			cfg.Logger.Log(ctx, log.LevelError, "migration failed with dirty version",
				log.Int("version", dirtyErr.Version))

			return fmt.Errorf("migration failed: dirty database version %d", dirtyErr.Version)
		}

		cfg.Logger.Log(ctx, log.LevelError, "migration failed", log.Err(err))

		return fmt.Errorf("migration failed: %w", err)
	}

	cfg.Logger.Log(ctx, log.LevelInfo, "migrations applied",
		log.String("table", cfg.MigrationsTable))

	return nil
}
