package postgres

import (
	"embed"

	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/log"
	kpostgres "github.com/openshift-hyperfleet/kartograph-sub003/kartograph/postgres"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultMigrationsTable tracks this set's versions separately so the outbox
// DDL can share a database with other embedded migration sets.
const DefaultMigrationsTable = "outbox_schema_migrations"

const migrationsDir = "migrations"

// NewMigrator returns a migrator for the embedded outbox DDL set: the
// outbox_entries table, its pending-entries partial index and the
// outbox_appended notify trigger.
func NewMigrator(primaryDSN, databaseName string, logger log.Logger) (*kpostgres.Migrator, error) {
	return kpostgres.NewMigrator(kpostgres.MigrationConfig{
		PrimaryDSN:      primaryDSN,
		DatabaseName:    databaseName,
		Source:          migrationsFS,
		SourceDir:       migrationsDir,
		MigrationsTable: DefaultMigrationsTable,
		Logger:          logger,
	})
}
