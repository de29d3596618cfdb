package postgres

import (
	"embed"

	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/log"
	kpostgres "github.com/openshift-hyperfleet/kartograph-sub003/kartograph/postgres"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultMigrationsTable tracks this set's versions separately so the graph
// store DDL can share a database with other embedded migration sets.
const DefaultMigrationsTable = "graph_schema_migrations"

const migrationsDir = "migrations"

// NewMigrator returns a migrator for the embedded graph store DDL set: the
// kg_graphs registry, the kg_labels claims table, the kg_nodes and kg_edges
// element tables and the edge endpoint indexes.
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
