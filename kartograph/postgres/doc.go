// Package postgres provides the shared PostgreSQL connection layer.
//
// Client manages a primary/replica pool pair behind a read/write splitting
// resolver with predictable lifecycle: validated construction, atomic
// reconnect, lazy first connection and idempotent close. Migrator applies
// embedded migration sets explicitly at startup.
package postgres
