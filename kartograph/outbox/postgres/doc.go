// Package postgres implements the outbox storage contract on PostgreSQL.
//
// Repository methods run on the caller's Querier and never open transactions
// of their own: appends join the transaction that persists the state change,
// and fetch cycles keep their FOR UPDATE SKIP LOCKED claims alive on the
// transaction the worker drives.
//
// The DDL ships two ways: Schema returns the statements for deployments that
// own their schema management, and NewMigrator wires the embedded
// golang-migrate set with its own version table. Listener turns the insert
// trigger's pg_notify into worker wakes over a dedicated connection.
package postgres
