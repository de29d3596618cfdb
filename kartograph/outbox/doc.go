// Package outbox provides transactional outbox primitives.
//
// Domain events are appended to an outbox table inside the same transaction
// as the state change that produced them, then relayed asynchronously by a
// Worker with at-least-once delivery. There is no status column: an entry is
// pending while processed_at and failed_at are both null, and the row lock
// held during a fetch cycle is the processing state. Entries that exhaust
// their retries are dead-lettered in place by setting failed_at.
//
// The package defines the storage contract (Repository over a Querier), the
// event codec, the relay Worker and its Probe, and a Monitor that samples
// queue depth. The PostgreSQL implementation lives in the postgres
// subpackage.
package outbox
