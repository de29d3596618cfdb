// Package spicedb applies relationship operations to a SpiceDB permission
// store over the authzed v1 API.
//
// Operations are value types carried from event translators to the Applier.
// Writes use OPERATION_TOUCH and deletes use an exact relationship filter,
// so re-applying an operation after a retry converges instead of erroring.
// Calls can be wrapped in a circuit breaker; a rejected call surfaces as an
// ordinary error and takes the outbox retry path.
package spicedb
