// Package projection turns stored domain events into SpiceDB relationship
// operations.
//
// A Translator owns the event types of one bounded context and maps each
// decoded event to zero or more operations. The Registry dispatches by event
// type and refuses to be built when two translators claim the same type. The
// Projector is the outbox worker's handler: decode, translate, apply each
// operation in order. Operations are individually idempotent, so a retry
// after partial application converges instead of double-writing.
//
// The reference translators in this package project the platform's group,
// workspace, API key, and tenant events.
package projection
