// Package circuitbreaker wraps sony/gobreaker with logging and metrics for
// calls to external services.
//
// Create a Breaker per guarded service and run calls through Execute.
// Rejected calls return ErrOpen so callers can distinguish a tripped
// breaker from a genuine service error; relay components leave rejected
// work in the outbox for a later cycle instead of retrying inline.
package circuitbreaker
