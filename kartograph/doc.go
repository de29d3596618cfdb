// Package kartograph provides the shared plumbing used across the relay:
// context propagation for logger, tracer and correlation ID, the application
// launcher that supervises long-running components, and small identifier
// helpers.
package kartograph
