// Package relay composes the outbox-to-SpiceDB pipeline into one runnable
// unit.
//
// A Relay owns a worker draining the outbox table, a LISTEN/NOTIFY listener
// that wakes it, and a monitor sampling queue depth, all wired over a shared
// repository, codec, and projector. Configuration comes from KARTOGRAPH_
// environment variables and is validated with go-playground struct tags.
//
// Relay implements kartograph.App so a Launcher can run it alongside other
// apps, and the three loops run under a panic-recovering errgroup so one
// poisoned goroutine cannot strand the others.
package relay
